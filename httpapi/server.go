// Package httpapi exposes the Engine over HTTP with gin.
//
// Refresh tokens and session ids travel only in HttpOnly cookies scoped to
// the API prefix; access tokens are returned in JSON and presented as
// bearer credentials.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth"
	"github.com/hackforge/hackauth/metrics/export/prometheus"
	"github.com/hackforge/hackauth/middleware"
)

// Config shapes the HTTP surface.
type Config struct {
	// APIPrefix is the route group and cookie path, e.g. "/api".
	APIPrefix string
	// FrontendURL is the single CORS origin and the target of OAuth
	// callback redirects. Empty disables both.
	FrontendURL string
	// Production marks cookies Secure.
	Production bool
	// Health reports backend readiness for /healthz. Nil always reports ok.
	Health func(ctx context.Context) error
}

// Server holds the handlers for one Engine.
type Server struct {
	engine  *hackauth.Engine
	config  Config
	logger  logrus.FieldLogger
	metrics *prometheus.Exporter
}

// New returns a Server for engine. A nil logger uses the logrus standard
// logger.
func New(engine *hackauth.Engine, cfg Config, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	useJSONFieldNames()
	cfg.APIPrefix = "/" + strings.Trim(cfg.APIPrefix, "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Server{
		engine:  engine,
		config:  cfg,
		logger:  logger,
		metrics: prometheus.NewExporter(engine),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), cors(s.config.FrontendURL), withFingerprint())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group(s.config.APIPrefix)
	s.registerRoutes(api.Group("/auth"))
	return r
}

func (s *Server) registerRoutes(g *gin.RouterGroup) {
	require := middleware.RequireGin(s.engine)
	strict := middleware.RequireStrictGin(s.engine)

	g.POST("/register", s.register)
	g.POST("/login", s.login)
	g.POST("/login/2fa", s.loginTwoFactor)
	g.POST("/refresh", s.refresh)
	g.POST("/logout", s.logout)
	g.POST("/logout/all", strict, s.logoutAll)
	g.GET("/me", require, s.me)
	g.GET("/whoami", middleware.OptionalGin(s.engine), s.whoami)

	g.POST("/verify-email/request", require, s.requestEmailVerification)
	g.POST("/verify-email/confirm", require, s.confirmEmailVerification)

	g.POST("/password-reset/request", s.requestPasswordReset)
	g.POST("/password-reset/confirm", s.confirmPasswordReset)
	g.POST("/password/change", strict, s.changePassword)

	g.POST("/2fa/enable", strict, s.requestTwoFactorEnable)
	g.POST("/2fa/enable/confirm", strict, s.confirmTwoFactorEnable)
	g.POST("/2fa/disable", strict, s.disableTwoFactor)

	g.POST("/account/disable", strict, s.requestAccountDisable)
	g.POST("/account/disable/confirm", strict, s.confirmAccountDisable)

	g.GET("/sessions", strict, s.listSessions)
	g.DELETE("/sessions/:id", strict, s.revokeSession)

	g.GET("/oauth", s.oauthProviders)
	g.GET("/oauth/:provider", s.oauthStart)
	g.GET("/oauth/:provider/callback", s.oauthCallback)
}

func (s *Server) healthz(c *gin.Context) {
	if s.config.Health != nil {
		if err := s.config.Health(c.Request.Context()); err != nil {
			s.logger.WithError(err).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
