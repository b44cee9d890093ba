package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/hackauth"
)

const (
	refreshCookie      = "refreshToken"
	sessionCookie      = "sessionId"
	oauthBindingCookie = "oauthBinding"
)

func (s *Server) setSessionCookies(c *gin.Context, t *hackauth.Tokens) {
	maxAge := int(s.engine.RefreshTTL().Seconds())
	s.writeCookie(c, refreshCookie, t.RefreshToken, maxAge)
	s.writeCookie(c, sessionCookie, t.SessionID, maxAge)
}

func (s *Server) clearSessionCookies(c *gin.Context) {
	s.writeCookie(c, refreshCookie, "", -1)
	s.writeCookie(c, sessionCookie, "", -1)
}

func (s *Server) writeCookie(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.config.APIPrefix,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.Production,
		SameSite: http.SameSiteStrictMode,
	})
}

// setOAuthBinding ties a provider round trip to this browser. The callback is
// a cross-site navigation from the provider, so the cookie is Lax, not Strict.
func (s *Server) setOAuthBinding(c *gin.Context, binding string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     oauthBindingCookie,
		Value:    binding,
		Path:     s.config.APIPrefix + "/auth/oauth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func readCookie(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}
