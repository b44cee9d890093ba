package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth"
	"github.com/hackforge/hackauth/fingerprint"
)

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"ip":       c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}

// cors admits exactly one browser origin with credentials. Requests from any
// other origin get no CORS headers and are left to the browser to reject.
func cors(frontendURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if frontendURL == "" || origin != frontendURL {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Max-Age", "86400")
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// withFingerprint tags the request context with the client fingerprint so
// sessions and audit events record it.
func withFingerprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		fp := fingerprint.Extract(c.Request.Header, c.RemoteIP(), c.Request.RemoteAddr)
		c.Request = c.Request.WithContext(hackauth.WithFingerprint(c.Request.Context(), fp))
		c.Next()
	}
}
