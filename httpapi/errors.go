package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/hackforge/hackauth/autherr"
)

// statusOf maps an engine error to its HTTP status.
func statusOf(err error) int {
	if errors.Is(err, autherr.ErrTooManyAttempts) {
		return http.StatusTooManyRequests
	}
	switch autherr.KindOf(err) {
	case autherr.ErrValidation:
		return http.StatusBadRequest
	case autherr.ErrConflict:
		return http.StatusConflict
	case autherr.ErrAuth:
		return http.StatusUnauthorized
	case autherr.ErrNotFound:
		return http.StatusNotFound
	case autherr.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the text safe to show a client. Taxonomy errors carry
// fixed messages; anything else, including wrapped backend causes, is hidden.
func publicMessage(err error, status int) string {
	var ae *autherr.Error
	if status < http.StatusInternalServerError && errors.As(err, &ae) {
		return ae.Error()
	}
	if status == http.StatusServiceUnavailable {
		return "service temporarily unavailable"
	}
	return http.StatusText(status)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": publicMessage(err, status)})
}

// badRequest rejects a body that failed binding. Validation failures list the
// offending JSON fields.
func badRequest(c *gin.Context, err error) {
	body := gin.H{"error": autherr.ErrInvalidInput.Error()}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, fe.Field())
		}
		body["fields"] = fields
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
