package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/hackauth/token"
)

const ginStateKey = "hackauth.auth_state"

// RequireGin is [Require] for gin routers. It aborts with 401 and a JSON
// error body.
func RequireGin(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := resolve(c.Request.Context(), v, c.GetHeader("Authorization"))
		if _, ok := state.(Authenticated); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		setGinState(c, state)
		c.Next()
	}
}

// RequireStrictGin is [RequireStrict] for gin routers.
func RequireStrictGin(v SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := resolveStrict(c.Request.Context(), v, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
			return
		}
		if _, ok := state.(Authenticated); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		setGinState(c, state)
		c.Next()
	}
}

// OptionalGin is [Optional] for gin routers.
func OptionalGin(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		setGinState(c, resolve(c.Request.Context(), v, c.GetHeader("Authorization")))
		c.Next()
	}
}

func setGinState(c *gin.Context, state AuthState) {
	c.Set(ginStateKey, state)
	c.Request = c.Request.WithContext(WithState(c.Request.Context(), state))
}

// StateFromGin returns the verdict stored by a gin guard.
func StateFromGin(c *gin.Context) AuthState {
	if v, ok := c.Get(ginStateKey); ok {
		if state, ok := v.(AuthState); ok {
			return state
		}
	}
	return Anonymous{}
}

// PrincipalFromGin returns the authenticated principal, if any.
func PrincipalFromGin(c *gin.Context) (*token.Principal, bool) {
	if a, ok := StateFromGin(c).(Authenticated); ok {
		return a.Principal, true
	}
	return nil, false
}
