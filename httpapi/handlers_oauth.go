package httpapi

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/hackauth/autherr"
)

func (s *Server) oauthProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.engine.OAuthProviders()})
}

func (s *Server) oauthStart(c *gin.Context) {
	start, err := s.engine.OAuthBegin(c.Request.Context(), c.Param("provider"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setOAuthBinding(c, start.Binding, oauthBindingMaxAge)
	c.Redirect(http.StatusFound, start.URL)
}

// oauthBindingMaxAge matches the lifetime of the stored state.
const oauthBindingMaxAge = 600

// oauthCallback finishes the provider round trip. With a frontend configured
// the browser is redirected there; tokens never appear in the URL, the
// frontend calls /auth/refresh with the fresh cookies instead.
func (s *Server) oauthCallback(c *gin.Context) {
	binding := readCookie(c, oauthBindingCookie)
	s.setOAuthBinding(c, "", -1)
	if denied := c.Query("error"); denied != "" {
		s.oauthFail(c, autherr.ErrInvalidCredentials)
		return
	}
	res, err := s.engine.OAuthLogin(c.Request.Context(), c.Param("provider"), c.Query("code"), c.Query("state"), binding)
	if err != nil {
		s.oauthFail(c, err)
		return
	}

	if s.config.FrontendURL == "" {
		s.writeLoginResult(c, res)
		return
	}

	q := url.Values{}
	if res.TwoFactorRequired {
		q.Set("challenge", res.Challenge)
		c.Redirect(http.StatusFound, s.config.FrontendURL+"/auth/2fa?"+q.Encode())
		return
	}
	s.setSessionCookies(c, res.Tokens)
	if res.Created {
		q.Set("new", "1")
	}
	c.Redirect(http.StatusFound, s.config.FrontendURL+"/auth/callback?"+q.Encode())
}

func (s *Server) oauthFail(c *gin.Context, err error) {
	if s.config.FrontendURL == "" {
		s.fail(c, err)
		return
	}
	status := statusOf(err)
	q := url.Values{"error": {publicMessage(err, status)}}
	c.Redirect(http.StatusFound, s.config.FrontendURL+"/auth/callback?"+q.Encode())
}
