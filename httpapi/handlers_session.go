package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/hackauth"
	"github.com/hackforge/hackauth/middleware"
)

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := s.engine.Register(c.Request.Context(), hackauth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.engine.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.writeLoginResult(c, res)
}

func (s *Server) loginTwoFactor(c *gin.Context) {
	var req twoFactorLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.engine.ConfirmLoginTwoFactor(c.Request.Context(), req.Challenge, req.Code)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.writeLoginResult(c, res)
}

func (s *Server) writeLoginResult(c *gin.Context, res *hackauth.LoginResult) {
	if res.TwoFactorRequired {
		c.JSON(http.StatusAccepted, challengeResponse{TwoFactorRequired: true, Challenge: res.Challenge})
		return
	}
	s.setSessionCookies(c, res.Tokens)
	c.JSON(http.StatusOK, newTokenResponse(res.Tokens, res.Account))
}

func (s *Server) refresh(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := s.engine.RefreshSession(ctx, readCookie(c, refreshCookie), readCookie(c, sessionCookie))
	if err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			s.clearSessionCookies(c)
		}
		s.fail(c, err)
		return
	}
	s.setSessionCookies(c, res.Tokens)
	c.JSON(http.StatusOK, newTokenResponse(res.Tokens, res.Account))
}

func (s *Server) logout(c *gin.Context) {
	if sid := readCookie(c, sessionCookie); sid != "" {
		if err := s.engine.Logout(c.Request.Context(), sid); err != nil {
			s.fail(c, err)
			return
		}
	}
	s.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) logoutAll(c *gin.Context) {
	p, _ := middleware.PrincipalFromGin(c)
	n, err := s.engine.LogoutAll(c.Request.Context(), p.AccountID)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

func (s *Server) me(c *gin.Context) {
	p, _ := middleware.PrincipalFromGin(c)
	user, err := s.engine.Account(c.Request.Context(), p.AccountID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) whoami(c *gin.Context) {
	switch state := middleware.StateFromGin(c).(type) {
	case middleware.Authenticated:
		c.JSON(http.StatusOK, gin.H{
			"authenticated": true,
			"id":            state.Principal.AccountID,
			"username":      state.Principal.Username,
			"role":          state.Principal.Role,
		})
	default:
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
	}
}

func (s *Server) listSessions(c *gin.Context) {
	p, _ := middleware.PrincipalFromGin(c)
	sessions, err := s.engine.ListSessions(c.Request.Context(), p.AccountID, p.SessionID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) revokeSession(c *gin.Context) {
	p, _ := middleware.PrincipalFromGin(c)
	sid := c.Param("id")
	if err := s.engine.RevokeSession(c.Request.Context(), p.AccountID, sid); err != nil {
		s.fail(c, err)
		return
	}
	if sid == p.SessionID {
		s.clearSessionCookies(c)
	}
	c.Status(http.StatusNoContent)
}
