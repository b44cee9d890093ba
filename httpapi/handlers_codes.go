package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/hackauth/middleware"
)

func (s *Server) requestEmailVerification(c *gin.Context) {
	p, _ := middleware.PrincipalFromGin(c)
	if err := s.engine.RequestEmailVerification(c.Request.Context(), p.AccountID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) confirmEmailVerification(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := middleware.PrincipalFromGin(c)
	if err := s.engine.ConfirmEmailVerification(c.Request.Context(), p.AccountID, req.Code); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// requestPasswordReset answers 202 for any well-formed email.
func (s *Server) requestPasswordReset(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.engine.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) confirmPasswordReset(c *gin.Context) {
	var req passwordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.engine.ConfirmPasswordReset(c.Request.Context(), req.Email, req.Code, req.Password); err != nil {
		s.fail(c, err)
		return
	}
	s.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := middleware.PrincipalFromGin(c)
	if err := s.engine.ChangePassword(c.Request.Context(), p.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requestTwoFactorEnable(c *gin.Context) {
	p, _ := middleware.PrincipalFromGin(c)
	if err := s.engine.RequestTwoFactorEnable(c.Request.Context(), p.AccountID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) confirmTwoFactorEnable(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := middleware.PrincipalFromGin(c)
	if err := s.engine.ConfirmTwoFactorEnable(c.Request.Context(), p.AccountID, req.Code); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) disableTwoFactor(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := middleware.PrincipalFromGin(c)
	if err := s.engine.DisableTwoFactor(c.Request.Context(), p.AccountID, req.Password); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requestAccountDisable(c *gin.Context) {
	p, _ := middleware.PrincipalFromGin(c)
	if err := s.engine.RequestAccountDisable(c.Request.Context(), p.AccountID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) confirmAccountDisable(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := middleware.PrincipalFromGin(c)
	if err := s.engine.ConfirmAccountDisable(c.Request.Context(), p.AccountID, req.Code); err != nil {
		s.fail(c, err)
		return
	}
	s.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}
