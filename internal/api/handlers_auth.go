package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/auth"
	"github.com/Spok95/learning-platform/internal/mailer"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequest struct {
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required"`
	FullName string      `json:"fullName" binding:"required"`
	Role     models.Role `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// register creates a student or teacher account and starts a session.
// The welcome email is best effort.
func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	if req.Role == "" {
		req.Role = models.Student
	}
	if req.Role != models.Student && req.Role != models.Teacher {
		s.fail(c, apperr.ValidationError{Field: "role", Message: "must be student or teacher"})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		s.fail(c, apperr.ValidationError{Field: "password", Message: err.Error()})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	u := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
	}
	if err := s.Store.CreateUser(c.Request.Context(), u); err != nil {
		s.fail(c, err)
		return
	}
	token, err := s.Tokens.Issue(u.ID, u.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	auth.SetSessionCookie(c, token, s.Tokens, s.SecureCookies)
	if s.Mail != nil {
		s.Mail.SendAsync(mailer.Welcome, u.Email, mailer.Data{Name: u.FullName})
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	c.JSON(http.StatusCreated, sessionResponse{User: *u, Token: token})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	invalid := func() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	}

	u, err := s.Store.GetUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, apperr.ErrNotFound) {
		invalid()
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	ok, err := auth.PasswordMatches(u.PasswordHash, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		invalid()
		return
	}
	token, err := s.Tokens.Issue(u.ID, u.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	auth.SetSessionCookie(c, token, s.Tokens, s.SecureCookies)
	c.JSON(http.StatusOK, sessionResponse{User: *u, Token: token})
}

func (s *Server) logout(c *gin.Context) {
	auth.ClearSessionCookie(c, s.SecureCookies)
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	u, err := s.Store.GetUserByID(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) listPackages(c *gin.Context) {
	pkgs, err := s.Store.ListPackages(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pkgs)
}
