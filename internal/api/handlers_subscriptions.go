package api

import (
	"errors"
	"net/http"

	"github.com/Spok95/learning-platform/internal/auth"
	"github.com/Spok95/learning-platform/internal/payments"
	"github.com/gin-gonic/gin"
)

func (s *Server) currentSubscription(c *gin.Context) {
	sub, err := s.Subscriptions.Current(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) subscriptionHistory(c *gin.Context) {
	subs, err := s.Subscriptions.History(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (s *Server) renewSubscription(c *gin.Context) {
	sub, err := s.Subscriptions.RenewManual(c.Request.Context(), auth.UserID(c), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) cancelSubscription(c *gin.Context) {
	if err := s.Subscriptions.Cancel(c.Request.Context(), auth.UserID(c), s.now()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type checkoutRequest struct {
	PackageID int64 `json:"packageId" binding:"required,gt=0"`
}

func (s *Server) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	pkg, err := s.Store.GetPackage(ctx, req.PackageID)
	if err != nil {
		s.fail(c, err)
		return
	}
	u, err := s.Store.GetUserByID(ctx, auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	url, err := s.Checkout.CreateSession(ctx, *u, *pkg)
	if errors.Is(err, payments.ErrNotConfigured) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "payments are not available"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
