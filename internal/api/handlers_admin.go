package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type packageRequest struct {
	Title                string                  `json:"title" binding:"required"`
	PriceCents           int64                   `json:"priceCents" binding:"gte=0"`
	Currency             string                  `json:"currency"`
	BillingFrequency     models.BillingFrequency `json:"billingFrequency" binding:"required"`
	ClassDurationMinutes int                     `json:"classDurationMinutes" binding:"required,gt=0"`
	ClassesPerMonth      *int                    `json:"classesPerMonth"`
	StripePriceID        *string                 `json:"stripePriceId"`
}

func (s *Server) createPackage(c *gin.Context) {
	var req packageRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	if !req.BillingFrequency.Valid() {
		s.fail(c, apperr.ValidationError{Field: "billingFrequency", Message: "must be MONTHLY, QUARTERLY, HALF_YEARLY or YEARLY"})
		return
	}
	if req.ClassesPerMonth != nil && *req.ClassesPerMonth < 0 {
		s.fail(c, apperr.ValidationError{Field: "classesPerMonth", Message: "must not be negative"})
		return
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}
	p := &models.Package{
		Title:                strings.TrimSpace(req.Title),
		PriceCents:           req.PriceCents,
		Currency:             currency,
		BillingFrequency:     req.BillingFrequency,
		ClassDurationMinutes: req.ClassDurationMinutes,
		ClassesPerMonth:      req.ClassesPerMonth,
		StripePriceID:        req.StripePriceID,
	}
	if err := s.Store.CreatePackage(c.Request.Context(), p); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type assignmentRequest struct {
	TeacherID int64 `json:"teacherId" binding:"required,gt=0"`
	StudentID int64 `json:"studentId" binding:"required,gt=0"`
}

func (s *Server) assign(c *gin.Context) {
	var req assignmentRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := s.checkRole(ctx, req.TeacherID, models.Teacher); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.checkRole(ctx, req.StudentID, models.Student); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Store.AssignStudent(ctx, req.TeacherID, req.StudentID); err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("student assigned", zap.Int64("teacher_id", req.TeacherID), zap.Int64("student_id", req.StudentID))
	c.Status(http.StatusNoContent)
}

func (s *Server) unassign(c *gin.Context) {
	var req assignmentRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Store.UnassignStudent(c.Request.Context(), req.TeacherID, req.StudentID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) checkRole(ctx context.Context, userID int64, want models.Role) error {
	u, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != want {
		return apperr.ValidationError{Field: string(want) + "Id", Message: fmt.Sprintf("user %d is not a %s", userID, want)}
	}
	return nil
}
