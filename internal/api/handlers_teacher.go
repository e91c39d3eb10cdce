package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/auth"
	"github.com/Spok95/learning-platform/internal/entitlement"
	"github.com/Spok95/learning-platform/internal/export"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/gin-gonic/gin"
)

type studentRequest struct {
	StudentID int64  `json:"studentId" binding:"required,gt=0"`
	Notes     string `json:"notes"`
}

type scheduleRequest struct {
	StudentID int64     `json:"studentId" binding:"required,gt=0"`
	StartTime time.Time `json:"startTime" binding:"required"`
}

func (s *Server) teacherStudents(c *gin.Context) {
	users, err := s.Store.ListStudentsForTeacher(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) studentEntitlement(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || studentID <= 0 {
		s.fail(c, apperr.ValidationError{Field: "id", Message: "must be a positive integer"})
		return
	}
	res, err := s.Entitlement.Check(c.Request.Context(), studentID, auth.UserID(c), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) startClass(c *gin.Context) {
	var req studentRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	cs, err := s.Classes.Start(c.Request.Context(), auth.UserID(c), req.StudentID, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cs)
}

func (s *Server) endClass(c *gin.Context) {
	var req studentRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	cs, err := s.Classes.End(c.Request.Context(), auth.UserID(c), req.StudentID, req.Notes, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (s *Server) scheduleClass(c *gin.Context) {
	var req scheduleRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	cs, err := s.Classes.Schedule(c.Request.Context(), auth.UserID(c), req.StudentID, req.StartTime, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cs)
}

func (s *Server) teacherClasses(c *gin.Context) {
	from, to, err := s.window(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.Classes.ListForTeacher(c.Request.Context(), auth.UserID(c), from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) studentClasses(c *gin.Context) {
	from, to, err := s.window(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.Classes.ListForStudent(c.Request.Context(), auth.UserID(c), from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// teacherEarnings lists monthly totals, optionally narrowed by ?year=.
func (s *Server) teacherEarnings(c *gin.Context) {
	rows, err := s.Store.ListEarnings(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if y := c.Query("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			s.fail(c, apperr.ValidationError{Field: "year", Message: "must be a number"})
			return
		}
		filtered := []models.TeacherEarnings{}
		for _, r := range rows {
			if r.Year == year {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	c.JSON(http.StatusOK, rows)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) exportEarnings(c *gin.Context) {
	ctx := c.Request.Context()
	teacherID := auth.UserID(c)
	rows, err := s.Store.ListEarnings(ctx, teacherID)
	if err != nil {
		s.fail(c, err)
		return
	}
	u, err := s.Store.GetUserByID(ctx, teacherID)
	if err != nil {
		s.fail(c, err)
		return
	}
	f, err := export.EarningsWorkbook(rows)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer func() { _ = f.Close() }()
	data, err := export.Bytes(f)
	if err != nil {
		s.fail(c, err)
		return
	}
	name := export.BuildEarningsFilename(u.FullName, s.now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// window reads ?from=&to= (RFC 3339). Missing bounds default to the current month.
func (s *Server) window(c *gin.Context) (time.Time, time.Time, error) {
	from, to := entitlement.MonthWindow(s.now())
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.ValidationError{Field: "from", Message: "must be RFC 3339"}
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.ValidationError{Field: "to", Message: "must be RFC 3339"}
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, apperr.ValidationError{Field: "to", Message: "must not be before from"}
	}
	return from, to, nil
}
