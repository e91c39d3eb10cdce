// Package api is the HTTP JSON surface of the platform.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Spok95/learning-platform/internal/auth"
	"github.com/Spok95/learning-platform/internal/classes"
	"github.com/Spok95/learning-platform/internal/entitlement"
	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/mailer"
	"github.com/Spok95/learning-platform/internal/metrics"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/Spok95/learning-platform/internal/subscriptions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Store is the persistence the handlers reach directly; lifecycle writes go through services.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	AssignStudent(ctx context.Context, teacherID, studentID int64) error
	UnassignStudent(ctx context.Context, teacherID, studentID int64) error
	ListStudentsForTeacher(ctx context.Context, teacherID int64) ([]models.User, error)
	CreatePackage(ctx context.Context, p *models.Package) error
	GetPackage(ctx context.Context, id int64) (*models.Package, error)
	ListPackages(ctx context.Context) ([]models.Package, error)
	ListEarnings(ctx context.Context, teacherID int64) ([]models.TeacherEarnings, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Checkout interface {
	CreateSession(ctx context.Context, user models.User, pkg models.Package) (string, error)
}

type Emailer interface {
	SendAsync(tpl mailer.Template, to string, data any)
}

type Deps struct {
	Store         Store
	DB            Pinger
	Tokens        *auth.Tokens
	Entitlement   *entitlement.Calculator
	Classes       *classes.Service
	Subscriptions *subscriptions.Service
	Checkout      Checkout
	Webhook       gin.HandlerFunc
	Mail          Emailer
	Log           *zap.Logger
	Loc           *time.Location
	SecureCookies bool
	Now           func() time.Time
}

type Server struct {
	Deps
	log *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Loc == nil {
		d.Loc = time.Local
	}
	s := &Server{Deps: d, log: logging.OrNop(d.Log)}

	r := gin.New()
	r.Use(requestID(), accessLog(s.log), recovery(s.log))

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	pub := r.Group("/api")
	pub.POST("/auth/register", s.register)
	pub.POST("/auth/login", s.login)
	pub.POST("/auth/logout", s.logout)
	pub.GET("/packages", s.listPackages)
	if d.Webhook != nil {
		pub.POST("/webhooks/stripe", d.Webhook)
	}

	authed := r.Group("/api", auth.Authenticate(d.Tokens))
	authed.GET("/me", s.me)
	authed.GET("/subscriptions/me", s.currentSubscription)
	authed.GET("/subscriptions/history", s.subscriptionHistory)
	authed.POST("/subscriptions/renew", s.renewSubscription)
	authed.POST("/subscriptions/cancel", s.cancelSubscription)
	authed.POST("/checkout", s.checkout)

	teacher := authed.Group("/teacher", auth.RequireRole(models.Teacher))
	teacher.GET("/students", s.teacherStudents)
	teacher.GET("/students/:id/entitlement", s.studentEntitlement)
	teacher.POST("/classes/start", s.startClass)
	teacher.POST("/classes/end", s.endClass)
	teacher.POST("/classes/schedule", s.scheduleClass)
	teacher.GET("/classes", s.teacherClasses)
	teacher.GET("/earnings", s.teacherEarnings)
	teacher.GET("/earnings/export", s.exportEarnings)

	student := authed.Group("/student", auth.RequireRole(models.Student))
	student.GET("/classes", s.studentClasses)

	admin := authed.Group("/admin", auth.RequireRole(models.Admin))
	admin.POST("/packages", s.createPackage)
	admin.POST("/assignments", s.assign)
	admin.DELETE("/assignments", s.unassign)

	return r
}

func (s *Server) now() time.Time { return s.Now().In(s.Loc) }

func (s *Server) healthz(c *gin.Context) {
	if s.DB == nil {
		c.String(http.StatusOK, "ok")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 800*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	if err := s.DB.PingContext(ctx); err != nil {
		c.String(http.StatusServiceUnavailable, "db not ok")
		return
	}
	metrics.ObserveDBPing(time.Since(t0))
	c.String(http.StatusOK, "ok")
}
