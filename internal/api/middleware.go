package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/auth"
	"github.com/Spok95/learning-platform/internal/ctxutil"
	"github.com/Spok95/learning-platform/internal/metrics"
	"github.com/Spok95/learning-platform/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

		rid, _ := ctxutil.RequestID(c.Request.Context())
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", rid),
		}
		if uid := auth.UserID(c); uid != 0 {
			fields = append(fields, zap.Int64("user_id", uid))
		}
		if status >= 500 {
			log.Warn("http request", fields...)
			return
		}
		log.Debug("http request", fields...)
	}
}

func recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, p any) {
		err := fmt.Errorf("panic: %v", p)
		observability.CaptureOpErr(err, c.FullPath(), auth.UserID(c))
		log.Error("handler panic", zap.String("route", c.FullPath()), zap.Any("panic", p))
		metrics.HandlerErrors.Inc()
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// fail answers with the status for err. Unknown errors are logged, sent to Sentry and
// hidden behind a generic message.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status < http.StatusInternalServerError {
		body := gin.H{"error": err.Error()}
		var tooEarly apperr.TooEarlyError
		if errors.As(err, &tooEarly) {
			body["daysRemaining"] = tooEarly.DaysRemaining
		}
		c.AbortWithStatusJSON(status, body)
		return
	}
	metrics.HandlerErrors.Inc()
	observability.CaptureOpErr(err, c.FullPath(), auth.UserID(c))
	rid, _ := ctxutil.RequestID(c.Request.Context())
	s.log.Error("request failed",
		zap.String("route", c.FullPath()),
		zap.String("request_id", rid),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// bind decodes the JSON body; binding failures are caller errors.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}
