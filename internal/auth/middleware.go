package auth

import (
	"net/http"
	"strings"

	"github.com/Spok95/learning-platform/internal/ctxutil"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	CookieName = "session"

	ctxUserID = "auth.user_id"
	ctxRole   = "auth.role"
)

// Authenticate accepts the session cookie or an Authorization: Bearer header.
func Authenticate(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c.GetHeader("Authorization"))
		if raw == "" {
			raw, _ = c.Cookie(CookieName)
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		id, role, err := tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		c.Set(ctxUserID, id)
		c.Set(ctxRole, role)
		ctx := ctxutil.WithUserID(c.Request.Context(), id)
		ctx = ctxutil.WithRole(ctx, string(role))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ctxRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

func UserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

func Role(c *gin.Context) models.Role {
	v, _ := c.Get(ctxRole)
	r, _ := v.(models.Role)
	return r
}

func bearer(h string) string {
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// SetSessionCookie stores the token as an HttpOnly cookie.
func SetSessionCookie(c *gin.Context, token string, tokens *Tokens, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, int(tokens.TTL().Seconds()), "/", "", secure, true)
}

func ClearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", secure, true)
}
