package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey = "userID"
	ContextRoleKey   = "role"
	ContextSystemKey = "system"
)

// TokenParser - проверка access токена.
type TokenParser interface {
	ParseAccess(token string) (service.Identity, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), true
}

// AuthMiddleware проверяет JWT access токен.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			abortWith(c, apperror.ErrUnauthorized)
			return
		}

		identity, err := tokens.ParseAccess(raw)
		if err != nil || identity.UserID == uuid.Nil {
			abortWith(c, apperror.New(apperror.ErrCodeUnauthorized, "токен невалиден"))
			return
		}

		c.Set(ContextUserIDKey, identity.UserID)
		c.Set(ContextRoleKey, identity.Role)
		c.Next()
	}
}

// CronAuth пускает планировщик по общему секрету в заголовке Authorization: Bearer <secret>.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(raw), []byte(secret)) != 1 {
			abortWith(c, apperror.New(apperror.ErrCodeUnauthorized, "неверный секрет планировщика"))
			return
		}
		c.Set(ContextSystemKey, true)
		c.Next()
	}
}

// CronOrAuth пускает либо планировщик по секрету, либо пользователя по JWT.
func CronOrAuth(tokens TokenParser, secret string) gin.HandlerFunc {
	userAuth := AuthMiddleware(tokens)
	return func(c *gin.Context) {
		if raw, ok := bearerToken(c); ok && secret != "" &&
			subtle.ConstantTimeCompare([]byte(raw), []byte(secret)) == 1 {
			c.Set(ContextSystemKey, true)
			c.Next()
			return
		}
		userAuth(c)
	}
}
