package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// ErrorHandler обрабатывает ошибки централизованно.
// AppError отдаётся клиенту с кодом и флагами, остальные ошибки маскируются.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, body := renderError(err)

		entry := logger.Log.WithFields(logrus.Fields{
			"error":      err.Error(),
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"status":     status,
			"request_id": c.GetString(ContextRequestIDKey),
		})
		if status >= http.StatusInternalServerError {
			entry.Error("Request error")
		} else {
			entry.Debug("Request rejected")
		}

		c.JSON(status, body)
	}
}

func renderError(err error) (int, gin.H) {
	appErr, ok := apperror.As(err)
	if !ok {
		return http.StatusInternalServerError, gin.H{
			"error": "внутренняя ошибка сервера",
			"code":  apperror.ErrCodeInternal,
		}
	}

	body := gin.H{}
	for k, v := range appErr.Flags {
		body[k] = v
	}
	body["error"] = appErr.Message
	body["code"] = appErr.Code
	return appErr.HTTPStatus, body
}

// abortWith останавливает цепочку и передаёт ошибку в ErrorHandler.
// Без ErrorHandler в цепочке ответ всё равно будет отрендерен.
func abortWith(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := renderError(err)
	c.AbortWithStatusJSON(status, body)
}
