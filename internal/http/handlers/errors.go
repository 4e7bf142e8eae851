package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pansan0/saleidia/internal/http/middleware"
	"go.uber.org/zap"
)

// fail writes the {error} body for err. Server-side failures are logged here
// and nowhere else.
func fail(c *gin.Context, log *zap.Logger, op string, err error) {
	status := apperr.Status(err)
	fields := []zap.Field{
		zap.String("op", op),
		zap.Int("status", status),
		zap.Error(err),
	}
	if uid := middleware.UserID(c); uid != "" {
		fields = append(fields, zap.String("user_id", uid))
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
	} else {
		log.Debug("request rejected", fields...)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

func badBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
}
