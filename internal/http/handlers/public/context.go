package public

import (
	"github.com/daan-setu/internal/http/response"
	"github.com/daan-setu/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func getUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "unauthorized")
		return 0, false
	}
	id, ok := value.(uint)
	if !ok || id == 0 {
		response.Unauthorized(c, "unauthorized")
		return 0, false
	}
	return id, true
}

func requestLog(c *gin.Context, kv ...interface{}) *zap.SugaredLogger {
	fields := make([]interface{}, 0, len(kv)+2)
	if c != nil {
		if value, ok := c.Get("request_id"); ok {
			if id, ok := value.(string); ok && id != "" {
				fields = append(fields, "request_id", id)
			}
		}
	}
	fields = append(fields, kv...)
	if len(fields) == 0 {
		return logger.S()
	}
	return logger.SW(fields...)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		requestLog(c).Warnw("request_failed",
			"path", c.Request.URL.Path,
			"code", code,
			"msg", msg,
			"error", err,
		)
	}
	response.Error(c, code, msg)
}
