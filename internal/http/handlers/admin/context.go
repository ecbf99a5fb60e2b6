package admin

import (
	"github.com/daan-setu/internal/http/response"
	"github.com/daan-setu/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func getAdminID(c *gin.Context) (uint, bool) {
	value, exists := c.Get("admin_id")
	if !exists {
		respondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return 0, false
	}
	id, ok := value.(uint)
	if !ok || id == 0 {
		respondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return 0, false
	}
	return id, true
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	if c != nil {
		if value, ok := c.Get("request_id"); ok {
			if id, ok := value.(string); ok && id != "" {
				return logger.SW("request_id", id)
			}
		}
	}
	return logger.S()
}

func respondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		requestLog(c).Warnw("admin_request_failed",
			"path", c.Request.URL.Path,
			"code", code,
			"msg", msg,
			"error", err,
		)
	}
	response.Error(c, code, msg)
}

func normalizePagination(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
