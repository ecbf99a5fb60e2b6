package admin

import (
	"github.com/daan-setu/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetAdminStats 捐赠统计概览 (Admin)
func (h *Handler) GetAdminStats(c *gin.Context) {
	stats, err := h.DonationService.GetStats()
	if err != nil {
		respondError(c, response.CodeInternal, "fetch stats failed", err)
		return
	}
	response.Success(c, stats)
}
