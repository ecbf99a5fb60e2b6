package admin

import (
	"errors"
	"strconv"
	"time"

	"github.com/daan-setu/internal/http/response"
	"github.com/daan-setu/internal/repository"
	"github.com/daan-setu/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAdminDonations 捐赠列表 (Admin)
func (h *Handler) GetAdminDonations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.DonationListFilter{
		Page:       page,
		PageSize:   pageSize,
		Status:     c.Query("status"),
		DonationNo: c.Query("donation_no"),
		Search:     c.Query("search"),
	}
	if userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64); err == nil && userID > 0 {
		filter.UserID = uint(userID)
	}
	if from := parseQueryTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseQueryTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}

	donations, total, err := h.DonationService.ListDonations(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch donations failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, donations, pagination)
}

// GetAdminDonation 捐赠详情 (Admin)
func (h *Handler) GetAdminDonation(c *gin.Context) {
	donation, err := h.DonationService.GetDonationByNo(c.Param("donation_no"))
	if err != nil {
		if errors.Is(err, service.ErrDonationNotFound) {
			respondError(c, response.CodeNotFound, "donation not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "fetch donation failed", err)
		return
	}
	response.Success(c, donation)
}

func parseQueryTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed
		}
	}
	return nil
}
