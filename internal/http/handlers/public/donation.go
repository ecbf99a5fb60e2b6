package public

import (
	"errors"
	"strconv"

	"github.com/daan-setu/internal/http/response"
	"github.com/daan-setu/internal/repository"
	"github.com/daan-setu/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateDonationRequest 创建捐赠请求
type CreateDonationRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Message string `json:"message"`
}

// CreateDonation 创建 pending 捐赠记录
func (h *Handler) CreateDonation(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid amount", nil)
		return
	}

	donation, err := h.DonationService.CreateDonation(service.CreateDonationInput{
		UserID:  userID,
		Amount:  amount,
		Message: req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDonationAmountInvalid):
			respondError(c, response.CodeBadRequest, "invalid amount", nil)
		default:
			respondError(c, response.CodeInternal, "create donation failed", err)
		}
		return
	}
	response.Success(c, donation)
}

// ListMyDonations 当前用户捐赠历史
func (h *Handler) ListMyDonations(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	filter := repository.DonationListFilter{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
		Status:   c.Query("status"),
	}
	donations, total, err := h.DonationService.ListUserDonations(userID, filter)
	if err != nil {
		respondError(c, response.CodeInternal, "list donations failed", err)
		return
	}
	response.SuccessWithPage(c, donations, buildPagination(filter.Page, filter.PageSize, total))
}

// GetMyDonation 查询单笔捐赠（仅限本人）
func (h *Handler) GetMyDonation(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	donation, err := h.DonationService.GetDonationByNo(c.Param("donation_no"))
	if err != nil {
		if errors.Is(err, service.ErrDonationNotFound) {
			response.NotFound(c, "donation not found")
			return
		}
		respondError(c, response.CodeInternal, "fetch donation failed", err)
		return
	}
	if donation.UserID != userID {
		response.NotFound(c, "donation not found")
		return
	}
	response.Success(c, donation)
}

func parseQueryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func buildPagination(page, pageSize int, total int64) response.Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	totalPage := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		totalPage++
	}
	return response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	}
}
