package admin

import (
	"strconv"

	"github.com/daan-setu/internal/http/response"
	"github.com/daan-setu/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAdminRegistrations 注册用户列表 (Admin)
func (h *Handler) GetAdminRegistrations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.UserListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  c.Query("search"),
		Status:   c.Query("status"),
	}
	if from := parseQueryTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseQueryTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}

	users, total, err := h.UserAuthService.ListUsers(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch users failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, users, pagination)
}
