package public

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/daan-setu/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// InitiatePaymentRequest 发起支付请求
//
// amount 兼容 JSON 数字与字符串两种形态，前端两种都会发。
type InitiatePaymentRequest struct {
	Amount     json.RawMessage `json:"amount" binding:"required"`
	DonationNo string          `json:"donationId"`
	Firstname  string          `json:"firstname"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Message    string          `json:"message"`
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	return decimal.NewFromString(strings.TrimSpace(text))
}

// InitiatePayment 发起 PayU 支付
//
// 响应是网关侧线协议：前端拿到 payuParams 后原样 POST 到 payuUrl，
// 字段不走统一响应包裹。
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	userID, _ := c.Get("user_id")
	uid, _ := userID.(uint)

	donation, request, err := h.DonationService.InitiatePayment(service.InitiatePaymentInput{
		UserID:     uid,
		DonationNo: req.DonationNo,
		Amount:     amount,
		Firstname:  req.Firstname,
		Email:      req.Email,
		Phone:      req.Phone,
		Message:    req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDonationAmountInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		case errors.Is(err, service.ErrDonationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Donation not found"})
		case errors.Is(err, service.ErrGatewayNotConfigured):
			requestLog(c).Errorw("payment_initiate_gateway_unconfigured", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment gateway not configured"})
		default:
			requestLog(c).Errorw("payment_initiate_failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment initiation failed"})
		}
		return
	}

	requestLog(c).Infow("payment_initiate_ok",
		"donation_no", donation.DonationNo,
		"txnid", request.Params.TxnID,
	)
	c.JSON(http.StatusOK, gin.H{
		"payuUrl":    request.PayURL,
		"payuParams": request.Params,
	})
}
