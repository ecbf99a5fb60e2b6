package public

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/daan-setu/internal/constants"
	"github.com/daan-setu/internal/models"
	"github.com/daan-setu/internal/payment/payu"
	"github.com/daan-setu/internal/queue"
	"github.com/daan-setu/internal/service"

	"github.com/gin-gonic/gin"
)

// PaymentCallback 网关 POST 回调入口
//
// 验签通过前不触碰任何捐赠记录；验签失败返回 400，由网关重试。
// 验签通过后无论对账结果如何都跳转结果页，捐赠人不应停在网关报错页上。
func (h *Handler) PaymentCallback(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			// 对账内部异常降级为失败跳转，回调入口绝不向网关抛 5xx
			requestLog(c).Errorw("payment_callback_panic", "panic", r)
			h.redirectToDashboard(c, constants.DonationStatusFailed, c.Query("donationId"))
		}
	}()

	requestLog(c).Infow("payment_callback_received",
		"method", c.Request.Method,
		"client_ip", c.ClientIP(),
		"content_type", strings.TrimSpace(c.GetHeader("Content-Type")),
	)

	form, err := parseCallbackForm(c)
	if err != nil {
		requestLog(c).Warnw("payment_callback_form_invalid", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	cb, err := payu.ParseCallback(form)
	if err != nil {
		requestLog(c).Warnw("payment_callback_missing_correlation",
			"txnid", getFirstValue(form, "txnid"),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing donationId"})
		return
	}

	gatewayCfg := h.DonationService.GatewayConfig()
	if err := payu.VerifyCallback(gatewayCfg, cb); err != nil {
		requestLog(c).Warnw("payment_callback_hash_mismatch",
			"donation_no", cb.DonationNo(),
			"txnid", cb.TxnID,
			"status", cb.Status,
			"client_ip", c.ClientIP(),
		)
		h.DonationService.EnqueuePaymentAlert(queue.PaymentAlertPayload{
			DonationNo: cb.DonationNo(),
			TxnID:      cb.TxnID,
			Reason:     "hash mismatch",
			RemoteIP:   c.ClientIP(),
		})
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hash"})
		return
	}

	status := payu.MapStatus(cb.Status)
	_, err = h.DonationService.Reconcile(service.ReconcileInput{
		DonationNo: cb.DonationNo(),
		Status:     status,
		MihpayID:   cb.MihpayID,
		BankRefNum: cb.BankRefNum,
		Payload:    callbackPayload(form),
	})
	if err != nil {
		// 记录未知或写入失败只留痕，捐赠人仍然跳转结果页
		requestLog(c).Errorw("payment_callback_reconcile_failed",
			"donation_no", cb.DonationNo(),
			"error", err,
		)
	}

	h.redirectToDashboard(c, status, cb.DonationNo())
}

// PaymentCallbackCancel 网关 GET 返回（取消/放弃支付）
//
// GET 返回不带签名，不做验签；能定位记录就按失败落账，定位不到也一律
// 跳转失败结果页。
func (h *Handler) PaymentCallbackCancel(c *gin.Context) {
	donationNo := strings.TrimSpace(c.Query("donationId"))
	requestLog(c).Infow("payment_callback_cancelled",
		"donation_no", donationNo,
		"txnid", strings.TrimSpace(c.Query("txnid")),
		"client_ip", c.ClientIP(),
	)
	if donationNo != "" {
		h.DonationService.ReconcileCancelled(donationNo)
	}
	h.redirectToDashboard(c, constants.DonationStatusFailed, donationNo)
}

func (h *Handler) redirectToDashboard(c *gin.Context, status, donationNo string) {
	target := h.DonationService.DashboardRedirectURL()
	query := url.Values{}
	query.Set("payment", status)
	if strings.TrimSpace(donationNo) != "" {
		query.Set("donationId", strings.TrimSpace(donationNo))
	}
	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	c.Redirect(http.StatusFound, target+separator+query.Encode())
}

func parseCallbackForm(c *gin.Context) (map[string][]string, error) {
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	if len(c.Request.PostForm) > 0 {
		return c.Request.PostForm, nil
	}
	return c.Request.Form, nil
}

func getFirstValue(form map[string][]string, key string) string {
	if values, ok := form[key]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// callbackPayload 把网关表单留档为 JSON，多值字段保留完整切片
func callbackPayload(form map[string][]string) models.JSON {
	payload := make(models.JSON, len(form))
	for key, values := range form {
		switch len(values) {
		case 0:
			payload[key] = ""
		case 1:
			payload[key] = values[0]
		default:
			copied := make([]string, len(values))
			copy(copied, values)
			payload[key] = copied
		}
	}
	return payload
}
