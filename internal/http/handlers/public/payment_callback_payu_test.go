package public

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/daan-setu/internal/config"
	"github.com/daan-setu/internal/constants"
	"github.com/daan-setu/internal/models"
	"github.com/daan-setu/internal/payment/payu"
	"github.com/daan-setu/internal/provider"
	"github.com/daan-setu/internal/queue"
	"github.com/daan-setu/internal/repository"
	"github.com/daan-setu/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupPaymentTestRouter(t *testing.T) (*gin.Engine, *provider.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:payment_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Donation{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.PayU.MerchantKey = "test_key"
	cfg.PayU.MerchantSalt = "test_salt"
	cfg.PayU.GatewayURL = "https://test.payu.in/_payment"
	cfg.PayU.BaseURL = "http://127.0.0.1:8080"
	cfg.PayU.DashboardURL = "http://127.0.0.1:3000/dashboard"
	cfg.PayU.ProductName = "Donation"

	donationRepo := repository.NewDonationRepository(db)
	userRepo := repository.NewUserRepository(db)
	queueClient, _ := queue.NewClient(&config.QueueConfig{Enabled: false})

	container := &provider.Container{
		Config:          cfg,
		QueueClient:     queueClient,
		UserRepo:        userRepo,
		DonationRepo:    donationRepo,
		DonationService: service.NewDonationService(cfg, donationRepo, userRepo, queueClient),
	}

	h := New(container)
	r := gin.New()
	r.POST("/api/v1/payments/payu/callback", h.PaymentCallback)
	r.GET("/api/v1/payments/payu/callback", h.PaymentCallbackCancel)
	r.POST("/api/v1/payments/payu/initiate", func(c *gin.Context) {
		c.Set("user_id", uint(1))
		h.InitiatePayment(c)
	})
	return r, container
}

func createPendingDonation(t *testing.T, container *provider.Container, amount string) *models.Donation {
	t.Helper()
	donation, err := container.DonationService.CreateDonation(service.CreateDonationInput{
		UserID: 1,
		Amount: decimal.RequireFromString(amount),
	})
	if err != nil {
		t.Fatalf("create donation: %v", err)
	}
	return donation
}

// signedCallbackForm 构造一份验签能通过的网关回调表单
func signedCallbackForm(container *provider.Container, donationNo, gatewayStatus string) url.Values {
	cb := &payu.Callback{
		TxnID:       "TXN_1_000001",
		Status:      gatewayStatus,
		Amount:      "1500.00",
		ProductInfo: "Donation_" + donationNo,
		Firstname:   "Asha",
		Email:       "asha@example.com",
		MihpayID:    "403993715531",
		BankRefNum:  "UTR123456",
	}
	cb.UDF[0] = donationNo
	cb.Hash = payu.SignCallback(container.DonationService.GatewayConfig(), cb)

	form := url.Values{}
	form.Set("txnid", cb.TxnID)
	form.Set("status", cb.Status)
	form.Set("amount", cb.Amount)
	form.Set("productinfo", cb.ProductInfo)
	form.Set("firstname", cb.Firstname)
	form.Set("email", cb.Email)
	form.Set("mihpayid", cb.MihpayID)
	form.Set("bank_ref_num", cb.BankRefNum)
	form.Set("udf1", donationNo)
	form.Set("hash", cb.Hash)
	return form
}

func postCallback(r *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentCallbackSuccessSettlesAndRedirects(t *testing.T) {
	r, container := setupPaymentTestRouter(t)
	donation := createPendingDonation(t, container, "1500.00")

	w := postCallback(r, signedCallbackForm(container, donation.DonationNo, "success"))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d body=%s", w.Code, w.Body.String())
	}
	location := w.Header().Get("Location")
	if !strings.Contains(location, "payment=success") {
		t.Fatalf("expected success redirect, got %s", location)
	}
	if !strings.Contains(location, "donationId="+donation.DonationNo) {
		t.Fatalf("expected donationId in redirect, got %s", location)
	}

	stored, err := container.DonationRepo.GetByDonationNo(donation.DonationNo)
	if err != nil || stored == nil {
		t.Fatalf("stored donation missing: %v", err)
	}
	if stored.Status != constants.DonationStatusSuccess {
		t.Fatalf("expected success, got %s", stored.Status)
	}
	if stored.TransactionID != "403993715531" {
		t.Fatalf("expected mihpayid as transaction id, got %s", stored.TransactionID)
	}
	if stored.CallbackAt == nil {
		t.Fatal("expected callback_at recorded")
	}
}

func TestPaymentCallbackCorruptedHashLeavesRecordPending(t *testing.T) {
	r, container := setupPaymentTestRouter(t)
	donation := createPendingDonation(t, container, "1500.00")

	form := signedCallbackForm(container, donation.DonationNo, "success")
	form.Set("hash", strings.Repeat("ab", 64))

	w := postCallback(r, form)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["error"] != "Invalid hash" {
		t.Fatalf("expected Invalid hash, got %q", body["error"])
	}

	stored, _ := container.DonationRepo.GetByDonationNo(donation.DonationNo)
	if stored.Status != constants.DonationStatusPending {
		t.Fatalf("record must stay pending on bad hash, got %s", stored.Status)
	}
	if stored.TransactionID != "" {
		t.Fatalf("transaction_id must stay empty on bad hash, got %s", stored.TransactionID)
	}
}

func TestPaymentCallbackTamperedStatusRejected(t *testing.T) {
	r, container := setupPaymentTestRouter(t)
	donation := createPendingDonation(t, container, "1500.00")

	// 失败回调的签名套在 success 状态上，验签必须失败
	form := signedCallbackForm(container, donation.DonationNo, "failure")
	form.Set("status", "success")

	w := postCallback(r, form)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	stored, _ := container.DonationRepo.GetByDonationNo(donation.DonationNo)
	if stored.Status != constants.DonationStatusPending {
		t.Fatalf("record must stay pending, got %s", stored.Status)
	}
}

func TestPaymentCallbackMalformedBodyRejected(t *testing.T) {
	r, _ := setupPaymentTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/callback", strings.NewReader("status=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["error"] != "Invalid request" {
		t.Fatalf("expected Invalid request for unparsable body, got %q", body["error"])
	}
}

func TestPaymentCallbackMissingDonationNo(t *testing.T) {
	r, container := setupPaymentTestRouter(t)

	form := signedCallbackForm(container, "don_1", "success")
	form.Del("udf1")

	w := postCallback(r, form)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["error"] != "Missing donationId" {
		t.Fatalf("expected Missing donationId, got %q", body["error"])
	}
}

func TestPaymentCallbackUnknownDonationStillRedirects(t *testing.T) {
	r, container := setupPaymentTestRouter(t)

	w := postCallback(r, signedCallbackForm(container, "DON_0_000000", "success"))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302 even for unknown donation, got %d", w.Code)
	}

	// 回调绝不补建捐赠记录
	donations, total, err := container.DonationRepo.ListAdmin(repository.DonationListFilter{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list donations: %v", err)
	}
	if total != 0 || len(donations) != 0 {
		t.Fatalf("callback must not create records, found %d", total)
	}
}

func TestPaymentCallbackCancelMarksPendingFailed(t *testing.T) {
	r, container := setupPaymentTestRouter(t)
	donation := createPendingDonation(t, container, "500.00")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/payu/callback?donationId="+donation.DonationNo+"&txnid=TXN_1_000001", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Location"), "payment=failed") {
		t.Fatalf("expected failed redirect, got %s", w.Header().Get("Location"))
	}

	stored, _ := container.DonationRepo.GetByDonationNo(donation.DonationNo)
	if stored.Status != constants.DonationStatusFailed {
		t.Fatalf("expected failed after cancel, got %s", stored.Status)
	}
}

func TestPaymentCallbackCancelDoesNotTouchSuccess(t *testing.T) {
	r, container := setupPaymentTestRouter(t)
	donation := createPendingDonation(t, container, "500.00")

	postCallback(r, signedCallbackForm(container, donation.DonationNo, "success"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/payu/callback?donationId="+donation.DonationNo, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	stored, _ := container.DonationRepo.GetByDonationNo(donation.DonationNo)
	if stored.Status != constants.DonationStatusSuccess {
		t.Fatalf("cancel must not regress success, got %s", stored.Status)
	}
}

func TestInitiatePaymentReturnsGatewayForm(t *testing.T) {
	r, container := setupPaymentTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/initiate",
		strings.NewReader(`{"amount":1500,"firstname":"Asha","email":"asha@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		PayuURL    string            `json:"payuUrl"`
		PayuParams map[string]string `json:"payuParams"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.PayuURL != container.Config.PayU.GatewayURL {
		t.Fatalf("expected gateway url, got %s", body.PayuURL)
	}
	if body.PayuParams["hash"] == "" || body.PayuParams["txnid"] == "" {
		t.Fatalf("expected signed params, got %v", body.PayuParams)
	}
	if body.PayuParams["amount"] != "1500.00" {
		t.Fatalf("expected normalized amount, got %s", body.PayuParams["amount"])
	}

	stored, _ := container.DonationRepo.GetByDonationNo(body.PayuParams["udf1"])
	if stored == nil || stored.Status != constants.DonationStatusPending {
		t.Fatal("expected pending donation created before gateway redirect")
	}
	if stored.TxnRef != body.PayuParams["txnid"] {
		t.Fatalf("expected txn_ref persisted, got %s vs %s", stored.TxnRef, body.PayuParams["txnid"])
	}
}

func TestInitiatePaymentRejectsBadAmount(t *testing.T) {
	r, _ := setupPaymentTestRouter(t)

	for _, payload := range []string{`{"amount":"abc"}`, `{"amount":0}`, `{"amount":"-5"}`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/initiate", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("payload %s: expected 400, got %d", payload, w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		if body["error"] != "Invalid amount" {
			t.Fatalf("payload %s: expected Invalid amount, got %q", payload, body["error"])
		}
	}
}
