package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/daan-setu/internal/config"
	"github.com/daan-setu/internal/constants"
	"github.com/daan-setu/internal/models"
	"github.com/daan-setu/internal/payment/payu"
	"github.com/daan-setu/internal/queue"
	"github.com/daan-setu/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupDonationService(t *testing.T) (*DonationService, repository.DonationRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:donation_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	svc := NewDonationService(cfg, donationRepo, userRepo, queueClient)
	return svc, donationRepo
}

func TestCreateDonationPendingFirst(t *testing.T) {
	svc, repo := setupDonationService(t)

	donation, err := svc.CreateDonation(CreateDonationInput{
		UserID: 7,
		Amount: decimal.RequireFromString("1500.00"),
	})
	if err != nil {
		t.Fatalf("create donation: %v", err)
	}
	if donation.Status != constants.DonationStatusPending {
		t.Fatalf("expected pending, got %s", donation.Status)
	}
	if donation.DonationNo == "" {
		t.Fatal("expected donation_no assigned")
	}

	stored, err := repo.GetByDonationNo(donation.DonationNo)
	if err != nil || stored == nil {
		t.Fatalf("stored donation missing: %v", err)
	}
	if stored.TransactionID != "" {
		t.Fatalf("transaction_id must be empty before callback, got %s", stored.TransactionID)
	}
}

func TestCreateDonationRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := setupDonationService(t)

	for _, raw := range []string{"0", "-1", "-0.01"} {
		_, err := svc.CreateDonation(CreateDonationInput{UserID: 1, Amount: decimal.RequireFromString(raw)})
		if !errors.Is(err, ErrDonationAmountInvalid) {
			t.Fatalf("amount %s: expected ErrDonationAmountInvalid, got %v", raw, err)
		}
	}
}

func TestInitiatePaymentSignsAndStoresTxnRef(t *testing.T) {
	svc, repo := setupDonationService(t)

	donation, request, err := svc.InitiatePayment(InitiatePaymentInput{
		UserID:    7,
		Amount:    decimal.RequireFromString("1500.00"),
		Firstname: "Asha",
		Email:     "asha@example.com",
		Phone:     "9999999999",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if request.Params.Amount != "1500.00" {
		t.Fatalf("expected amount 1500.00, got %s", request.Params.Amount)
	}
	if request.Params.UDF1 != donation.DonationNo {
		t.Fatalf("udf1 must carry donation_no, got %s", request.Params.UDF1)
	}
	if !strings.HasPrefix(request.Params.TxnID, "TXN_") {
		t.Fatalf("unexpected txnid format: %s", request.Params.TxnID)
	}
	if request.Params.SURL != request.Params.FURL {
		t.Fatal("surl and furl must point at the same callback")
	}
	if !strings.Contains(request.Params.SURL, "donationId="+donation.DonationNo) {
		t.Fatalf("callback url missing donationId: %s", request.Params.SURL)
	}
	if request.Params.Hash == "" {
		t.Fatal("expected request hash")
	}

	stored, err := repo.GetByDonationNo(donation.DonationNo)
	if err != nil || stored == nil {
		t.Fatalf("stored donation missing: %v", err)
	}
	if stored.TxnRef != request.Params.TxnID {
		t.Fatalf("txn_ref not persisted: %s vs %s", stored.TxnRef, request.Params.TxnID)
	}
	if stored.Status != constants.DonationStatusPending {
		t.Fatalf("initiate must not change status, got %s", stored.Status)
	}
}

func TestInitiatePaymentGatewayNotConfigured(t *testing.T) {
	svc, _ := setupDonationService(t)
	svc.cfg.PayU.MerchantSalt = ""

	_, _, err := svc.InitiatePayment(InitiatePaymentInput{
		UserID: 1,
		Amount: decimal.RequireFromString("10.00"),
	})
	if !errors.Is(err, ErrGatewayNotConfigured) {
		t.Fatalf("expected ErrGatewayNotConfigured, got %v", err)
	}
}

func TestReconcileSuccess(t *testing.T) {
	svc, repo := setupDonationService(t)
	donation, _ := svc.CreateDonation(CreateDonationInput{UserID: 1, Amount: decimal.RequireFromString("100.00")})

	settled, err := svc.Reconcile(ReconcileInput{
		DonationNo: donation.DonationNo,
		Status:     constants.DonationStatusSuccess,
		MihpayID:   "mih_555",
		Payload:    models.JSON{"status": "success"},
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if settled.Status != constants.DonationStatusSuccess {
		t.Fatalf("expected success, got %s", settled.Status)
	}
	if settled.TransactionID != "mih_555" {
		t.Fatalf("expected mihpayid as transaction id, got %s", settled.TransactionID)
	}

	stored, _ := repo.GetByDonationNo(donation.DonationNo)
	if stored.CallbackAt == nil {
		t.Fatal("expected callback_at set")
	}
}

func TestReconcileNeverCreatesRecords(t *testing.T) {
	svc, repo := setupDonationService(t)

	_, err := svc.Reconcile(ReconcileInput{
		DonationNo: "don_unknown",
		Status:     constants.DonationStatusSuccess,
		MihpayID:   "mih_1",
	})
	if !errors.Is(err, ErrDonationNotFound) {
		t.Fatalf("expected ErrDonationNotFound, got %v", err)
	}

	stored, _ := repo.GetByDonationNo("don_unknown")
	if stored != nil {
		t.Fatal("callback must not create donation records")
	}
}

func TestReconcileSuccessNeverRegresses(t *testing.T) {
	svc, repo := setupDonationService(t)
	donation, _ := svc.CreateDonation(CreateDonationInput{UserID: 1, Amount: decimal.RequireFromString("100.00")})

	if _, err := svc.Reconcile(ReconcileInput{
		DonationNo: donation.DonationNo,
		Status:     constants.DonationStatusSuccess,
		MihpayID:   "mih_first",
	}); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	// 迟到的失败回调不改写成功终态
	settled, err := svc.Reconcile(ReconcileInput{
		DonationNo: donation.DonationNo,
		Status:     constants.DonationStatusFailed,
		MihpayID:   "mih_late",
	})
	if err != nil {
		t.Fatalf("late reconcile: %v", err)
	}
	if settled.Status != constants.DonationStatusSuccess {
		t.Fatalf("success regressed to %s", settled.Status)
	}

	stored, _ := repo.GetByDonationNo(donation.DonationNo)
	if stored.TransactionID != "mih_first" {
		t.Fatalf("transaction id overwritten: %s", stored.TransactionID)
	}
}

func TestReconcileIdempotentTerminal(t *testing.T) {
	svc, _ := setupDonationService(t)
	donation, _ := svc.CreateDonation(CreateDonationInput{UserID: 1, Amount: decimal.RequireFromString("100.00")})

	if _, err := svc.Reconcile(ReconcileInput{
		DonationNo: donation.DonationNo,
		Status:     constants.DonationStatusFailed,
	}); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	settled, err := svc.Reconcile(ReconcileInput{
		DonationNo: donation.DonationNo,
		Status:     constants.DonationStatusFailed,
	})
	if err != nil {
		t.Fatalf("repeat reconcile must be accepted: %v", err)
	}
	if settled.Status != constants.DonationStatusFailed {
		t.Fatalf("expected failed, got %s", settled.Status)
	}
}

func TestReconcilePendingLeavesRecordPending(t *testing.T) {
	svc, repo := setupDonationService(t)
	donation, _ := svc.CreateDonation(CreateDonationInput{UserID: 1, Amount: decimal.RequireFromString("100.00")})

	settled, err := svc.Reconcile(ReconcileInput{
		DonationNo: donation.DonationNo,
		Status:     constants.DonationStatusPending,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if settled.Status != constants.DonationStatusPending {
		t.Fatalf("expected pending, got %s", settled.Status)
	}

	stored, _ := repo.GetByDonationNo(donation.DonationNo)
	if stored.Status != constants.DonationStatusPending {
		t.Fatalf("stored status changed to %s", stored.Status)
	}
}

func TestReconcileFallsBackToStoredTxnRef(t *testing.T) {
	svc, repo := setupDonationService(t)
	donation, request, err := svc.InitiatePayment(InitiatePaymentInput{
		UserID: 1,
		Amount: decimal.RequireFromString("250.00"),
		Email:  "donor@example.com",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// 回调缺少网关流水号与银行参考号时回落到发起时的交易号
	settled, err := svc.Reconcile(ReconcileInput{
		DonationNo: donation.DonationNo,
		Status:     constants.DonationStatusSuccess,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if settled.TransactionID != request.Params.TxnID {
		t.Fatalf("expected fallback to txn_ref %s, got %s", request.Params.TxnID, settled.TransactionID)
	}

	stored, _ := repo.GetByDonationNo(donation.DonationNo)
	if stored.TransactionID != request.Params.TxnID {
		t.Fatalf("stored transaction id %s", stored.TransactionID)
	}
}

func TestReconcileCancelledMarksFailed(t *testing.T) {
	svc, repo := setupDonationService(t)
	donation, _ := svc.CreateDonation(CreateDonationInput{UserID: 1, Amount: decimal.RequireFromString("75.00")})

	svc.ReconcileCancelled(donation.DonationNo)

	stored, _ := repo.GetByDonationNo(donation.DonationNo)
	if stored.Status != constants.DonationStatusFailed {
		t.Fatalf("expected failed after cancel, got %s", stored.Status)
	}

	// 已成功的记录不受取消影响
	paid, _ := svc.CreateDonation(CreateDonationInput{UserID: 1, Amount: decimal.RequireFromString("80.00")})
	if _, err := svc.Reconcile(ReconcileInput{DonationNo: paid.DonationNo, Status: constants.DonationStatusSuccess, MihpayID: "mih_x"}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	svc.ReconcileCancelled(paid.DonationNo)
	stored, _ = repo.GetByDonationNo(paid.DonationNo)
	if stored.Status != constants.DonationStatusSuccess {
		t.Fatalf("cancel regressed success to %s", stored.Status)
	}
}

func TestGetStatsAggregates(t *testing.T) {
	svc, _ := setupDonationService(t)

	first, err := svc.CreateDonation(CreateDonationInput{UserID: 1, Amount: decimal.RequireFromString("1500.00")})
	if err != nil {
		t.Fatalf("create donation: %v", err)
	}
	if _, err := svc.CreateDonation(CreateDonationInput{UserID: 2, Amount: decimal.RequireFromString("250.00")}); err != nil {
		t.Fatalf("create donation: %v", err)
	}
	if _, err := svc.Reconcile(ReconcileInput{
		DonationNo: first.DonationNo,
		Status:     constants.DonationStatusSuccess,
		MihpayID:   "403993715531",
	}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	stats, err := svc.GetStats()
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.TotalCount != 2 || stats.SuccessCount != 1 || stats.PendingCount != 1 || stats.FailedCount != 0 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.TotalAmount.String() != "1500" && stats.TotalAmount.String() != "1500.00" {
		t.Fatalf("total amount must only count success, got %s", stats.TotalAmount.String())
	}
}

func TestInitiatePaymentRoundTripSignature(t *testing.T) {
	svc, _ := setupDonationService(t)
	donation, request, err := svc.InitiatePayment(InitiatePaymentInput{
		UserID:    42,
		Amount:    decimal.RequireFromString("1500.00"),
		Firstname: "Ravi",
		Email:     "ravi@example.com",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// 网关回传相同字段时，入站验签应当通过且能恢复捐赠号
	cfg := svc.GatewayConfig()
	cb := &payu.Callback{
		TxnID:       request.Params.TxnID,
		Status:      constants.PayUStatusSuccess,
		Amount:      request.Params.Amount,
		ProductInfo: request.Params.ProductInfo,
		Firstname:   request.Params.Firstname,
		Email:       request.Params.Email,
	}
	cb.UDF[0] = request.Params.UDF1
	cb.Hash = payu.SignCallback(cfg, cb)

	if err := payu.VerifyCallback(cfg, cb); err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if cb.DonationNo() != donation.DonationNo {
		t.Fatalf("expected donation_no %s, got %s", donation.DonationNo, cb.DonationNo())
	}
}
