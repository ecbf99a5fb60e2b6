package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/daan-setu/internal/constants"
	"github.com/daan-setu/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupDonationTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:donation_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Donation{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newPendingDonation(no string, amount string) *models.Donation {
	return &models.Donation{
		DonationNo: no,
		Amount:     models.NewMoneyFromDecimal(decimal.RequireFromString(amount)),
		Currency:   "INR",
		Status:     constants.DonationStatusPending,
	}
}

func TestDonationRepositorySettleIfPending(t *testing.T) {
	db := setupDonationTestDB(t)
	repo := NewDonationRepository(db)

	donation := newPendingDonation("don_42", "1500.00")
	if err := repo.Create(donation); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	affected, err := repo.SettleIfPending("don_42", constants.DonationStatusSuccess, "mih_123", models.JSON{"status": "success"}, now)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 affected row, got %d", affected)
	}

	got, err := repo.GetByDonationNo("don_42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("donation not found after settle")
	}
	if got.Status != constants.DonationStatusSuccess {
		t.Fatalf("expected status success, got %s", got.Status)
	}
	if got.TransactionID != "mih_123" {
		t.Fatalf("expected transaction_id mih_123, got %s", got.TransactionID)
	}
	if got.CallbackAt == nil {
		t.Fatal("expected callback_at set")
	}
}

func TestDonationRepositorySettleDoesNotRegress(t *testing.T) {
	db := setupDonationTestDB(t)
	repo := NewDonationRepository(db)

	donation := newPendingDonation("don_1", "100.00")
	if err := repo.Create(donation); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	if _, err := repo.SettleIfPending("don_1", constants.DonationStatusSuccess, "mih_1", nil, now); err != nil {
		t.Fatalf("first settle: %v", err)
	}

	// 迟到的失败回调不得覆盖已成功的记录
	affected, err := repo.SettleIfPending("don_1", constants.DonationStatusFailed, "mih_late", nil, now.Add(time.Second))
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 affected rows on terminal record, got %d", affected)
	}

	got, _ := repo.GetByDonationNo("don_1")
	if got.Status != constants.DonationStatusSuccess {
		t.Fatalf("status regressed to %s", got.Status)
	}
	if got.TransactionID != "mih_1" {
		t.Fatalf("transaction_id overwritten: %s", got.TransactionID)
	}
}

func TestDonationRepositorySettleUnknownNo(t *testing.T) {
	db := setupDonationTestDB(t)
	repo := NewDonationRepository(db)

	affected, err := repo.SettleIfPending("don_missing", constants.DonationStatusFailed, "", nil, time.Now())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 affected rows, got %d", affected)
	}
}

func TestDonationRepositoryListAdminFilters(t *testing.T) {
	db := setupDonationTestDB(t)
	repo := NewDonationRepository(db)

	for i, status := range []string{
		constants.DonationStatusPending,
		constants.DonationStatusSuccess,
		constants.DonationStatusSuccess,
		constants.DonationStatusFailed,
	} {
		d := newPendingDonation(fmt.Sprintf("don_list_%d", i), "50.00")
		d.Status = status
		d.UserID = uint(i%2) + 1
		if err := repo.Create(d); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	list, total, err := repo.ListAdmin(DonationListFilter{Status: constants.DonationStatusSuccess, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 success donations, got total=%d len=%d", total, len(list))
	}

	list, total, err = repo.ListByUser(1, DonationListFilter{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 donations for user 1, got %d", total)
	}
	for _, d := range list {
		if d.UserID != 1 {
			t.Fatalf("unexpected user %d in user list", d.UserID)
		}
	}

	count, err := repo.CountByStatus(constants.DonationStatusSuccess)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	sum, err := repo.SumAmountByStatus(constants.DonationStatusSuccess)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !sum.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected sum 100.00, got %s", sum)
	}
}
