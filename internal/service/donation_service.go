package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/daan-setu/internal/cache"
	"github.com/daan-setu/internal/config"
	"github.com/daan-setu/internal/constants"
	"github.com/daan-setu/internal/logger"
	"github.com/daan-setu/internal/models"
	"github.com/daan-setu/internal/payment/payu"
	"github.com/daan-setu/internal/queue"
	"github.com/daan-setu/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	donationStatsCacheKey = "admin:donation_stats"
	donationStatsCacheTTL = 30 * time.Second
)

// DonationService 捐赠与支付服务
type DonationService struct {
	cfg          *config.Config
	donationRepo repository.DonationRepository
	userRepo     repository.UserRepository
	queueClient  *queue.Client
}

// NewDonationService 创建捐赠服务
func NewDonationService(cfg *config.Config, donationRepo repository.DonationRepository, userRepo repository.UserRepository, queueClient *queue.Client) *DonationService {
	return &DonationService{
		cfg:          cfg,
		donationRepo: donationRepo,
		userRepo:     userRepo,
		queueClient:  queueClient,
	}
}

// CreateDonationInput 创建捐赠输入
type CreateDonationInput struct {
	UserID  uint
	Amount  decimal.Decimal
	Message string
}

// CreateDonation 创建 pending 捐赠记录
//
// 记录先于支付发起落库，回调只负责把它推进到终态。
func (s *DonationService) CreateDonation(input CreateDonationInput) (*models.Donation, error) {
	if !input.Amount.IsPositive() {
		return nil, ErrDonationAmountInvalid
	}

	donation := &models.Donation{
		DonationNo: newDonationNo(),
		UserID:     input.UserID,
		Amount:     models.NewMoneyFromDecimal(input.Amount),
		Currency:   "INR",
		Status:     constants.DonationStatusPending,
		Message:    strings.TrimSpace(input.Message),
	}
	if err := s.donationRepo.Create(donation); err != nil {
		donationLogger("user_id", input.UserID, "amount", input.Amount.String()).
			Errorw("donation_create_failed", "error", err)
		return nil, ErrDonationStoreFailed
	}

	invalidateStatsCache()
	donationLogger(
		"donation_no", donation.DonationNo,
		"user_id", donation.UserID,
		"amount", donation.Amount.String(),
	).Infow("donation_created")
	return donation, nil
}

// InitiatePaymentInput 发起支付输入
type InitiatePaymentInput struct {
	UserID     uint
	DonationNo string
	Amount     decimal.Decimal
	Firstname  string
	Email      string
	Phone      string
	Message    string
}

// InitiatePayment 发起网关支付
//
// DonationNo 为空时先创建一条 pending 记录；交易号在此处生成并落库，
// 回调侧缺少网关流水号时以它兜底。
func (s *DonationService) InitiatePayment(input InitiatePaymentInput) (*models.Donation, *payu.PaymentRequest, error) {
	gatewayCfg := s.GatewayConfig()
	if err := payu.ValidateConfig(gatewayCfg); err != nil {
		donationLogger().Errorw("payment_gateway_config_invalid", "error", err)
		return nil, nil, ErrGatewayNotConfigured
	}
	if !input.Amount.IsPositive() {
		return nil, nil, ErrDonationAmountInvalid
	}

	var donation *models.Donation
	var err error
	if no := strings.TrimSpace(input.DonationNo); no != "" {
		donation, err = s.donationRepo.GetByDonationNo(no)
		if err != nil {
			return nil, nil, err
		}
		if donation == nil {
			return nil, nil, ErrDonationNotFound
		}
		if donation.UserID != 0 && input.UserID != 0 && donation.UserID != input.UserID {
			return nil, nil, ErrDonationNotFound
		}
		if donation.Amount.Decimal.Cmp(input.Amount) != 0 {
			return nil, nil, ErrDonationAmountInvalid
		}
	} else {
		donation, err = s.CreateDonation(CreateDonationInput{
			UserID:  input.UserID,
			Amount:  input.Amount,
			Message: input.Message,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	request, err := payu.BuildPaymentRequest(gatewayCfg, payu.CreateInput{
		DonationNo: donation.DonationNo,
		Amount:     input.Amount,
		Firstname:  input.Firstname,
		Email:      input.Email,
		Phone:      input.Phone,
	})
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	if err := s.donationRepo.MarkInitiated(donation.ID, request.Params.TxnID, now); err != nil {
		donationLogger("donation_no", donation.DonationNo).
			Errorw("donation_mark_initiated_failed", "error", err)
		return nil, nil, ErrDonationStoreFailed
	}
	donation.TxnRef = request.Params.TxnID
	donation.UpdatedAt = now

	donationLogger(
		"donation_no", donation.DonationNo,
		"txnid", request.Params.TxnID,
		"amount", request.Params.Amount,
	).Infow("payment_initiated")
	return donation, request, nil
}

// GetDonationByNo 根据捐赠号获取记录
func (s *DonationService) GetDonationByNo(donationNo string) (*models.Donation, error) {
	donation, err := s.donationRepo.GetByDonationNo(donationNo)
	if err != nil {
		return nil, err
	}
	if donation == nil {
		return nil, ErrDonationNotFound
	}
	return donation, nil
}

// ListUserDonations 用户捐赠历史
func (s *DonationService) ListUserDonations(userID uint, filter repository.DonationListFilter) ([]models.Donation, int64, error) {
	if userID == 0 {
		return nil, 0, ErrNotFound
	}
	return s.donationRepo.ListByUser(userID, filter)
}

// ListDonations 管理端捐赠列表
func (s *DonationService) ListDonations(filter repository.DonationListFilter) ([]models.Donation, int64, error) {
	return s.donationRepo.ListAdmin(filter)
}

// DonationStats 捐赠统计
type DonationStats struct {
	TotalCount   int64        `json:"total_count"`
	SuccessCount int64        `json:"success_count"`
	PendingCount int64        `json:"pending_count"`
	FailedCount  int64        `json:"failed_count"`
	TotalAmount  models.Money `json:"total_amount"`
	UserCount    int64        `json:"user_count"`
}

// GetStats 管理端统计概览（总额只计成功捐赠）
//
// 结果走短 TTL 缓存，落账与新建捐赠时主动失效。
func (s *DonationService) GetStats() (*DonationStats, error) {
	ctx := context.Background()
	cached := &DonationStats{}
	if hit, err := cache.GetJSON(ctx, donationStatsCacheKey, cached); err != nil {
		donationLogger().Warnw("donation_stats_cache_read_failed", "error", err)
	} else if hit {
		return cached, nil
	}

	stats := &DonationStats{}
	var err error
	if stats.TotalCount, err = s.donationRepo.CountByStatus(""); err != nil {
		return nil, err
	}
	if stats.SuccessCount, err = s.donationRepo.CountByStatus(constants.DonationStatusSuccess); err != nil {
		return nil, err
	}
	if stats.PendingCount, err = s.donationRepo.CountByStatus(constants.DonationStatusPending); err != nil {
		return nil, err
	}
	if stats.FailedCount, err = s.donationRepo.CountByStatus(constants.DonationStatusFailed); err != nil {
		return nil, err
	}
	totalAmount, err := s.donationRepo.SumAmountByStatus(constants.DonationStatusSuccess)
	if err != nil {
		return nil, err
	}
	stats.TotalAmount = models.NewMoneyFromDecimal(totalAmount)
	if s.userRepo != nil {
		if stats.UserCount, err = s.userRepo.Count(); err != nil {
			return nil, err
		}
	}
	if err := cache.SetJSON(ctx, donationStatsCacheKey, stats, donationStatsCacheTTL); err != nil {
		donationLogger().Warnw("donation_stats_cache_write_failed", "error", err)
	}
	return stats, nil
}

// invalidateStatsCache 统计缓存失效（尽力而为）
func invalidateStatsCache() {
	if err := cache.Del(context.Background(), donationStatsCacheKey); err != nil {
		logger.Warnw("donation_stats_cache_invalidate_failed", "error", err)
	}
}

// DashboardRedirectURL 支付结果跳转地址
func (s *DonationService) DashboardRedirectURL() string {
	if s == nil || s.cfg == nil {
		return ""
	}
	return strings.TrimSpace(s.cfg.PayU.DashboardURL)
}

// GatewayConfig 组装网关配置，发起与验签共用同一份回调地址
func (s *DonationService) GatewayConfig() *payu.Config {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.PayU.BaseURL), "/")
	return &payu.Config{
		MerchantKey:  s.cfg.PayU.MerchantKey,
		MerchantSalt: s.cfg.PayU.MerchantSalt,
		GatewayURL:   s.cfg.PayU.GatewayURL,
		CallbackURL:  base + "/api/v1/payments/payu/callback",
		ProductName:  s.cfg.PayU.ProductName,
	}
}

func newDonationNo() string {
	suffix, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		suffix = big.NewInt(time.Now().UnixNano() % 1000000)
	}
	return fmt.Sprintf("DON_%d_%06d", time.Now().UnixMilli(), suffix.Int64())
}

func donationLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}
