package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/daan-setu/internal/constants"
	"github.com/daan-setu/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DonationRepository 捐赠数据访问接口
type DonationRepository interface {
	Create(donation *models.Donation) error
	Update(donation *models.Donation) error
	GetByID(id uint) (*models.Donation, error)
	GetByDonationNo(donationNo string) (*models.Donation, error)
	MarkInitiated(id uint, txnRef string, now time.Time) error
	SettleIfPending(donationNo, status, transactionID string, payload models.JSON, now time.Time) (int64, error)
	ListByUser(userID uint, filter DonationListFilter) ([]models.Donation, int64, error)
	ListAdmin(filter DonationListFilter) ([]models.Donation, int64, error)
	CountByStatus(status string) (int64, error)
	SumAmountByStatus(status string) (decimal.Decimal, error)
	WithTx(tx *gorm.DB) *GormDonationRepository
}

// GormDonationRepository GORM 实现
type GormDonationRepository struct {
	db *gorm.DB
}

// NewDonationRepository 创建捐赠仓库
func NewDonationRepository(db *gorm.DB) *GormDonationRepository {
	return &GormDonationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormDonationRepository) WithTx(tx *gorm.DB) *GormDonationRepository {
	if tx == nil {
		return r
	}
	return &GormDonationRepository{db: tx}
}

// Create 创建捐赠记录
func (r *GormDonationRepository) Create(donation *models.Donation) error {
	return r.db.Create(donation).Error
}

// Update 更新捐赠记录
func (r *GormDonationRepository) Update(donation *models.Donation) error {
	return r.db.Save(donation).Error
}

// GetByID 根据 ID 获取捐赠记录
func (r *GormDonationRepository) GetByID(id uint) (*models.Donation, error) {
	var donation models.Donation
	if err := r.db.First(&donation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &donation, nil
}

// GetByDonationNo 根据捐赠号获取捐赠记录
func (r *GormDonationRepository) GetByDonationNo(donationNo string) (*models.Donation, error) {
	donationNo = strings.TrimSpace(donationNo)
	if donationNo == "" {
		return nil, nil
	}
	var donation models.Donation
	result := r.db.Where("donation_no = ?", donationNo).Limit(1).Find(&donation)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &donation, nil
}

// MarkInitiated 记录发起支付时生成的交易号
func (r *GormDonationRepository) MarkInitiated(id uint, txnRef string, now time.Time) error {
	return r.db.Model(&models.Donation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"txn_ref":    txnRef,
			"updated_at": now,
		}).Error
}

// SettleIfPending 条件更新：仅当记录仍为 pending 时写入终态
//
// 单条条件 UPDATE，网关重试或 GET/POST 并发到达同一捐赠号时不会出现
// 读-改-写窗口；返回受影响行数，0 表示记录不存在或已到终态。
func (r *GormDonationRepository) SettleIfPending(donationNo, status, transactionID string, payload models.JSON, now time.Time) (int64, error) {
	updates := map[string]interface{}{
		"status":      status,
		"callback_at": now,
		"updated_at":  now,
	}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	if payload != nil {
		updates["gateway_payload"] = payload
	}
	result := r.db.Model(&models.Donation{}).
		Where("donation_no = ? AND status = ?", donationNo, constants.DonationStatusPending).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListByUser 用户捐赠历史
func (r *GormDonationRepository) ListByUser(userID uint, filter DonationListFilter) ([]models.Donation, int64, error) {
	filter.UserID = userID
	return r.ListAdmin(filter)
}

// ListAdmin 管理端捐赠列表
func (r *GormDonationRepository) ListAdmin(filter DonationListFilter) ([]models.Donation, int64, error) {
	query := r.db.Model(&models.Donation{})

	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if no := strings.TrimSpace(filter.DonationNo); no != "" {
		query = query.Where("donation_no = ?", no)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("donation_no LIKE ? OR transaction_id LIKE ? OR txn_ref LIKE ?", like, like, like)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var donations []models.Donation
	if err := query.Order("id desc").Find(&donations).Error; err != nil {
		return nil, 0, err
	}
	return donations, total, nil
}

// CountByStatus 按状态统计捐赠数量
func (r *GormDonationRepository) CountByStatus(status string) (int64, error) {
	query := r.db.Model(&models.Donation{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// SumAmountByStatus 按状态统计捐赠金额
func (r *GormDonationRepository) SumAmountByStatus(status string) (decimal.Decimal, error) {
	query := r.db.Model(&models.Donation{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var sum decimal.NullDecimal
	if err := query.Select("SUM(amount)").Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
