package models

import (
	"time"

	"gorm.io/gorm"
)

// Donation 捐赠记录
//
// 回调只会更新已有记录，不会创建记录；记录在发起支付前即以 pending 状态落库。
type Donation struct {
	ID             uint           `gorm:"primarykey" json:"id"`                       // 主键
	DonationNo     string         `gorm:"uniqueIndex;not null" json:"donation_no"`    // 对外捐赠号（网关透传的关联标识）
	UserID         uint           `gorm:"index;not null" json:"user_id"`              // 捐赠人
	Amount         Money          `gorm:"type:decimal(20,2);not null" json:"amount"`  // 捐赠金额
	Currency       string         `gorm:"not null;default:'INR'" json:"currency"`     // 币种
	Status         string         `gorm:"index;not null" json:"status"`               // 状态（pending/success/failed）
	TxnRef         string         `gorm:"index" json:"txn_ref"`                       // 发起支付时生成的交易号
	TransactionID  string         `gorm:"index" json:"transaction_id"`                // 网关流水号（回调前为空）
	Message        string         `gorm:"type:text" json:"message"`                   // 捐赠留言
	GatewayPayload JSON           `gorm:"type:json" json:"-"`                         // 网关回调原始数据
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                    // 更新时间
	CallbackAt     *time.Time     `gorm:"index" json:"callback_at"`                   // 回调到达时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间
}

// TableName 指定表名
func (Donation) TableName() string {
	return "donations"
}

// IsTerminal 判断是否已到终态
func (d *Donation) IsTerminal() bool {
	return d != nil && (d.Status == "success" || d.Status == "failed")
}
