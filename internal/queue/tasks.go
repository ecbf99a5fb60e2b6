package queue

import (
	"encoding/json"

	"github.com/daan-setu/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskDonationReceiptEmail 捐赠成功回执邮件任务
	TaskDonationReceiptEmail = constants.TaskDonationReceiptEmail
	// TaskPaymentAlert 回调签名异常告警任务
	TaskPaymentAlert = constants.TaskPaymentAlert
)

// DonationReceiptEmailPayload 捐赠回执邮件任务载荷
type DonationReceiptEmailPayload struct {
	DonationID uint `json:"donation_id"`
}

// PaymentAlertPayload 回调异常告警任务载荷
type PaymentAlertPayload struct {
	DonationNo string `json:"donation_no"`
	TxnID      string `json:"txn_id"`
	Reason     string `json:"reason"`
	RemoteIP   string `json:"remote_ip"`
}

// NewDonationReceiptEmailTask 创建捐赠回执邮件任务
func NewDonationReceiptEmailTask(payload DonationReceiptEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDonationReceiptEmail, body), nil
}

// NewPaymentAlertTask 创建回调异常告警任务
func NewPaymentAlertTask(payload PaymentAlertPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentAlert, body), nil
}
