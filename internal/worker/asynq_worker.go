package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/daan-setu/internal/constants"
	"github.com/daan-setu/internal/logger"
	"github.com/daan-setu/internal/provider"
	"github.com/daan-setu/internal/queue"
	"github.com/daan-setu/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskDonationReceiptEmail, c.handleDonationReceiptEmail)
	mux.HandleFunc(queue.TaskPaymentAlert, c.handlePaymentAlert)
}

func (c *Consumer) handleDonationReceiptEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_donation_receipt_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.DonationReceiptEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_donation_receipt_email_unmarshal_failed", "error", err)
		return err
	}
	if payload.DonationID == 0 {
		logger.Debugw("worker_donation_receipt_email_skip_invalid_payload", "donation_id", payload.DonationID)
		return nil
	}
	donation, err := c.DonationRepo.GetByID(payload.DonationID)
	if err != nil {
		logger.Warnw("worker_donation_receipt_email_fetch_donation_failed", "donation_id", payload.DonationID, "error", err)
		return err
	}
	if donation == nil {
		logger.Debugw("worker_donation_receipt_email_skip_donation_not_found", "donation_id", payload.DonationID)
		return nil
	}
	if donation.Status != constants.DonationStatusSuccess {
		logger.Debugw("worker_donation_receipt_email_skip_not_success",
			"donation_id", donation.ID,
			"donation_no", donation.DonationNo,
			"status", donation.Status,
		)
		return nil
	}
	user, err := c.UserRepo.GetByID(donation.UserID)
	if err != nil {
		logger.Warnw("worker_donation_receipt_email_fetch_user_failed",
			"donation_id", donation.ID,
			"user_id", donation.UserID,
			"error", err,
		)
		return err
	}
	if user == nil {
		logger.Debugw("worker_donation_receipt_email_skip_user_not_found", "donation_id", donation.ID, "user_id", donation.UserID)
		return nil
	}
	receiverEmail := strings.TrimSpace(user.Email)
	if receiverEmail == "" {
		logger.Debugw("worker_donation_receipt_email_skip_empty_receiver", "donation_id", donation.ID, "donation_no", donation.DonationNo)
		return nil
	}
	if c.EmailService == nil {
		logger.Warnw("worker_donation_receipt_email_skip_email_service_nil", "donation_id", donation.ID, "donation_no", donation.DonationNo)
		return nil
	}
	input := service.DonationReceiptInput{
		DonationNo:    donation.DonationNo,
		DonorName:     user.DisplayName,
		Amount:        donation.Amount,
		Currency:      donation.Currency,
		TransactionID: donation.TransactionID,
		PaidAt:        donation.CallbackAt,
	}
	if err := c.EmailService.SendDonationReceipt(receiverEmail, input); err != nil {
		if errors.Is(err, service.ErrEmailServiceDisabled) || errors.Is(err, service.ErrEmailServiceNotConfigured) {
			logger.Debugw("worker_donation_receipt_email_skip_service_unavailable",
				"donation_id", donation.ID,
				"donation_no", donation.DonationNo,
				"error", err,
			)
			return nil
		}
		if errors.Is(err, service.ErrEmailRecipientRejected) {
			logger.Warnw("worker_donation_receipt_email_recipient_rejected",
				"donation_id", donation.ID,
				"donation_no", donation.DonationNo,
				"receiver_email", receiverEmail,
			)
			return nil
		}
		logger.Warnw("worker_donation_receipt_email_send_failed",
			"donation_id", donation.ID,
			"donation_no", donation.DonationNo,
			"receiver_email", receiverEmail,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Consumer) handlePaymentAlert(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_alert_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_alert_unmarshal_failed", "error", err)
		return err
	}
	// 告警进入结构化日志，邮件通知是可选的补充渠道。
	logger.Warnw("worker_payment_alert",
		"donation_no", payload.DonationNo,
		"txn_id", payload.TxnID,
		"reason", payload.Reason,
		"remote_ip", payload.RemoteIP,
	)
	alertTo := ""
	if c.Config != nil {
		alertTo = strings.TrimSpace(c.Config.Email.AlertTo)
	}
	if alertTo == "" || c.EmailService == nil {
		return nil
	}
	if err := c.EmailService.SendPaymentAlert(alertTo, payload.DonationNo, payload.TxnID, payload.Reason, payload.RemoteIP); err != nil {
		if errors.Is(err, service.ErrEmailServiceDisabled) || errors.Is(err, service.ErrEmailServiceNotConfigured) {
			logger.Debugw("worker_payment_alert_skip_service_unavailable", "donation_no", payload.DonationNo, "error", err)
			return nil
		}
		logger.Warnw("worker_payment_alert_send_failed", "donation_no", payload.DonationNo, "error", err)
		return err
	}
	return nil
}
