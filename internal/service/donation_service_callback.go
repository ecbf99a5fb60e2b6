package service

import (
	"strings"
	"time"

	"github.com/daan-setu/internal/constants"
	"github.com/daan-setu/internal/models"
	"github.com/daan-setu/internal/queue"
)

// ReconcileInput 回调对账输入
//
// Status 是已映射的捐赠状态，网关原始状态保留在 Payload 里。
type ReconcileInput struct {
	DonationNo string
	Status     string
	MihpayID   string
	BankRefNum string
	Payload    models.JSON
}

// Reconcile 将已验证的回调结果应用到捐赠记录
//
// 记录必须已存在（回调绝不创建记录）；写入通过单条条件 UPDATE 完成，
// 已到终态的记录不会被任何后续回调改写。
func (s *DonationService) Reconcile(input ReconcileInput) (*models.Donation, error) {
	donationNo := strings.TrimSpace(input.DonationNo)
	if donationNo == "" {
		return nil, ErrDonationNotFound
	}

	log := donationLogger(
		"donation_no", donationNo,
		"target_status", input.Status,
		"mihpayid", input.MihpayID,
		"bank_ref_num", input.BankRefNum,
	)
	log.Infow("payment_callback_received")

	donation, err := s.donationRepo.GetByDonationNo(donationNo)
	if err != nil {
		log.Errorw("payment_callback_fetch_failed", "error", err)
		return nil, ErrDonationStoreFailed
	}
	if donation == nil {
		log.Warnw("payment_callback_donation_not_found")
		return nil, ErrDonationNotFound
	}

	// 网关仍在处理中，记录保持 pending，只留痕回调到达
	if input.Status == constants.DonationStatusPending {
		log.Infow("payment_callback_still_pending")
		return donation, nil
	}

	// 幂等处理：终态记录不回退也不改写，重复回调按成功受理
	if donation.IsTerminal() {
		log.Infow("payment_callback_idempotent_terminal", "current_status", donation.Status)
		return donation, nil
	}

	transactionID := resolveTransactionID(input.MihpayID, input.BankRefNum, donation.TxnRef)
	now := time.Now()
	affected, err := s.donationRepo.SettleIfPending(donationNo, input.Status, transactionID, input.Payload, now)
	if err != nil {
		log.Errorw("payment_callback_settle_failed", "error", err)
		return nil, ErrDonationStoreFailed
	}
	if affected == 0 {
		// 并发回调先到一步，以库内状态为准
		log.Infow("payment_callback_settle_raced")
		settled, fetchErr := s.donationRepo.GetByDonationNo(donationNo)
		if fetchErr != nil || settled == nil {
			return donation, nil
		}
		return settled, nil
	}

	donation.Status = input.Status
	donation.TransactionID = transactionID
	donation.CallbackAt = &now
	donation.UpdatedAt = now

	invalidateStatsCache()
	log.Infow("payment_callback_settled",
		"status", donation.Status,
		"transaction_id", donation.TransactionID,
	)

	if donation.Status == constants.DonationStatusSuccess {
		s.enqueueReceiptEmail(donation)
	}
	return donation, nil
}

// ReconcileCancelled 取消路径：无签名的 GET 返回，按失败处理
//
// 记录不存在时静默返回，取消页跳转不区分结果。
func (s *DonationService) ReconcileCancelled(donationNo string) {
	donationNo = strings.TrimSpace(donationNo)
	if donationNo == "" {
		return
	}
	now := time.Now()
	affected, err := s.donationRepo.SettleIfPending(donationNo, constants.DonationStatusFailed, "", nil, now)
	if err != nil {
		donationLogger("donation_no", donationNo).
			Errorw("payment_cancel_settle_failed", "error", err)
		return
	}
	if affected > 0 {
		invalidateStatsCache()
	}
	donationLogger("donation_no", donationNo, "affected", affected).
		Infow("payment_cancelled")
}

func (s *DonationService) enqueueReceiptEmail(donation *models.Donation) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	err := s.queueClient.EnqueueDonationReceiptEmail(queue.DonationReceiptEmailPayload{
		DonationID: donation.ID,
	})
	if err != nil {
		donationLogger("donation_no", donation.DonationNo).
			Errorw("donation_receipt_email_enqueue_failed", "error", err)
	}
}

// EnqueuePaymentAlert 推送签名异常告警（失败只记日志，不影响回调响应）
func (s *DonationService) EnqueuePaymentAlert(payload queue.PaymentAlertPayload) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	if err := s.queueClient.EnqueuePaymentAlert(payload); err != nil {
		donationLogger("donation_no", payload.DonationNo).
			Errorw("payment_alert_enqueue_failed", "error", err)
	}
}

// resolveTransactionID 网关流水号优先，其次银行参考号，最后回落到发起时的交易号
func resolveTransactionID(mihpayID, bankRefNum, txnRef string) string {
	if v := strings.TrimSpace(mihpayID); v != "" {
		return v
	}
	if v := strings.TrimSpace(bankRefNum); v != "" {
		return v
	}
	return strings.TrimSpace(txnRef)
}
