package model

import (
	"time"
)

const (
	EventTopupSubmitted = "topup.submitted"
	EventTopupApproved  = "topup.approved"
	EventTopupRejected  = "topup.rejected"
	EventTopupCancelled = "topup.cancelled"
	EventLedgerAppended = "ledger.appended"
)

// TopupEvent 充值申请状态变化通知，通过 outbox 投递给通知服务
type TopupEvent struct {
	Event        string    `json:"event"`
	TopupNo      string    `json:"topup_no"`
	UserID       int64     `json:"user_id"`
	Status       string    `json:"status"`
	CoinsAmount  int64     `json:"coins_amount"`
	RejectReason string    `json:"reject_reason,omitempty"`
	OperatorID   int64     `json:"operator_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// LedgerEvent 流水追加通知
type LedgerEvent struct {
	Event         string    `json:"event"`
	TransactionNo string    `json:"transaction_no"`
	UserID        int64     `json:"user_id"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	BalanceAfter  int64     `json:"balance_after"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
