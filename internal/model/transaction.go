package model

import (
	"time"
)

// ============================================================================
// 硬币流水类型
// ============================================================================

const (
	TransactionTypeTopup       = "topup"        // 充值入账
	TransactionTypePurchase    = "purchase"     // 购买内容（扣款）
	TransactionTypeRefund      = "refund"       // 退款
	TransactionTypeBonus       = "bonus"        // 赠送
	TransactionTypeAdminAdjust = "admin_adjust" // 人工调账
)

func IsValidTransactionType(t string) bool {
	switch t {
	case TransactionTypeTopup, TransactionTypePurchase, TransactionTypeRefund,
		TransactionTypeBonus, TransactionTypeAdminAdjust:
		return true
	}
	return false
}

// CoinTransaction 硬币流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除，更正只能追加冲正流水（refund / admin_adjust）
// 2. 同一用户的流水按 seq 全序排列，balance_after[i] = balance_after[i-1] + amount[i]
// 3. 用户当前余额 = 最新一条流水的 balance_after，永远不小于 0
type CoinTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`
	UserID        int64     `gorm:"uniqueIndex:uk_coin_tx_user_seq,priority:1;not null" json:"user_id"`
	Seq           int64     `gorm:"uniqueIndex:uk_coin_tx_user_seq,priority:2;not null" json:"seq"` // 用户维度的流水序号，从 1 开始
	Type          string    `gorm:"type:varchar(20);index;not null" json:"type"`
	Amount        int64     `gorm:"not null" json:"amount"` // 正数入账，负数出账
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	ReferenceID   string    `gorm:"type:varchar(64);index" json:"reference_id,omitempty"` // 关联充值单号或购买订单号
	Description   string    `gorm:"type:varchar(256)" json:"description,omitempty"`
	CreatedBy     *int64    `json:"created_by,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CoinTransaction) TableName() string {
	return "coin_transactions"
}
