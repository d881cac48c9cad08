package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 充值申请状态
// ============================================================================

const (
	TopupStatusPending   = "pending"
	TopupStatusApproved  = "approved"
	TopupStatusRejected  = "rejected"
	TopupStatusCancelled = "cancelled"
)

// ValidTopupTransitions 充值申请状态流转表
// pending 是唯一的非终态，三个终态都不允许再流转
var ValidTopupTransitions = map[string][]string{
	TopupStatusPending: {TopupStatusApproved, TopupStatusRejected, TopupStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidTopupTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminalStatus 是否终态
func IsTerminalStatus(status string) bool {
	switch status {
	case TopupStatusApproved, TopupStatusRejected, TopupStatusCancelled:
		return true
	}
	return false
}

func IsValidTopupStatus(status string) bool {
	return status == TopupStatusPending || IsTerminalStatus(status)
}

// TopupRequest 充值申请表
// 用户线下转账后提交凭证，管理员核对后审批；只有审批通过才会入账
type TopupRequest struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"-"`
	TopupNo          string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`                                                     // 对外暴露的申请单号
	ClientRequestID  *string         `gorm:"type:varchar(64);uniqueIndex:uk_topup_client_request,priority:2" json:"client_request_id,omitempty"` // 客户端幂等ID（可选）
	UserID           int64           `gorm:"index:idx_topup_user_status,priority:1;uniqueIndex:uk_topup_client_request,priority:1;not null" json:"user_id"`
	PackageCode      string          `gorm:"type:varchar(32)" json:"package_code,omitempty"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`            // 转账金额
	CoinsAmount      int64           `gorm:"not null" json:"coins_amount"`                         // 审批通过后入账的硬币数，提交时锁定
	Status           string          `gorm:"type:varchar(20);index:idx_topup_user_status,priority:2;not null" json:"status"`
	SlipImageURL     string          `gorm:"type:varchar(512)" json:"slip_image_url,omitempty"`
	TransferRef      string          `gorm:"column:transfer_reference;type:varchar(128)" json:"transfer_reference,omitempty"`
	TransferDatetime *time.Time      `json:"transfer_datetime,omitempty"`
	RejectReason     *string         `gorm:"type:varchar(512)" json:"reject_reason,omitempty"` // 仅 rejected 状态有值
	ProcessedBy      *int64          `json:"processed_by,omitempty"`                           // 审批管理员
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TopupRequest) TableName() string {
	return "topup_requests"
}

func (t *TopupRequest) IsPending() bool {
	return t.Status == TopupStatusPending
}
