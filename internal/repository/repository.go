package repository

import (
	"context"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/model"
)

// TopupStore 充值申请存储
type TopupStore interface {
	Create(ctx context.Context, topup *model.TopupRequest) error
	GetByNo(ctx context.Context, topupNo string) (*model.TopupRequest, error)
	GetByNoForUpdate(ctx context.Context, topupNo string) (*model.TopupRequest, error)
	GetByClientRequestID(ctx context.Context, userID int64, clientRequestID string) (*model.TopupRequest, error)
	CountByUserAndStatus(ctx context.Context, userID int64, status string) (int64, error)
	Transition(ctx context.Context, topupNo, fromStatus, toStatus string, fields TransitionFields) error
	List(ctx context.Context, filter TopupFilter) ([]*model.TopupRequest, int64, error)
}

// TransitionFields 状态流转时一并写入的字段
type TransitionFields struct {
	RejectReason *string
	ProcessedBy  *int64
	ProcessedAt  *time.Time
}

type TopupFilter struct {
	UserID   *int64 // nil 表示不限用户（仅管理员）
	Status   string
	Page     int
	PageSize int
}

// LedgerStore 硬币流水存储，只提供追加和查询，没有更新和删除
type LedgerStore interface {
	Append(ctx context.Context, entry *model.CoinTransaction) error
	Latest(ctx context.Context, userID int64) (*model.CoinTransaction, error)
	ListByUser(ctx context.Context, filter TransactionFilter) ([]*model.CoinTransaction, int64, error)
	ListAllByUser(ctx context.Context, userID int64) ([]*model.CoinTransaction, error)
	ListByReference(ctx context.Context, referenceID string) ([]*model.CoinTransaction, error)
	SumByType(ctx context.Context, userID int64, txType string) (int64, error)
}

type TransactionFilter struct {
	UserID   int64
	Type     string
	Page     int
	PageSize int
}

// AccountStore 钱包头记录存储
type AccountStore interface {
	Get(ctx context.Context, userID int64) (*model.WalletAccount, error)
	LockForUpdate(ctx context.Context, userID int64) (*model.WalletAccount, error)
	AdvanceHead(ctx context.Context, userID int64, version int, balance, lastSeq int64) error
	ResetHead(ctx context.Context, userID int64, balance, lastSeq int64) error
	ListAfter(ctx context.Context, afterID int64, limit int) ([]*model.WalletAccount, error)
}

type OutboxStore interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// Stores 同一个数据库会话（或事务）下的全部存储
type Stores struct {
	Topups   TopupStore
	Ledger   LedgerStore
	Accounts AccountStore
	Outbox   OutboxStore
}

// UnitOfWork 事务边界
//
// Do 里拿到的 Stores 全部绑定在同一个事务上，fn 返回错误则整体回滚；
// Stores() 返回不带事务的只读/单语句访问。
type UnitOfWork interface {
	Do(ctx context.Context, fn func(s Stores) error) error
	Stores() Stores
}
