package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/repository"
	"github.com/gSa1fe/isusP-sub000/pkg/idgen"
)

// ============================================================================
// 硬币流水
// ============================================================================
//
// 追加流程（同一个事务内）：
//  1. 锁定用户钱包头记录（SELECT ... FOR UPDATE），同一用户的追加串行化
//  2. 读取最新一条流水，balance_after = 上一条 balance_after + amount
//  3. balance_after < 0 直接失败，不写任何数据
//  4. 插入流水（seq = 上一条 seq + 1，(user_id, seq) 唯一索引兜底）
//  5. 推进钱包头（version 乐观锁）
// ============================================================================

type LedgerService struct {
	uow   repository.UnitOfWork
	topic string
}

func NewLedgerService(uow repository.UnitOfWork, topics Topics) *LedgerService {
	return &LedgerService{uow: uow, topic: topics.LedgerEvents}
}

// AppendEntry 追加流水请求
type AppendEntry struct {
	UserID      int64
	Type        string
	Amount      int64
	ReferenceID string
	Description string
	CreatedBy   *int64
}

func validateEntry(e AppendEntry) error {
	if e.UserID <= 0 {
		return validationError("用户ID不合法")
	}
	switch e.Type {
	case model.TransactionTypeTopup, model.TransactionTypeBonus, model.TransactionTypeRefund:
		if e.Amount <= 0 {
			return validationError("%s 流水金额必须为正数", e.Type)
		}
	case model.TransactionTypePurchase:
		if e.Amount >= 0 {
			return validationError("purchase 流水金额必须为负数")
		}
	case model.TransactionTypeAdminAdjust:
		if e.Amount == 0 {
			return validationError("admin_adjust 流水金额不能为 0")
		}
	default:
		return validationError("未知的流水类型: %s", e.Type)
	}
	return nil
}

// Append 在独立事务中追加一条流水
func (l *LedgerService) Append(ctx context.Context, e AppendEntry) (*model.CoinTransaction, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	var entry *model.CoinTransaction
	err := l.uow.Do(ctx, func(s repository.Stores) error {
		var err error
		entry, err = l.appendEntry(ctx, s, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// appendEntry 在调用方的事务里追加流水，审批入账也走这里
func (l *LedgerService) appendEntry(ctx context.Context, s repository.Stores, e AppendEntry) (*model.CoinTransaction, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	head, err := s.Accounts.LockForUpdate(ctx, e.UserID)
	if err != nil {
		return nil, storeError("锁定钱包", err)
	}

	latest, err := s.Ledger.Latest(ctx, e.UserID)
	if err != nil {
		return nil, storeError("查询最新流水", err)
	}

	var balanceBefore, lastSeq int64
	if latest != nil {
		balanceBefore = latest.BalanceAfter
		lastSeq = latest.Seq
	}

	balanceAfter := balanceBefore + e.Amount
	if balanceAfter < 0 {
		return nil, ErrInsufficientBalance
	}

	entry := &model.CoinTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        e.UserID,
		Seq:           lastSeq + 1,
		Type:          e.Type,
		Amount:        e.Amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		ReferenceID:   e.ReferenceID,
		Description:   e.Description,
		CreatedBy:     e.CreatedBy,
	}
	if err := s.Ledger.Append(ctx, entry); err != nil {
		return nil, storeError("写入流水", err)
	}

	if err := s.Accounts.AdvanceHead(ctx, e.UserID, head.Version, balanceAfter, entry.Seq); err != nil {
		return nil, storeError("更新钱包", err)
	}

	if err := writeOutbox(ctx, s, l.topic, e.UserID, ledgerEvent(entry)); err != nil {
		return nil, storeError("写入消息", err)
	}

	return entry, nil
}

// Debit 内容购买扣款，供内容服务调用
func (l *LedgerService) Debit(ctx context.Context, userID, coins int64, referenceID, description string) (*model.CoinTransaction, error) {
	if coins <= 0 {
		return nil, validationError("扣款硬币数必须为正数")
	}
	if strings.TrimSpace(referenceID) == "" {
		return nil, validationError("购买订单号不能为空")
	}

	entry, err := l.Append(ctx, AppendEntry{
		UserID:      userID,
		Type:        model.TransactionTypePurchase,
		Amount:      -coins,
		ReferenceID: referenceID,
		Description: description,
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, ErrValidation) {
			slog.ErrorContext(ctx, "购买扣款失败", "user_id", userID, "coins", coins, "reference_id", referenceID, "err", err)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "购买扣款成功", "user_id", userID, "coins", coins, "reference_id", referenceID, "balance", entry.BalanceAfter)
	return entry, nil
}

// Adjust 管理员补偿流水：退款、赠送、人工调账
func (l *LedgerService) Adjust(ctx context.Context, admin Actor, userID int64, txType string, amount int64, reason string) (*model.CoinTransaction, error) {
	if !admin.IsAdmin {
		return nil, ErrForbidden
	}
	switch txType {
	case model.TransactionTypeRefund, model.TransactionTypeBonus, model.TransactionTypeAdminAdjust:
	default:
		return nil, validationError("调账类型只能是 refund / bonus / admin_adjust")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("调账原因不能为空")
	}

	operator := admin.UserID
	entry, err := l.Append(ctx, AppendEntry{
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: reason,
		CreatedBy:   &operator,
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "人工调账成功",
		"user_id", userID, "type", txType, "amount", amount, "operator", admin.UserID, "transaction_no", entry.TransactionNo)
	return entry, nil
}

// List 查询用户流水，最新的在前
func (l *LedgerService) List(ctx context.Context, userID int64, txType string, page, pageSize int) ([]*model.CoinTransaction, int64, error) {
	if txType != "" && !model.IsValidTransactionType(txType) {
		return nil, 0, validationError("未知的流水类型: %s", txType)
	}
	page, pageSize = NormalizePage(page, pageSize)

	list, total, err := l.uow.Stores().Ledger.ListByUser(ctx, repository.TransactionFilter{
		UserID:   userID,
		Type:     txType,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, storeError("查询流水", err)
	}
	return list, total, nil
}
