package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/repository"
)

// ============================================================================
// 充值审批
// ============================================================================
//
// 审批通过：锁定申请单 -> 校验 pending -> CAS pending→approved -> 追加 topup 流水 -> 写 outbox
// 驳回：    锁定申请单 -> 校验 pending -> CAS pending→rejected（记录原因）-> 写 outbox
//
// 全部在一个数据库事务里完成，任何一步失败整体回滚。
// 多个管理员同时审批同一张申请单时，只有一个能拿到 pending 状态，其余返回 ErrAlreadyProcessed，
// 所以一张申请单最多产生一条 topup 流水。
// Redis 锁只是让并发请求在进数据库前排队，拿不到锁照样走数据库流程。
// ============================================================================

type SettlementService struct {
	uow    repository.UnitOfWork
	ledger *LedgerService
	locker Locker
	topic  string
}

func NewSettlementService(uow repository.UnitOfWork, ledger *LedgerService, locker Locker, topics Topics) *SettlementService {
	return &SettlementService{
		uow:    uow,
		ledger: ledger,
		locker: locker,
		topic:  topics.TopupEvents,
	}
}

type SettlementResult struct {
	Topup       *model.TopupRequest    `json:"topup"`
	Transaction *model.CoinTransaction `json:"transaction"`
}

func (s *SettlementService) lock(ctx context.Context, topupNo string) func() {
	if s.locker == nil {
		return func() {}
	}
	release, err := s.locker.Acquire(ctx, topupNo)
	if err != nil {
		slog.WarnContext(ctx, "获取审批锁失败，继续走数据库流程", "topup_no", topupNo, "err", err)
		return func() {}
	}
	return release
}

// Approve 审批通过并入账
func (s *SettlementService) Approve(ctx context.Context, topupNo string, admin Actor) (*SettlementResult, error) {
	if !admin.IsAdmin {
		return nil, ErrForbidden
	}

	release := s.lock(ctx, topupNo)
	defer release()

	result := &SettlementResult{}
	err := s.uow.Do(ctx, func(st repository.Stores) error {
		topup, err := lockPending(ctx, st, topupNo)
		if err != nil {
			return err
		}

		now := time.Now()
		operator := admin.UserID
		err = st.Topups.Transition(ctx, topupNo, model.TopupStatusPending, model.TopupStatusApproved,
			repository.TransitionFields{ProcessedBy: &operator, ProcessedAt: &now})
		if err != nil {
			return transitionError(err)
		}
		topup.Status = model.TopupStatusApproved
		topup.ProcessedBy = &operator
		topup.ProcessedAt = &now

		entry, err := s.ledger.appendEntry(ctx, st, AppendEntry{
			UserID:      topup.UserID,
			Type:        model.TransactionTypeTopup,
			Amount:      topup.CoinsAmount,
			ReferenceID: topup.TopupNo,
			Description: "充值审批入账",
			CreatedBy:   &operator,
		})
		if err != nil {
			return err
		}

		if err := writeOutbox(ctx, st, s.topic, topup.UserID, topupEvent(model.EventTopupApproved, topup, operator)); err != nil {
			return storeError("写入消息", err)
		}

		result.Topup = topup
		result.Transaction = entry
		return nil
	})
	if err != nil {
		logSettlementError(ctx, "审批", topupNo, admin, err)
		return nil, err
	}

	slog.InfoContext(ctx, "充值审批通过",
		"topup_no", topupNo, "user_id", result.Topup.UserID, "coins", result.Transaction.Amount,
		"balance", result.Transaction.BalanceAfter, "operator", admin.UserID)
	return result, nil
}

// Reject 驳回，不产生任何流水
func (s *SettlementService) Reject(ctx context.Context, topupNo string, admin Actor, reason string) (*model.TopupRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("驳回原因不能为空")
	}
	if !admin.IsAdmin {
		return nil, ErrForbidden
	}

	release := s.lock(ctx, topupNo)
	defer release()

	var result *model.TopupRequest
	err := s.uow.Do(ctx, func(st repository.Stores) error {
		topup, err := lockPending(ctx, st, topupNo)
		if err != nil {
			return err
		}

		now := time.Now()
		operator := admin.UserID
		err = st.Topups.Transition(ctx, topupNo, model.TopupStatusPending, model.TopupStatusRejected,
			repository.TransitionFields{RejectReason: &reason, ProcessedBy: &operator, ProcessedAt: &now})
		if err != nil {
			return transitionError(err)
		}
		topup.Status = model.TopupStatusRejected
		topup.RejectReason = &reason
		topup.ProcessedBy = &operator
		topup.ProcessedAt = &now

		if err := writeOutbox(ctx, st, s.topic, topup.UserID, topupEvent(model.EventTopupRejected, topup, operator)); err != nil {
			return storeError("写入消息", err)
		}

		result = topup
		return nil
	})
	if err != nil {
		logSettlementError(ctx, "驳回", topupNo, admin, err)
		return nil, err
	}

	slog.InfoContext(ctx, "充值申请已驳回", "topup_no", topupNo, "user_id", result.UserID, "operator", admin.UserID)
	return result, nil
}

// lockPending 锁定申请单行并确认仍是 pending
func lockPending(ctx context.Context, st repository.Stores, topupNo string) (*model.TopupRequest, error) {
	topup, err := st.Topups.GetByNoForUpdate(ctx, topupNo)
	if err != nil {
		if errors.Is(err, repository.ErrTopupNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeError("查询充值申请", err)
	}
	if !topup.IsPending() {
		return nil, ErrAlreadyProcessed
	}
	return topup, nil
}

func transitionError(err error) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return ErrAlreadyProcessed
	}
	return storeError("更新充值申请状态", err)
}

func logSettlementError(ctx context.Context, action, topupNo string, admin Actor, err error) {
	if errors.Is(err, ErrStore) {
		slog.ErrorContext(ctx, "充值"+action+"失败", "topup_no", topupNo, "operator", admin.UserID, "err", err)
		return
	}
	slog.WarnContext(ctx, "充值"+action+"未执行", "topup_no", topupNo, "operator", admin.UserID, "reason", err)
}
