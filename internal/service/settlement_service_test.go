package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = Actor{UserID: 1, IsAdmin: true}

func TestSettlementService_Approve(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)

	result, err := env.settlement.Approve(ctx, topup.TopupNo, admin)
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusApproved, result.Topup.Status)
	require.NotNil(t, result.Topup.ProcessedBy)
	assert.Equal(t, int64(1), *result.Topup.ProcessedBy)
	assert.NotNil(t, result.Topup.ProcessedAt)

	tx := result.Transaction
	assert.Equal(t, model.TransactionTypeTopup, tx.Type)
	assert.Equal(t, int64(1000), tx.Amount)
	assert.Equal(t, int64(0), tx.BalanceBefore)
	assert.Equal(t, int64(1000), tx.BalanceAfter)
	assert.Equal(t, int64(1), tx.Seq)
	assert.Equal(t, topup.TopupNo, tx.ReferenceID)

	stored := env.uow.topup(topup.TopupNo)
	assert.Equal(t, model.TopupStatusApproved, stored.Status)

	wallet, err := env.wallet.GetWallet(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.Coins)
	assert.Equal(t, int64(1000), wallet.TotalToppedUp)
	assert.Equal(t, int64(0), wallet.PendingTopups)

	assert.Equal(t, 1, env.locker.acquired)
	assert.Equal(t, 1, env.locker.released)

	var topics []string
	for _, m := range env.uow.outboxEvents() {
		topics = append(topics, m.Topic)
	}
	assert.Equal(t, []string{testTopics.TopupEvents, testTopics.LedgerEvents, testTopics.TopupEvents}, topics)
}

func TestSettlementService_ApproveTerminal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)
	_, err = env.settlement.Approve(ctx, topup.TopupNo, admin)
	require.NoError(t, err)

	// 重复审批、审批后驳回都不产生新流水
	_, err = env.settlement.Approve(ctx, topup.TopupNo, admin)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = env.settlement.Reject(ctx, topup.TopupNo, admin, "late")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	assert.Len(t, env.uow.entries(7), 1)
	assert.Equal(t, model.TopupStatusApproved, env.uow.topup(topup.TopupNo).Status)

	cancelled, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)
	_, err = env.topups.Cancel(ctx, cancelled.TopupNo, 7)
	require.NoError(t, err)
	_, err = env.settlement.Approve(ctx, cancelled.TopupNo, admin)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Len(t, env.uow.entries(7), 1)
}

func TestSettlementService_ApproveNotFoundAndForbidden(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.settlement.Approve(ctx, "TOP-missing", admin)
	assert.ErrorIs(t, err, ErrNotFound)

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)

	_, err = env.settlement.Approve(ctx, topup.TopupNo, Actor{UserID: 7})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.settlement.Reject(ctx, topup.TopupNo, Actor{UserID: 7}, "no")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, model.TopupStatusPending, env.uow.topup(topup.TopupNo).Status)
}

func TestSettlementService_ConcurrentApprove(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)

	const admins = 10
	var wg sync.WaitGroup
	errs := make([]error, admins)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.settlement.Approve(ctx, topup.TopupNo, Actor{UserID: int64(100 + i), IsAdmin: true})
		}(i)
	}
	wg.Wait()

	var ok, processed int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyProcessed):
			processed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, admins-1, processed)

	refs, err := env.uow.Stores().Ledger.ListByReference(ctx, topup.TopupNo)
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	wallet, err := env.wallet.GetWallet(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.Coins)
}

func TestSettlementService_ApproveAndRejectRace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var approveErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = env.settlement.Approve(ctx, topup.TopupNo, admin)
	}()
	go func() {
		defer wg.Done()
		_, rejectErr = env.settlement.Reject(ctx, topup.TopupNo, Actor{UserID: 2, IsAdmin: true}, "slip unclear")
	}()
	wg.Wait()

	// 恰好一个成功
	require.True(t, (approveErr == nil) != (rejectErr == nil), "approve=%v reject=%v", approveErr, rejectErr)

	stored := env.uow.topup(topup.TopupNo)
	if approveErr == nil {
		assert.ErrorIs(t, rejectErr, ErrAlreadyProcessed)
		assert.Equal(t, model.TopupStatusApproved, stored.Status)
		assert.Len(t, env.uow.entries(7), 1)
	} else {
		assert.ErrorIs(t, approveErr, ErrAlreadyProcessed)
		assert.Equal(t, model.TopupStatusRejected, stored.Status)
		assert.Empty(t, env.uow.entries(7))
	}
}

func TestSettlementService_Reject(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	approved, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)
	_, err = env.settlement.Approve(ctx, approved.TopupNo, admin)
	require.NoError(t, err)

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)

	_, err = env.settlement.Reject(ctx, topup.TopupNo, admin, "   ")
	assert.ErrorIs(t, err, ErrValidation)
	// 原因校验在加锁之前
	assert.Equal(t, 1, env.locker.acquired)

	rejected, err := env.settlement.Reject(ctx, topup.TopupNo, admin, "  slip unclear ")
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "slip unclear", *rejected.RejectReason)

	stored := env.uow.topup(topup.TopupNo)
	assert.Equal(t, model.TopupStatusRejected, stored.Status)
	require.NotNil(t, stored.RejectReason)
	assert.Equal(t, "slip unclear", *stored.RejectReason)

	// 余额不变
	wallet, err := env.wallet.GetWallet(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.Coins)
	assert.Len(t, env.uow.entries(7), 1)

	_, err = env.settlement.Reject(ctx, topup.TopupNo, admin, "again")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, "slip unclear", *env.uow.topup(topup.TopupNo).RejectReason)
}

func TestSettlementService_RollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)

	env.uow.outboxErr = errors.New("disk full")
	_, err = env.settlement.Approve(ctx, topup.TopupNo, admin)
	assert.ErrorIs(t, err, ErrStore)

	// 状态、流水、钱包头全部回滚
	assert.Equal(t, model.TopupStatusPending, env.uow.topup(topup.TopupNo).Status)
	assert.Empty(t, env.uow.entries(7))
	head, err := env.uow.Stores().Accounts.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), head.Balance)

	env.uow.outboxErr = nil
	_, err = env.settlement.Approve(ctx, topup.TopupNo, admin)
	require.NoError(t, err)
	assert.Len(t, env.uow.entries(7), 1)
}

func TestSettlementService_LostCAS(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)

	env.uow.transitionHook = func(string) error { return repository.ErrStatusConflict }
	_, err = env.settlement.Approve(ctx, topup.TopupNo, admin)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Empty(t, env.uow.entries(7))
}

func TestSettlementService_LockUnavailable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.locker.err = errors.New("redis: connection refused")

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)

	// Redis 不可用时仍以数据库为准完成审批
	_, err = env.settlement.Approve(ctx, topup.TopupNo, admin)
	require.NoError(t, err)
	assert.Len(t, env.uow.entries(7), 1)
}

func TestSettlementService_NilLocker(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := NewSettlementService(env.uow, env.ledger, nil, testTopics)

	topup, err := env.topups.Submit(ctx, submitReq(7))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, topup.TopupNo, admin)
	require.NoError(t, err)
}
