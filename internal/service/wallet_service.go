package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/repository"

	"golang.org/x/sync/errgroup"
)

// WalletService 钱包视图与流水校验
//
// 余额只以流水为准：最新一条流水的 balance_after，没有流水为 0。
// wallet_accounts 只是镜像，不参与余额计算。
type WalletService struct {
	uow repository.UnitOfWork
}

func NewWalletService(uow repository.UnitOfWork) *WalletService {
	return &WalletService{uow: uow}
}

func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	st := s.uow.Stores()
	wallet := &model.Wallet{UserID: userID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		latest, err := st.Ledger.Latest(gctx, userID)
		if err != nil {
			return err
		}
		if latest != nil {
			wallet.Coins = latest.BalanceAfter
		}
		return nil
	})
	g.Go(func() error {
		n, err := st.Topups.CountByUserAndStatus(gctx, userID, model.TopupStatusPending)
		wallet.PendingTopups = n
		return err
	})
	g.Go(func() error {
		sum, err := st.Ledger.SumByType(gctx, userID, model.TransactionTypeTopup)
		wallet.TotalToppedUp = sum
		return err
	})
	g.Go(func() error {
		sum, err := st.Ledger.SumByType(gctx, userID, model.TransactionTypePurchase)
		wallet.TotalSpent = -sum
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeError("查询钱包", err)
	}
	return wallet, nil
}

// LedgerReport 单个用户的流水校验结果
type LedgerReport struct {
	UserID       int64  `json:"user_id"`
	Entries      int    `json:"entries"`
	Balance      int64  `json:"balance"`
	LastSeq      int64  `json:"last_seq"`
	Consistent   bool   `json:"consistent"`
	Violation    string `json:"violation,omitempty"`
	ViolationSeq int64  `json:"violation_seq,omitempty"`
	HeadBalance  int64  `json:"head_balance"`
	HeadSeq      int64  `json:"head_seq"`
	HeadInSync   bool   `json:"head_in_sync"`
}

// VerifyLedger 按 seq 顺序重放流水，找出第一处违反连续性、累加关系或非负约束的记录
func (s *WalletService) VerifyLedger(ctx context.Context, userID int64) (*LedgerReport, error) {
	st := s.uow.Stores()

	entries, err := st.Ledger.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, storeError("查询流水", err)
	}

	report := &LedgerReport{UserID: userID, Entries: len(entries), Consistent: true}
	var balance int64
	for i, e := range entries {
		violation := ""
		switch {
		case e.Seq != int64(i+1):
			violation = fmt.Sprintf("seq 不连续，期望 %d 实际 %d", i+1, e.Seq)
		case e.BalanceBefore != balance:
			violation = fmt.Sprintf("balance_before=%d 与上一条 balance_after=%d 不一致", e.BalanceBefore, balance)
		case e.BalanceAfter != e.BalanceBefore+e.Amount:
			violation = fmt.Sprintf("balance_after=%d 不等于 %d%+d", e.BalanceAfter, e.BalanceBefore, e.Amount)
		case e.BalanceAfter < 0:
			violation = fmt.Sprintf("balance_after=%d 为负数", e.BalanceAfter)
		}
		if violation != "" && report.Consistent {
			report.Consistent = false
			report.Violation = violation
			report.ViolationSeq = e.Seq
		}
		balance = e.BalanceAfter
	}
	if n := len(entries); n > 0 {
		report.Balance = entries[n-1].BalanceAfter
		report.LastSeq = entries[n-1].Seq
	}

	head, err := st.Accounts.Get(ctx, userID)
	switch {
	case err == nil:
		report.HeadBalance = head.Balance
		report.HeadSeq = head.LastSeq
	case errors.Is(err, repository.ErrAccountNotFound):
	default:
		return nil, storeError("查询钱包", err)
	}
	report.HeadInSync = report.HeadBalance == report.Balance && report.HeadSeq == report.LastSeq

	return report, nil
}

// RepairHead 以最新流水为准覆盖钱包头镜像，返回是否做了修复
func (s *WalletService) RepairHead(ctx context.Context, userID int64) (bool, error) {
	repaired := false
	err := s.uow.Do(ctx, func(st repository.Stores) error {
		head, err := st.Accounts.LockForUpdate(ctx, userID)
		if err != nil {
			return storeError("锁定钱包", err)
		}
		latest, err := st.Ledger.Latest(ctx, userID)
		if err != nil {
			return storeError("查询最新流水", err)
		}
		var balance, seq int64
		if latest != nil {
			balance, seq = latest.BalanceAfter, latest.Seq
		}
		if head.Balance == balance && head.LastSeq == seq {
			return nil
		}
		if err := st.Accounts.ResetHead(ctx, userID, balance, seq); err != nil {
			return storeError("修复钱包", err)
		}
		repaired = true
		return nil
	})
	return repaired, err
}
