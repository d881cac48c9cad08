package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/repository"
	"github.com/gSa1fe/isusP-sub000/internal/service"
)

// LedgerVerifier 流水校验与钱包头修复
type LedgerVerifier interface {
	VerifyLedger(ctx context.Context, userID int64) (*service.LedgerReport, error)
	RepairHead(ctx context.Context, userID int64) (bool, error)
}

// ReconcileStats 一轮对账的结果
type ReconcileStats struct {
	Checked  int
	Repaired int
	Broken   int
}

// LedgerReconcileJob 定期按钱包分批重放流水
//
// 流水本身不满足累加关系时只告警，不自动修改流水；
// 流水正确但钱包头镜像漂移时，以流水为准修复钱包头。
type LedgerReconcileJob struct {
	accounts  repository.AccountStore
	verifier  LedgerVerifier
	stopCh    chan struct{}
	stopOnce  sync.Once
	interval  time.Duration
	batchSize int
}

func NewLedgerReconcileJob(accounts repository.AccountStore, verifier LedgerVerifier, interval time.Duration, batchSize int) *LedgerReconcileJob {
	return &LedgerReconcileJob{
		accounts:  accounts,
		verifier:  verifier,
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: batchSize,
	}
}

func (j *LedgerReconcileJob) Start(ctx context.Context) {
	slog.Info("[LedgerReconcileJob] 流水对账任务启动", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[LedgerReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			slog.Info("[LedgerReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.reconcile(ctx)
		}
	}
}

func (j *LedgerReconcileJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

func (j *LedgerReconcileJob) reconcile(ctx context.Context) ReconcileStats {
	var stats ReconcileStats
	var afterID int64

	for {
		if ctx.Err() != nil {
			return stats
		}

		accounts, err := j.accounts.ListAfter(ctx, afterID, j.batchSize)
		if err != nil {
			slog.Error("[LedgerReconcileJob] 查询钱包失败", "after_id", afterID, "err", err)
			return stats
		}
		if len(accounts) == 0 {
			break
		}

		for _, account := range accounts {
			afterID = account.ID
			stats.Checked++

			report, err := j.verifier.VerifyLedger(ctx, account.UserID)
			if err != nil {
				slog.Error("[LedgerReconcileJob] 校验流水失败", "user_id", account.UserID, "err", err)
				continue
			}
			if !report.Consistent {
				stats.Broken++
				slog.Error("[LedgerReconcileJob] 流水不一致，需要人工处理",
					"user_id", account.UserID, "seq", report.ViolationSeq, "violation", report.Violation)
				continue
			}
			if report.HeadInSync {
				continue
			}

			repaired, err := j.verifier.RepairHead(ctx, account.UserID)
			if err != nil {
				slog.Error("[LedgerReconcileJob] 修复钱包失败", "user_id", account.UserID, "err", err)
				continue
			}
			if repaired {
				stats.Repaired++
				slog.Warn("[LedgerReconcileJob] 钱包镜像已按流水修复",
					"user_id", account.UserID, "head_balance", report.HeadBalance, "ledger_balance", report.Balance)
			}
		}

		if len(accounts) < j.batchSize {
			break
		}
	}

	if stats.Broken > 0 || stats.Repaired > 0 {
		slog.Info("[LedgerReconcileJob] 本轮对账完成", "checked", stats.Checked, "repaired", stats.Repaired, "broken", stats.Broken)
	}
	return stats
}
