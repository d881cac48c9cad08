package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本校验 value 后再 DEL，避免误删别人的锁
//
// 【注意】审批流程里这把锁只是减少无谓的数据库行锁等待，
// 真正保证“不重复入账”的是数据库事务里的 FOR UPDATE + 状态 CAS。
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 锁持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，锁已不属于自己时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// ============================================================================
// 审批锁
// ============================================================================

// SettlementLocker 按充值单号加锁，同一张申请单的审批、驳回串行执行
type SettlementLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewSettlementLocker(client *redis.Client, ttl time.Duration) *SettlementLocker {
	return &SettlementLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
		maxRetries:    20,
	}
}

func SettlementLockKey(topupNo string) string {
	return fmt.Sprintf("topup:settle:%s", topupNo)
}

// Acquire 获取锁，返回释放函数
func (s *SettlementLocker) Acquire(ctx context.Context, topupNo string) (func(), error) {
	l := NewDistributedLock(s.client, SettlementLockKey(topupNo), uuid.NewString(), s.ttl)
	if err := l.Lock(ctx, s.retryInterval, s.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 使用独立的 context，调用方 ctx 已取消时也要释放锁
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.Unlock(releaseCtx)
	}, nil
}
