package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/repository"
)

// memUnitOfWork 内存版 UnitOfWork：事务串行执行，fn 返回错误时恢复快照
type memUnitOfWork struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	data   *memData
	nextID int64

	// 故障注入
	outboxErr      error
	transitionHook func(topupNo string) error
}

type memData struct {
	topups   map[string]model.TopupRequest
	ledger   []model.CoinTransaction
	accounts map[int64]model.WalletAccount
	outbox   []model.OutboxMessage
}

func newMemUnitOfWork() *memUnitOfWork {
	return &memUnitOfWork{data: &memData{
		topups:   map[string]model.TopupRequest{},
		accounts: map[int64]model.WalletAccount{},
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		topups:   make(map[string]model.TopupRequest, len(d.topups)),
		ledger:   append([]model.CoinTransaction(nil), d.ledger...),
		accounts: make(map[int64]model.WalletAccount, len(d.accounts)),
		outbox:   append([]model.OutboxMessage(nil), d.outbox...),
	}
	for k, v := range d.topups {
		c.topups[k] = v
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	return c
}

func (u *memUnitOfWork) Do(ctx context.Context, fn func(s repository.Stores) error) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()

	u.mu.Lock()
	snapshot := u.data.clone()
	u.mu.Unlock()

	if err := fn(u.Stores()); err != nil {
		u.mu.Lock()
		u.data = snapshot
		u.mu.Unlock()
		return err
	}
	return nil
}

func (u *memUnitOfWork) Stores() repository.Stores {
	return repository.Stores{
		Topups:   &memTopups{u},
		Ledger:   &memLedger{u},
		Accounts: &memAccounts{u},
		Outbox:   &memOutbox{u},
	}
}

func (u *memUnitOfWork) id() int64 {
	u.nextID++
	return u.nextID
}

// 以下方法供测试断言使用

func (u *memUnitOfWork) entries(userID int64) []model.CoinTransaction {
	u.mu.Lock()
	defer u.mu.Unlock()
	var list []model.CoinTransaction
	for _, e := range u.data.ledger {
		if e.UserID == userID {
			list = append(list, e)
		}
	}
	return list
}

func (u *memUnitOfWork) topup(topupNo string) model.TopupRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.data.topups[topupNo]
}

func (u *memUnitOfWork) outboxEvents() []model.OutboxMessage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]model.OutboxMessage(nil), u.data.outbox...)
}

// putEntry 直接写入一条流水，用于构造损坏的账本
func (u *memUnitOfWork) putEntry(e model.CoinTransaction) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e.ID = u.id()
	u.data.ledger = append(u.data.ledger, e)
}

type memTopups struct{ u *memUnitOfWork }

func (m *memTopups) Create(ctx context.Context, t *model.TopupRequest) error {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	if _, ok := m.u.data.topups[t.TopupNo]; ok {
		return errors.New("duplicate topup_no")
	}
	t.ID = m.u.id()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.u.data.topups[t.TopupNo] = *t
	return nil
}

func (m *memTopups) GetByNo(ctx context.Context, topupNo string) (*model.TopupRequest, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	t, ok := m.u.data.topups[topupNo]
	if !ok {
		return nil, repository.ErrTopupNotFound
	}
	return &t, nil
}

func (m *memTopups) GetByNoForUpdate(ctx context.Context, topupNo string) (*model.TopupRequest, error) {
	return m.GetByNo(ctx, topupNo)
}

func (m *memTopups) GetByClientRequestID(ctx context.Context, userID int64, clientRequestID string) (*model.TopupRequest, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	for _, t := range m.u.data.topups {
		if t.UserID == userID && t.ClientRequestID != nil && *t.ClientRequestID == clientRequestID {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memTopups) CountByUserAndStatus(ctx context.Context, userID int64, status string) (int64, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	var n int64
	for _, t := range m.u.data.topups {
		if t.UserID == userID && t.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memTopups) Transition(ctx context.Context, topupNo, from, to string, fields repository.TransitionFields) error {
	if m.u.transitionHook != nil {
		if err := m.u.transitionHook(topupNo); err != nil {
			return err
		}
	}
	if !model.CanTransitionTo(from, to) {
		return repository.ErrTopupStatusInvalid
	}
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	t, ok := m.u.data.topups[topupNo]
	if !ok || t.Status != from {
		return repository.ErrStatusConflict
	}
	t.Status = to
	if fields.RejectReason != nil {
		t.RejectReason = fields.RejectReason
	}
	if fields.ProcessedBy != nil {
		t.ProcessedBy = fields.ProcessedBy
	}
	if fields.ProcessedAt != nil {
		t.ProcessedAt = fields.ProcessedAt
	}
	t.UpdatedAt = time.Now()
	m.u.data.topups[topupNo] = t
	return nil
}

func (m *memTopups) List(ctx context.Context, f repository.TopupFilter) ([]*model.TopupRequest, int64, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	var all []*model.TopupRequest
	for _, t := range m.u.data.topups {
		if f.UserID != nil && t.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		t := t
		all = append(all, &t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, f.Page, f.PageSize), int64(len(all)), nil
}

type memLedger struct{ u *memUnitOfWork }

func (m *memLedger) Append(ctx context.Context, e *model.CoinTransaction) error {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	for _, x := range m.u.data.ledger {
		if x.UserID == e.UserID && x.Seq == e.Seq {
			return errors.New("duplicate (user_id, seq)")
		}
	}
	e.ID = m.u.id()
	e.CreatedAt = time.Now()
	m.u.data.ledger = append(m.u.data.ledger, *e)
	return nil
}

func (m *memLedger) Latest(ctx context.Context, userID int64) (*model.CoinTransaction, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	var latest *model.CoinTransaction
	for _, e := range m.u.data.ledger {
		if e.UserID == userID && (latest == nil || e.Seq > latest.Seq) {
			e := e
			latest = &e
		}
	}
	return latest, nil
}

func (m *memLedger) ListByUser(ctx context.Context, f repository.TransactionFilter) ([]*model.CoinTransaction, int64, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	var all []*model.CoinTransaction
	for _, e := range m.u.data.ledger {
		if e.UserID != f.UserID || (f.Type != "" && e.Type != f.Type) {
			continue
		}
		e := e
		all = append(all, &e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	return paginate(all, f.Page, f.PageSize), int64(len(all)), nil
}

func (m *memLedger) ListAllByUser(ctx context.Context, userID int64) ([]*model.CoinTransaction, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	var all []*model.CoinTransaction
	for _, e := range m.u.data.ledger {
		if e.UserID == userID {
			e := e
			all = append(all, &e)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	return all, nil
}

func (m *memLedger) ListByReference(ctx context.Context, referenceID string) ([]*model.CoinTransaction, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	var all []*model.CoinTransaction
	for _, e := range m.u.data.ledger {
		if e.ReferenceID == referenceID {
			e := e
			all = append(all, &e)
		}
	}
	return all, nil
}

func (m *memLedger) SumByType(ctx context.Context, userID int64, txType string) (int64, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	var sum int64
	for _, e := range m.u.data.ledger {
		if e.UserID == userID && e.Type == txType {
			sum += e.Amount
		}
	}
	return sum, nil
}

type memAccounts struct{ u *memUnitOfWork }

func (m *memAccounts) Get(ctx context.Context, userID int64) (*model.WalletAccount, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	a, ok := m.u.data.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return &a, nil
}

func (m *memAccounts) LockForUpdate(ctx context.Context, userID int64) (*model.WalletAccount, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	a, ok := m.u.data.accounts[userID]
	if !ok {
		a = model.WalletAccount{ID: m.u.id(), UserID: userID}
		m.u.data.accounts[userID] = a
	}
	return &a, nil
}

func (m *memAccounts) AdvanceHead(ctx context.Context, userID int64, version int, balance, lastSeq int64) error {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	a, ok := m.u.data.accounts[userID]
	if !ok || a.Version != version {
		return repository.ErrOptimisticLock
	}
	a.Balance, a.LastSeq, a.Version = balance, lastSeq, a.Version+1
	m.u.data.accounts[userID] = a
	return nil
}

func (m *memAccounts) ResetHead(ctx context.Context, userID int64, balance, lastSeq int64) error {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	a, ok := m.u.data.accounts[userID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.Balance, a.LastSeq, a.Version = balance, lastSeq, a.Version+1
	m.u.data.accounts[userID] = a
	return nil
}

func (m *memAccounts) ListAfter(ctx context.Context, afterID int64, limit int) ([]*model.WalletAccount, error) {
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	var all []*model.WalletAccount
	for _, a := range m.u.data.accounts {
		if a.ID > afterID {
			a := a
			all = append(all, &a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type memOutbox struct{ u *memUnitOfWork }

func (m *memOutbox) Create(ctx context.Context, msg *model.OutboxMessage) error {
	if m.u.outboxErr != nil {
		return m.u.outboxErr
	}
	m.u.mu.Lock()
	defer m.u.mu.Unlock()
	msg.ID = m.u.id()
	m.u.data.outbox = append(m.u.data.outbox, *msg)
	return nil
}

func (m *memOutbox) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return nil, nil
}

func (m *memOutbox) UpdateStatus(ctx context.Context, id int64, status string) error { return nil }

func (m *memOutbox) IncrementRetryCount(ctx context.Context, id int64) error { return nil }

func (m *memOutbox) MarkAsFailed(ctx context.Context, id int64) error { return nil }

func paginate[T any](all []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// stubLocker 记录加锁次数，err 非空时模拟 Redis 不可用
type stubLocker struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
}

func (l *stubLocker) Acquire(ctx context.Context, topupNo string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

var testTopics = Topics{TopupEvents: "wallet.topup.events", LedgerEvents: "wallet.ledger.events"}

type testEnv struct {
	uow        *memUnitOfWork
	locker     *stubLocker
	packages   *PackageService
	ledger     *LedgerService
	topups     *TopupService
	settlement *SettlementService
	wallet     *WalletService
}

func newTestEnv() *testEnv {
	uow := newMemUnitOfWork()
	locker := &stubLocker{}
	packages := NewPackageService(testPackages())
	ledger := NewLedgerService(uow, testTopics)
	return &testEnv{
		uow:        uow,
		locker:     locker,
		packages:   packages,
		ledger:     ledger,
		topups:     NewTopupService(uow, packages, 5, testTopics),
		settlement: NewSettlementService(uow, ledger, locker, testTopics),
		wallet:     NewWalletService(uow),
	}
}
