package repository

import (
	"context"

	"gorm.io/gorm"
)

type GormUnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func newStores(db *gorm.DB) Stores {
	return Stores{
		Topups:   NewTopupRepository(db),
		Ledger:   NewTransactionRepository(db),
		Accounts: NewAccountRepository(db),
		Outbox:   NewOutboxRepository(db),
	}
}

func (u *GormUnitOfWork) Do(ctx context.Context, fn func(s Stores) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newStores(tx))
	})
}

func (u *GormUnitOfWork) Stores() Stores {
	return newStores(u.db)
}
