package repository

import (
	"context"
	"errors"

	"github.com/gSa1fe/isusP-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(ctx context.Context, userID int64) (*model.WalletAccount, error) {
	var account model.WalletAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// LockForUpdate 获取（必要时创建）用户钱包头记录并加行锁，必须在事务内调用
//
// 先用普通读判断是否存在，避免对不存在的行加 FOR UPDATE 产生间隙锁；
// 并发创建通过唯一索引 + ON CONFLICT DO NOTHING 保证只有一行
func (r *AccountRepository) LockForUpdate(ctx context.Context, userID int64) (*model.WalletAccount, error) {
	_, err := r.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		newAccount := &model.WalletAccount{UserID: userID}
		err = r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoNothing: true,
			}).
			Create(newAccount).Error
		if err != nil {
			return nil, err
		}
	}

	var account model.WalletAccount
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// AdvanceHead 追加流水后推进钱包头（乐观锁校验 version）
func (r *AccountRepository) AdvanceHead(ctx context.Context, userID int64, version int, balance, lastSeq int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.WalletAccount{}).
		Where("user_id = ? AND version = ?", userID, version).
		Updates(map[string]interface{}{
			"balance":  balance,
			"last_seq": lastSeq,
			"version":  gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	return nil
}

// ResetHead 对账修复：以流水为准覆盖钱包头镜像
func (r *AccountRepository) ResetHead(ctx context.Context, userID int64, balance, lastSeq int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.WalletAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":  balance,
			"last_seq": lastSeq,
			"version":  gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// ListAfter 按主键游标分批扫描钱包
func (r *AccountRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]*model.WalletAccount, error) {
	var accounts []*model.WalletAccount
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
