package repository

import (
	"context"
	"errors"

	"github.com/gSa1fe/isusP-sub000/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Append 追加一条流水，balance_after / seq 由调用方在持有钱包行锁时算好
func (r *TransactionRepository) Append(ctx context.Context, entry *model.CoinTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Latest 用户最新一条流水，没有流水返回 nil, nil
func (r *TransactionRepository) Latest(ctx context.Context, userID int64) (*model.CoinTransaction, error) {
	var trans model.CoinTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq DESC").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, filter TransactionFilter) ([]*model.CoinTransaction, int64, error) {
	var transactions []*model.CoinTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CoinTransaction{}).Where("user_id = ?", filter.UserID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("seq DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// ListAllByUser 按 seq 升序返回用户全部流水，用于对账
func (r *TransactionRepository) ListAllByUser(ctx context.Context, userID int64) ([]*model.CoinTransaction, error) {
	var transactions []*model.CoinTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *TransactionRepository) ListByReference(ctx context.Context, referenceID string) ([]*model.CoinTransaction, error) {
	var transactions []*model.CoinTransaction
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *TransactionRepository) SumByType(ctx context.Context, userID int64, txType string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.CoinTransaction{}).
		Where("user_id = ? AND type = ?", userID, txType).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
