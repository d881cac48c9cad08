package repository

import (
	"context"
	"errors"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TopupRepository struct {
	db *gorm.DB
}

func NewTopupRepository(db *gorm.DB) *TopupRepository {
	return &TopupRepository{db: db}
}

func (r *TopupRepository) Create(ctx context.Context, topup *model.TopupRequest) error {
	return r.db.WithContext(ctx).Create(topup).Error
}

func (r *TopupRepository) GetByNo(ctx context.Context, topupNo string) (*model.TopupRequest, error) {
	return r.first(r.db.WithContext(ctx), topupNo)
}

// GetByNoForUpdate 对申请行加行锁，必须在事务内调用
func (r *TopupRepository) GetByNoForUpdate(ctx context.Context, topupNo string) (*model.TopupRequest, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), topupNo)
}

func (r *TopupRepository) first(db *gorm.DB, topupNo string) (*model.TopupRequest, error) {
	var topup model.TopupRequest
	err := db.Where("topup_no = ?", topupNo).First(&topup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopupNotFound
		}
		return nil, err
	}
	return &topup, nil
}

// GetByClientRequestID 按客户端幂等ID查询，不存在返回 nil, nil
func (r *TopupRepository) GetByClientRequestID(ctx context.Context, userID int64, clientRequestID string) (*model.TopupRequest, error) {
	var topup model.TopupRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND client_request_id = ?", userID, clientRequestID).
		First(&topup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &topup, nil
}

func (r *TopupRepository) CountByUserAndStatus(ctx context.Context, userID int64, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.TopupRequest{}).
		Where("user_id = ? AND status = ?", userID, status).
		Count(&count).Error
	return count, err
}

// Transition 状态流转（CAS）
//
// WHERE 条件带上当前状态，影响行数为 0 说明状态已被其他请求改掉，
// 返回 ErrStatusConflict 由上层转换成“已被处理”
func (r *TopupRepository) Transition(ctx context.Context, topupNo, fromStatus, toStatus string, fields TransitionFields) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrTopupStatusInvalid
	}

	updates := map[string]interface{}{
		"status":     toStatus,
		"updated_at": time.Now(),
	}
	if fields.RejectReason != nil {
		updates["reject_reason"] = *fields.RejectReason
	}
	if fields.ProcessedBy != nil {
		updates["processed_by"] = *fields.ProcessedBy
	}
	if fields.ProcessedAt != nil {
		updates["processed_at"] = *fields.ProcessedAt
	}

	result := r.db.WithContext(ctx).
		Model(&model.TopupRequest{}).
		Where("topup_no = ? AND status = ?", topupNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}

	return nil
}

func (r *TopupRepository) List(ctx context.Context, filter TopupFilter) ([]*model.TopupRequest, int64, error) {
	var topups []*model.TopupRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TopupRequest{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&topups).Error

	return topups, total, err
}
