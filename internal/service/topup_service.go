package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/model"
	"github.com/gSa1fe/isusP-sub000/internal/repository"
	"github.com/gSa1fe/isusP-sub000/pkg/idgen"

	"github.com/shopspring/decimal"
)

type TopupService struct {
	uow        repository.UnitOfWork
	packages   *PackageService
	maxPending int
	topic      string
}

func NewTopupService(uow repository.UnitOfWork, packages *PackageService, maxPending int, topics Topics) *TopupService {
	return &TopupService{
		uow:        uow,
		packages:   packages,
		maxPending: maxPending,
		topic:      topics.TopupEvents,
	}
}

type SubmitTopupRequest struct {
	UserID           int64           `json:"-"`
	PackageCode      string          `json:"package_code"`
	Amount           decimal.Decimal `json:"amount"`
	CoinsAmount      int64           `json:"coins_amount"`
	SlipImageURL     string          `json:"slip_image_url" binding:"omitempty,max=512"`
	TransferRef      string          `json:"transfer_reference" binding:"omitempty,max=128"`
	TransferDatetime *time.Time      `json:"transfer_datetime"`
	ClientRequestID  string          `json:"client_request_id" binding:"omitempty,max=64"`
}

// Submit 提交充值申请
//
// 同一用户的提交在钱包头行锁下串行执行，pending 数量检查和插入是原子的；
// 携带 client_request_id 重复提交时直接返回已有申请。
func (s *TopupService) Submit(ctx context.Context, req *SubmitTopupRequest) (*model.TopupRequest, error) {
	if req.UserID <= 0 {
		return nil, validationError("用户ID不合法")
	}
	if req.PackageCode != "" {
		pkg, err := s.packages.Get(req.PackageCode)
		if err != nil {
			return nil, err
		}
		req.Amount = pkg.Price
		req.CoinsAmount = pkg.TotalCoins()
	}
	if !req.Amount.IsPositive() {
		return nil, validationError("充值金额必须大于 0")
	}
	if req.CoinsAmount <= 0 {
		return nil, validationError("硬币数量必须大于 0")
	}

	var result *model.TopupRequest
	err := s.uow.Do(ctx, func(st repository.Stores) error {
		if _, err := st.Accounts.LockForUpdate(ctx, req.UserID); err != nil {
			return storeError("锁定钱包", err)
		}

		if req.ClientRequestID != "" {
			existing, err := st.Topups.GetByClientRequestID(ctx, req.UserID, req.ClientRequestID)
			if err != nil {
				return storeError("查询充值申请", err)
			}
			if existing != nil {
				result = existing
				return nil
			}
		}

		pending, err := st.Topups.CountByUserAndStatus(ctx, req.UserID, model.TopupStatusPending)
		if err != nil {
			return storeError("统计待审核申请", err)
		}
		if pending >= int64(s.maxPending) {
			return ErrTooManyPending
		}

		topup := &model.TopupRequest{
			TopupNo:          idgen.GenerateTopupNo(),
			UserID:           req.UserID,
			PackageCode:      req.PackageCode,
			Amount:           req.Amount,
			CoinsAmount:      req.CoinsAmount,
			Status:           model.TopupStatusPending,
			SlipImageURL:     req.SlipImageURL,
			TransferRef:      req.TransferRef,
			TransferDatetime: req.TransferDatetime,
		}
		if req.ClientRequestID != "" {
			clientRequestID := req.ClientRequestID
			topup.ClientRequestID = &clientRequestID
		}
		if err := st.Topups.Create(ctx, topup); err != nil {
			return storeError("创建充值申请", err)
		}

		if err := writeOutbox(ctx, st, s.topic, topup.UserID, topupEvent(model.EventTopupSubmitted, topup, 0)); err != nil {
			return storeError("写入消息", err)
		}

		result = topup
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStore) {
			slog.ErrorContext(ctx, "提交充值申请失败", "user_id", req.UserID, "err", err)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "充值申请已提交",
		"topup_no", result.TopupNo, "user_id", result.UserID, "coins_amount", result.CoinsAmount)
	return result, nil
}

// Cancel 用户取消自己的待审核申请
func (s *TopupService) Cancel(ctx context.Context, topupNo string, userID int64) (*model.TopupRequest, error) {
	var result *model.TopupRequest
	err := s.uow.Do(ctx, func(st repository.Stores) error {
		topup, err := st.Topups.GetByNoForUpdate(ctx, topupNo)
		if err != nil {
			if errors.Is(err, repository.ErrTopupNotFound) {
				return ErrNotFound
			}
			return storeError("查询充值申请", err)
		}
		if topup.UserID != userID {
			return ErrNotCancellable
		}
		if !topup.IsPending() {
			return errAlreadyFinal
		}

		now := time.Now()
		err = st.Topups.Transition(ctx, topupNo, model.TopupStatusPending, model.TopupStatusCancelled,
			repository.TransitionFields{ProcessedAt: &now})
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return errAlreadyFinal
			}
			return storeError("取消充值申请", err)
		}
		topup.Status = model.TopupStatusCancelled
		topup.ProcessedAt = &now

		if err := writeOutbox(ctx, st, s.topic, topup.UserID, topupEvent(model.EventTopupCancelled, topup, 0)); err != nil {
			return storeError("写入消息", err)
		}

		result = topup
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "充值申请已取消", "topup_no", topupNo, "user_id", userID)
	return result, nil
}

// Get 查询单个申请，非本人且非管理员按不存在处理
func (s *TopupService) Get(ctx context.Context, topupNo string, actor Actor) (*model.TopupRequest, error) {
	topup, err := s.uow.Stores().Topups.GetByNo(ctx, topupNo)
	if err != nil {
		if errors.Is(err, repository.ErrTopupNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeError("查询充值申请", err)
	}
	if !actor.IsAdmin && topup.UserID != actor.UserID {
		return nil, ErrNotFound
	}
	return topup, nil
}

type ListTopupsQuery struct {
	UserID   *int64
	Status   string
	Page     int
	PageSize int
}

// List 分页查询充值申请；UserID 为空时查询全部，只允许管理员调用
func (s *TopupService) List(ctx context.Context, q ListTopupsQuery) ([]*model.TopupRequest, int64, error) {
	status := strings.TrimSpace(q.Status)
	if status != "" && !model.IsValidTopupStatus(status) {
		return nil, 0, validationError("未知的申请状态: %s", status)
	}
	page, pageSize := NormalizePage(q.Page, q.PageSize)

	list, total, err := s.uow.Stores().Topups.List(ctx, repository.TopupFilter{
		UserID:   q.UserID,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, storeError("查询充值申请", err)
	}
	return list, total, nil
}
