package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("参数校验失败")
	ErrTooManyPending      = errors.New("待审核的充值申请过多")
	ErrNotFound            = errors.New("记录不存在")
	ErrAlreadyProcessed    = errors.New("充值申请已被处理")
	ErrNotCancellable      = errors.New("充值申请不可取消")
	ErrInsufficientBalance = errors.New("硬币余额不足")
	ErrStore               = errors.New("存储异常")
	ErrForbidden           = errors.New("无权限操作")
)

// ErrPackageNotAvailable 套餐不存在或已下架，同时匹配 ErrValidation
var ErrPackageNotAvailable = fmt.Errorf("%w: 套餐不存在或已下架", ErrValidation)

// errAlreadyFinal 取消一张已是终态的申请：既是 NotCancellable 也是 AlreadyProcessed
var errAlreadyFinal = fmt.Errorf("%w: %w", ErrNotCancellable, ErrAlreadyProcessed)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
