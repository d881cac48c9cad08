package repository

import "errors"

var (
	ErrTopupNotFound      = errors.New("充值申请不存在")
	ErrTopupStatusInvalid = errors.New("充值申请状态不合法")
	ErrStatusConflict     = errors.New("充值申请状态已变更")
	ErrAccountNotFound    = errors.New("钱包不存在")
	ErrOptimisticLock     = errors.New("乐观锁冲突，请重试")
)
