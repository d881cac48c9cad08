package service

import "context"

// Actor 发起操作的身份，由鉴权中间件从 token 中解析
type Actor struct {
	UserID  int64
	IsAdmin bool
}

// Locker 按充值单号加锁，只用来减少并发审批时的行锁等待
type Locker interface {
	Acquire(ctx context.Context, topupNo string) (release func(), err error)
}

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// NormalizePage 页码从 1 开始，每页默认 20 条、最多 100 条
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
