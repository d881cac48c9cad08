package model

import (
	"time"
)

// WalletAccount 用户钱包头记录
//
// 每个用户一行，追加流水和提交充值申请时先对这一行加 FOR UPDATE 行锁，
// 保证同一用户的操作串行、不同用户互不影响。
// Balance / LastSeq 是最新流水的镜像，与流水在同一个事务里更新；
// 出现不一致时以流水为准，由对账任务修复。
type WalletAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	LastSeq   int64     `gorm:"not null;default:0" json:"last_seq"`
	Version   int       `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WalletAccount) TableName() string {
	return "wallet_accounts"
}
