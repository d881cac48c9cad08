package model

import (
	"github.com/shopspring/decimal"
)

// Wallet 钱包视图，每次从流水表和充值申请表实时计算，不落库
type Wallet struct {
	UserID        int64 `json:"user_id"`
	Coins         int64 `json:"coins"`
	PendingTopups int64 `json:"pending_topups"`
	TotalToppedUp int64 `json:"total_topped_up"`
	TotalSpent    int64 `json:"total_spent"`
}

// CoinPackage 充值套餐，来自配置，只读
type CoinPackage struct {
	Code       string          `mapstructure:"code" json:"code"`
	Name       string          `mapstructure:"name" json:"name"`
	Price      decimal.Decimal `mapstructure:"price" json:"price"`
	Coins      int64           `mapstructure:"coins" json:"coins"`
	BonusCoins int64           `mapstructure:"bonus_coins" json:"bonus_coins"`
	Active     bool            `mapstructure:"active" json:"active"`
}

// TotalCoins 套餐实际到账硬币数
func (p CoinPackage) TotalCoins() int64 {
	return p.Coins + p.BonusCoins
}
