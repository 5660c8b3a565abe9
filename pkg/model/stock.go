// pkg/model/stock.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock 股票基础信息，用于按行业匹配历史类比
type Stock struct {
	Symbol    string    `gorm:"type:varchar(20);primaryKey" json:"symbol"`
	Name      string    `gorm:"type:varchar(100)" json:"name"`
	Sector    string    `gorm:"type:varchar(64);index" json:"sector"`
	Industry  string    `gorm:"type:varchar(100)" json:"industry"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quote 日收盘价
type Quote struct {
	Symbol    string          `gorm:"type:varchar(20);primaryKey" json:"symbol"`
	TradeDate time.Time       `gorm:"primaryKey" json:"trade_date"`
	Close     decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"close"`
}
