// pkg/model/holding.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// HoldingIntent 持仓意图
type HoldingIntent string

const (
	IntentTrade      HoldingIntent = "trade"
	IntentAccumulate HoldingIntent = "accumulate"
	IntentIncome     HoldingIntent = "income"
	IntentHold       HoldingIntent = "hold"
)

// Valid 是否为已知意图
func (i HoldingIntent) Valid() bool {
	switch i {
	case IntentTrade, IntentAccumulate, IntentIncome, IntentHold:
		return true
	}
	return false
}

// Holding 用户持仓，删除时级联删除其 Impact
type Holding struct {
	ID         string              `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string              `gorm:"type:uuid;not null;index:idx_holdings_user_ticker,priority:1" json:"user_id"`
	User       *User               `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Ticker     string              `gorm:"type:varchar(20);not null;index:idx_holdings_user_ticker,priority:2;index" json:"ticker"`
	Shares     decimal.Decimal     `gorm:"type:numeric(20,6);not null" json:"shares"`
	CostBasis  decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"cost_basis"` // 每股成本
	AcquiredAt *time.Time          `json:"acquired_at,omitempty"`
	Intent     HoldingIntent       `gorm:"type:varchar(20);not null;default:hold" json:"intent"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.Intent == "" {
		h.Intent = IntentHold
	}
	return nil
}
