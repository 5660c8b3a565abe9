// pkg/model/user.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RiskProfile 用户风险偏好
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

// Valid 是否为已知风险偏好
func (r RiskProfile) Valid() bool {
	return r == RiskConservative || r == RiskModerate || r == RiskAggressive
}

// CashTarget 风险偏好对应的现金缓冲目标占比
func (r RiskProfile) CashTarget() float64 {
	switch r {
	case RiskConservative:
		return 0.20
	case RiskAggressive:
		return 0.05
	default:
		return 0.10
	}
}

type User struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	Username    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email       string          `gorm:"type:varchar(255);index" json:"email"`
	RiskProfile RiskProfile     `gorm:"type:varchar(20);not null;default:moderate" json:"risk_profile"`
	CashBuffer  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"cash_buffer"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.RiskProfile == "" {
		u.RiskProfile = RiskModerate
	}
	return nil
}
