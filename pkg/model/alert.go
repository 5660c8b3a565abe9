// pkg/model/alert.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AlertType 提醒类型
type AlertType string

const (
	AlertDailyDigest AlertType = "daily_digest"
	AlertHighImpact  AlertType = "high_impact"
)

// AlertStatus 投递状态，仅由投递方修改
type AlertStatus string

const (
	AlertPending AlertStatus = "pending"
	AlertSent    AlertStatus = "sent"
	AlertFailed  AlertStatus = "failed"
)

// AlertSeverity 提醒严重程度
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Alert 待投递的提醒内容
type Alert struct {
	ID         string                      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string                      `gorm:"type:uuid;not null;index:idx_alerts_user_created,priority:1" json:"user_id"`
	User       *User                       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Type       AlertType                   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status     AlertStatus                 `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	Severity   AlertSeverity               `gorm:"type:varchar(20);not null" json:"severity"`
	Subject    string                      `gorm:"not null" json:"subject"`
	Content    string                      `gorm:"type:text" json:"content"`
	ArticleIDs datatypes.JSONSlice[string] `json:"article_ids"`
	LastError  string                      `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt  time.Time                   `gorm:"index:idx_alerts_user_created,priority:2" json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
	SentAt     *time.Time                  `json:"sent_at,omitempty"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = AlertPending
	}
	return nil
}

// SeverityForScore 按影响分绝对值划分严重程度
func SeverityForScore(score float64) AlertSeverity {
	if score < 0 {
		score = -score
	}
	switch {
	case score >= 2.0:
		return SeverityCritical
	case score >= 1.2:
		return SeverityHigh
	case score >= 0.7:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
