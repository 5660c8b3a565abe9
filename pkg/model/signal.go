// pkg/model/signal.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Signal 文章的方向、量级与置信度，与 Article 一对一
type Signal struct {
	ID             string        `gorm:"type:uuid;primaryKey" json:"id"`
	ArticleID      string        `gorm:"type:uuid;not null;uniqueIndex" json:"article_id"`
	Article        *Article      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Sentiment      int           `gorm:"not null" json:"sentiment"` // -1 / 0 / 1
	Magnitude      int           `gorm:"not null" json:"magnitude"` // 1..3
	Category       EventCategory `gorm:"type:varchar(40);not null" json:"category"`
	BaseConfidence float64       `gorm:"not null" json:"base_confidence"`
	ConsensusBonus float64       `gorm:"not null;default:0" json:"consensus_bonus"`
	Confidence     float64       `gorm:"not null" json:"confidence"` // min(1, base + bonus)
	Reasoning      string        `gorm:"type:text" json:"reasoning"`
	ComputedAt     time.Time     `gorm:"not null" json:"computed_at"`
}

func (s *Signal) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// ApplyBonus 叠加共识加成，置信度封顶 1
func (s *Signal) ApplyBonus(bonus float64) {
	s.ConsensusBonus = bonus
	s.Confidence = s.BaseConfidence + bonus
	if s.Confidence > 1 {
		s.Confidence = 1
	}
}
