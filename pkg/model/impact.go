// pkg/model/impact.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Impact 单篇文章对单个持仓的个性化影响，(user, article, holding) 唯一
type Impact struct {
	ID        string   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string   `gorm:"type:uuid;not null;uniqueIndex:idx_impacts_triple,priority:1;index:idx_impacts_user_computed,priority:1" json:"user_id"`
	ArticleID string   `gorm:"type:uuid;not null;uniqueIndex:idx_impacts_triple,priority:2;index" json:"article_id"`
	HoldingID string   `gorm:"type:uuid;not null;uniqueIndex:idx_impacts_triple,priority:3;index" json:"holding_id"`
	Article   *Article `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Holding   *Holding `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	ImpactScore      float64 `gorm:"not null;index" json:"impact_score"`
	Exposure         float64 `gorm:"not null" json:"exposure"`
	AdjustedExposure float64 `gorm:"not null" json:"adjusted_exposure"`

	// 计算时的快照，下游无需再关联 Article / Signal
	Ticker             string        `gorm:"type:varchar(20);not null;index" json:"ticker"`
	Headline           string        `gorm:"type:text" json:"headline"`
	Sentiment          int           `gorm:"not null" json:"sentiment"`
	Magnitude          int           `gorm:"not null" json:"magnitude"`
	Confidence         float64       `gorm:"not null" json:"confidence"`
	Category           EventCategory `gorm:"type:varchar(40);not null" json:"category"`
	ArticlePublishedAt time.Time     `gorm:"not null" json:"article_published_at"`

	ComputedAt time.Time `gorm:"not null;index:idx_impacts_user_computed,priority:2" json:"computed_at"`
}

func (i *Impact) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// SameScore 与已存储行相比分数与输入是否一致
func (i *Impact) SameScore(other *Impact) bool {
	return other != nil &&
		i.ImpactScore == other.ImpactScore &&
		i.Exposure == other.Exposure &&
		i.AdjustedExposure == other.AdjustedExposure &&
		i.Sentiment == other.Sentiment &&
		i.Magnitude == other.Magnitude &&
		i.Confidence == other.Confidence &&
		i.Category == other.Category
}
