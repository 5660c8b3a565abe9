// pkg/model/article.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SourceType 文章来源类型
type SourceType string

const (
	SourceFiling        SourceType = "filing"
	SourcePressRelease  SourceType = "press_release"
	SourceNews          SourceType = "news"
	SourceSocial        SourceType = "social"
	SourceAnalystReport SourceType = "analyst_report"
)

// SourceTier 来源质量分级，决定基础置信度
type SourceTier string

const (
	TierOfficial SourceTier = "official"
	TierPremium  SourceTier = "premium"
	TierStandard SourceTier = "standard"
	TierSocial   SourceTier = "social"
)

// Article 入库的新闻文章，入库后除富化字段外不可变
type Article struct {
	ID             string                      `gorm:"type:uuid;primaryKey" json:"id"`
	Ticker         string                      `gorm:"type:varchar(20);not null;index:idx_articles_ticker_published,priority:1" json:"ticker"`
	Headline       string                      `gorm:"type:text;not null" json:"headline"`
	Summary        string                      `gorm:"type:text" json:"summary"`
	SourceURL      string                      `gorm:"type:varchar(1024);not null;uniqueIndex" json:"source_url"`
	Publisher      string                      `gorm:"type:varchar(100);index" json:"publisher"`
	PublishedAt    time.Time                   `gorm:"not null;index:idx_articles_ticker_published,priority:2" json:"published_at"`
	SourceType     SourceType                  `gorm:"type:varchar(20);not null;default:news" json:"source_type"`
	SourceTier     SourceTier                  `gorm:"type:varchar(20);not null;default:standard" json:"source_tier"`
	Category       EventCategory               `gorm:"type:varchar(40);not null;default:unknown;index" json:"category"`
	ClusterID      *string                     `gorm:"type:uuid;index" json:"cluster_id,omitempty"`
	RelatedTickers datatypes.JSONSlice[string] `json:"related_tickers,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

func (a *Article) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.PublishedAt = a.PublishedAt.UTC()
	return nil
}

// Tickers 文章涉及的全部股票代码（主代码在前，去重）
func (a *Article) Tickers() []string {
	seen := map[string]struct{}{a.Ticker: {}}
	out := []string{a.Ticker}
	for _, t := range a.RelatedTickers {
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
