// pkg/database/signal.go
package database

import (
	"context"

	"gorm.io/gorm/clause"

	"ImpactRadar/pkg/model"
)

var signalColumns = []string{
	"sentiment", "magnitude", "category", "base_confidence", "consensus_bonus", "confidence", "reasoning", "computed_at",
}

// SaveSignal 写入文章的 Signal，已存在时整体覆盖（显式重新分析）
func (s *Store) SaveSignal(ctx context.Context, sig *model.Signal) error {
	sig.ComputedAt = sig.ComputedAt.UTC()
	// 以 article_id 为准，主键由插入或已有行决定
	sig.ID = ""
	err := s.db.WithContext(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "article_id"}},
			DoUpdates: clause.AssignmentColumns(signalColumns),
		}).
		Create(sig).Error
	if err != nil {
		return wrap(err, "保存信号失败")
	}
	// 冲突更新时主键沿用已有行
	var ids []string
	err = s.db.WithContext(ctx).Model(&model.Signal{}).Where("article_id = ?", sig.ArticleID).Pluck("id", &ids).Error
	if err != nil {
		return wrap(err, "读取信号失败")
	}
	if len(ids) > 0 {
		sig.ID = ids[0]
	}
	return nil
}

// GetSignal 获取文章的 Signal
func (s *Store) GetSignal(ctx context.Context, articleID string) (*model.Signal, error) {
	var sig model.Signal
	if err := s.db.WithContext(ctx).First(&sig, "article_id = ?", articleID).Error; err != nil {
		return nil, wrap(err, "获取信号失败")
	}
	return &sig, nil
}

// SignalsForArticles 批量获取 Signal，键为文章 ID
func (s *Store) SignalsForArticles(ctx context.Context, articleIDs []string) (map[string]model.Signal, error) {
	out := make(map[string]model.Signal, len(articleIDs))
	if len(articleIDs) == 0 {
		return out, nil
	}
	var signals []model.Signal
	if err := s.db.WithContext(ctx).Where("article_id IN ?", articleIDs).Find(&signals).Error; err != nil {
		return nil, wrap(err, "批量获取信号失败")
	}
	for _, sig := range signals {
		out[sig.ArticleID] = sig
	}
	return out, nil
}
