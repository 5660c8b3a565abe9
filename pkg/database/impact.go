// pkg/database/impact.go
package database

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"ImpactRadar/pkg/model"
)

var impactColumns = []string{
	"impact_score", "exposure", "adjusted_exposure", "ticker", "headline", "sentiment", "magnitude",
	"confidence", "category", "article_published_at", "computed_at",
}

// ImpactFilter 影响记录查询条件
type ImpactFilter struct {
	UserID      string
	Ticker      string
	MinAbsScore float64
	Limit       int
	Offset      int
}

// UpsertImpact 以 (user, article, holding) 为键原子写入，重复计算只会覆盖同一行
func (s *Store) UpsertImpact(ctx context.Context, imp *model.Impact) error {
	imp.ComputedAt = imp.ComputedAt.UTC()
	imp.ArticlePublishedAt = imp.ArticlePublishedAt.UTC()
	err := s.db.WithContext(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "article_id"}, {Name: "holding_id"}},
			DoUpdates: clause.AssignmentColumns(impactColumns),
		}).
		Create(imp).Error
	if err != nil {
		return wrap(err, "保存影响记录失败")
	}
	// 冲突更新时主键沿用已有行
	var ids []string
	err = s.db.WithContext(ctx).Model(&model.Impact{}).
		Where("user_id = ? AND article_id = ? AND holding_id = ?", imp.UserID, imp.ArticleID, imp.HoldingID).
		Pluck("id", &ids).Error
	if err != nil {
		return wrap(err, "读取影响记录失败")
	}
	if len(ids) > 0 {
		imp.ID = ids[0]
	}
	return nil
}

// GetImpact 按自然键获取影响记录
func (s *Store) GetImpact(ctx context.Context, userID, articleID, holdingID string) (*model.Impact, error) {
	var imp model.Impact
	err := s.db.WithContext(ctx).
		First(&imp, "user_id = ? AND article_id = ? AND holding_id = ?", userID, articleID, holdingID).Error
	if err != nil {
		return nil, wrap(err, "获取影响记录失败")
	}
	return &imp, nil
}

// ImpactKey 自然键
func ImpactKey(articleID, holdingID string) string {
	return articleID + "/" + holdingID
}

// ExistingImpacts 用户已有的影响记录，键为 ImpactKey
func (s *Store) ExistingImpacts(ctx context.Context, userID string) (map[string]model.Impact, error) {
	var impacts []model.Impact
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&impacts).Error; err != nil {
		return nil, wrap(err, "查询已有影响记录失败")
	}
	out := make(map[string]model.Impact, len(impacts))
	for _, imp := range impacts {
		out[ImpactKey(imp.ArticleID, imp.HoldingID)] = imp
	}
	return out, nil
}

// ListImpacts 分页查询影响记录，可按最小绝对分数和代码过滤，返回总数
func (s *Store) ListImpacts(ctx context.Context, f ImpactFilter) ([]model.Impact, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Impact{}).Where("user_id = ?", f.UserID)
	if f.MinAbsScore > 0 {
		query = query.Where("ABS(impact_score) >= ?", f.MinAbsScore)
	}
	if f.Ticker != "" {
		query = query.Where("ticker = ?", strings.ToUpper(f.Ticker))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "统计影响记录失败")
	}

	var impacts []model.Impact
	query = query.Order("article_published_at DESC").Order("id ASC")
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	if err := query.Find(&impacts).Error; err != nil {
		return nil, 0, wrap(err, "查询影响记录失败")
	}
	return impacts, total, nil
}

// RecentImpacts 文章发布时间不早于 since 的影响记录，最新在前
func (s *Store) RecentImpacts(ctx context.Context, userID string, since time.Time, limit int) ([]model.Impact, error) {
	var impacts []model.Impact
	query := s.db.WithContext(ctx).
		Where("user_id = ? AND article_published_at >= ?", userID, since.UTC()).
		Order("article_published_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&impacts).Error; err != nil {
		return nil, wrap(err, "查询近期影响记录失败")
	}
	return impacts, nil
}

// ImpactsInRange 文章发布时间位于 [from, to) 且 |score| >= minAbsScore 的影响记录
func (s *Store) ImpactsInRange(ctx context.Context, userID string, from, to time.Time, minAbsScore float64) ([]model.Impact, error) {
	var impacts []model.Impact
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("article_published_at >= ? AND article_published_at < ?", from.UTC(), to.UTC())
	if minAbsScore > 0 {
		query = query.Where("ABS(impact_score) >= ?", minAbsScore)
	}
	if err := query.Order("article_published_at DESC").Find(&impacts).Error; err != nil {
		return nil, wrap(err, "查询时间范围影响记录失败")
	}
	return impacts, nil
}
