// Package alert 从已计算的 Impact 中挑选高影响事件并组装提醒内容，不做任何重算。
package alert

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

// Store 提醒所需的只读数据
type Store interface {
	// ImpactsInRange 返回文章发布时间位于 [from, to) 且 |score| >= minAbsScore 的影响
	ImpactsInRange(ctx context.Context, userID string, from, to time.Time, minAbsScore float64) ([]model.Impact, error)
	// AlertedArticleIDs 返回 since 之后同类型提醒已引用过的文章
	AlertedArticleIDs(ctx context.Context, userID string, alertType model.AlertType, since time.Time) (map[string]struct{}, error)
}

// Synthesizer 提醒内容生成器
type Synthesizer struct {
	store     Store
	threshold float64
	topN      int
	lookback  time.Duration
	now       func() time.Time
}

// NewSynthesizer 创建提醒内容生成器
func NewSynthesizer(store Store, cfg config.Scoring) *Synthesizer {
	return &Synthesizer{
		store:     store,
		threshold: cfg.Alert.HighImpactThreshold,
		topN:      cfg.Alert.TopN,
		lookback:  time.Duration(cfg.Alert.LookbackHours) * time.Hour,
		now:       time.Now,
	}
}

// Threshold 默认高影响阈值
func (s *Synthesizer) Threshold() float64 {
	return s.threshold
}

// SelectHighImpact 回看窗口内 |score| >= threshold 的影响，绝对值大者在前，相同则较新者在前，最多 topN 条
func (s *Synthesizer) SelectHighImpact(ctx context.Context, userID string, threshold float64) ([]model.Impact, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	now := s.now().UTC()
	impacts, err := s.store.ImpactsInRange(ctx, userID, now.Add(-s.lookback), now.Add(time.Second), threshold)
	if err != nil {
		return nil, fmt.Errorf("查询高影响事件失败: %w", err)
	}

	selected := impacts[:0:0]
	for _, imp := range impacts {
		if math.Abs(imp.ImpactScore) >= threshold {
			selected = append(selected, imp)
		}
	}
	SortByImpact(selected)
	if s.topN > 0 && len(selected) > s.topN {
		selected = selected[:s.topN]
	}
	return selected, nil
}

// BuildHighImpactAlert 为尚未提醒过的高影响文章生成待发送提醒，没有新内容时返回 nil
func (s *Synthesizer) BuildHighImpactAlert(ctx context.Context, userID string) (*model.Alert, error) {
	selected, err := s.SelectHighImpact(ctx, userID, s.threshold)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, nil
	}

	// 回看窗口的两倍足以覆盖窗口内文章的历史提醒
	alerted, err := s.store.AlertedArticleIDs(ctx, userID, model.AlertHighImpact, s.now().UTC().Add(-2*s.lookback))
	if err != nil {
		return nil, fmt.Errorf("查询历史提醒失败: %w", err)
	}

	fresh := selected[:0:0]
	for _, imp := range selected {
		if _, done := alerted[imp.ArticleID]; !done {
			fresh = append(fresh, imp)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	return &model.Alert{
		UserID:     userID,
		Type:       model.AlertHighImpact,
		Status:     model.AlertPending,
		Severity:   model.SeverityForScore(fresh[0].ImpactScore),
		Subject:    highImpactSubject(fresh),
		Content:    formatHighImpact(fresh),
		ArticleIDs: articleIDs(fresh),
	}, nil
}

// BuildDailyDigest 汇总某一天（UTC）的影响，按股票聚合并列出主要标题
func (s *Synthesizer) BuildDailyDigest(ctx context.Context, userID string, day time.Time) (*model.Alert, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	impacts, err := s.store.ImpactsInRange(ctx, userID, start, start.Add(24*time.Hour), 0)
	if err != nil {
		return nil, fmt.Errorf("查询当日影响失败: %w", err)
	}

	digest := &model.Alert{
		UserID:   userID,
		Type:     model.AlertDailyDigest,
		Status:   model.AlertPending,
		Severity: model.SeverityLow,
	}
	if len(impacts) == 0 {
		digest.Subject = fmt.Sprintf("Daily digest %s: quiet day", start.Format("2006-01-02"))
		digest.Content = quietDay
		digest.ArticleIDs = []string{}
		return digest, nil
	}

	groups := groupDigest(impacts)
	digest.Subject = fmt.Sprintf("Daily digest %s: %d articles across %d holdings",
		start.Format("2006-01-02"), countArticles(impacts), len(groups))
	digest.Content = formatDigest(start, groups)
	digest.ArticleIDs = articleIDs(impacts)
	for _, imp := range impacts {
		if math.Abs(imp.ImpactScore) >= s.threshold {
			digest.Severity = model.SeverityMedium
			break
		}
	}
	return digest, nil
}

// SortByImpact |score| 降序，相同时按文章发布时间降序
func SortByImpact(impacts []model.Impact) {
	sort.SliceStable(impacts, func(i, j int) bool {
		ai, aj := math.Abs(impacts[i].ImpactScore), math.Abs(impacts[j].ImpactScore)
		if ai != aj {
			return ai > aj
		}
		return impacts[i].ArticlePublishedAt.After(impacts[j].ArticlePublishedAt)
	})
}

func articleIDs(impacts []model.Impact) []string {
	seen := make(map[string]struct{}, len(impacts))
	ids := make([]string, 0, len(impacts))
	for _, imp := range impacts {
		if _, ok := seen[imp.ArticleID]; ok {
			continue
		}
		seen[imp.ArticleID] = struct{}{}
		ids = append(ids, imp.ArticleID)
	}
	return ids
}

func countArticles(impacts []model.Impact) int {
	return len(articleIDs(impacts))
}
