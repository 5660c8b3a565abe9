// Package consensus 计算同一事件簇内多来源的一致性及置信度加成。
package consensus

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

// Member 簇内一篇文章及其情绪
type Member struct {
	ArticleID   string
	Publisher   string
	PublishedAt time.Time
	Sentiment   int
}

// Calculator 共识计算器
type Calculator struct {
	agreement     float64
	strongSources int
	strongBonus   float64
	pairSources   int
	pairBonus     float64
}

// New 创建共识计算器
func New(cfg config.Scoring) *Calculator {
	return &Calculator{
		agreement:     cfg.Consensus.Agreement,
		strongSources: cfg.Consensus.StrongSources,
		strongBonus:   cfg.Consensus.StrongBonus,
		pairSources:   cfg.Consensus.PairSources,
		pairBonus:     cfg.Consensus.PairBonus,
	}
}

// Compute 统计以最新文章为终点的时间窗口内的来源立场。
// 每个来源只计一次立场，同一来源取最新的一篇。
func (c *Calculator) Compute(members []Member, windowHours float64) model.ConsensusData {
	data := model.ConsensusData{WindowHours: int(windowHours)}
	if len(members) == 0 {
		return data
	}

	var newest time.Time
	for _, m := range members {
		if m.PublishedAt.After(newest) {
			newest = m.PublishedAt
		}
	}
	cutoff := newest.Add(-time.Duration(windowHours * float64(time.Hour)))

	latest := make(map[string]Member)
	for _, m := range members {
		if m.PublishedAt.Before(cutoff) {
			continue
		}
		key := sourceKey(m)
		if prev, ok := latest[key]; !ok || m.PublishedAt.After(prev.PublishedAt) {
			latest[key] = m
		}
	}

	var neutral int
	for _, m := range latest {
		switch {
		case m.Sentiment > 0:
			data.Upgrades++
		case m.Sentiment < 0:
			data.Downgrades++
		default:
			neutral++
		}
	}
	data.Sources = len(latest)

	majority := max(data.Upgrades, data.Downgrades, neutral)
	if data.Sources > 0 {
		data.Agreement = float64(majority) / float64(data.Sources)
	}
	data.Bonus = c.Bonus(data.Sources, data.Agreement)
	return data
}

// Bonus 按来源数和一致率给出置信度加成
func (c *Calculator) Bonus(sources int, agreement float64) float64 {
	if agreement < c.agreement {
		return 0
	}
	switch {
	case sources >= c.strongSources:
		return c.strongBonus
	case sources == c.pairSources:
		return c.pairBonus
	default:
		return 0
	}
}

// AssignCluster 为未带簇标识的文章寻找归属：时间窗口内同代码同分类的最新文章所在簇，
// 找不到时新开一个簇。返回值为簇标识以及是否新建。
func AssignCluster(article *model.Article, candidates []model.Article, windowHours float64) (string, bool) {
	if article.ClusterID != nil && *article.ClusterID != "" {
		return *article.ClusterID, false
	}
	window := time.Duration(windowHours * float64(time.Hour))

	var best *model.Article
	for i := range candidates {
		c := &candidates[i]
		if c.ID == article.ID || c.ClusterID == nil || *c.ClusterID == "" {
			continue
		}
		if !strings.EqualFold(c.Ticker, article.Ticker) || c.Category != article.Category {
			continue
		}
		if absDuration(article.PublishedAt.Sub(c.PublishedAt)) > window {
			continue
		}
		if best == nil || c.PublishedAt.After(best.PublishedAt) {
			best = c
		}
	}
	if best != nil {
		return *best.ClusterID, false
	}
	return uuid.New().String(), true
}

func sourceKey(m Member) string {
	if p := strings.ToLower(strings.TrimSpace(m.Publisher)); p != "" {
		return p
	}
	// 无来源名时每篇文章视为独立来源
	return "article:" + m.ArticleID
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
