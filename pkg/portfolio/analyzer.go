// Package portfolio 把近期 Impact 汇总为逐个股票的调仓建议和组合层面的总结。
package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/impact"
	"ImpactRadar/pkg/model"
	"ImpactRadar/pkg/monitor"
)

// Store 分析所需的只读数据
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)
	RecentImpacts(ctx context.Context, userID string, since time.Time, limit int) ([]model.Impact, error)
	LatestCloses(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// AnalogFinder 历史类比查询
type AnalogFinder interface {
	FindAnalogs(ctx context.Context, ticker string, category model.EventCategory) (model.AnalogData, error)
}

// HealthReporter 降级状态上报
type HealthReporter interface {
	UpdateStatus(component, status, message string)
}

// Analyzer 组合分析器
type Analyzer struct {
	store   Store
	analogs AnalogFinder
	health  HealthReporter
	cfg     config.Scoring
	now     func() time.Time
}

// NewAnalyzer 创建组合分析器，health 可为 nil
func NewAnalyzer(store Store, analogs AnalogFinder, health HealthReporter, cfg config.Scoring) *Analyzer {
	return &Analyzer{store: store, analogs: analogs, health: health, cfg: cfg, now: time.Now}
}

// tickerGroup 同一股票的持仓及其窗口内的影响
type tickerGroup struct {
	ticker   string
	exposure float64
	impacts  []model.Impact
}

// Analyze 对用户全部持仓生成调仓建议。历史类比不可用时结果标记为降级并继续。
func (a *Analyzer) Analyze(ctx context.Context, userID string) (*model.PortfolioAnalysisResult, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}
	holdings, err := a.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取持仓失败: %w", err)
	}

	now := a.now().UTC()
	result := &model.PortfolioAnalysisResult{UserID: userID, GeneratedAt: now}

	since := now.AddDate(0, 0, -a.cfg.Recommendation.LookbackDays)
	impacts, err := a.store.RecentImpacts(ctx, userID, since, a.cfg.Recommendation.MaxImpacts)
	if err != nil {
		return nil, fmt.Errorf("获取近期影响失败: %w", err)
	}

	prices, err := a.store.LatestCloses(ctx, tickersOf(holdings))
	if err != nil {
		result.Degraded = true
		result.Reasons = append(result.Reasons, "latest prices unavailable, exposure uses cost basis")
		prices = nil
	}
	exposures := impact.Exposures(holdings, prices)
	if missing := impact.Unpriced(holdings, prices); len(missing) > 0 {
		result.Degraded = true
		for _, t := range missing {
			result.Reasons = append(result.Reasons, fmt.Sprintf("no price or cost basis for %s, exposure counted as 0", t))
		}
		log.Warn().Str("user_id", userID).Strs("tickers", missing).Msg("持仓缺少收盘价和成本价，仓位按 0 计算")
	}

	groups := groupByTicker(holdings, exposures, impacts)
	analogFailed := false
	for _, g := range groups {
		rec := a.recommend(g)
		if rec.NewsCount > 0 && a.analogs != nil {
			dominant := rec.KeySignals[0].Category
			data, err := a.analogs.FindAnalogs(ctx, g.ticker, dominant)
			if err != nil {
				analogFailed = true
				result.Degraded = true
				result.Reasons = append(result.Reasons, fmt.Sprintf("historical analogs unavailable for %s", g.ticker))
				log.Warn().Err(err).Str("ticker", g.ticker).Msg("历史类比查询失败")
			} else {
				rec.Analog = &data
			}
		}
		rec.Rationale = rationale(rec)
		result.Recommendations = append(result.Recommendations, rec)
	}
	if a.health != nil && a.analogs != nil {
		if analogFailed {
			a.health.UpdateStatus(monitor.ComponentAnalog, monitor.StatusDegraded, "historical analog lookup failed")
		} else if len(groups) > 0 {
			a.health.UpdateStatus(monitor.ComponentAnalog, monitor.StatusHealthy, "")
		}
	}

	sort.SliceStable(result.Recommendations, func(i, j int) bool {
		ri, rj := result.Recommendations[i], result.Recommendations[j]
		if math.Abs(ri.AvgImpactScore) != math.Abs(rj.AvgImpactScore) {
			return math.Abs(ri.AvgImpactScore) > math.Abs(rj.AvgImpactScore)
		}
		return ri.Ticker < rj.Ticker
	})

	result.Summary = a.Summarize(user, holdings, prices, result.Recommendations)
	return result, nil
}

// recommend 单个股票的建议，不含历史类比
func (a *Analyzer) recommend(g tickerGroup) model.RebalanceRecommendation {
	rec := model.RebalanceRecommendation{
		Ticker:   g.ticker,
		Action:   model.ActionHold,
		Exposure: impact.Round4(g.exposure),
	}

	// 同一篇文章可能作用于同一股票的多个持仓，按文章合并
	type articleAgg struct {
		score      float64
		confidence float64
		category   model.EventCategory
		published  time.Time
	}
	byArticle := make(map[string]*articleAgg)
	for _, imp := range g.impacts {
		agg, ok := byArticle[imp.ArticleID]
		if !ok {
			agg = &articleAgg{confidence: imp.Confidence, category: imp.Category, published: imp.ArticlePublishedAt}
			byArticle[imp.ArticleID] = agg
		}
		agg.score += imp.ImpactScore
	}
	rec.NewsCount = len(byArticle)
	if rec.NewsCount == 0 {
		return rec
	}

	var sumScore, sumConf float64
	signals := make(map[model.EventCategory]*model.KeySignal)
	for _, agg := range byArticle {
		sumScore += agg.score
		sumConf += agg.confidence
		ks, ok := signals[agg.category]
		if !ok {
			ks = &model.KeySignal{Category: agg.category}
			signals[agg.category] = ks
		}
		ks.Count++
		ks.AvgImpact += agg.score
		if agg.published.After(ks.LatestAt) {
			ks.LatestAt = agg.published
		}
	}

	n := float64(rec.NewsCount)
	rec.AvgImpactScore = impact.Round4(sumScore / n)
	rec.Action = a.Action(rec.AvgImpactScore)
	rec.Confidence = a.Confidence(sumConf/n, rec.NewsCount)

	for _, ks := range signals {
		ks.AvgImpact = impact.Round4(ks.AvgImpact / float64(ks.Count))
		rec.KeySignals = append(rec.KeySignals, *ks)
	}
	RankSignals(rec.KeySignals)
	return rec
}

// Action 按对称的单调区间把平均影响分映射为建议
func (a *Analyzer) Action(avg float64) model.RecommendationType {
	mild, strong := a.cfg.Recommendation.MildBand, a.cfg.Recommendation.StrongBand
	switch {
	case avg >= strong:
		return model.ActionStrongBuy
	case avg >= mild:
		return model.ActionBuy
	case avg <= -strong:
		return model.ActionStrongSell
	case avg <= -mild:
		return model.ActionSell
	default:
		return model.ActionHold
	}
}

// Confidence avgConfidence × (0.5 + 0.5 × min(1, newsCount / saturation))
func (a *Analyzer) Confidence(avgConfidence float64, newsCount int) float64 {
	if newsCount <= 0 {
		return 0
	}
	saturation := a.cfg.Recommendation.SaturationCount
	if saturation <= 0 {
		saturation = 1
	}
	coverage := math.Min(1, float64(newsCount)/float64(saturation))
	return impact.Round4(avgConfidence * (0.5 + 0.5*coverage))
}

// RankSignals 按出现次数降序，次数相同时最近出现的分类在前
func RankSignals(signals []model.KeySignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Count != signals[j].Count {
			return signals[i].Count > signals[j].Count
		}
		if !signals[i].LatestAt.Equal(signals[j].LatestAt) {
			return signals[i].LatestAt.After(signals[j].LatestAt)
		}
		return signals[i].Category < signals[j].Category
	})
}

func rationale(rec model.RebalanceRecommendation) string {
	if rec.NewsCount == 0 {
		return fmt.Sprintf("%s: no news in the lookback window, holding position", rec.Ticker)
	}
	dominant := rec.KeySignals[0]
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s on average impact %+.4f across %d articles; dominant signal %s (%d)",
		rec.Ticker, strings.ReplaceAll(string(rec.Action), "_", " "), rec.AvgImpactScore, rec.NewsCount,
		model.Categories.Lookup(dominant.Category).Description, dominant.Count)
	if len(rec.KeySignals) > 1 {
		others := make([]string, 0, len(rec.KeySignals)-1)
		for _, ks := range rec.KeySignals[1:] {
			others = append(others, fmt.Sprintf("%s (%d)", model.Categories.Lookup(ks.Category).Description, ks.Count))
		}
		fmt.Fprintf(&b, "; also %s", strings.Join(others, ", "))
	}
	if rec.Analog != nil {
		fmt.Fprintf(&b, "; history: %s", rec.Analog.Pattern)
	}
	return b.String()
}

func groupByTicker(holdings []model.Holding, exposures map[string]float64, impacts []model.Impact) []tickerGroup {
	index := make(map[string]int)
	var groups []tickerGroup
	for _, h := range holdings {
		ticker := strings.ToUpper(h.Ticker)
		i, ok := index[ticker]
		if !ok {
			i = len(groups)
			index[ticker] = i
			groups = append(groups, tickerGroup{ticker: ticker})
		}
		groups[i].exposure += exposures[h.ID]
	}
	for _, imp := range impacts {
		if i, ok := index[strings.ToUpper(imp.Ticker)]; ok {
			groups[i].impacts = append(groups[i].impacts, imp)
		}
	}
	return groups
}

func tickersOf(holdings []model.Holding) []string {
	seen := make(map[string]struct{}, len(holdings))
	out := make([]string, 0, len(holdings))
	for _, h := range holdings {
		t := strings.ToUpper(h.Ticker)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
