// Package analog 查找历史同类事件并统计其后续价格走势。
package analog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

const (
	shortHorizon = 5 * 24 * time.Hour
	longHorizon  = 30 * 24 * time.Hour
	// 目标日之后最多容忍的缺口（周末、节假日）
	quoteTolerance = 7 * 24 * time.Hour
)

// Store 历史类比所需的只读数据
type Store interface {
	SectorPeers(ctx context.Context, ticker string) ([]string, error)
	ArticlesByCategory(ctx context.Context, tickers []string, category model.EventCategory, since, before time.Time, limit int) ([]model.Article, error)
	// CloseOnOrAfter 返回 t 当天或之后的第一个收盘价，不存在时 ok 为 false
	CloseOnOrAfter(ctx context.Context, symbol string, t time.Time) (price decimal.Decimal, at time.Time, ok bool, err error)
}

// Service 历史类比服务
type Service struct {
	store        Store
	lookbackDays int
	minMatches   int
	maxEvents    int
	now          func() time.Time
}

// New 创建历史类比服务
func New(store Store, cfg config.Scoring) *Service {
	return &Service{
		store:        store,
		lookbackDays: cfg.Analog.LookbackDays,
		minMatches:   cfg.Analog.MinMatches,
		maxEvents:    cfg.Analog.MaxEvents,
		now:          time.Now,
	}
}

// FindAnalogs 统计同代码或同行业、同分类历史事件之后 5 日与 30 日的涨跌幅中位数。
// 匹配数不足时返回零计数结果，不视为错误。
func (s *Service) FindAnalogs(ctx context.Context, ticker string, category model.EventCategory) (model.AnalogData, error) {
	ticker = strings.ToUpper(ticker)

	tickers := []string{ticker}
	peers, err := s.store.SectorPeers(ctx, ticker)
	if err != nil {
		return model.AnalogData{}, fmt.Errorf("查询同行业股票失败: %w", err)
	}
	for _, p := range peers {
		if p = strings.ToUpper(p); p != ticker {
			tickers = append(tickers, p)
		}
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -s.lookbackDays)
	// 不足 5 个自然日的事件还没有可观察的后续走势
	before := now.Add(-shortHorizon)
	events, err := s.store.ArticlesByCategory(ctx, tickers, category, since, before, s.maxEvents)
	if err != nil {
		return model.AnalogData{}, fmt.Errorf("查询历史事件失败: %w", err)
	}

	var (
		short, long []float64
		sector      bool
	)
	for _, ev := range events {
		move5, move30, ok, err := s.moves(ctx, ev)
		if err != nil {
			return model.AnalogData{}, err
		}
		if !ok {
			continue
		}
		short = append(short, move5)
		if move30 != nil {
			long = append(long, *move30)
		}
		if !strings.EqualFold(ev.Ticker, ticker) {
			sector = true
		}
	}

	if len(short) < s.minMatches || len(short) == 0 {
		return model.AnalogData{
			Pattern: fmt.Sprintf("insufficient history for %s %s (%d of %d required events)",
				ticker, category, len(short), s.minMatches),
		}, nil
	}

	data := model.AnalogData{
		Count:          len(short),
		MedianMove5D:   round2(Median(short)),
		MedianMove30D:  round2(Median(long)),
		SectorIncluded: sector,
	}
	scope := "on " + ticker
	if sector {
		scope = "on " + ticker + " and sector peers"
	}
	data.Pattern = fmt.Sprintf("%d past %s events %s: median %+.2f%% after 5d, %+.2f%% after 30d",
		data.Count, model.Categories.Lookup(category).Description, scope, data.MedianMove5D, data.MedianMove30D)
	if len(long) == 0 {
		data.Pattern = fmt.Sprintf("%d past %s events %s: median %+.2f%% after 5d, 30d not yet observable",
			data.Count, model.Categories.Lookup(category).Description, scope, data.MedianMove5D)
	}
	return data, nil
}

// moves 计算事件之后的涨跌幅（百分比），30 日数据可能尚不可得
func (s *Service) moves(ctx context.Context, ev model.Article) (float64, *float64, bool, error) {
	base, _, ok, err := s.closeNear(ctx, ev.Ticker, ev.PublishedAt)
	if err != nil || !ok || !base.IsPositive() {
		return 0, nil, false, err
	}
	c5, _, ok, err := s.closeNear(ctx, ev.Ticker, ev.PublishedAt.Add(shortHorizon))
	if err != nil || !ok {
		return 0, nil, false, err
	}
	move5 := pctChange(base, c5)

	c30, _, ok, err := s.closeNear(ctx, ev.Ticker, ev.PublishedAt.Add(longHorizon))
	if err != nil {
		return 0, nil, false, err
	}
	if !ok {
		return move5, nil, true, nil
	}
	move30 := pctChange(base, c30)
	return move5, &move30, true, nil
}

func (s *Service) closeNear(ctx context.Context, symbol string, t time.Time) (decimal.Decimal, time.Time, bool, error) {
	price, at, ok, err := s.store.CloseOnOrAfter(ctx, symbol, t)
	if err != nil {
		return decimal.Zero, time.Time{}, false, fmt.Errorf("查询 %s 收盘价失败: %w", symbol, err)
	}
	if !ok || at.Sub(t) > quoteTolerance {
		return decimal.Zero, time.Time{}, false, nil
	}
	return price, at, true, nil
}

func pctChange(from, to decimal.Decimal) float64 {
	v, _ := to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Float64()
	return v
}

// Median 中位数，空切片返回 0
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
