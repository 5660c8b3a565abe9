package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/impact"
	"ImpactRadar/pkg/model"
)

const recomputeParallelism = 4

// ImpactStats 一次影响分计算的统计
type ImpactStats struct {
	Users   int `json:"users"`
	Written int `json:"written"`
	Skipped int `json:"skipped"` // 与已存储结果一致
}

func (s *ImpactStats) add(o ImpactStats) {
	s.Users += o.Users
	s.Written += o.Written
	s.Skipped += o.Skipped
}

type impactLookup func(articleID, holdingID string) (*model.Impact, error)

// ComputeArticleImpacts 为持有文章相关代码的所有用户计算影响分。
// Signal 尚未保存时返回 ErrSignalNotReady。
func (p *Pipeline) ComputeArticleImpacts(ctx context.Context, articleID string) (ImpactStats, error) {
	var stats ImpactStats
	article, err := p.store.GetArticle(ctx, articleID)
	if err != nil {
		return stats, err
	}
	sig, err := p.signalFor(ctx, articleID)
	if err != nil {
		return stats, err
	}

	holdings, err := p.store.HoldingsForTickers(ctx, article.Tickers())
	if err != nil {
		return stats, err
	}
	users := make(map[string]struct{})
	for _, h := range holdings {
		users[h.UserID] = struct{}{}
	}

	signals := map[string]model.Signal{article.ID: *sig}
	for _, userID := range sortedKeys(users) {
		lookup := func(articleID, holdingID string) (*model.Impact, error) {
			imp, err := p.store.GetImpact(ctx, userID, articleID, holdingID)
			if errors.Is(err, database.ErrNotFound) {
				return nil, nil
			}
			return imp, err
		}
		s, err := p.applyUser(ctx, userID, []model.Article{*article}, signals, lookup)
		if err != nil {
			return stats, fmt.Errorf("计算用户 %s 的影响分失败: %w", userID, err)
		}
		stats.add(s)
	}

	log.Info().Str("article_id", articleID).Int("users", stats.Users).Int("written", stats.Written).
		Int("skipped", stats.Skipped).Msg("文章影响分计算完成")
	return stats, nil
}

// RecomputeUserImpacts 重算用户在影响分回看窗口内的全部影响分，已是最新的跳过
func (p *Pipeline) RecomputeUserImpacts(ctx context.Context, userID string) (ImpactStats, error) {
	var stats ImpactStats
	if _, err := p.store.GetUser(ctx, userID); err != nil {
		return stats, err
	}
	holdings, err := p.store.ListHoldings(ctx, userID)
	if err != nil {
		return stats, err
	}
	if len(holdings) == 0 {
		return stats, nil
	}
	held := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		held[strings.ToUpper(h.Ticker)] = true
	}

	since := p.now().AddDate(0, 0, -p.cfg.ImpactLookbackDays)
	recent, err := p.store.ArticlesSince(ctx, since)
	if err != nil {
		return stats, err
	}
	var articles []model.Article
	var ids []string
	for _, a := range recent {
		for _, t := range a.Tickers() {
			if held[strings.ToUpper(t)] {
				articles = append(articles, a)
				ids = append(ids, a.ID)
				break
			}
		}
	}
	signals, err := p.store.SignalsForArticles(ctx, ids)
	if err != nil {
		return stats, err
	}
	existing, err := p.store.ExistingImpacts(ctx, userID)
	if err != nil {
		return stats, err
	}
	lookup := func(articleID, holdingID string) (*model.Impact, error) {
		if imp, ok := existing[database.ImpactKey(articleID, holdingID)]; ok {
			return &imp, nil
		}
		return nil, nil
	}

	stats, err = p.applyUser(ctx, userID, articles, signals, lookup)
	if err != nil {
		return stats, fmt.Errorf("重算用户 %s 的影响分失败: %w", userID, err)
	}
	log.Info().Str("user_id", userID).Int("articles", len(articles)).Int("written", stats.Written).
		Int("skipped", stats.Skipped).Msg("用户影响分重算完成")
	return stats, nil
}

// RecomputeAll 并发重算所有用户，可重复执行
func (p *Pipeline) RecomputeAll(ctx context.Context) (ImpactStats, error) {
	var (
		mu    sync.Mutex
		total ImpactStats
	)
	userIDs, err := p.store.ListUserIDs(ctx)
	if err != nil {
		return total, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recomputeParallelism)
	for _, userID := range userIDs {
		g.Go(func() error {
			s, err := p.RecomputeUserImpacts(gctx, userID)
			mu.Lock()
			total.add(s)
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()

	log.Info().Int("users", len(userIDs)).Int("written", total.Written).Int("skipped", total.Skipped).
		Err(err).Msg("全量影响分重算结束")
	return total, err
}

// applyUser 在用户锁内按当前持仓与仓位计算影响分，结果未变化的跳过
func (p *Pipeline) applyUser(ctx context.Context, userID string, articles []model.Article, signals map[string]model.Signal, lookup impactLookup) (ImpactStats, error) {
	unlock := p.locks.Lock(userID)
	defer unlock()

	stats := ImpactStats{Users: 1}
	holdings, err := p.store.ListHoldings(ctx, userID)
	if err != nil {
		return stats, err
	}
	prices, err := p.store.LatestCloses(ctx, tickersOf(holdings))
	if err != nil {
		return stats, err
	}
	exposures := impact.Exposures(holdings, prices)
	if missing := impact.Unpriced(holdings, prices); len(missing) > 0 {
		log.Warn().Str("user_id", userID).Strs("tickers", missing).Msg("持仓缺少收盘价和成本价，仓位按 0 计算")
	}

	for i := range articles {
		article := &articles[i]
		sig, ok := signals[article.ID]
		if !ok {
			continue
		}
		tickers := article.Tickers()
		for j := range holdings {
			h := &holdings[j]
			if !containsTicker(tickers, h.Ticker) {
				continue
			}
			imp := p.impacts.Compute(&sig, h, exposures[h.ID])
			impact.Snapshot(&imp, article)

			prev, err := lookup(article.ID, h.ID)
			if err != nil {
				return stats, err
			}
			if imp.SameScore(prev) {
				stats.Skipped++
				continue
			}
			if err := p.store.UpsertImpact(ctx, &imp); err != nil {
				return stats, err
			}
			stats.Written++
		}
	}
	return stats, nil
}

func tickersOf(holdings []model.Holding) []string {
	seen := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		seen[strings.ToUpper(h.Ticker)] = struct{}{}
	}
	return sortedKeys(seen)
}

func containsTicker(tickers []string, ticker string) bool {
	for _, t := range tickers {
		if strings.EqualFold(t, ticker) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
