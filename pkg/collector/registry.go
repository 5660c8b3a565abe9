package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"ImpactRadar/pkg/model"
)

// Registry 数据源注册表，聚合多个数据源的结果并按 URL 去重
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry 创建注册表
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register 注册数据源，同名覆盖
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Names 已注册的数据源
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FetchForTicker 并发调用全部数据源。单个数据源失败只记录日志，全部失败时返回错误。
// 同一 URL 只保留先注册（按名称排序）的数据源给出的文章。
func (r *Registry) FetchForTicker(ctx context.Context, ticker string) ([]model.Article, error) {
	names := r.Names()
	if len(names) == 0 {
		return nil, nil
	}

	results := make([][]model.Article, len(names))
	errs := make([]error, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		r.mu.RLock()
		p := r.providers[name]
		r.mu.RUnlock()
		g.Go(func() error {
			articles, err := p.FetchForTicker(gctx, ticker)
			if err != nil {
				errs[i] = fmt.Errorf("数据源 %s: %w", name, err)
				log.Warn().Err(err).Str("provider", name).Str("ticker", ticker).Msg("拉取新闻失败")
				return nil
			}
			results[i] = articles
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(names) {
		return nil, errors.Join(errs...)
	}
	return Dedup(results...), nil
}

// Dedup 合并多组文章并按来源 URL 去重，保持首次出现的顺序
func Dedup(groups ...[]model.Article) []model.Article {
	seen := make(map[string]struct{})
	var out []model.Article
	for _, group := range groups {
		for _, a := range group {
			key := strings.TrimSpace(a.SourceURL)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}
