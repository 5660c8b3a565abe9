package collector

import (
	"context"
	"strings"

	"github.com/phuslu/log"
)

// PollStats 一轮拉取的统计
type PollStats struct {
	Tickers    int `json:"tickers"`
	Fetched    int `json:"fetched"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Poller 定时按关注列表拉取新闻并入库
type Poller struct {
	registry *Registry
	ingester Ingester
	tickers  []string
}

// NewPoller 创建拉取器
func NewPoller(registry *Registry, ingester Ingester, tickers []string) *Poller {
	normalized := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			normalized = append(normalized, t)
		}
	}
	return &Poller{registry: registry, ingester: ingester, tickers: normalized}
}

// Poll 拉取一轮。单个代码或单篇文章失败不影响其他。
func (p *Poller) Poll(ctx context.Context) PollStats {
	stats := PollStats{Tickers: len(p.tickers)}
	for _, ticker := range p.tickers {
		if ctx.Err() != nil {
			break
		}
		articles, err := p.registry.FetchForTicker(ctx, ticker)
		if err != nil {
			stats.Failed++
			log.Error().Err(err).Str("ticker", ticker).Msg("拉取新闻失败")
			continue
		}
		stats.Fetched += len(articles)
		for _, a := range articles {
			_, created, err := p.ingester.Ingest(ctx, requestFor(a))
			switch {
			case err != nil:
				stats.Failed++
				log.Error().Err(err).Str("source_url", a.SourceURL).Msg("新闻入库失败")
			case created:
				stats.Created++
			default:
				stats.Duplicates++
			}
		}
	}
	log.Info().Int("tickers", stats.Tickers).Int("fetched", stats.Fetched).Int("created", stats.Created).
		Int("duplicates", stats.Duplicates).Int("failed", stats.Failed).Msg("新闻拉取完成")
	return stats
}
