package collector

import (
	"context"

	"ImpactRadar/pkg/engine"
	"ImpactRadar/pkg/model"
)

// Provider 按股票代码拉取新闻的数据源
type Provider interface {
	Name() string
	FetchForTicker(ctx context.Context, ticker string) ([]model.Article, error)
}

// Ingester 文章入库入口，由 engine.Pipeline 实现
type Ingester interface {
	Ingest(ctx context.Context, req engine.IngestRequest) (*model.Article, bool, error)
}

// requestFor 数据源文章转为入库请求
func requestFor(a model.Article) engine.IngestRequest {
	return engine.IngestRequest{
		Ticker:         a.Ticker,
		Headline:       a.Headline,
		Summary:        a.Summary,
		SourceURL:      a.SourceURL,
		Publisher:      a.Publisher,
		PublishedAt:    a.PublishedAt,
		SourceType:     a.SourceType,
		SourceTier:     a.SourceTier,
		RelatedTickers: a.RelatedTickers,
	}
}
