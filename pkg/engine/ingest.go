package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"

	"ImpactRadar/pkg/consensus"
	"ImpactRadar/pkg/jobs"
	"ImpactRadar/pkg/model"
)

// IngestRequest 入库一篇文章所需的数据
type IngestRequest struct {
	Ticker         string           `json:"ticker" binding:"required"`
	Headline       string           `json:"headline"`
	Summary        string           `json:"summary"`
	SourceURL      string           `json:"source_url" binding:"required"`
	Publisher      string           `json:"publisher"`
	PublishedAt    time.Time        `json:"published_at"`
	SourceType     model.SourceType `json:"source_type"`
	SourceTier     model.SourceTier `json:"source_tier"`
	ClusterID      string           `json:"cluster_id,omitempty"`
	RelatedTickers []string         `json:"related_tickers,omitempty"`
}

// Article 转成待入库的文章，缺省字段取默认值
func (r IngestRequest) Article(now time.Time) *model.Article {
	a := &model.Article{
		Ticker:      strings.ToUpper(strings.TrimSpace(r.Ticker)),
		Headline:    strings.TrimSpace(r.Headline),
		Summary:     strings.TrimSpace(r.Summary),
		SourceURL:   strings.TrimSpace(r.SourceURL),
		Publisher:   strings.TrimSpace(r.Publisher),
		PublishedAt: r.PublishedAt,
		SourceType:  r.SourceType,
		SourceTier:  r.SourceTier,
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = now
	}
	if a.SourceType == "" {
		a.SourceType = model.SourceNews
	}
	if a.SourceTier == "" {
		a.SourceTier = model.TierStandard
	}
	if id := strings.TrimSpace(r.ClusterID); id != "" {
		a.ClusterID = &id
	}
	seen := map[string]bool{a.Ticker: true}
	for _, t := range r.RelatedTickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		a.RelatedTickers = append(a.RelatedTickers, t)
	}
	return a
}

// Ingest 文章入库：按 URL 去重、分类、归簇，然后投递分析任务。
// 重复文章返回已有记录且 created 为 false，不视为错误。
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*model.Article, bool, error) {
	article := req.Article(p.now().UTC())
	if article.Ticker == "" || article.SourceURL == "" {
		return nil, false, fmt.Errorf("%w: ticker 和 source_url 不能为空", ErrInvalidArticle)
	}

	exists, err := p.store.ArticleURLExists(ctx, article.SourceURL)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return p.duplicate(ctx, article.SourceURL)
	}

	article.Category = p.extractor.Classify(article.Headline)
	created, err := p.createClustered(ctx, article)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// 并发入库同一 URL
		return p.duplicate(ctx, article.SourceURL)
	}

	log.Info().Str("article_id", article.ID).Str("ticker", article.Ticker).
		Str("category", string(article.Category)).Msg("文章入库")

	if p.queue != nil {
		if _, err := p.queue.Submit(ctx, jobs.KindAnalyzeArticle, analyzeKey(article), jobs.ArticlePayload{ArticleID: article.ID}); err != nil {
			return article, true, fmt.Errorf("投递文章分析任务失败: %w", err)
		}
	}
	return article, true, nil
}

func (p *Pipeline) duplicate(ctx context.Context, url string) (*model.Article, bool, error) {
	existing, err := p.store.GetArticleByURL(ctx, url)
	if err != nil {
		return nil, false, err
	}
	log.Debug().Str("source_url", url).Msg("重复文章，跳过")
	return existing, false, nil
}

// analyzeKey 同簇文章的分析任务共用簇标识作为键，在本地队列中落到同一分片
func analyzeKey(article *model.Article) string {
	if article.ClusterID != nil {
		return *article.ClusterID
	}
	return article.ID
}

// createClustered 归簇并写入文章。同代码同分类的归簇在进程内串行；
// 新开簇的文章写入后再与并发入库的同事件文章对齐到同一簇。
func (p *Pipeline) createClustered(ctx context.Context, article *model.Article) (bool, error) {
	if article.ClusterID != nil || article.Category == model.CategoryUnknown {
		return p.store.CreateArticle(ctx, article)
	}

	unlock := p.locks.Lock("assign:" + article.Ticker + "/" + string(article.Category))
	defer unlock()

	opened, err := p.assignCluster(ctx, article)
	if err != nil {
		return false, err
	}
	created, err := p.store.CreateArticle(ctx, article)
	if err != nil || !created || !opened {
		return created, err
	}
	return true, p.reconcileCluster(ctx, article)
}

// assignCluster 为未带簇标识的文章寻找同一事件的簇，返回是否新开簇
func (p *Pipeline) assignCluster(ctx context.Context, article *model.Article) (bool, error) {
	from, to := p.clusterWindow(article)
	candidates, err := p.store.ClusterCandidates(ctx, article.Ticker, article.Category, from, to)
	if err != nil {
		return false, err
	}
	clusterID, created := consensus.AssignCluster(article, candidates, p.cfg.Consensus.WindowHours)
	article.ClusterID = &clusterID
	if created {
		log.Debug().Str("cluster_id", clusterID).Str("ticker", article.Ticker).Msg("新建事件簇")
	}
	return created, nil
}

// reconcileCluster 新开簇的文章写入后重新查看窗口：归簇时不可见的候选只可能是并发写入的，
// 各方都并入其中最早写入文章所在的簇。
func (p *Pipeline) reconcileCluster(ctx context.Context, article *model.Article) error {
	from, to := p.clusterWindow(article)
	candidates, err := p.store.ClusterCandidates(ctx, article.Ticker, article.Category, from, to)
	if err != nil {
		return err
	}

	own := *article.ClusterID
	earliest := article
	for i := range candidates {
		c := &candidates[i]
		if c.ID == article.ID || c.ClusterID == nil {
			continue
		}
		if c.CreatedAt.Before(earliest.CreatedAt) ||
			(c.CreatedAt.Equal(earliest.CreatedAt) && c.ID < earliest.ID) {
			earliest = c
		}
	}
	target := *earliest.ClusterID
	if target == own {
		return nil
	}
	if err := p.store.MoveArticleCluster(ctx, article.ID, own, target); err != nil {
		return err
	}
	article.ClusterID = &target
	log.Info().Str("article_id", article.ID).Str("from", own).Str("cluster_id", target).Msg("并发入库的同事件文章并入已有事件簇")
	return nil
}

func (p *Pipeline) clusterWindow(article *model.Article) (time.Time, time.Time) {
	window := time.Duration(p.cfg.Consensus.WindowHours * float64(time.Hour))
	return article.PublishedAt.Add(-window), article.PublishedAt.Add(window)
}
