// pkg/collector/news_collector.go
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/stan.go"
	"github.com/phuslu/log"

	"ImpactRadar/pkg/engine"
	"ImpactRadar/pkg/model"
)

// articleMessage 上游爬虫推送的文章消息
type articleMessage struct {
	Ticker         string   `json:"ticker"`
	Title          string   `json:"title"`
	Headline       string   `json:"headline"`
	Abstract       string   `json:"abstract"`
	Summary        string   `json:"summary"`
	Link           string   `json:"link"`
	URL            string   `json:"url"`
	Source         string   `json:"source"`
	Date           string   `json:"date"`
	PublishedAt    int64    `json:"published_at"`
	SourceType     string   `json:"source_type"`
	SourceTier     string   `json:"source_tier"`
	ClusterID      string   `json:"cluster_id"`
	RelatedTickers []string `json:"related_tickers"`
}

// DecodeArticle 解析推送消息，兼容 title/link/date 与 headline/url/published_at 两种字段
func DecodeArticle(data []byte) (engine.IngestRequest, error) {
	var m articleMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return engine.IngestRequest{}, fmt.Errorf("解析新闻数据失败: %w", err)
	}

	req := engine.IngestRequest{
		Ticker:         m.Ticker,
		Headline:       CleanText(firstNonEmpty(m.Headline, m.Title)),
		Summary:        CleanText(firstNonEmpty(m.Summary, m.Abstract)),
		SourceURL:      firstNonEmpty(m.URL, m.Link),
		Publisher:      m.Source,
		SourceType:     model.SourceType(m.SourceType),
		SourceTier:     model.SourceTier(m.SourceTier),
		ClusterID:      m.ClusterID,
		RelatedTickers: m.RelatedTickers,
	}
	switch {
	case m.PublishedAt > 0:
		req.PublishedAt = time.Unix(m.PublishedAt, 0).UTC()
	case m.Date != "":
		if t, err := time.Parse("2006-01-02 15:04:05", m.Date); err == nil {
			req.PublishedAt = t.UTC()
		} else if t, err := time.Parse(time.RFC3339, m.Date); err == nil {
			req.PublishedAt = t.UTC()
		}
	}
	if req.SourceType == "" || req.SourceTier == "" {
		st, tier := classifySource(m.Source)
		if req.SourceType == "" {
			req.SourceType = st
		}
		if req.SourceTier == "" {
			req.SourceTier = tier
		}
	}
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// StanSource 基于 NATS Streaming 的新闻推送源
type StanSource struct {
	conn     stan.Conn
	channels []string
	clientID string
	ingester Ingester

	mu   sync.Mutex
	subs []stan.Subscription
}

// NewStanSource 连接 NATS Streaming
func NewStanSource(natsURL, clusterID, clientID string, channels []string, ingester Ingester) (*StanSource, error) {
	conn, err := stan.Connect(
		clusterID,
		clientID,
		stan.NatsURL(natsURL),
		stan.SetConnectionLostHandler(func(_ stan.Conn, err error) {
			log.Error().Err(err).Msg("NATS Streaming 连接丢失")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}
	return &StanSource{conn: conn, channels: channels, clientID: clientID, ingester: ingester}, nil
}

// Start 以持久订阅接收各频道新闻，入库成功后才确认
func (s *StanSource) Start(ctx context.Context) error {
	for _, channel := range s.channels {
		sub, err := s.conn.Subscribe(
			channel,
			func(msg *stan.Msg) { s.handle(ctx, msg) },
			stan.DurableName(s.clientID+"-"+channel),
			stan.SetManualAckMode(),
			stan.AckWait(60*time.Second),
			stan.DeliverAllAvailable(),
		)
		if err != nil {
			s.Stop()
			return fmt.Errorf("订阅新闻频道 %s 失败: %w", channel, err)
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
		log.Info().Str("channel", channel).Msg("新闻频道订阅成功")
	}
	return nil
}

func (s *StanSource) handle(ctx context.Context, msg *stan.Msg) {
	req, err := DecodeArticle(msg.Data)
	if err != nil {
		// 格式错误的消息重投也无法处理
		log.Error().Err(err).Str("channel", msg.Subject).Uint64("seq", msg.Sequence).Msg("丢弃新闻消息")
		_ = msg.Ack()
		return
	}
	article, created, err := s.ingester.Ingest(ctx, req)
	if errors.Is(err, engine.ErrInvalidArticle) {
		log.Warn().Err(err).Str("channel", msg.Subject).Msg("丢弃缺少必填字段的文章")
		_ = msg.Ack()
		return
	}
	if err != nil {
		log.Error().Err(err).Str("source_url", req.SourceURL).Msg("新闻入库失败，等待重投")
		return
	}
	if created {
		log.Info().Str("article_id", article.ID).Str("ticker", article.Ticker).Msg("收到新闻")
	}
	_ = msg.Ack()
}

// Stop 关闭订阅（保留持久订阅位置）与连接
func (s *StanSource) Stop() error {
	s.mu.Lock()
	for _, sub := range s.subs {
		_ = sub.Close()
	}
	s.subs = nil
	s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
