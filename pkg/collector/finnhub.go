package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

// FinnhubProvider Finnhub company-news 接口
type FinnhubProvider struct {
	client   *resty.Client
	apiKey   string
	lookBack int
	now      func() time.Time
}

// finnhubNews company-news 返回的单条新闻
type finnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// NewFinnhubProvider 创建 Finnhub 数据源
func NewFinnhubProvider(cfg *config.Config) *FinnhubProvider {
	fc := cfg.Providers.Finnhub
	client := resty.New().
		SetBaseURL(fc.BaseURL).
		SetTimeout(fc.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	lookBack := fc.LookBack
	if lookBack <= 0 {
		lookBack = 1
	}
	return &FinnhubProvider{client: client, apiKey: fc.APIKey, lookBack: lookBack, now: time.Now}
}

// Name 数据源名称
func (p *FinnhubProvider) Name() string { return "finnhub" }

// FetchForTicker 拉取回看窗口内的公司新闻
func (p *FinnhubProvider) FetchForTicker(ctx context.Context, ticker string) ([]model.Article, error) {
	if p.apiKey == "" {
		return nil, errors.New("未配置 Finnhub API key")
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	to := p.now().UTC()
	from := to.AddDate(0, 0, -p.lookBack)

	var news []finnhubNews
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": ticker,
			"from":   from.Format("2006-01-02"),
			"to":     to.Format("2006-01-02"),
			"token":  p.apiKey,
		}).
		SetResult(&news).
		Get("/company-news")
	if err != nil {
		return nil, fmt.Errorf("请求 %s 新闻失败: %w", ticker, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Finnhub 返回错误 %d: %s", resp.StatusCode(), resp.String())
	}

	articles := make([]model.Article, 0, len(news))
	for _, n := range news {
		if strings.TrimSpace(n.URL) == "" || strings.TrimSpace(n.Headline) == "" {
			continue
		}
		sourceType, tier := classifySource(n.Source)
		articles = append(articles, model.Article{
			Ticker:         ticker,
			Headline:       CleanText(n.Headline),
			Summary:        CleanText(n.Summary),
			SourceURL:      n.URL,
			Publisher:      n.Source,
			PublishedAt:    time.Unix(n.DateTime, 0).UTC(),
			SourceType:     sourceType,
			SourceTier:     tier,
			RelatedTickers: relatedTickers(n.Related, ticker),
		})
	}
	return articles, nil
}

var (
	wireServices      = []string{"business wire", "businesswire", "pr newswire", "prnewswire", "globenewswire", "accesswire"}
	premiumPublishers = []string{"reuters", "bloomberg", "wsj", "wall street journal", "financial times", "cnbc", "barron"}
	socialPublishers  = []string{"reddit", "stocktwits", "twitter"}
)

// classifySource 按发布方名称推断来源类型与分级
func classifySource(source string) (model.SourceType, model.SourceTier) {
	s := strings.ToLower(source)
	switch {
	case containsAny(s, wireServices):
		return model.SourcePressRelease, model.TierOfficial
	case s == "sec" || strings.Contains(s, "sec.gov"):
		return model.SourceFiling, model.TierOfficial
	case containsAny(s, premiumPublishers):
		return model.SourceNews, model.TierPremium
	case containsAny(s, socialPublishers):
		return model.SourceSocial, model.TierSocial
	default:
		return model.SourceNews, model.TierStandard
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func relatedTickers(related, primary string) []string {
	var out []string
	for _, t := range strings.Split(related, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" && t != primary {
			out = append(out, t)
		}
	}
	return out
}

// CleanText 去掉 HTML 标签与多余空白
func CleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
