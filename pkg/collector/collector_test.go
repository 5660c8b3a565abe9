package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/engine"
	"ImpactRadar/pkg/model"
)

type fakeProvider struct {
	name     string
	articles []model.Article
	err      error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchForTicker(context.Context, string) ([]model.Article, error) {
	return f.articles, f.err
}

type fakeIngester struct {
	mu   sync.Mutex
	seen map[string]bool
	reqs []engine.IngestRequest
	err  error
}

func (f *fakeIngester) Ingest(_ context.Context, req engine.IngestRequest) (*model.Article, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	f.reqs = append(f.reqs, req)
	created := !f.seen[req.SourceURL]
	f.seen[req.SourceURL] = true
	return &model.Article{ID: req.SourceURL, Ticker: req.Ticker}, created, nil
}

func article(url string) model.Article {
	return model.Article{Ticker: "AAPL", Headline: "h " + url, SourceURL: url}
}

func newFinnhub(t *testing.T, handler http.HandlerFunc) *FinnhubProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Providers.Finnhub.BaseURL = srv.URL
	cfg.Providers.Finnhub.APIKey = "test-key"
	cfg.Providers.Finnhub.Timeout = 2 * time.Second
	p := NewFinnhubProvider(cfg)
	p.client.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)
	p.now = func() time.Time { return time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestFinnhubFetchForTicker(t *testing.T) {
	p := newFinnhub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company-news", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "2024-05-04", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-05-06", r.URL.Query().Get("to"))
		assert.Equal(t, "test-key", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"datetime": 1714996800, "headline": "Apple beats estimates", "related": "AAPL,MSFT",
			 "source": "Reuters", "summary": "<p>Revenue <b>rose</b> 8%</p>", "url": "https://r.example/1"},
			{"datetime": 1714996800, "headline": "Apple announces dividend", "related": "",
			 "source": "Business Wire", "summary": "", "url": "https://bw.example/2"},
			{"datetime": 1714996800, "headline": "", "source": "Yahoo", "url": "https://y.example/3"}
		]`))
	})

	articles, err := p.FetchForTicker(context.Background(), "aapl")
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "AAPL", articles[0].Ticker)
	assert.Equal(t, "Revenue rose 8%", articles[0].Summary)
	assert.Equal(t, model.TierPremium, articles[0].SourceTier)
	assert.Equal(t, []string{"MSFT"}, []string(articles[0].RelatedTickers))
	assert.Equal(t, time.Unix(1714996800, 0).UTC(), articles[0].PublishedAt)

	assert.Equal(t, model.SourcePressRelease, articles[1].SourceType)
	assert.Equal(t, model.TierOfficial, articles[1].SourceTier)
}

func TestFinnhubServerError(t *testing.T) {
	var calls int
	p := newFinnhub(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := p.FetchForTicker(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestFinnhubRequiresAPIKey(t *testing.T) {
	p := NewFinnhubProvider(config.Default())
	_, err := p.FetchForTicker(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestClassifySource(t *testing.T) {
	tests := []struct {
		source string
		typ    model.SourceType
		tier   model.SourceTier
	}{
		{"GlobeNewswire", model.SourcePressRelease, model.TierOfficial},
		{"SEC", model.SourceFiling, model.TierOfficial},
		{"Bloomberg", model.SourceNews, model.TierPremium},
		{"Reddit", model.SourceSocial, model.TierSocial},
		{"SeekingAlpha", model.SourceNews, model.TierStandard},
	}
	for _, tt := range tests {
		typ, tier := classifySource(tt.source)
		assert.Equal(t, tt.typ, typ, tt.source)
		assert.Equal(t, tt.tier, tier, tt.source)
	}
}

func TestRegistryMergesAndDedups(t *testing.T) {
	r := NewRegistry(
		&fakeProvider{name: "a", articles: []model.Article{article("u1"), article("u2")}},
		&fakeProvider{name: "b", articles: []model.Article{article("u2"), article("u3"), {SourceURL: ""}}},
		&fakeProvider{name: "c", err: errors.New("down")},
	)
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	articles, err := r.FetchForTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	var urls []string
	for _, a := range articles {
		urls = append(urls, a.SourceURL)
	}
	assert.Equal(t, []string{"u1", "u2", "u3"}, urls)
}

func TestRegistryAllProvidersFail(t *testing.T) {
	r := NewRegistry(&fakeProvider{name: "a", err: errors.New("down")})
	_, err := r.FetchForTicker(context.Background(), "AAPL")
	assert.Error(t, err)

	empty, err := NewRegistry().FetchForTicker(context.Background(), "AAPL")
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPollerCountsCreatedAndDuplicates(t *testing.T) {
	ingester := &fakeIngester{seen: map[string]bool{"u1": true}}
	r := NewRegistry(&fakeProvider{name: "a", articles: []model.Article{article("u1"), article("u2")}})
	stats := NewPoller(r, ingester, []string{" aapl ", ""}).Poll(context.Background())

	assert.Equal(t, PollStats{Tickers: 1, Fetched: 2, Created: 1, Duplicates: 1}, stats)
}

func TestDecodeArticle(t *testing.T) {
	req, err := DecodeArticle([]byte(`{"ticker":"tsla","title":"Tesla recalls 2M cars",
		"abstract":"<div>Safety issue</div>","link":"https://x.example/1","source":"Reuters","date":"2024-05-06 09:30:00"}`))
	require.NoError(t, err)
	assert.Equal(t, "tsla", req.Ticker)
	assert.Equal(t, "Tesla recalls 2M cars", req.Headline)
	assert.Equal(t, "Safety issue", req.Summary)
	assert.Equal(t, "https://x.example/1", req.SourceURL)
	assert.Equal(t, time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC), req.PublishedAt)
	assert.Equal(t, model.TierPremium, req.SourceTier)

	req, err = DecodeArticle([]byte(`{"ticker":"F","headline":"Ford","url":"u","published_at":1714996800,"source_tier":"official"}`))
	require.NoError(t, err)
	assert.Equal(t, model.TierOfficial, req.SourceTier)
	assert.Equal(t, model.SourceNews, req.SourceType)

	_, err = DecodeArticle([]byte(`not json`))
	assert.Error(t, err)
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestKafkaSourceCommitsProcessedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"ticker":"AAPL","headline":"a","url":"u1"}`)},
		{Offset: 2, Value: []byte(`garbage`)},
		{Offset: 3, Value: []byte(`{"ticker":"AAPL","headline":"b","url":"u2"}`)},
	}}
	ingester := &fakeIngester{}
	source := &KafkaSource{reader: reader, ingester: ingester}

	require.NoError(t, source.Run(ctx))
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
	assert.Len(t, ingester.reqs, 2)
}

func TestKafkaSourceStopsOnIngestFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 7, Value: []byte(`{"ticker":"AAPL","headline":"a","url":"u1"}`)},
	}}
	source := &KafkaSource{reader: reader, ingester: &fakeIngester{err: errors.New("db down")}}

	assert.Error(t, source.Run(ctx))
	assert.Empty(t, reader.committed)
}
