package analog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

type fakeStore struct {
	peers    map[string][]string
	articles []model.Article
	closes   map[string]map[string]float64 // symbol -> yyyy-mm-dd -> close
	err      error
}

func (f *fakeStore) SectorPeers(_ context.Context, ticker string) ([]string, error) {
	return f.peers[ticker], f.err
}

func (f *fakeStore) ArticlesByCategory(_ context.Context, tickers []string, category model.EventCategory, since, before time.Time, limit int) ([]model.Article, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := map[string]bool{}
	for _, t := range tickers {
		want[t] = true
	}
	var out []model.Article
	for _, a := range f.articles {
		if want[a.Ticker] && a.Category == category && !a.PublishedAt.Before(since) && a.PublishedAt.Before(before) {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CloseOnOrAfter(_ context.Context, symbol string, t time.Time) (decimal.Decimal, time.Time, bool, error) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		d := day.AddDate(0, 0, i)
		if v, ok := f.closes[symbol][d.Format("2006-01-02")]; ok {
			return decimal.NewFromFloat(v), d, true, nil
		}
	}
	return decimal.Zero, time.Time{}, false, nil
}

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newService(store Store) *Service {
	s := New(store, config.DefaultScoring())
	s.now = func() time.Time { return now }
	return s
}

// event 生成一次事件：发布日收盘 100，5 日后与 30 日后的收盘价
func event(store *fakeStore, ticker string, published time.Time, c5, c30 float64) {
	store.articles = append(store.articles, model.Article{
		Ticker: ticker, Category: model.CategoryEarnings, PublishedAt: published,
	})
	if store.closes[ticker] == nil {
		store.closes[ticker] = map[string]float64{}
	}
	store.closes[ticker][published.Format("2006-01-02")] = 100
	store.closes[ticker][published.AddDate(0, 0, 5).Format("2006-01-02")] = c5
	if c30 > 0 {
		store.closes[ticker][published.AddDate(0, 0, 30).Format("2006-01-02")] = c30
	}
}

func TestFindAnalogsMedians(t *testing.T) {
	store := &fakeStore{peers: map[string][]string{"AAPL": {"AAPL", "MSFT"}}, closes: map[string]map[string]float64{}}
	event(store, "AAPL", now.AddDate(0, -3, 0), 102, 110)
	event(store, "AAPL", now.AddDate(0, -6, 0), 96, 90)
	event(store, "MSFT", now.AddDate(0, -9, 0), 105, 120)
	event(store, "AAPL", now.AddDate(-1, 0, 0), 150, 0) // 30 日收盘缺失

	data, err := newService(store).FindAnalogs(context.Background(), "aapl", model.CategoryEarnings)
	require.NoError(t, err)

	assert.Equal(t, 4, data.Count)
	// 5 日: [2, -4, 5, 50] -> (2+5)/2
	assert.InDelta(t, 3.5, data.MedianMove5D, 1e-9)
	// 30 日: [10, -10, 20]
	assert.InDelta(t, 10, data.MedianMove30D, 1e-9)
	assert.True(t, data.SectorIncluded)
	assert.Contains(t, data.Pattern, "sector peers")
}

func TestFindAnalogsBelowMinimum(t *testing.T) {
	store := &fakeStore{closes: map[string]map[string]float64{}}
	event(store, "TSLA", now.AddDate(0, -1, 0), 110, 120)
	event(store, "TSLA", now.AddDate(0, -2, 0), 90, 80)

	data, err := newService(store).FindAnalogs(context.Background(), "TSLA", model.CategoryEarnings)
	require.NoError(t, err)
	assert.Zero(t, data.Count)
	assert.Contains(t, data.Pattern, "insufficient history")
}

func TestFindAnalogsSkipsEventsWithoutPrices(t *testing.T) {
	store := &fakeStore{closes: map[string]map[string]float64{}}
	for i := 1; i <= 3; i++ {
		store.articles = append(store.articles, model.Article{
			Ticker: "NFLX", Category: model.CategoryEarnings, PublishedAt: now.AddDate(0, -i, 0),
		})
	}
	data, err := newService(store).FindAnalogs(context.Background(), "NFLX", model.CategoryEarnings)
	require.NoError(t, err)
	assert.Zero(t, data.Count)
}

func TestFindAnalogsStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	_, err := newService(store).FindAnalogs(context.Background(), "AAPL", model.CategoryEarnings)
	assert.Error(t, err)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, -1.0, Median([]float64{-1, -100, 50}))
}
