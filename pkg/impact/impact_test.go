package impact

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

func TestAdjustExposureBoundary(t *testing.T) {
	c := New(config.DefaultScoring())
	tests := []struct {
		exposure float64
		want     float64
	}{
		{0.15, 0.15},
		{0.16, 0.192},
		{0.10, 0.10},
		{0.20, 0.24},
		{1.00, 1.20},
		{-0.2, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, c.AdjustExposure(tt.exposure), 1e-9, "exposure %.2f", tt.exposure)
	}
}

func TestComputeEndToEndScenario(t *testing.T) {
	c := New(config.DefaultScoring())
	sig := &model.Signal{ArticleID: "art", Sentiment: 1, Magnitude: 3, Confidence: 0.90, Category: model.CategoryMergerAcquisition}
	holding := &model.Holding{ID: "h1", UserID: "u1", Ticker: "aapl"}

	imp := c.Compute(sig, holding, 0.20)
	assert.InDelta(t, 0.24, imp.AdjustedExposure, 1e-9)
	assert.Equal(t, 0.648, imp.ImpactScore)
	assert.Equal(t, 0.20, imp.Exposure)
	assert.Equal(t, "u1", imp.UserID)
	assert.Equal(t, "art", imp.ArticleID)
	assert.Equal(t, "h1", imp.HoldingID)
	assert.Equal(t, "AAPL", imp.Ticker)
	assert.Equal(t, model.CategoryMergerAcquisition, imp.Category)
}

func TestComputeSignAndRange(t *testing.T) {
	c := New(config.DefaultScoring())
	holding := &model.Holding{ID: "h1", UserID: "u1", Ticker: "TSLA"}

	neg := c.Compute(&model.Signal{Sentiment: -1, Magnitude: 3, Confidence: 1}, holding, 1)
	assert.Equal(t, -3.6, neg.ImpactScore)

	neutral := c.Compute(&model.Signal{Sentiment: 0, Magnitude: 3, Confidence: 1}, holding, 0.5)
	assert.Zero(t, neutral.ImpactScore)
}

func TestSnapshot(t *testing.T) {
	published := time.Date(2024, 3, 4, 15, 30, 0, 0, time.FixedZone("EST", -5*3600))
	imp := model.Impact{}
	Snapshot(&imp, &model.Article{Headline: "h", PublishedAt: published, Category: model.CategoryLayoffs})
	assert.Equal(t, "h", imp.Headline)
	assert.Equal(t, time.UTC, imp.ArticlePublishedAt.Location())
	assert.True(t, published.Equal(imp.ArticlePublishedAt))
	assert.Equal(t, model.CategoryLayoffs, imp.Category)
}

func TestExposures(t *testing.T) {
	d := decimal.RequireFromString
	holdings := []model.Holding{
		{ID: "a", Ticker: "AAPL", Shares: d("10")},
		{ID: "b", Ticker: "MSFT", Shares: d("5"), CostBasis: decimal.NewNullDecimal(d("200"))},
		{ID: "c", Ticker: "XYZ", Shares: d("7")},
	}
	prices := map[string]decimal.Decimal{"AAPL": d("300")}

	got := Exposures(holdings, prices)
	// AAPL 3000，MSFT 按成本价 1000，XYZ 无价格信息
	assert.InDelta(t, 0.75, got["a"], 1e-9)
	assert.InDelta(t, 0.25, got["b"], 1e-9)
	assert.Zero(t, got["c"])
}

func TestExposuresEqualWeightWithoutValues(t *testing.T) {
	holdings := []model.Holding{
		{ID: "a", Ticker: "AAPL", Shares: decimal.NewFromInt(1)},
		{ID: "b", Ticker: "MSFT", Shares: decimal.NewFromInt(2)},
		{ID: "c", Ticker: "GOOGL", Shares: decimal.NewFromInt(3)},
		{ID: "d", Ticker: "AMZN", Shares: decimal.NewFromInt(4)},
	}
	got := Exposures(holdings, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 0.25, got[id])
	}
	assert.Empty(t, Exposures(nil, nil))
}

func TestUnpriced(t *testing.T) {
	d := decimal.RequireFromString
	holdings := []model.Holding{
		{ID: "a", Ticker: "AAPL", Shares: d("10")},
		{ID: "b", Ticker: "MSFT", Shares: d("5"), CostBasis: decimal.NewNullDecimal(d("200"))},
		{ID: "c", Ticker: "xyz", Shares: d("7")},
		{ID: "d", Ticker: "ZERO", Shares: d("0")},
	}
	assert.Equal(t, []string{"XYZ"}, Unpriced(holdings, map[string]decimal.Decimal{"AAPL": d("300")}))

	// 全部无市值时按等权计算，不算缺价
	assert.Empty(t, Unpriced(holdings[2:], nil))
	assert.Empty(t, Unpriced(nil, nil))
}

func TestRound4(t *testing.T) {
	assert.Equal(t, 0.1235, Round4(0.123456))
	assert.Equal(t, -0.1235, Round4(-0.123456))
}
