package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

func TestBonusBoundaries(t *testing.T) {
	c := New(config.DefaultScoring())
	tests := []struct {
		name      string
		sources   int
		agreement float64
		want      float64
	}{
		{"three sources at 80%", 3, 0.80, 0.15},
		{"two sources at 80%", 2, 0.80, 0.10},
		{"two sources at 60%", 2, 0.60, 0},
		{"three sources exactly 75%", 3, 0.75, 0.15},
		{"five sources at 74%", 5, 0.74, 0},
		{"single source", 1, 1.0, 0},
		{"no sources", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Bonus(tt.sources, tt.agreement))
		})
	}
}

func TestComputeCountsOneStancePerSource(t *testing.T) {
	c := New(config.DefaultScoring())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	members := []Member{
		{ArticleID: "1", Publisher: "Reuters", PublishedAt: now.Add(-3 * time.Hour), Sentiment: -1},
		{ArticleID: "2", Publisher: "reuters", PublishedAt: now.Add(-1 * time.Hour), Sentiment: 1},
		{ArticleID: "3", Publisher: "Bloomberg", PublishedAt: now, Sentiment: 1},
		{ArticleID: "4", Publisher: "WSJ", PublishedAt: now.Add(-2 * time.Hour), Sentiment: 1},
		{ArticleID: "5", Publisher: "CNBC", PublishedAt: now.Add(-30 * time.Minute), Sentiment: -1},
	}

	data := c.Compute(members, 24)
	assert.Equal(t, 4, data.Sources)
	assert.Equal(t, 3, data.Upgrades)
	assert.Equal(t, 1, data.Downgrades)
	assert.Equal(t, 24, data.WindowHours)
	assert.InDelta(t, 0.75, data.Agreement, 1e-9)
	assert.Equal(t, 0.15, data.Bonus)
}

func TestComputeIgnoresArticlesOutsideWindow(t *testing.T) {
	c := New(config.DefaultScoring())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	members := []Member{
		{ArticleID: "1", Publisher: "A", PublishedAt: now, Sentiment: 1},
		{ArticleID: "2", Publisher: "B", PublishedAt: now.Add(-2 * time.Hour), Sentiment: 1},
		{ArticleID: "3", Publisher: "C", PublishedAt: now.Add(-30 * time.Hour), Sentiment: -1},
	}

	data := c.Compute(members, 24)
	assert.Equal(t, 2, data.Sources)
	assert.Equal(t, 1.0, data.Agreement)
	assert.Equal(t, 0.10, data.Bonus)
}

func TestComputeSplitStance(t *testing.T) {
	c := New(config.DefaultScoring())
	now := time.Now()
	data := c.Compute([]Member{
		{ArticleID: "1", Publisher: "A", PublishedAt: now, Sentiment: 1},
		{ArticleID: "2", Publisher: "B", PublishedAt: now, Sentiment: -1},
	}, 24)
	assert.Equal(t, 0.5, data.Agreement)
	assert.Zero(t, data.Bonus)

	assert.Zero(t, c.Compute(nil, 24).Sources)
}

func TestSignalApplyBonusCapsAtOne(t *testing.T) {
	sig := model.Signal{BaseConfidence: 0.90, Confidence: 0.90}
	sig.ApplyBonus(0.15)
	assert.Equal(t, 1.0, sig.Confidence)

	sig = model.Signal{BaseConfidence: 0.70, Confidence: 0.70}
	sig.ApplyBonus(0.10)
	assert.InDelta(t, 0.80, sig.Confidence, 1e-9)
}

func TestAssignCluster(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	older, newer, other := "cluster-old", "cluster-new", "cluster-other"
	candidates := []model.Article{
		{ID: "a", Ticker: "AAPL", Category: model.CategoryEarnings, PublishedAt: now.Add(-10 * time.Hour), ClusterID: &older},
		{ID: "b", Ticker: "AAPL", Category: model.CategoryEarnings, PublishedAt: now.Add(-2 * time.Hour), ClusterID: &newer},
		{ID: "c", Ticker: "AAPL", Category: model.CategoryGuidance, PublishedAt: now.Add(-1 * time.Hour), ClusterID: &other},
		{ID: "d", Ticker: "MSFT", Category: model.CategoryEarnings, PublishedAt: now, ClusterID: &other},
	}

	a := &model.Article{ID: "x", Ticker: "AAPL", Category: model.CategoryEarnings, PublishedAt: now}
	id, created := AssignCluster(a, candidates, 24)
	assert.Equal(t, newer, id)
	assert.False(t, created)

	late := &model.Article{ID: "y", Ticker: "AAPL", Category: model.CategoryEarnings, PublishedAt: now.Add(48 * time.Hour)}
	id, created = AssignCluster(late, candidates, 24)
	assert.True(t, created)
	assert.NotEmpty(t, id)
	assert.NotEqual(t, newer, id)

	preset := "given"
	withCluster := &model.Article{ID: "z", Ticker: "AAPL", ClusterID: &preset}
	id, created = AssignCluster(withCluster, candidates, 24)
	assert.Equal(t, "given", id)
	assert.False(t, created)
}
