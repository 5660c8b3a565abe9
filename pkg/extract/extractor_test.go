package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

func newExtractor() *Extractor {
	return New(config.DefaultScoring())
}

func article(headline string) *model.Article {
	return &model.Article{ID: "a1", Ticker: "AAPL", Headline: headline, SourceTier: model.TierStandard}
}

func TestExtractPercentCue(t *testing.T) {
	e := newExtractor()
	tests := []struct {
		headline  string
		magnitude int
	}{
		{"AAPL beats earnings by 18%", 3},
		{"MSFT revenue up 12%", 2},
		{"GOOGL shares drop 5%", 1},
		{"TSLA announces new model", 1},
		{"NVDA slips 1.5 percent in early trade", 1},
	}
	for _, tt := range tests {
		t.Run(tt.headline, func(t *testing.T) {
			sig := e.Extract(article(tt.headline))
			assert.Equal(t, tt.magnitude, sig.Magnitude, sig.Reasoning)
		})
	}
}

func TestExtractDollarCue(t *testing.T) {
	e := newExtractor()
	tests := []struct {
		headline  string
		magnitude int
	}{
		{"$8B acquisition", 3},
		{"$2.5B contract", 2},
		{"$500M funding", 1},
		{"Boeing lands $1.2 billion contract", 2},
		{"Startup raises $40M", 1},
		{"Regulators open probe into Meta", 2},
	}
	for _, tt := range tests {
		t.Run(tt.headline, func(t *testing.T) {
			sig := e.Extract(article(tt.headline))
			assert.Equal(t, tt.magnitude, sig.Magnitude, sig.Reasoning)
		})
	}
}

func TestExtractCuesNeverLowerMagnitude(t *testing.T) {
	e := newExtractor()
	// 并购默认量级为 3，较小金额不会下调
	sig := e.Extract(article("Cisco completes $200M acquisition"))
	assert.Equal(t, model.CategoryMergerAcquisition, sig.Category)
	assert.Equal(t, 3, sig.Magnitude)
}

func TestExtractGuidanceOverride(t *testing.T) {
	e := newExtractor()
	headlines := []string{
		"Intel cuts guidance",
		"Apple raises full-year guidance after 2% beat",
		"Nike lowered guidance for Q3",
		"Walmart reaffirms guidance",
		"Target is raising its guidance on strong holiday sales",
		"Company cut guidance, shares fall 1%",
	}
	for _, h := range headlines {
		t.Run(h, func(t *testing.T) {
			sig := e.Extract(article(h))
			assert.Equal(t, 3, sig.Magnitude, sig.Reasoning)
			assert.Contains(t, sig.Reasoning, "guidance override")
		})
	}

	// 没有方向性动词时不触发覆盖
	sig := e.Extract(article("Analysts debate AAPL guidance"))
	assert.NotContains(t, sig.Reasoning, "guidance override")
}

func TestExtractTierConfidence(t *testing.T) {
	e := newExtractor()
	tests := []struct {
		tier model.SourceTier
		want float64
	}{
		{model.TierOfficial, 1.00},
		{model.TierPremium, 0.90},
		{model.TierStandard, 0.70},
		{model.TierSocial, 0.40},
		{"", 0.70},
	}
	for _, tt := range tests {
		a := article("AAPL beats earnings")
		a.SourceTier = tt.tier
		sig := e.Extract(a)
		assert.Equal(t, tt.want, sig.BaseConfidence, string(tt.tier))
		assert.Equal(t, tt.want, sig.Confidence, string(tt.tier))
		assert.Zero(t, sig.ConsensusBonus)
	}
}

func TestExtractSentiment(t *testing.T) {
	e := newExtractor()
	tests := []struct {
		headline  string
		sentiment int
	}{
		{"AAPL beats earnings by 18%", 1},
		{"GOOGL shares drop 5%", -1},
		{"Meta hit with antitrust lawsuit", -1},
		{"Amazon wins cloud contract", 1},
		{"Earnings call scheduled for Tuesday", 0},
		{"Shares up then down", 0},
		{"TSLA announces new model", 0},
	}
	for _, tt := range tests {
		t.Run(tt.headline, func(t *testing.T) {
			assert.Equal(t, tt.sentiment, e.Extract(article(tt.headline)).Sentiment)
		})
	}
}

func TestExtractSentimentFallsBackToSummary(t *testing.T) {
	e := newExtractor()
	a := article("TSLA announces new model")
	a.Summary = "Deliveries are expected to drop as the lineup changes."
	sig := e.Extract(a)
	assert.Equal(t, -1, sig.Sentiment)
	assert.Contains(t, sig.Reasoning, "from summary")
}

func TestExtractEmptyHeadline(t *testing.T) {
	e := newExtractor()
	a := article("   ")
	a.Summary = "Shares surge on record results"
	a.SourceTier = model.TierPremium

	sig := e.Extract(a)
	assert.Equal(t, model.CategoryUnknown, sig.Category)
	assert.Equal(t, 1, sig.Magnitude)
	assert.Equal(t, 0, sig.Sentiment)
	assert.Equal(t, 0.90, sig.Confidence)

	require.NotPanics(t, func() { e.Extract(nil) })
}

func TestClassifyPriority(t *testing.T) {
	e := newExtractor()
	tests := []struct {
		headline string
		want     model.EventCategory
	}{
		{"Apple to report earnings next week", model.CategoryEarningsCalendar},
		{"AAPL beats earnings by 18%", model.CategoryEarnings},
		{"Microsoft raises outlook", model.CategoryGuidance},
		{"Broadcom agrees to acquire VMware", model.CategoryMergerAcquisition},
		{"SEC charges executives", model.CategoryRegulatory},
		{"Starbucks CEO steps down", model.CategoryLeadership},
		{"Google lays off 12,000", model.CategoryLayoffs},
		{"Ford recalls 500,000 vehicles", model.CategoryProductRecall},
		{"Goldman upgrades Nvidia", model.CategoryAnalystRating},
		{"Apple announces $90B buyback", model.CategoryDividendBuyback},
		{"TSLA announces new model", model.CategoryProductLaunch},
		{"Lockheed awarded Navy contract", model.CategoryContractWin},
		{"Fed holds interest rates steady", model.CategoryMacro},
		{"MSFT revenue up 12%", model.CategoryUnknown},
		{"", model.CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.headline, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Classify(tt.headline))
		})
	}
}

func TestClassifyMatchesWholeWords(t *testing.T) {
	e := newExtractor()
	// "steps" 不应命中 earnings 的 "eps"，"finance" 不应命中 regulatory
	assert.Equal(t, model.CategoryLeadership, e.Classify("CFO steps down"))
	assert.Equal(t, model.CategoryUnknown, e.Classify("Company secures financing"))
}

func TestExtractReasoningNamesRules(t *testing.T) {
	e := newExtractor()
	sig := e.Extract(article("AAPL beats earnings by 18%"))
	assert.True(t, strings.HasPrefix(sig.Reasoning, "category=earnings"))
	assert.Contains(t, sig.Reasoning, "percent cue 18%")
	assert.Contains(t, sig.Reasoning, "+beats")
	assert.Equal(t, "a1", sig.ArticleID)
}
