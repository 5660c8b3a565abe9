package alert

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ImpactRadar/pkg/model"
)

const quietDay = "Your holdings had a quiet day: no news affected your portfolio."

const disclaimer = "💡 Weigh these signals against the broader market and your own risk tolerance."

// digestGroup 日报中单个股票的汇总
type digestGroup struct {
	ticker   string
	net      float64
	articles int
	top      []model.Impact
}

func highImpactSubject(impacts []model.Impact) string {
	tickers := make([]string, 0, len(impacts))
	seen := make(map[string]struct{})
	for _, imp := range impacts {
		if _, ok := seen[imp.Ticker]; ok {
			continue
		}
		seen[imp.Ticker] = struct{}{}
		tickers = append(tickers, imp.Ticker)
	}
	return fmt.Sprintf("High-impact news: %s", strings.Join(tickers, ", "))
}

// formatHighImpact 高影响提醒正文
func formatHighImpact(impacts []model.Impact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 %d high-impact events for your holdings\n\n", len(impacts))
	for _, imp := range impacts {
		fmt.Fprintf(&b, "%s %s  %+.4f  %s\n", arrow(imp.ImpactScore), imp.Ticker, imp.ImpactScore, imp.Headline)
		fmt.Fprintf(&b, "   %s · magnitude %d · confidence %.2f · exposure %.1f%% · %s\n",
			model.Categories.Lookup(imp.Category).Description, imp.Magnitude, imp.Confidence,
			imp.Exposure*100, imp.ArticlePublishedAt.Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("\n")
	b.WriteString(disclaimer)
	return b.String()
}

func groupDigest(impacts []model.Impact) []digestGroup {
	byTicker := make(map[string][]model.Impact)
	for _, imp := range impacts {
		byTicker[imp.Ticker] = append(byTicker[imp.Ticker], imp)
	}

	groups := make([]digestGroup, 0, len(byTicker))
	for ticker, list := range byTicker {
		g := digestGroup{ticker: ticker, articles: countArticles(list)}
		for _, imp := range list {
			g.net += imp.ImpactScore
		}
		sorted := append([]model.Impact(nil), list...)
		SortByImpact(sorted)
		if len(sorted) > 3 {
			sorted = sorted[:3]
		}
		g.top = sorted
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if math.Abs(groups[i].net) != math.Abs(groups[j].net) {
			return math.Abs(groups[i].net) > math.Abs(groups[j].net)
		}
		return groups[i].ticker < groups[j].ticker
	})
	return groups
}

// formatDigest 每日总结正文
func formatDigest(day time.Time, groups []digestGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Daily digest for %s\n\n", day.Format("Mon, 02 Jan 2006"))
	for _, g := range groups {
		fmt.Fprintf(&b, "%s %s: net impact %+.4f from %d articles\n", arrow(g.net), g.ticker, g.net, g.articles)
		for _, imp := range g.top {
			fmt.Fprintf(&b, "   • %s (%+.4f)\n", imp.Headline, imp.ImpactScore)
		}
	}
	b.WriteString("\n")
	b.WriteString(disclaimer)
	return b.String()
}

func arrow(score float64) string {
	switch {
	case score > 0:
		return "▲"
	case score < 0:
		return "▼"
	default:
		return "•"
	}
}
