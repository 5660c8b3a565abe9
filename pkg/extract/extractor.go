// Package extract 把一篇文章转换为 Signal：事件分类、量级、情绪与基础置信度。
// 纯函数，不访问网络或存储。
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

var (
	percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:%|percent\b|pct\b)`)
	dollarPattern  = regexp.MustCompile(`\$\s?(\d+(?:,\d{3})*(?:\.\d+)?)\s*(trillion|billion|million|thousand|tn|bn|mn|t|b|m|k)?\b`)

	guidanceWord = regexp.MustCompile(`\bguidance\b`)
	guidanceVerb = regexp.MustCompile(`\b(?:rais(?:e|es|ed|ing)|cut(?:s|ting)?|lower(?:s|ed|ing)?|reaffirm(?:s|ed|ing)?)\b`)
)

var dollarUnits = map[string]float64{
	"":         1,
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"mn":       1e6,
	"million":  1e6,
	"b":        1e9,
	"bn":       1e9,
	"billion":  1e9,
	"t":        1e12,
	"tn":       1e12,
	"trillion": 1e12,
}

var (
	positiveWords = []string{
		"beat", "beats", "tops", "exceeds", "up", "rise", "rises", "rose", "jump", "jumps", "surge", "surges",
		"soar", "soars", "gain", "gains", "rally", "rallies", "raise", "raises", "raised", "win", "wins", "won",
		"record", "upgrade", "upgrades", "upgraded", "outperform", "approves", "approved", "approval", "higher",
		"strong", "boost", "boosts",
	}
	negativeWords = []string{
		"miss", "misses", "missed", "down", "drop", "drops", "fall", "falls", "fell", "plunge", "plunges",
		"slump", "slumps", "decline", "declines", "cut", "cuts", "lower", "lowers", "lowered", "slash", "slashes",
		"lawsuit", "sued", "sues", "probe", "fined", "recall", "recalls", "layoff", "layoffs", "downgrade",
		"downgrades", "downgraded", "underperform", "loss", "losses", "weak", "warning", "warns", "resigns",
	}
	neutralWords = []string{
		"neutral", "scheduled", "reaffirm", "reaffirms", "reaffirmed", "maintains", "unchanged",
	}
)

type categoryMatcher struct {
	info    model.CategoryInfo
	pattern *regexp.Regexp
}

// Extractor 基于规则表的信号提取器，可并发使用
type Extractor struct {
	tierConfidence map[model.SourceTier]float64
	dollarTiers    []config.Tier
	percentTiers   []config.Tier
	matchers       []categoryMatcher
	positive       *regexp.Regexp
	negative       *regexp.Regexp
	neutral        *regexp.Regexp
	now            func() time.Time
}

// New 按打分配置构建提取器
func New(cfg config.Scoring) *Extractor {
	e := &Extractor{
		tierConfidence: make(map[model.SourceTier]float64, len(cfg.TierConfidence)),
		dollarTiers:    sortedTiers(cfg.DollarTiers),
		percentTiers:   sortedTiers(cfg.PercentTiers),
		positive:       wordPattern(positiveWords),
		negative:       wordPattern(negativeWords),
		neutral:        wordPattern(neutralWords),
		now:            time.Now,
	}
	for tier, c := range cfg.TierConfidence {
		e.tierConfidence[model.SourceTier(tier)] = c
	}
	for _, info := range model.Categories.Ordered() {
		if len(info.Keywords) == 0 {
			continue
		}
		e.matchers = append(e.matchers, categoryMatcher{info: info, pattern: wordPattern(info.Keywords)})
	}
	return e
}

// Classify 按优先级扫描标题关键词，首个命中的分类胜出
func (e *Extractor) Classify(headline string) model.EventCategory {
	lower := strings.ToLower(headline)
	if strings.TrimSpace(lower) == "" {
		return model.CategoryUnknown
	}
	for _, m := range e.matchers {
		if m.pattern.MatchString(lower) {
			return m.info.Category
		}
	}
	return model.CategoryUnknown
}

// Confidence 来源分级对应的基础置信度，未知分级按 standard 处理
func (e *Extractor) Confidence(tier model.SourceTier) float64 {
	if c, ok := e.tierConfidence[tier]; ok {
		return c
	}
	return e.tierConfidence[model.TierStandard]
}

// Extract 计算文章的 Signal，任何输入都不会失败
func (e *Extractor) Extract(article *model.Article) model.Signal {
	if article == nil {
		article = &model.Article{}
	}
	headline := strings.ToLower(strings.TrimSpace(article.Headline))
	base := e.Confidence(article.SourceTier)

	sig := model.Signal{
		ArticleID:      article.ID,
		Category:       model.CategoryUnknown,
		Magnitude:      model.MagnitudeMinor,
		BaseConfidence: base,
		Confidence:     base,
		ComputedAt:     e.now().UTC(),
	}
	if headline == "" {
		sig.Reasoning = fmt.Sprintf("empty headline; category=unknown magnitude=1 sentiment=0; tier=%s confidence=%.2f",
			tierName(article.SourceTier), base)
		return sig
	}

	sig.Category = e.Classify(headline)
	info := model.Categories.Lookup(sig.Category)

	var reasons []string
	reasons = append(reasons, fmt.Sprintf("category=%s (%s)", sig.Category, info.Description))

	magnitude, cue := e.magnitude(headline, info.DefaultMagnitude)
	sig.Magnitude = magnitude
	reasons = append(reasons, fmt.Sprintf("magnitude=%d via %s", magnitude, cue))

	sentiment, words, neutral := e.sentiment(headline)
	source := "headline"
	if len(words) == 0 {
		if summary := strings.ToLower(article.Summary); strings.TrimSpace(summary) != "" {
			sentiment, words, neutral = e.sentiment(summary)
			source = "summary"
		}
	}
	sig.Sentiment = sentiment
	switch {
	case len(words) > 0:
		reasons = append(reasons, fmt.Sprintf("sentiment=%+d from %s [%s]", sentiment, source, strings.Join(words, ", ")))
	default:
		reasons = append(reasons, "sentiment=0 (no directional keyword)")
	}
	if len(neutral) > 0 {
		reasons = append(reasons, fmt.Sprintf("neutral cues [%s]", strings.Join(neutral, ", ")))
	}
	reasons = append(reasons, fmt.Sprintf("tier=%s confidence=%.2f", tierName(article.SourceTier), base))

	sig.Reasoning = strings.Join(reasons, "; ")
	return sig
}

// magnitude 从分类默认值出发，量化线索只上调；guidance 方向性表述固定为 3
func (e *Extractor) magnitude(headline string, base int) (int, string) {
	if guidanceWord.MatchString(headline) && guidanceVerb.MatchString(headline) {
		return model.MagnitudeMajor, "guidance override"
	}

	magnitude, cue := base, "category default"
	if pct, ok := largestPercent(headline); ok {
		if m := tierFor(pct, e.percentTiers); m > magnitude {
			magnitude, cue = m, fmt.Sprintf("percent cue %s%%", strconv.FormatFloat(pct, 'f', -1, 64))
		}
	}
	if amount, ok := largestDollar(headline); ok {
		if m := tierFor(amount, e.dollarTiers); m > magnitude {
			magnitude, cue = m, fmt.Sprintf("dollar cue $%s", humanDollars(amount))
		}
	}
	return magnitude, cue
}

// sentiment 正负关键词计数之差的符号
func (e *Extractor) sentiment(text string) (int, []string, []string) {
	pos := e.positive.FindAllString(text, -1)
	neg := e.negative.FindAllString(text, -1)
	neutral := e.neutral.FindAllString(text, -1)

	words := make([]string, 0, len(pos)+len(neg))
	for _, w := range pos {
		words = append(words, "+"+w)
	}
	for _, w := range neg {
		words = append(words, "-"+w)
	}

	switch {
	case len(pos) > len(neg):
		return 1, words, neutral
	case len(neg) > len(pos):
		return -1, words, neutral
	default:
		return 0, words, neutral
	}
}

func largestPercent(text string) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, m := range percentPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}

func largestDollar(text string) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, m := range dollarPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		v *= dollarUnits[m[2]]
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}

// tierFor 返回首个满足 value >= Min 的量级，未命中返回 0
func tierFor(value float64, tiers []config.Tier) int {
	for _, t := range tiers {
		if value >= t.Min {
			return t.Magnitude
		}
	}
	return 0
}

func sortedTiers(tiers []config.Tier) []config.Tier {
	out := append([]config.Tier(nil), tiers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Min > out[j].Min })
	return out
}

func wordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(w))
	}
	// 长词优先，避免短词抢先匹配
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func humanDollars(v float64) string {
	switch {
	case v >= 1e12:
		return strconv.FormatFloat(v/1e12, 'f', -1, 64) + "T"
	case v >= 1e9:
		return strconv.FormatFloat(v/1e9, 'f', -1, 64) + "B"
	case v >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', -1, 64) + "M"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

func tierName(t model.SourceTier) string {
	if t == "" {
		return string(model.TierStandard)
	}
	return string(t)
}
