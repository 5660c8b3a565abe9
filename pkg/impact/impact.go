// Package impact 把 Signal 与用户持仓结合为个性化影响分。
package impact

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

// Calculator 影响分计算器
type Calculator struct {
	threshold float64
	factor    float64
	now       func() time.Time
}

// New 创建影响分计算器
func New(cfg config.Scoring) *Calculator {
	return &Calculator{
		threshold: cfg.ConcentrationThreshold,
		factor:    cfg.ConcentrationFactor,
		now:       time.Now,
	}
}

// AdjustExposure 仓位占比严格大于阈值时乘以集中度系数，恰好等于阈值不调整
func (c *Calculator) AdjustExposure(exposure float64) float64 {
	exposure = clamp01(exposure)
	if exposure > c.threshold {
		return exposure * c.factor
	}
	return exposure
}

// Compute impactScore = sentiment × magnitude × confidence × adjustedExposure，保留4位小数
func (c *Calculator) Compute(sig *model.Signal, holding *model.Holding, exposure float64) model.Impact {
	exposure = clamp01(exposure)
	adjusted := c.AdjustExposure(exposure)
	score := float64(sig.Sentiment) * float64(sig.Magnitude) * sig.Confidence * adjusted

	return model.Impact{
		UserID:           holding.UserID,
		ArticleID:        sig.ArticleID,
		HoldingID:        holding.ID,
		ImpactScore:      Round4(score),
		Exposure:         exposure,
		AdjustedExposure: adjusted,
		Ticker:           strings.ToUpper(holding.Ticker),
		Sentiment:        sig.Sentiment,
		Magnitude:        sig.Magnitude,
		Confidence:       sig.Confidence,
		Category:         sig.Category,
		ComputedAt:       c.now().UTC(),
	}
}

// Snapshot 写入文章侧的快照字段
func Snapshot(imp *model.Impact, article *model.Article) {
	imp.Headline = article.Headline
	imp.ArticlePublishedAt = article.PublishedAt.UTC()
	if imp.Category == "" {
		imp.Category = article.Category
	}
}

// Exposures 计算每个持仓占组合的比重，键为持仓 ID。
// 持仓市值优先使用最新收盘价，其次成本价；整个组合都没有价格信息时等权。
func Exposures(holdings []model.Holding, prices map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(holdings))
	if len(holdings) == 0 {
		return out
	}

	values := make([]decimal.Decimal, len(holdings))
	total := decimal.Zero
	for i, h := range holdings {
		values[i] = HoldingValue(h, prices)
		total = total.Add(values[i])
	}

	if !total.IsPositive() {
		weight := 1 / float64(len(holdings))
		for _, h := range holdings {
			out[h.ID] = weight
		}
		return out
	}

	for i, h := range holdings {
		share, _ := values[i].Div(total).Float64()
		out[h.ID] = clamp01(share)
	}
	return out
}

// Unpriced 组合中其他持仓有市值、自身既无收盘价也无成本价的持仓代码。
// 这些持仓的比重为 0，影响分随之为 0。
func Unpriced(holdings []model.Holding, prices map[string]decimal.Decimal) []string {
	var missing []string
	priced := false
	for _, h := range holdings {
		if HoldingValue(h, prices).IsPositive() {
			priced = true
			continue
		}
		if h.Shares.IsPositive() {
			missing = append(missing, strings.ToUpper(h.Ticker))
		}
	}
	if !priced {
		return nil
	}
	return missing
}

// HoldingValue 持仓市值：股数 × 最新收盘价，缺失时用成本价，都没有时为 0
func HoldingValue(h model.Holding, prices map[string]decimal.Decimal) decimal.Decimal {
	if !h.Shares.IsPositive() {
		return decimal.Zero
	}
	if p, ok := prices[strings.ToUpper(h.Ticker)]; ok && p.IsPositive() {
		return h.Shares.Mul(p)
	}
	if h.CostBasis.Valid && h.CostBasis.Decimal.IsPositive() {
		return h.Shares.Mul(h.CostBasis.Decimal)
	}
	return decimal.Zero
}

// Round4 四舍五入到4位小数
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
