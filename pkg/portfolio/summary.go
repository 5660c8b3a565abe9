package portfolio

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ImpactRadar/pkg/impact"
	"ImpactRadar/pkg/model"
)

// 组合情绪标签
const (
	LabelBullish         = "bullish"
	LabelSlightlyBullish = "slightly_bullish"
	LabelNeutral         = "neutral"
	LabelSlightlyBearish = "slightly_bearish"
	LabelBearish         = "bearish"
)

var actionWeight = map[model.RecommendationType]float64{
	model.ActionStrongBuy:  2,
	model.ActionBuy:        1,
	model.ActionHold:       0,
	model.ActionSell:       -1,
	model.ActionStrongSell: -2,
}

// Summarize 由各股票建议的分布确定性地汇总出组合结论
func (a *Analyzer) Summarize(user *model.User, holdings []model.Holding, prices map[string]decimal.Decimal, recs []model.RebalanceRecommendation) model.PortfolioSummary {
	summary := model.PortfolioSummary{
		Distribution: make(map[model.RecommendationType]int),
		Risk:         model.RiskLevelLow,
	}
	for _, rec := range recs {
		summary.Distribution[rec.Action]++
		summary.NetScore += actionWeight[rec.Action]
	}
	if len(recs) > 0 {
		summary.NetScore = impact.Round4(summary.NetScore / float64(len(recs)))
	}
	summary.SentimentLabel = SentimentLabel(summary.NetScore)

	a.assessRisk(&summary, user, holdings, prices, recs)
	summary.Advice = advice(summary)
	return summary
}

// SentimentLabel 净分映射为情绪标签
func SentimentLabel(net float64) string {
	switch {
	case net > 0.5:
		return LabelBullish
	case net > 0.15:
		return LabelSlightlyBullish
	case net < -0.5:
		return LabelBearish
	case net < -0.15:
		return LabelSlightlyBearish
	default:
		return LabelNeutral
	}
}

// assessRisk 集中持仓上的负面建议与现金缓冲不足共同决定风险等级
func (a *Analyzer) assessRisk(summary *model.PortfolioSummary, user *model.User, holdings []model.Holding, prices map[string]decimal.Decimal, recs []model.RebalanceRecommendation) {
	threshold := a.cfg.ConcentrationThreshold

	var concentratedNegative, strongConcentrated, negative int
	for _, rec := range recs {
		isNegative := rec.Action == model.ActionSell || rec.Action == model.ActionStrongSell
		if !isNegative {
			continue
		}
		negative++
		if rec.Exposure > threshold {
			concentratedNegative++
			summary.RiskNotes = append(summary.RiskNotes,
				fmt.Sprintf("%s is %.0f%% of the portfolio with a %s signal", rec.Ticker, rec.Exposure*100,
					strings.ReplaceAll(string(rec.Action), "_", " ")))
			if rec.Action == model.ActionStrongSell {
				strongConcentrated++
			}
		}
	}

	profile := model.RiskModerate
	cash := decimal.Zero
	if user != nil {
		profile = user.RiskProfile
		cash = user.CashBuffer
	}
	invested := decimal.Zero
	for _, h := range holdings {
		invested = invested.Add(impact.HoldingValue(h, prices))
	}
	summary.CashTarget = profile.CashTarget()
	if total := invested.Add(cash); total.IsPositive() {
		summary.CashRatio, _ = cash.Div(total).Round(4).Float64()
	}
	cashShort := invested.IsPositive() && summary.CashRatio < summary.CashTarget
	if cashShort {
		summary.RiskNotes = append(summary.RiskNotes,
			fmt.Sprintf("cash buffer %.1f%% is below the %.0f%% target for a %s profile",
				summary.CashRatio*100, summary.CashTarget*100, profile))
	}

	switch {
	case strongConcentrated > 0 || concentratedNegative >= 2 || (concentratedNegative == 1 && cashShort):
		summary.Risk = model.RiskLevelHigh
	case concentratedNegative == 1 || cashShort || (len(recs) > 0 && negative*2 > len(recs)):
		summary.Risk = model.RiskLevelModerate
	default:
		summary.Risk = model.RiskLevelLow
	}
}

func advice(s model.PortfolioSummary) string {
	var base string
	switch s.SentimentLabel {
	case LabelBullish:
		base = "News flow across holdings is strongly positive; consider adding to the highest-conviction buys."
	case LabelSlightlyBullish:
		base = "News flow leans positive; selective additions are supported."
	case LabelBearish:
		base = "News flow across holdings is strongly negative; consider trimming the weakest positions."
	case LabelSlightlyBearish:
		base = "News flow leans negative; review positions flagged as sell."
	default:
		base = "No clear direction in recent news; maintain current allocation."
	}
	switch s.Risk {
	case model.RiskLevelHigh:
		return base + " Risk is high: reduce concentrated positions with negative signals and rebuild the cash buffer."
	case model.RiskLevelModerate:
		return base + " Risk is moderate: watch concentrated positions and the cash buffer."
	default:
		return base
	}
}
