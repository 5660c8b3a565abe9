package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ImpactRadar/pkg/engine"
	"ImpactRadar/pkg/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	neutralStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

func renderStats(stats engine.ImpactStats, elapsed time.Duration) string {
	body := fmt.Sprintf("%s %d\n%s %d\n%s %d\n%s %s",
		labelStyle.Render("users  "), stats.Users,
		labelStyle.Render("written"), stats.Written,
		labelStyle.Render("skipped"), stats.Skipped,
		labelStyle.Render("elapsed"), elapsed.Round(time.Millisecond))
	return titleStyle.Render("Impact recompute") + "\n" + boxStyle.Render(body)
}

func actionStyle(action model.RecommendationType) lipgloss.Style {
	switch action {
	case model.ActionStrongBuy, model.ActionBuy:
		return positiveStyle
	case model.ActionStrongSell, model.ActionSell:
		return negativeStyle
	default:
		return neutralStyle
	}
}

func renderAnalysis(r *model.PortfolioAnalysisResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Portfolio analysis " + r.UserID))
	b.WriteString("\n")

	rows := []string{fmt.Sprintf("%-8s %-12s %7s %6s %5s %8s", "TICKER", "ACTION", "AVG", "CONF", "NEWS", "EXPOSURE")}
	for _, rec := range r.Recommendations {
		action := actionStyle(rec.Action).Render(fmt.Sprintf("%-12s", rec.Action))
		rows = append(rows, fmt.Sprintf("%-8s %s %+7.3f %6.2f %5d %7.1f%%",
			rec.Ticker, action, rec.AvgImpactScore, rec.Confidence, rec.NewsCount, rec.Exposure*100))
		if rec.Rationale != "" {
			rows = append(rows, labelStyle.Render("  "+rec.Rationale))
		}
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	s := r.Summary
	summary := fmt.Sprintf("%s %+.3f (%s)\n%s %s\n%s %.1f%% / target %.1f%%\n%s %s",
		labelStyle.Render("net score"), s.NetScore, s.SentimentLabel,
		labelStyle.Render("risk     "), s.Risk,
		labelStyle.Render("cash     "), s.CashRatio*100, s.CashTarget*100,
		labelStyle.Render("advice   "), s.Advice)
	for _, note := range s.RiskNotes {
		summary += "\n" + labelStyle.Render("  - "+note)
	}
	b.WriteString(boxStyle.Render(summary))

	if r.Degraded {
		b.WriteString("\n")
		b.WriteString(neutralStyle.Render("degraded: " + strings.Join(r.Reasons, "; ")))
	}
	return b.String()
}

func renderAlert(a *model.Alert) string {
	header := fmt.Sprintf("%s [%s/%s]", a.Subject, a.Severity, a.Status)
	return titleStyle.Render(header) + "\n" + boxStyle.Render(a.Content)
}
