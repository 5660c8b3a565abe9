// pkg/model/analysis.go
package model

import "time"

// ConsensusData 同一事件簇内的多源一致性
type ConsensusData struct {
	ClusterID   string  `json:"cluster_id,omitempty"`
	Sources     int     `json:"sources"`    // 去重后的来源数
	Upgrades    int     `json:"upgrades"`   // 正面来源数
	Downgrades  int     `json:"downgrades"` // 负面来源数
	WindowHours int     `json:"window_hours"`
	Agreement   float64 `json:"agreement"` // 多数立场来源数 / 来源数
	Bonus       float64 `json:"bonus"`
}

// AnalogData 历史类比事件统计
type AnalogData struct {
	Count          int     `json:"count"`
	MedianMove5D   float64 `json:"median_move_5d"`  // 百分比
	MedianMove30D  float64 `json:"median_move_30d"` // 百分比
	Pattern        string  `json:"pattern"`
	SectorIncluded bool    `json:"sector_included"`
}

// RecommendationType 调仓建议
type RecommendationType string

const (
	ActionStrongBuy  RecommendationType = "strong_buy"
	ActionBuy        RecommendationType = "buy"
	ActionHold       RecommendationType = "hold"
	ActionSell       RecommendationType = "sell"
	ActionStrongSell RecommendationType = "strong_sell"
)

// KeySignal 某个事件分类在窗口内的出现情况
type KeySignal struct {
	Category  EventCategory `json:"category"`
	Count     int           `json:"count"`
	LatestAt  time.Time     `json:"latest_at"`
	AvgImpact float64       `json:"avg_impact"`
}

// RebalanceRecommendation 单个股票的调仓建议
type RebalanceRecommendation struct {
	Ticker         string             `json:"ticker"`
	Action         RecommendationType `json:"action"`
	Confidence     float64            `json:"confidence"`
	Rationale      string             `json:"rationale"`
	KeySignals     []KeySignal        `json:"key_signals"`
	AvgImpactScore float64            `json:"avg_impact_score"`
	NewsCount      int                `json:"news_count"`
	Exposure       float64            `json:"exposure"`
	Analog         *AnalogData        `json:"analog,omitempty"`
}

// RiskLevel 组合风险等级
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelModerate RiskLevel = "moderate"
	RiskLevelHigh     RiskLevel = "high"
)

// PortfolioSummary 组合层面的汇总
type PortfolioSummary struct {
	Distribution   map[RecommendationType]int `json:"distribution"`
	NetScore       float64                    `json:"net_score"`
	SentimentLabel string                     `json:"sentiment_label"`
	Risk           RiskLevel                  `json:"risk"`
	RiskNotes      []string                   `json:"risk_notes"`
	CashRatio      float64                    `json:"cash_ratio"`
	CashTarget     float64                    `json:"cash_target"`
	Advice         string                     `json:"advice"`
}

// PortfolioAnalysisResult 组合分析结果，Degraded 表示部分非关键数据不可用
type PortfolioAnalysisResult struct {
	UserID          string                    `json:"user_id"`
	GeneratedAt     time.Time                 `json:"generated_at"`
	Recommendations []RebalanceRecommendation `json:"recommendations"`
	Summary         PortfolioSummary          `json:"summary"`
	Degraded        bool                      `json:"degraded"`
	Reasons         []string                  `json:"reasons,omitempty"`
}
