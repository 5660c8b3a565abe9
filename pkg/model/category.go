package model

import "sort"

// EventCategory 新闻事件分类
type EventCategory string

const (
	CategoryEarningsCalendar  EventCategory = "earnings_calendar"
	CategoryEarnings          EventCategory = "earnings"
	CategoryGuidance          EventCategory = "guidance"
	CategoryMergerAcquisition EventCategory = "merger_acquisition"
	CategoryRegulatory        EventCategory = "regulatory_legal"
	CategoryLeadership        EventCategory = "leadership_change"
	CategoryLayoffs           EventCategory = "layoffs"
	CategoryProductRecall     EventCategory = "product_recall"
	CategoryAnalystRating     EventCategory = "analyst_rating"
	CategoryDividendBuyback   EventCategory = "dividend_buyback"
	CategoryProductLaunch     EventCategory = "product_launch"
	CategoryContractWin       EventCategory = "contract_win"
	CategoryMacro             EventCategory = "macro_sector"
	CategoryUnknown           EventCategory = "unknown"
)

// 量级先验
const (
	MagnitudeMinor    = 1
	MagnitudeModerate = 2
	MagnitudeMajor    = 3
)

// CategoryInfo 分类的静态属性
type CategoryInfo struct {
	Category         EventCategory
	Priority         int // 越小越先匹配
	DefaultMagnitude int
	Description      string
	Keywords         []string // 小写关键词，按词边界匹配
}

// CategoryTable 不可变的分类查找表
type CategoryTable struct {
	byCategory map[EventCategory]CategoryInfo
	ordered    []CategoryInfo
}

// Categories 进程内唯一的分类表，启动时构建
var Categories = newCategoryTable([]CategoryInfo{
	{
		Category: CategoryEarningsCalendar, Priority: 10, DefaultMagnitude: MagnitudeMinor,
		Description: "earnings calendar",
		Keywords: []string{"to report earnings", "will report earnings", "earnings date",
			"earnings call scheduled", "ahead of earnings", "earnings preview"},
	},
	{
		Category: CategoryEarnings, Priority: 20, DefaultMagnitude: MagnitudeModerate,
		Description: "earnings beat/miss",
		Keywords: []string{"earnings", "eps", "quarterly results", "quarterly profit", "quarterly loss",
			"profit warning", "beats estimates", "misses estimates"},
	},
	{
		Category: CategoryGuidance, Priority: 30, DefaultMagnitude: MagnitudeMajor,
		Description: "guidance change",
		Keywords:    []string{"guidance", "outlook", "forecast", "forecasts"},
	},
	{
		Category: CategoryMergerAcquisition, Priority: 40, DefaultMagnitude: MagnitudeMajor,
		Description: "M&A",
		Keywords: []string{"acquisition", "acquisitions", "acquire", "acquires", "acquired",
			"acquiring", "merger", "merge", "merges", "takeover", "buyout"},
	},
	{
		Category: CategoryRegulatory, Priority: 50, DefaultMagnitude: MagnitudeModerate,
		Description: "regulatory/legal",
		Keywords: []string{"lawsuit", "lawsuits", "sued", "sues", "antitrust", "sec", "ftc", "doj",
			"investigation", "probe", "probes", "settlement", "settles", "fined", "regulator",
			"regulators", "court", "fda"},
	},
	{
		Category: CategoryLeadership, Priority: 60, DefaultMagnitude: MagnitudeModerate,
		Description: "leadership change",
		Keywords: []string{"ceo", "cfo", "chief executive", "steps down", "resigns", "resignation",
			"appoints", "names new", "chairman"},
	},
	{
		Category: CategoryLayoffs, Priority: 70, DefaultMagnitude: MagnitudeModerate,
		Description: "layoffs",
		Keywords: []string{"layoff", "layoffs", "lays off", "job cuts", "cuts jobs", "cut jobs",
			"workforce reduction", "restructuring"},
	},
	{
		Category: CategoryProductRecall, Priority: 80, DefaultMagnitude: MagnitudeModerate,
		Description: "product recall",
		Keywords:    []string{"recall", "recalls", "recalled"},
	},
	{
		Category: CategoryAnalystRating, Priority: 90, DefaultMagnitude: MagnitudeMinor,
		Description: "analyst rating",
		Keywords: []string{"upgrade", "upgrades", "upgraded", "downgrade", "downgrades", "downgraded",
			"price target", "initiates coverage", "overweight", "underweight", "outperform", "underperform"},
	},
	{
		Category: CategoryDividendBuyback, Priority: 100, DefaultMagnitude: MagnitudeMinor,
		Description: "dividend/buyback",
		Keywords:    []string{"dividend", "dividends", "buyback", "buybacks", "share repurchase", "repurchase"},
	},
	{
		Category: CategoryProductLaunch, Priority: 110, DefaultMagnitude: MagnitudeMinor,
		Description: "product launch",
		Keywords: []string{"launch", "launches", "launched", "unveil", "unveils", "unveiled", "new model",
			"new product", "introduces", "debuts"},
	},
	{
		Category: CategoryContractWin, Priority: 120, DefaultMagnitude: MagnitudeMinor,
		Description: "contract win",
		Keywords:    []string{"contract", "contracts", "awarded", "partnership", "wins deal", "order"},
	},
	{
		Category: CategoryMacro, Priority: 130, DefaultMagnitude: MagnitudeMinor,
		Description: "macro/sector",
		Keywords: []string{"fed", "federal reserve", "interest rate", "interest rates", "inflation", "tariff",
			"tariffs", "sector", "recession", "jobs report"},
	},
	{
		Category: CategoryUnknown, Priority: 1 << 30, DefaultMagnitude: MagnitudeMinor,
		Description: "unknown",
	},
})

func newCategoryTable(infos []CategoryInfo) *CategoryTable {
	t := &CategoryTable{byCategory: make(map[EventCategory]CategoryInfo, len(infos))}
	for _, info := range infos {
		t.byCategory[info.Category] = info
		t.ordered = append(t.ordered, info)
	}
	sort.SliceStable(t.ordered, func(i, j int) bool {
		return t.ordered[i].Priority < t.ordered[j].Priority
	})
	return t
}

// Lookup 查询分类，未知分类返回 unknown 的属性
func (t *CategoryTable) Lookup(c EventCategory) CategoryInfo {
	if info, ok := t.byCategory[c]; ok {
		return info
	}
	return t.byCategory[CategoryUnknown]
}

// Ordered 按匹配优先级返回全部分类（含 unknown，位于末尾）
func (t *CategoryTable) Ordered() []CategoryInfo {
	out := make([]CategoryInfo, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Valid 是否为已知分类
func (t *CategoryTable) Valid(c EventCategory) bool {
	_, ok := t.byCategory[c]
	return ok
}
