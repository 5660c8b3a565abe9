// pkg/database/stock.go
package database

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"ImpactRadar/pkg/model"
)

// UpsertStock 写入或更新股票基础信息
func (s *Store) UpsertStock(ctx context.Context, stock *model.Stock) error {
	stock.Symbol = strings.ToUpper(stock.Symbol)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "sector", "industry", "updated_at"}),
		}).
		Create(stock).Error
	return wrap(err, "保存股票信息失败")
}

// SectorPeers 与 ticker 同行业的全部代码（含自身），没有行业信息时返回空
func (s *Store) SectorPeers(ctx context.Context, ticker string) ([]string, error) {
	var stock model.Stock
	err := s.db.WithContext(ctx).Where("symbol = ?", strings.ToUpper(ticker)).Limit(1).Find(&stock).Error
	if err != nil {
		return nil, wrap(err, "查询股票行业失败")
	}
	if stock.Sector == "" {
		return nil, nil
	}
	var peers []string
	err = s.db.WithContext(ctx).Model(&model.Stock{}).
		Where("sector = ?", stock.Sector).
		Order("symbol ASC").
		Pluck("symbol", &peers).Error
	if err != nil {
		return nil, wrap(err, "查询同行业股票失败")
	}
	return peers, nil
}

// SaveQuotes 批量写入日收盘价，同一天重复写入覆盖
func (s *Store) SaveQuotes(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	for i := range quotes {
		quotes[i].Symbol = strings.ToUpper(quotes[i].Symbol)
		quotes[i].TradeDate = truncateDay(quotes[i].TradeDate)
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "trade_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"close"}),
		}).
		CreateInBatches(quotes, 500).Error
	return wrap(err, "保存行情数据失败")
}

// LatestCloses 每个代码最近一个交易日的收盘价
func (s *Store) LatestCloses(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	// 使用子查询获取每个股票的最新交易日
	subQuery := s.db.Model(&model.Quote{}).
		Select("symbol, MAX(trade_date) AS max_date").
		Where("symbol IN ?", symbols).
		Group("symbol")

	var quotes []model.Quote
	err := s.db.WithContext(ctx).Table("quotes q1").
		Select("q1.*").
		Joins("JOIN (?) q2 ON q1.symbol = q2.symbol AND q1.trade_date = q2.max_date", subQuery).
		Find(&quotes).Error
	if err != nil {
		return nil, wrap(err, "查询多股票最新行情失败")
	}
	for _, q := range quotes {
		out[q.Symbol] = q.Close
	}
	return out, nil
}

// CloseOnOrAfter t 当天或之后的第一个收盘价
func (s *Store) CloseOnOrAfter(ctx context.Context, symbol string, t time.Time) (decimal.Decimal, time.Time, bool, error) {
	var quotes []model.Quote
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND trade_date >= ?", strings.ToUpper(symbol), truncateDay(t)).
		Order("trade_date ASC").
		Limit(1).
		Find(&quotes).Error
	if err != nil {
		return decimal.Zero, time.Time{}, false, wrap(err, "查询收盘价失败")
	}
	if len(quotes) == 0 {
		return decimal.Zero, time.Time{}, false, nil
	}
	return quotes[0].Close, quotes[0].TradeDate, true, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
