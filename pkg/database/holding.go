// pkg/database/holding.go
package database

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"ImpactRadar/pkg/model"
)

// CreateHolding 新建持仓
func (s *Store) CreateHolding(ctx context.Context, h *model.Holding) error {
	h.Ticker = strings.ToUpper(h.Ticker)
	return wrap(s.db.WithContext(ctx).Omit(clause.Associations).Create(h).Error, "创建持仓失败")
}

// GetHolding 获取持仓
func (s *Store) GetHolding(ctx context.Context, id string) (*model.Holding, error) {
	var h model.Holding
	if err := s.db.WithContext(ctx).First(&h, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "获取持仓失败")
	}
	return &h, nil
}

// UpdateHolding 更新持仓。代码变化时旧代码下的 Impact 一并删除。
func (s *Store) UpdateHolding(ctx context.Context, h *model.Holding) error {
	h.Ticker = strings.ToUpper(h.Ticker)
	return s.Transaction(ctx, func(tx *Store) error {
		current, err := tx.GetHolding(ctx, h.ID)
		if err != nil {
			return err
		}
		if current.Ticker != h.Ticker {
			err := tx.db.WithContext(ctx).Where("holding_id = ?", h.ID).Delete(&model.Impact{}).Error
			if err != nil {
				return wrap(err, "删除旧持仓影响失败")
			}
		}
		h.UserID = current.UserID
		h.CreatedAt = current.CreatedAt
		return wrap(tx.db.WithContext(ctx).Omit(clause.Associations).Save(h).Error, "更新持仓失败")
	})
}

// DeleteHolding 删除持仓，Impact 级联删除
func (s *Store) DeleteHolding(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Holding{}, "id = ?", id)
	if res.Error != nil {
		return wrap(res.Error, "删除持仓失败")
	}
	if res.RowsAffected == 0 {
		return wrap(ErrNotFound, "删除持仓失败")
	}
	return nil
}

// ListHoldings 用户的全部持仓
func (s *Store) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	var holdings []model.Holding
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("ticker ASC, created_at ASC").Find(&holdings).Error
	if err != nil {
		return nil, wrap(err, "查询用户持仓失败")
	}
	return holdings, nil
}

// HoldingsForTickers 所有用户中持有这些代码的持仓
func (s *Store) HoldingsForTickers(ctx context.Context, tickers []string) ([]model.Holding, error) {
	var holdings []model.Holding
	if len(tickers) == 0 {
		return holdings, nil
	}
	upper := make([]string, len(tickers))
	for i, t := range tickers {
		upper[i] = strings.ToUpper(t)
	}
	err := s.db.WithContext(ctx).Where("ticker IN ?", upper).Order("user_id ASC").Find(&holdings).Error
	if err != nil {
		return nil, wrap(err, "查询相关持仓失败")
	}
	return holdings, nil
}

// HoldingUserIDs 持有这些代码的用户
func (s *Store) HoldingUserIDs(ctx context.Context, tickers []string) ([]string, error) {
	holdings, err := s.HoldingsForTickers(ctx, tickers)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, h := range holdings {
		if _, ok := seen[h.UserID]; ok {
			continue
		}
		seen[h.UserID] = struct{}{}
		ids = append(ids, h.UserID)
	}
	return ids, nil
}
