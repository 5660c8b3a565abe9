// pkg/database/alert.go
package database

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"ImpactRadar/pkg/model"
)

// CreateAlert 保存待投递提醒
func (s *Store) CreateAlert(ctx context.Context, alert *model.Alert) error {
	return wrap(s.db.WithContext(ctx).Omit(clause.Associations).Create(alert).Error, "保存提醒失败")
}

// GetAlert 获取提醒
func (s *Store) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	var alert model.Alert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "获取提醒失败")
	}
	return &alert, nil
}

// ListAlerts 用户最近的提醒
func (s *Store) ListAlerts(ctx context.Context, userID string, limit int) ([]model.Alert, error) {
	var alerts []model.Alert
	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&alerts).Error; err != nil {
		return nil, wrap(err, "查询用户提醒失败")
	}
	return alerts, nil
}

// AlertedArticleIDs since 之后同类型提醒已引用的文章
func (s *Store) AlertedArticleIDs(ctx context.Context, userID string, alertType model.AlertType, since time.Time) (map[string]struct{}, error) {
	var alerts []model.Alert
	err := s.db.WithContext(ctx).
		Select("article_ids").
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, alertType, since.UTC()).
		Find(&alerts).Error
	if err != nil {
		return nil, wrap(err, "查询已提醒文章失败")
	}
	out := make(map[string]struct{})
	for _, a := range alerts {
		for _, id := range a.ArticleIDs {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// MarkAlertSent 投递成功
func (s *Store) MarkAlertSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&model.Alert{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.AlertSent, "sent_at": now, "last_error": ""}).Error
	return wrap(err, "更新提醒状态失败")
}

// MarkAlertFailed 投递失败
func (s *Store) MarkAlertFailed(ctx context.Context, id string, reason string) error {
	err := s.db.WithContext(ctx).Model(&model.Alert{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.AlertFailed, "last_error": reason}).Error
	return wrap(err, "更新提醒状态失败")
}
