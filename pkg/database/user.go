// pkg/database/user.go
package database

import (
	"context"

	"ImpactRadar/pkg/model"
)

// CreateUser 新建用户
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return wrap(s.db.WithContext(ctx).Create(user).Error, "创建用户失败")
}

// GetUser 获取用户
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "获取用户信息失败")
	}
	return &user, nil
}

// GetUserByUsername 按用户名获取用户
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, wrap(err, "根据用户名获取用户信息失败")
	}
	return &user, nil
}

// UpdateUser 更新风险偏好与现金缓冲
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).Model(user).
		Select("email", "risk_profile", "cash_buffer").
		Updates(user).Error
	return wrap(err, "更新用户失败")
}

// ListUserIDs 全部用户 ID
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.User{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, wrap(err, "查询用户列表失败")
	}
	return ids, nil
}
