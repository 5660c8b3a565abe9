// pkg/database/article.go
package database

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"ImpactRadar/pkg/model"
)

// CreateArticle 按来源 URL 去重写入文章。URL 已存在时返回 false 且不报错。
func (s *Store) CreateArticle(ctx context.Context, article *model.Article) (bool, error) {
	article.PublishedAt = article.PublishedAt.UTC()
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_url"}}, DoNothing: true}).
		Create(article)
	if res.Error != nil {
		return false, wrap(res.Error, "保存文章失败")
	}
	return res.RowsAffected > 0, nil
}

// GetArticle 按 ID 获取文章
func (s *Store) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	var article model.Article
	if err := s.db.WithContext(ctx).First(&article, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "获取文章失败")
	}
	return &article, nil
}

// GetArticleByURL 按来源 URL 获取文章
func (s *Store) GetArticleByURL(ctx context.Context, url string) (*model.Article, error) {
	var article model.Article
	if err := s.db.WithContext(ctx).First(&article, "source_url = ?", url).Error; err != nil {
		return nil, wrap(err, "根据URL获取文章失败")
	}
	return &article, nil
}

// ArticleURLExists 来源 URL 是否已入库
func (s *Store) ArticleURLExists(ctx context.Context, url string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Article{}).Where("source_url = ?", url).Count(&count).Error
	if err != nil {
		return false, wrap(err, "查询文章URL失败")
	}
	return count > 0, nil
}

// SetArticleCluster 设置文章所属事件簇，只在尚未设置时生效
func (s *Store) SetArticleCluster(ctx context.Context, id, clusterID string) error {
	err := s.db.WithContext(ctx).Model(&model.Article{}).
		Where("id = ? AND cluster_id IS NULL", id).
		Update("cluster_id", clusterID).Error
	return wrap(err, "更新文章事件簇失败")
}

// MoveArticleCluster 把文章从 from 簇移到 to 簇，文章已不在 from 簇时不做修改
func (s *Store) MoveArticleCluster(ctx context.Context, id, from, to string) error {
	err := s.db.WithContext(ctx).Model(&model.Article{}).
		Where("id = ? AND cluster_id = ?", id, from).
		Update("cluster_id", to).Error
	return wrap(err, "更新文章事件簇失败")
}

// LockClusterMembers 在事务内以行锁读取事件簇的全部文章，同簇的共识计算依次进行。
// SQLite 不支持行锁，锁子句被忽略。
func (s *Store) LockClusterMembers(ctx context.Context, clusterID string) ([]model.Article, error) {
	var articles []model.Article
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cluster_id = ?", clusterID).
		Order("id").
		Find(&articles).Error
	if err != nil {
		return nil, wrap(err, "锁定事件簇文章失败")
	}
	return articles, nil
}

// ClusterCandidates 时间窗口内同代码同分类、已有事件簇的文章
func (s *Store) ClusterCandidates(ctx context.Context, ticker string, category model.EventCategory, from, to time.Time) ([]model.Article, error) {
	var articles []model.Article
	err := s.db.WithContext(ctx).
		Where("ticker = ? AND category = ? AND cluster_id IS NOT NULL", ticker, category).
		Where("published_at >= ? AND published_at <= ?", from.UTC(), to.UTC()).
		Order("published_at DESC").
		Find(&articles).Error
	if err != nil {
		return nil, wrap(err, "查询候选事件簇失败")
	}
	return articles, nil
}

// ClusterMembers 事件簇内的全部文章
func (s *Store) ClusterMembers(ctx context.Context, clusterID string) ([]model.Article, error) {
	var articles []model.Article
	err := s.db.WithContext(ctx).
		Where("cluster_id = ?", clusterID).
		Order("published_at DESC").
		Find(&articles).Error
	if err != nil {
		return nil, wrap(err, "查询事件簇文章失败")
	}
	return articles, nil
}

// ArticlesByCategory 历史类比使用：指定代码集合、分类、时间区间 [since, before) 内的文章
func (s *Store) ArticlesByCategory(ctx context.Context, tickers []string, category model.EventCategory, since, before time.Time, limit int) ([]model.Article, error) {
	var articles []model.Article
	query := s.db.WithContext(ctx).
		Where("ticker IN ? AND category = ?", tickers, category).
		Where("published_at >= ? AND published_at < ?", since.UTC(), before.UTC()).
		Order("published_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&articles).Error; err != nil {
		return nil, wrap(err, "查询历史事件失败")
	}
	return articles, nil
}

// ArticlesSince 批量重算使用：发布时间不早于 since 的文章
func (s *Store) ArticlesSince(ctx context.Context, since time.Time) ([]model.Article, error) {
	var articles []model.Article
	err := s.db.WithContext(ctx).
		Where("published_at >= ?", since.UTC()).
		Order("published_at ASC").
		Find(&articles).Error
	if err != nil {
		return nil, wrap(err, "查询时间范围文章失败")
	}
	return articles, nil
}

// ListArticles 按代码分页查询文章，ticker 为空时不过滤
func (s *Store) ListArticles(ctx context.Context, ticker string, limit, offset int) ([]model.Article, error) {
	var articles []model.Article
	query := s.db.WithContext(ctx).Order("published_at DESC")
	if ticker != "" {
		query = query.Where("ticker = ?", ticker)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&articles).Error; err != nil {
		return nil, wrap(err, "查询文章失败")
	}
	return articles, nil
}

// DeleteArticle 删除文章，Signal 与 Impact 级联删除
func (s *Store) DeleteArticle(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Article{}, "id = ?", id)
	if res.Error != nil {
		return wrap(res.Error, "删除文章失败")
	}
	if res.RowsAffected == 0 {
		return wrap(ErrNotFound, "删除文章失败")
	}
	return nil
}
