package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// Store 关系型存储，所有实体的读写入口
type Store struct {
	db *gorm.DB
}

// NewPostgres 连接 PostgreSQL 并完成迁移
func NewPostgres(cfg *config.Config) (*Store, error) {
	dbCfg := cfg.Database.Postgres

	// 构建连接字符串
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.DBName, dbCfg.SSLMode,
	)

	store, err := Open(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}

	// 设置连接池参数
	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	log.Info().Str("host", dbCfg.Host).Int("port", dbCfg.Port).Str("db", dbCfg.DBName).Msg("数据库连接成功")
	return store, nil
}

// Open 使用任意 gorm 方言打开存储并迁移表结构
func Open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	store := &Store{db: db}
	if err := store.AutoMigrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// AutoMigrate 迁移全部表
func (s *Store) AutoMigrate() error {
	err := s.db.AutoMigrate(
		&model.User{},
		&model.Stock{},
		&model.Quote{},
		&model.Article{},
		&model.Signal{},
		&model.Holding{},
		&model.Impact{},
		&model.Alert{},
	)
	if err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

// Ping 测试连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("测试数据库连接失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction 在事务中执行 fn
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// DB 底层 gorm 句柄
func (s *Store) DB() *gorm.DB {
	return s.db
}

// wrap 包装存储错误，记录不存在统一为 ErrNotFound
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
