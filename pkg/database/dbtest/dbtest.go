// Package dbtest 为测试提供基于内存 SQLite 的 Store。
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"ImpactRadar/pkg/database"
)

// New 每个测试独立的内存数据库，启用外键以验证级联删除
func New(t testing.TB) *database.Store {
	t.Helper()
	// 测试名可能含 URI 保留字符，库名只用随机标识
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())

	store, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)

	sqlDB, err := store.DB().DB()
	require.NoError(t, err)
	// 共享缓存的内存库在单连接下串行访问
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = store.Close() })
	return store
}
