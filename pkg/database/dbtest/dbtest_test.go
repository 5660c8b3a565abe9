package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRadar/pkg/model"
)

func TestNewIsolatesSubtestsWithReservedCharacters(t *testing.T) {
	// 同名子测试以及含 ? # 的名字各自使用独立的内存库
	for _, name := range []string{"a?b", "a?b", "c#d", "c#d", "e%20f"} {
		t.Run(name, func(t *testing.T) {
			store := New(t)
			ctx := context.Background()

			ids, err := store.ListUserIDs(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)
			require.NoError(t, store.CreateUser(ctx, &model.User{Username: "only-one"}))

			var fk int
			require.NoError(t, store.DB().Raw("PRAGMA foreign_keys").Scan(&fk).Error)
			assert.Equal(t, 1, fk)
		})
	}
}
