package cache

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerhouse-manager/internal/config"
	"powerhouse-manager/internal/model"
)

// caches 返回待测实现；设置 PHM_TEST_REDIS_ADDR 时包含 Redis
func caches(t *testing.T) map[string]Cache {
	t.Helper()
	out := map[string]Cache{"memory": NewMemoryCache(time.Minute)}
	if addr := os.Getenv("PHM_TEST_REDIS_ADDR"); addr != "" {
		host, port := splitAddr(t, addr)
		rc, err := NewRedisCache(config.RedisConfig{Host: host, Port: port, DB: 15, PoolSize: 4, SnapshotTTL: time.Minute})
		require.NoError(t, err)
		out["redis"] = rc
	}
	return out
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestCacheContract(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer c.Close()

			require.NoError(t, c.InvalidateSnapshot(ctx))
			_, ok := c.GetSnapshot(ctx)
			assert.False(t, ok)

			snap := &model.StoredSnapshot{
				Users:       []model.StoredUser{{Username: "admin", Role: model.RoleAdmin}},
				Powerhouses: []model.Powerhouse{{Name: "Central", Feeders: []model.Feeder{}, Accounts: []model.Account{}}},
			}
			require.NoError(t, c.SetSnapshot(ctx, snap))
			got, ok := c.GetSnapshot(ctx)
			require.True(t, ok)
			assert.Equal(t, snap, got)

			require.NoError(t, c.InvalidateSnapshot(ctx))
			_, ok = c.GetSnapshot(ctx)
			assert.False(t, ok)

			require.NoError(t, c.BlacklistToken(ctx, "abc", time.Now().Add(time.Minute)))
			assert.True(t, c.IsTokenBlacklisted(ctx, "abc"))
			assert.False(t, c.IsTokenBlacklisted(ctx, "def"))
			require.NoError(t, c.BlacklistToken(ctx, "old", time.Now().Add(-time.Minute)))
			assert.False(t, c.IsTokenBlacklisted(ctx, "old"))

			events, cancel, err := c.SubscribeChanges(ctx)
			require.NoError(t, err)
			defer cancel()
			require.NoError(t, c.PublishChange(ctx, model.ChangeEvent{Revision: "r1", Actor: "admin", Users: 1}))
			select {
			case ev := <-events:
				assert.Equal(t, "r1", ev.Revision)
				assert.Equal(t, "admin", ev.Actor)
			case <-time.After(2 * time.Second):
				t.Fatal("change event not delivered")
			}
		})
	}
}

func TestMemoryCacheSnapshotExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.SetSnapshot(ctx, &model.StoredSnapshot{}))
	_, ok := c.GetSnapshot(ctx)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.GetSnapshot(ctx)
	assert.False(t, ok)
}

func TestMemoryCacheDisabledSnapshot(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	require.NoError(t, c.SetSnapshot(ctx, &model.StoredSnapshot{}))
	_, ok := c.GetSnapshot(ctx)
	assert.False(t, ok)
}

func TestMemoryCacheCancelAfterClose(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ch, cancel, err := c.SubscribeChanges(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	cancel()
	_, open := <-ch
	assert.False(t, open)
}
