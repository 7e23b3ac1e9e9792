package incognito

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisDueStore(t *testing.T) *RedisDueStore {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisDueStore(rdb, "")
}

func TestDueStores(t *testing.T) {
	stores := map[string]DueStore{
		"memory": NewMemoryDueStore(),
		"redis":  newRedisDueStore(t),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(time.Now().UnixMilli())

			require.NoError(t, store.Put(ctx, DueEntry{MessageID: "m1", ChatID: "a_b", DueAt: now.Add(-time.Minute)}))
			require.NoError(t, store.Put(ctx, DueEntry{MessageID: "m2", ChatID: "a_b", DueAt: now.Add(time.Minute)}))
			require.NoError(t, store.Put(ctx, DueEntry{MessageID: "m3", ChatID: "a_c", DueAt: now}))

			all, err := store.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "m1", all[0].MessageID)
			assert.Equal(t, "m2", all[2].MessageID)

			due, err := store.Due(ctx, now)
			require.NoError(t, err)
			require.Len(t, due, 2)
			assert.Equal(t, DueEntry{MessageID: "m1", ChatID: "a_b", DueAt: now.Add(-time.Minute)}, due[0])
			assert.Equal(t, "a_c", due[1].ChatID)
			assert.True(t, due[1].DueAt.Equal(now))

			require.NoError(t, store.Remove(ctx, "m1"))
			due, err = store.Due(ctx, now)
			require.NoError(t, err)
			require.Len(t, due, 1)
			assert.Equal(t, "m3", due[0].MessageID)
		})
	}
}

func TestDueStoresKeepEarliestDueTime(t *testing.T) {
	stores := map[string]DueStore{
		"memory": NewMemoryDueStore(),
		"redis":  newRedisDueStore(t),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(time.Now().UnixMilli())

			require.NoError(t, store.Put(ctx, DueEntry{MessageID: "m1", ChatID: "a_b", DueAt: now.Add(time.Hour)}))
			require.NoError(t, store.Put(ctx, DueEntry{MessageID: "m1", ChatID: "a_b", DueAt: now.Add(5 * time.Hour)}))

			all, err := store.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.True(t, all[0].DueAt.Equal(now.Add(time.Hour)), "later time must not postpone the entry")

			require.NoError(t, store.Put(ctx, DueEntry{MessageID: "m1", ChatID: "a_b", DueAt: now.Add(-time.Minute)}))

			due, err := store.Due(ctx, now)
			require.NoError(t, err)
			require.Len(t, due, 1)
			assert.True(t, due[0].DueAt.Equal(now.Add(-time.Minute)))
		})
	}
}
