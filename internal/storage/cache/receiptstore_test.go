package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-expo-notification-service/internal/storage/cache"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
)

func setupReceiptStore(t *testing.T) (*cache.RedisReceiptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisReceiptStore(client), mr
}

func TestRedisReceiptStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store, mr := setupReceiptStore(t)

	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	pending := []dispatch.PendingReceipt{
		{ID: "old", RecipientID: "urn:sm:user:a", Token: "ExponentPushToken[a]", SentAt: base},
		{ID: "mid", RecipientID: "urn:sm:user:b", Token: "ExponentPushToken[b]", SentAt: base.Add(10 * time.Minute)},
		{ID: "new", RecipientID: "urn:sm:user:c", Token: "ExponentPushToken[c]", SentAt: base.Add(time.Hour)},
	}

	t.Run("Save then list due oldest first", func(t *testing.T) {
		require.NoError(t, store.SavePending(ctx, pending))

		due, err := store.ListDue(ctx, base.Add(30*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "old", due[0].ID)
		assert.Equal(t, "mid", due[1].ID)
		assert.Equal(t, "ExponentPushToken[a]", due[0].Token)
		assert.Equal(t, "urn:sm:user:a", due[0].RecipientID)
		assert.True(t, base.Equal(due[0].SentAt))
	})

	t.Run("Limit caps the result", func(t *testing.T) {
		due, err := store.ListDue(ctx, base.Add(2*time.Hour), 1)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "old", due[0].ID)
	})

	t.Run("Remove drops index and details", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, []string{"old", "mid"}))

		due, err := store.ListDue(ctx, base.Add(2*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "new", due[0].ID)
		assert.Empty(t, mr.HGet("notify:receipts:data", "old"))
	})

	t.Run("Nothing due", func(t *testing.T) {
		due, err := store.ListDue(ctx, base.Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("Empty inputs are no-ops", func(t *testing.T) {
		assert.NoError(t, store.SavePending(ctx, nil))
		assert.NoError(t, store.Remove(ctx, nil))
	})
}
