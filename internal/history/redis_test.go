package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, "test"), mr
}

func TestRedisStoreRecordOutcome(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	t.Run("CreatesRecord", func(t *testing.T) {
		rec, err := store.RecordOutcome(ctx, "first@upi", false)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.FraudCount)
		assert.False(t, rec.LastSeen.IsZero())

		assert.Equal(t, "0", mr.HGet("test:history:first@upi", "fraud_count"))
		ok, err := mr.SIsMember("test:history:handles", "first@upi")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Recurring", func(t *testing.T) {
		recurringAfterThird(t, store)
	})

	t.Run("LastSeenNeverMovesBack", func(t *testing.T) {
		later := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return later }
		_, err := store.RecordOutcome(ctx, "clock@upi", false)
		require.NoError(t, err)

		store.now = func() time.Time { return later.Add(-time.Hour) }
		rec, err := store.RecordOutcome(ctx, "clock@upi", true)
		require.NoError(t, err)
		assert.Equal(t, later, rec.LastSeen)
		assert.Equal(t, int64(1), rec.FraudCount)

		store.now = time.Now
	})

	t.Run("Get", func(t *testing.T) {
		rec, err := store.Get(ctx, "repeat@upi")
		require.NoError(t, err)
		assert.Equal(t, int64(5), rec.FraudCount)

		_, err = store.Get(ctx, "nobody@upi")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Snapshot", func(t *testing.T) {
		snap, err := store.Snapshot(ctx)
		require.NoError(t, err)
		assert.Len(t, snap, 3)
		assert.Equal(t, int64(5), snap["repeat@upi"].FraudCount)
		assert.Equal(t, int64(0), snap["first@upi"].FraudCount)
	})

	t.Run("BackendDown", func(t *testing.T) {
		mr.Close()
		_, err := store.RecordOutcome(ctx, "first@upi", true)
		assert.ErrorIs(t, err, domain.ErrPersistenceWrite)
	})
}

func TestRedisStoreConcurrentSameHandle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordOutcome(ctx, "hot@upi", true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := store.Get(ctx, "hot@upi")
	require.NoError(t, err)
	assert.Equal(t, int64(n), rec.FraudCount)
}
