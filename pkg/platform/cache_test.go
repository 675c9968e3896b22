package platform

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSyncStatusCacheTest(t *testing.T, fake *Fake) (*SyncStatusCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config := DefaultCacheConfig("redis://" + mr.Addr())
	config.TTL = time.Minute

	cache, err := NewSyncStatusCache(config, fake)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func TestSyncStatusCache_MissThenHit(t *testing.T) {
	fake := NewFake()
	fake.SetSynced("g1", true)
	cache, _ := setupSyncStatusCacheTest(t, fake)

	ctx := context.Background()

	status, err := cache.CheckGroupSynchronizationStatus(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, status.IsSynced)
	delegateCalls := len(fake.Calls)

	// Second read must be served from cache.
	status, err = cache.CheckGroupSynchronizationStatus(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, status.IsSynced)
	assert.Equal(t, delegateCalls, len(fake.Calls))
}

func TestSyncStatusCache_TTLExpiry(t *testing.T) {
	fake := NewFake()
	fake.SetSynced("g1", true)
	cache, mr := setupSyncStatusCacheTest(t, fake)

	ctx := context.Background()

	_, err := cache.CheckGroupSynchronizationStatus(ctx, "g1")
	require.NoError(t, err)
	before := len(fake.Calls)

	mr.FastForward(2 * time.Minute)

	_, err = cache.CheckGroupSynchronizationStatus(ctx, "g1")
	require.NoError(t, err)
	assert.Greater(t, len(fake.Calls), before)
}

func TestSyncStatusCache_Invalidate(t *testing.T) {
	fake := NewFake()
	fake.SetSynced("g1", false)
	cache, _ := setupSyncStatusCacheTest(t, fake)

	ctx := context.Background()

	status, err := cache.CheckGroupSynchronizationStatus(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, status.IsSynced)

	// Sync completes upstream; the cache still holds the stale value until
	// invalidated.
	fake.SetSynced("g1", true)
	status, err = cache.CheckGroupSynchronizationStatus(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, status.IsSynced)

	require.NoError(t, cache.Invalidate(ctx, "g1"))

	status, err = cache.CheckGroupSynchronizationStatus(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, status.IsSynced)
}

func TestSyncStatusCache_CorruptEntryFallsBack(t *testing.T) {
	fake := NewFake()
	fake.SetSynced("g1", true)
	cache, mr := setupSyncStatusCacheTest(t, fake)

	require.NoError(t, mr.Set(syncKey("g1"), "{not json"))

	status, err := cache.CheckGroupSynchronizationStatus(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, status.IsSynced)
}

func TestNewSyncStatusCache_InvalidURL(t *testing.T) {
	_, err := NewSyncStatusCache(CacheConfig{RedisURL: "invalid://url"}, NewFake())
	assert.Error(t, err)
}
