package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CacheConfig holds redis connection settings for the sync-status cache.
type CacheConfig struct {
	RedisURL   string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int

	// TTL bounds how long a cached sync status is served before the
	// platform is consulted again.
	TTL time.Duration
}

// DefaultCacheConfig returns the default cache configuration: 30s TTL.
func DefaultCacheConfig(redisURL string) CacheConfig {
	return CacheConfig{
		RedisURL:   redisURL,
		MaxRetries: 3,
		PoolSize:   10,
		TTL:        30 * time.Second,
	}
}

// SyncStatusCache wraps a platform Client and caches group synchronization
// lookups in redis. Hot validation paths (periodic revalidation, grant
// validation reads) go through the cache; conflict detection must not,
// since it is required to read live platform state.
type SyncStatusCache struct {
	client   *redis.Client
	delegate Client
	ttl      time.Duration
}

// NewSyncStatusCache connects to redis and wraps delegate.
func NewSyncStatusCache(config CacheConfig, delegate Client) (*SyncStatusCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB >= 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &SyncStatusCache{
		client:   client,
		delegate: delegate,
		ttl:      ttl,
	}, nil
}

func syncKey(groupID string) string {
	return fmt.Sprintf("syncstatus:%s", groupID)
}

// CheckGroupSynchronizationStatus serves the cached status when present,
// falling back to the delegate and populating the cache on miss. Cache
// errors degrade to a live read, never to a request failure.
func (c *SyncStatusCache) CheckGroupSynchronizationStatus(ctx context.Context, groupID string) (SyncStatus, error) {
	key := syncKey(groupID)

	data, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var status SyncStatus
		if jsonErr := json.Unmarshal([]byte(data), &status); jsonErr == nil {
			return status, nil
		}
		// Corrupt entry; drop it and fall through to a live read.
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		// Redis unavailable: degrade to live reads.
		return c.delegate.CheckGroupSynchronizationStatus(ctx, groupID)
	}

	status, err := c.delegate.CheckGroupSynchronizationStatus(ctx, groupID)
	if err != nil {
		return SyncStatus{}, err
	}

	if payload, jsonErr := json.Marshal(status); jsonErr == nil {
		c.client.Set(ctx, key, payload, c.ttl)
	}
	return status, nil
}

// Invalidate drops the cached status for a group, forcing the next read
// through to the platform.
func (c *SyncStatusCache) Invalidate(ctx context.Context, groupID string) error {
	return c.client.Del(ctx, syncKey(groupID)).Err()
}

// Close releases the redis connection.
func (c *SyncStatusCache) Close() error {
	return c.client.Close()
}

var _ SyncChecker = (*SyncStatusCache)(nil)
