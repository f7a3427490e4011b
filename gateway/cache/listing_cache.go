package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"

	"parkey-onchain/model"
)

// ListingCache は出品の読み取りモデルのキャッシュ
// 正はチェーン上の状態であり、キャッシュは古くなりうる
type ListingCache interface {
	Get(ctx context.Context, tokenID *big.Int) (*model.Listing, bool)
	Set(ctx context.Context, listing *model.Listing)
	Invalidate(ctx context.Context, tokenIDs ...*big.Int)
}

const keyPrefix = "parkey:listing:"

func listingKey(tokenID *big.Int) string {
	return keyPrefix + tokenID.String()
}

// RedisListingCache はRedisに出品をJSONで保存する
type RedisListingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger log.Logger
}

func NewRedisListingCache(client *redis.Client, ttl time.Duration) *RedisListingCache {
	return &RedisListingCache{
		client: client,
		ttl:    ttl,
		logger: log.New("component", "listing-cache", "backend", "redis"),
	}
}

// Get はキャッシュを読む。Redisの障害はミスとして扱う
func (c *RedisListingCache) Get(ctx context.Context, tokenID *big.Int) (*model.Listing, bool) {
	raw, err := c.client.Get(ctx, listingKey(tokenID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Listing cache read failed", "token", tokenID, "err", err)
		}
		return nil, false
	}

	var listing model.Listing
	if err := json.Unmarshal(raw, &listing); err != nil {
		c.logger.Warn("Discarding undecodable cached listing", "token", tokenID, "err", err)
		c.Invalidate(ctx, tokenID)
		return nil, false
	}
	return &listing, true
}

func (c *RedisListingCache) Set(ctx context.Context, listing *model.Listing) {
	raw, err := json.Marshal(listing)
	if err != nil {
		c.logger.Warn("Failed to encode listing", "token", listing.TokenID, "err", err)
		return
	}
	if err := c.client.Set(ctx, listingKey(listing.TokenID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Listing cache write failed", "token", listing.TokenID, "err", err)
	}
}

func (c *RedisListingCache) Invalidate(ctx context.Context, tokenIDs ...*big.Int) {
	if len(tokenIDs) == 0 {
		return
	}
	keys := make([]string, len(tokenIDs))
	for i, id := range tokenIDs {
		keys[i] = listingKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Listing cache invalidation failed", "keys", len(keys), "err", err)
	}
}

// Ping はRedisへの接続を確認する
func (c *RedisListingCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// MemoryListingCache はプロセス内のTTL付きキャッシュ
type MemoryListingCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	listing   model.Listing
	expiresAt time.Time
}

func NewMemoryListingCache(ttl time.Duration) *MemoryListingCache {
	return &MemoryListingCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryListingCache) Get(_ context.Context, tokenID *big.Int) (*model.Listing, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tokenID.String()]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	listing := entry.listing
	return &listing, true
}

func (c *MemoryListingCache) Set(_ context.Context, listing *model.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[listing.TokenID.String()] = memoryEntry{listing: *listing, expiresAt: c.now().Add(c.ttl)}
}

func (c *MemoryListingCache) Invalidate(_ context.Context, tokenIDs ...*big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range tokenIDs {
		delete(c.entries, id.String())
	}
}
