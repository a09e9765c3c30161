package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eliamaps/elia/internal/domain"
)

const (
	layerCachePrefix = "layer:"
	layerCacheTTL    = 5 * time.Minute
)

// LayerCache caches map-server layer metadata in Redis. It is a pure
// performance layer; cached entries are byte-identical to a fresh lookup.
type LayerCache struct {
	client *Client
}

// NewLayerCache creates a new layer metadata cache
func NewLayerCache(client *Client) *LayerCache {
	return &LayerCache{client: client}
}

func layerKey(serverURL string, layerID int) string {
	sum := sha256.Sum256([]byte(serverURL))
	return fmt.Sprintf("%s%s:%d", layerCachePrefix, hex.EncodeToString(sum[:8]), layerID)
}

// Get retrieves a cached layer descriptor
func (c *LayerCache) Get(ctx context.Context, serverURL string, layerID int) (*domain.LayerDescriptor, error) {
	data, err := c.client.rdb.Get(ctx, layerKey(serverURL, layerID)).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var desc domain.LayerDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layer descriptor: %w", err)
	}

	return &desc, nil
}

// Set caches a layer descriptor
func (c *LayerCache) Set(ctx context.Context, serverURL string, desc *domain.LayerDescriptor) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal layer descriptor: %w", err)
	}

	return c.client.rdb.Set(ctx, layerKey(serverURL, desc.ID), data, layerCacheTTL).Err()
}

// FlushAll removes all cached layer metadata
func (c *LayerCache) FlushAll(ctx context.Context) (int64, error) {
	pattern := layerCachePrefix + "*"
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := c.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			count, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += count
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}
