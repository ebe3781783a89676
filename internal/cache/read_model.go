package cache

import (
	"context"
	"fmt"
	"time"

	"brokkoli/internal/config"
	"brokkoli/internal/models"

	"go.uber.org/zap"
)

// ReadModelCache entity views for dashboards
type ReadModelCache struct {
	prefix string
	ttl    time.Duration
	kv     KVStore
	logger *zap.Logger
}

func NewReadModelCache(cfg *config.Config, kv KVStore, logger *zap.Logger) *ReadModelCache {
	return &ReadModelCache{
		prefix: cfg.Monitor.Cache.ReadModelKeyPrefix,
		ttl:    cfg.Monitor.Cache.ReadModelTTL,
		kv:     kv,
		logger: logger,
	}
}

// Put writes one view
func (c *ReadModelCache) Put(ctx context.Context, view models.EntityView) error {
	key := c.prefix + view.EntityID
	if err := putJSON(ctx, c.kv, key, view, c.ttl); err != nil {
		return fmt.Errorf("failed to cache read model: %w", err)
	}

	c.logger.Debug("Updated read model cache",
		zap.String("entity_id", view.EntityID),
		zap.String("key", key),
	)
	return nil
}

// Delete drops the view of a removed entity
func (c *ReadModelCache) Delete(ctx context.Context, entityID string) error {
	if err := c.kv.Del(ctx, c.prefix+entityID); err != nil {
		return fmt.Errorf("failed to delete read model: %w", err)
	}
	return nil
}
