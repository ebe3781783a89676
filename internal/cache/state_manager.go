package cache

import (
	"context"
	"errors"
	"fmt"

	"brokkoli/internal/config"
	"brokkoli/internal/entity"

	"go.uber.org/zap"
)

// ErrStateNotFound no persisted state for the entity
var ErrStateNotFound = errors.New("state not found")

// StateManager persists thresholds and bound sources per entity, without TTL
type StateManager struct {
	prefix string
	kv     KVStore
	logger *zap.Logger
}

func NewStateManager(cfg *config.Config, kv KVStore, logger *zap.Logger) *StateManager {
	return &StateManager{
		prefix: cfg.Monitor.Cache.StateKeyPrefix,
		kv:     kv,
		logger: logger,
	}
}

// StateKey key of one entity's state
func (s *StateManager) StateKey(entityID string) string {
	return s.prefix + entityID
}

func (s *StateManager) Save(ctx context.Context, state entity.State) error {
	if err := putJSON(ctx, s.kv, s.StateKey(state.EntityID), state, 0); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	s.logger.Debug("Persisted entity state",
		zap.String("entity_id", state.EntityID),
		zap.Int("threshold_count", len(state.Thresholds)),
		zap.Int("source_count", len(state.Sources)),
	)
	return nil
}

// Load returns ErrStateNotFound for entities that were never persisted
func (s *StateManager) Load(ctx context.Context, entityID string) (*entity.State, error) {
	state, err := getJSON[entity.State](ctx, s.kv, s.StateKey(entityID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", ErrStateNotFound, entityID)
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if state.EntityID == "" {
		state.EntityID = entityID
	}
	return state, nil
}

// Delete forgets an entity that was removed from configuration
func (s *StateManager) Delete(ctx context.Context, entityID string) error {
	if err := s.kv.Del(ctx, s.StateKey(entityID)); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}
