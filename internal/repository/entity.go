package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"brokkoli/internal/models"

	"go.uber.org/zap"
)

// EntityRepository entity configuration in Postgres
type EntityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *sql.DB, logger *zap.Logger) *EntityRepository {
	return &EntityRepository{
		db:     db,
		logger: logger,
	}
}

// entityConfigDoc JSONB column plant_entities.config
type entityConfigDoc struct {
	Sources      map[string]string        `json:"sources"`
	Limits       map[string]models.Limits `json:"limits"`
	Triggers     map[string]bool          `json:"triggers"`
	Aggregations map[string]string        `json:"aggregations"`
	Decimals     map[string]any           `json:"decimals"`
}

// defaultConfigDoc JSONB column plant_default_config.config
type defaultConfigDoc struct {
	Limits   map[string]models.Limits `json:"limits"`
	Decimals map[string]any           `json:"decimals"`
}

// ListEntities all entities with their members, in creation order
func (r *EntityRepository) ListEntities() ([]models.EntityConfig, error) {
	query := `
		SELECT entity_id, name, kind, config
		FROM plant_entities
		ORDER BY created_at, entity_id
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []models.EntityConfig
	for rows.Next() {
		var cfg models.EntityConfig
		var kind string
		var raw []byte
		if err := rows.Scan(&cfg.EntityID, &cfg.Name, &kind, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		cfg.Kind = models.EntityKind(kind)

		if err := r.decodeEntityConfig(&cfg, raw); err != nil {
			return nil, fmt.Errorf("failed to decode config of %s: %w", cfg.EntityID, err)
		}
		entities = append(entities, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}

	members, err := r.listMemberships()
	if err != nil {
		return nil, err
	}
	for i := range entities {
		entities[i].Members = members[entities[i].EntityID]
	}

	return entities, nil
}

func (r *EntityRepository) listMemberships() (map[string][]string, error) {
	query := `
		SELECT group_id, member_id
		FROM plant_group_members
		ORDER BY group_id, position
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var groupID, memberID string
		if err := rows.Scan(&groupID, &memberID); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out[groupID] = append(out[groupID], memberID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return out, nil
}

func (r *EntityRepository) decodeEntityConfig(cfg *models.EntityConfig, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var doc entityConfigDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	cfg.Sources = make(map[models.Metric]string)
	for k, v := range doc.Sources {
		if m, ok := r.metric(cfg.EntityID, k); ok {
			cfg.Sources[m] = v
		}
	}
	cfg.Limits = r.limits(cfg.EntityID, doc.Limits)
	cfg.Triggers = make(map[models.Metric]bool)
	for k, v := range doc.Triggers {
		if m, ok := r.metric(cfg.EntityID, k); ok {
			cfg.Triggers[m] = v
		}
	}
	cfg.Aggregations = make(map[models.Metric]models.Strategy)
	for k, v := range doc.Aggregations {
		m, ok := r.metric(cfg.EntityID, k)
		if !ok {
			continue
		}
		s, ok := models.ParseStrategy(v)
		if !ok {
			r.logger.Warn("Ignoring unknown aggregation strategy",
				zap.String("entity_id", cfg.EntityID),
				zap.String("metric", k),
				zap.String("strategy", v),
			)
			continue
		}
		cfg.Aggregations[m] = s
	}
	cfg.Decimals = r.decimals(cfg.EntityID, doc.Decimals)
	return nil
}

func (r *EntityRepository) metric(entityID, key string) (models.Metric, bool) {
	m, err := models.ParseMetric(key)
	if err != nil {
		r.logger.Warn("Ignoring unknown metric key",
			zap.String("entity_id", entityID),
			zap.String("metric", key),
		)
		return "", false
	}
	return m, true
}

func (r *EntityRepository) limits(entityID string, in map[string]models.Limits) map[models.Metric]models.Limits {
	out := make(map[models.Metric]models.Limits)
	for k, v := range in {
		if m, ok := r.metric(entityID, k); ok {
			out[m] = v
		}
	}
	return out
}

func (r *EntityRepository) decimals(entityID string, in map[string]any) map[models.Metric]any {
	out := make(map[models.Metric]any)
	for k, v := range in {
		if m, ok := r.metric(entityID, k); ok {
			out[m] = v
		}
	}
	return out
}

// GetDefaultConfig the shared default node; empty when none is stored
func (r *EntityRepository) GetDefaultConfig() (*models.DefaultConfig, error) {
	query := `
		SELECT config
		FROM plant_default_config
		WHERE id = 1
	`

	var raw []byte
	err := r.db.QueryRow(query).Scan(&raw)
	if err == sql.ErrNoRows {
		return &models.DefaultConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query default config: %w", err)
	}

	out := &models.DefaultConfig{}
	if len(raw) == 0 {
		return out, nil
	}
	var doc defaultConfigDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode default config: %w", err)
	}
	out.Limits = r.limits("default", doc.Limits)
	out.Decimals = r.decimals("default", doc.Decimals)
	return out, nil
}

// AddMember appends memberID to the group; adding an existing member is a no-op
func (r *EntityRepository) AddMember(groupID, memberID string) error {
	query := `
		INSERT INTO plant_group_members (group_id, member_id, position)
		SELECT $1, $2, COALESCE(MAX(position), 0) + 1
		FROM plant_group_members
		WHERE group_id = $1
		ON CONFLICT (group_id, member_id) DO NOTHING
	`

	if _, err := r.db.Exec(query, groupID, memberID); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	r.logger.Info("Added group member",
		zap.String("group_id", groupID),
		zap.String("member_id", memberID),
	)
	return nil
}

// RemoveMember deletes the membership; removing a non-member is a no-op
func (r *EntityRepository) RemoveMember(groupID, memberID string) error {
	query := `
		DELETE FROM plant_group_members
		WHERE group_id = $1 AND member_id = $2
	`

	result, err := r.db.Exec(query, groupID, memberID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.logger.Info("Removed group member",
		zap.String("group_id", groupID),
		zap.String("member_id", memberID),
		zap.Int64("rows_affected", rowsAffected),
	)
	return nil
}
