package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"brokkoli/internal/aggregation"
	"brokkoli/internal/cache"
	"brokkoli/internal/config"
	"brokkoli/internal/entity"
	"brokkoli/internal/evaluator"
	"brokkoli/internal/models"
	"brokkoli/internal/source"
	"brokkoli/internal/threshold"

	"go.uber.org/zap"
)

// ErrStopped the scheduler is no longer running
var ErrStopped = errors.New("monitor stopped")

// ConfigRepository entity configuration storage
type ConfigRepository interface {
	ListEntities() ([]models.EntityConfig, error)
	GetDefaultConfig() (*models.DefaultConfig, error)
	AddMember(groupID, memberID string) error
	RemoveMember(groupID, memberID string) error
}

// StateStore persisted thresholds and bindings
type StateStore interface {
	Save(ctx context.Context, state entity.State) error
	Load(ctx context.Context, entityID string) (*entity.State, error)
	Delete(ctx context.Context, entityID string) error
}

// ViewStore read model sink
type ViewStore interface {
	Put(ctx context.Context, view models.EntityView) error
	Delete(ctx context.Context, entityID string) error
}

// ReloadResult what a configuration reload changed
type ReloadResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Updated []string `json:"updated"`
}

// EventPublisher status change sink
type EventPublisher interface {
	Publish(ctx context.Context, event models.StatusEvent) (string, error)
}

// ThresholdUpdate operator edit; nil fields are left unchanged
type ThresholdUpdate struct {
	Min            *float64 `json:"min"`
	Max            *float64 `json:"max"`
	TriggerEnabled *bool    `json:"trigger_enabled"`
}

// MonitorService owns every entity and runs all mutations on one scheduler
// goroutine, so the core packages need no locking.
type MonitorService struct {
	config *config.Config
	logger *zap.Logger

	repo   ConfigRepository
	states StateStore
	views  ViewStore
	events EventPublisher

	hub        *source.Store
	registry   *entity.Registry
	evaluator  *evaluator.Evaluator
	aggregator *aggregation.Engine
	defaults   models.DefaultConfig

	cmds         chan func()
	done         chan struct{}
	pendingCycle bool
	lastCycleAt  time.Time
	lastDevice   map[string]models.DeviceStatus
	lastMetrics  map[string]map[models.Metric]models.MetricStatus
	now          func() time.Time
}

// NewMonitorService creates the service; call Load and then Run
func NewMonitorService(
	cfg *config.Config,
	repo ConfigRepository,
	states StateStore,
	views ViewStore,
	events EventPublisher,
	logger *zap.Logger,
) *MonitorService {
	return &MonitorService{
		config:      cfg,
		logger:      logger,
		repo:        repo,
		states:      states,
		views:       views,
		events:      events,
		hub:         source.NewStore(logger),
		registry:    entity.NewRegistry(logger),
		evaluator:   evaluator.NewEvaluator(logger),
		aggregator:  aggregation.NewEngine(logger),
		cmds:        make(chan func(), 256),
		done:        make(chan struct{}),
		lastDevice:  make(map[string]models.DeviceStatus),
		lastMetrics: make(map[string]map[models.Metric]models.MetricStatus),
		now:         time.Now,
	}
}

// Load builds every configured entity, restoring persisted state where it
// exists, and runs the first cycle. Must be called before Run.
func (s *MonitorService) Load(ctx context.Context) error {
	defaults, err := s.repo.GetDefaultConfig()
	if err != nil {
		return fmt.Errorf("failed to load default config: %w", err)
	}
	s.defaults = *defaults

	configs, err := s.repo.ListEntities()
	if err != nil {
		return fmt.Errorf("failed to load entities: %w", err)
	}

	restored := 0
	for _, cfg := range configs {
		ok, err := s.addEntity(ctx, cfg)
		if err != nil {
			return err
		}
		if ok {
			restored++
		}
	}

	s.logger.Info("Loaded entities",
		zap.Int("entity_count", s.registry.Len()),
		zap.Int("restored_count", restored),
	)

	s.runCycle(ctx)
	return nil
}

// addEntity builds, sets up and registers one entity; reports whether
// persisted state was restored. Only a state store failure is returned.
func (s *MonitorService) addEntity(ctx context.Context, cfg models.EntityConfig) (bool, error) {
	persisted, err := s.states.Load(ctx, cfg.EntityID)
	if err != nil {
		if !errors.Is(err, cache.ErrStateNotFound) {
			return false, fmt.Errorf("failed to load state of %s: %w", cfg.EntityID, err)
		}
		persisted = nil
	}

	e := entity.New(cfg, s.defaults, s.hub, s.logger)
	e.Setup(cfg, s.defaults, persisted)
	if err := s.registry.Register(e); err != nil {
		e.Close()
		s.logger.Error("Skipping entity", zap.String("entity_id", cfg.EntityID), zap.Error(err))
		return false, nil
	}
	return persisted != nil, nil
}

// Run is the scheduler loop; it returns when ctx is done
func (s *MonitorService) Run(ctx context.Context) error {
	defer close(s.done)

	interval := s.config.Monitor.CycleInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting monitor scheduler",
		zap.Duration("cycle_interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.cmds:
			fn()
			// coalesce bursts of source updates into one cycle
			if s.pendingCycle && len(s.cmds) == 0 {
				s.runCycle(ctx)
			}
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// Done is closed when Run returns
func (s *MonitorService) Done() <-chan struct{} { return s.done }

// Do runs fn on the scheduler goroutine and waits for it
func (s *MonitorService) Do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case s.cmds <- func() { errCh <- fn() }:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCycle aggregation pass, then one evaluation pass, then publish and persist
func (s *MonitorService) runCycle(ctx context.Context) {
	s.pendingCycle = false
	now := s.now()
	s.lastCycleAt = now

	for _, g := range s.registry.GroupsInDependencyOrder() {
		members := s.registry.MembersOf(g)
		nodes := make([]aggregation.Node, 0, len(members))
		for _, m := range members {
			nodes = append(nodes, m)
		}
		s.aggregator.Run(g, nodes)
	}

	problems := 0
	for _, e := range s.registry.All() {
		res := e.Evaluate(s.evaluator)
		if res.Device == models.DeviceProblem {
			problems++
		}
		s.publish(ctx, e, res, now)
		s.persist(ctx, e, now)
	}

	s.logger.Debug("Completed update cycle",
		zap.Int("entity_count", s.registry.Len()),
		zap.Int("problem_count", problems),
	)
}

func (s *MonitorService) publish(ctx context.Context, e *entity.Entity, res evaluator.Result, now time.Time) {
	if s.views != nil {
		if err := s.views.Put(ctx, e.View(now)); err != nil {
			s.logger.Error("Failed to update read model cache",
				zap.String("entity_id", e.ID()),
				zap.Error(err),
			)
		}
	}

	statuses := res.Statuses()
	prevDevice, seen := s.lastDevice[e.ID()]
	prevMetrics := s.lastMetrics[e.ID()]
	s.lastDevice[e.ID()] = res.Device
	s.lastMetrics[e.ID()] = statuses
	if !seen || (prevDevice == res.Device && sameStatuses(prevMetrics, statuses)) {
		return
	}

	if s.events == nil {
		return
	}
	event := models.StatusEvent{
		EntityID:             e.ID(),
		DeviceStatus:         res.Device,
		PreviousDeviceStatus: prevDevice,
		MetricStatus:         statuses,
		At:                   now.Unix(),
	}
	if _, err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish status event",
			zap.String("entity_id", e.ID()),
			zap.Error(err),
		)
	}
}

func sameStatuses(a, b map[models.Metric]models.MetricStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for m, s := range a {
		if b[m] != s {
			return false
		}
	}
	return true
}

func (s *MonitorService) persist(ctx context.Context, e *entity.Entity, now time.Time) {
	if !e.Dirty() {
		return
	}
	if err := s.states.Save(ctx, e.Snapshot(now)); err != nil {
		s.logger.Error("Failed to persist entity state",
			zap.String("entity_id", e.ID()),
			zap.Error(err),
		)
		return
	}
	e.MarkClean()
}

// ApplySourceState feeds the host state store; the cycle runs once the queue drains
func (s *MonitorService) ApplySourceState(ctx context.Context, state models.SourceState) error {
	return s.Do(ctx, func() error {
		s.hub.Apply(state)
		s.pendingCycle = true
		return nil
	})
}

// BoundSources every source id currently bound by some entity
func (s *MonitorService) BoundSources(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.Do(ctx, func() error {
		seen := make(map[string]struct{})
		for _, e := range s.registry.All() {
			for _, id := range e.Sources() {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return nil
	})
	return ids, err
}

// SetThreshold applies an operator edit. When the metric has no pair yet both
// bounds are required.
func (s *MonitorService) SetThreshold(ctx context.Context, entityID string, m models.Metric, upd ThresholdUpdate) error {
	return s.Do(ctx, func() error {
		e, err := s.registry.Lookup(entityID)
		if err != nil {
			return err
		}
		store := e.Thresholds()

		if _, ok := store.Get(m); !ok {
			if upd.Min == nil || upd.Max == nil {
				return fmt.Errorf("%w: %s (set both min and max)", threshold.ErrNoThreshold, m)
			}
			if err := store.Configure(m, models.Limits{Min: *upd.Min, Max: *upd.Max}, e.Binding(m).Unit()); err != nil {
				return err
			}
		} else {
			if upd.Min != nil {
				if err := store.SetValue(m, threshold.BoundMin, *upd.Min); err != nil {
					return err
				}
			}
			if upd.Max != nil {
				if err := store.SetValue(m, threshold.BoundMax, *upd.Max); err != nil {
					return err
				}
			}
		}
		if upd.TriggerEnabled != nil {
			if err := store.SetTrigger(m, *upd.TriggerEnabled); err != nil {
				return err
			}
		}

		s.refreshFanOut(e)
		s.runCycle(ctx)
		return nil
	})
}

// Rebind points a metric at another source; empty clears it
func (s *MonitorService) Rebind(ctx context.Context, entityID string, m models.Metric, sourceID string) error {
	return s.Do(ctx, func() error {
		e, err := s.registry.Lookup(entityID)
		if err != nil {
			return err
		}
		if !m.Valid() {
			return fmt.Errorf("%w: %s", models.ErrUnknownMetric, m)
		}
		e.Rebind(m, sourceID)
		s.runCycle(ctx)
		return nil
	})
}

// ForceRefresh fan-out refresh of the entity (and a group's members), then a cycle
func (s *MonitorService) ForceRefresh(ctx context.Context, entityID string) error {
	return s.Do(ctx, func() error {
		e, err := s.registry.Lookup(entityID)
		if err != nil {
			return err
		}
		s.refreshFanOut(e)
		s.runCycle(ctx)
		return nil
	})
}

// refreshFanOut every binding of e and, for groups, of all nested members
func (s *MonitorService) refreshFanOut(e *entity.Entity) {
	visited := make(map[string]bool)
	var visit func(e *entity.Entity)
	visit = func(e *entity.Entity) {
		if visited[e.ID()] {
			return
		}
		visited[e.ID()] = true
		e.ForceRefresh()
		if e.IsGroup() {
			for _, m := range s.registry.MembersOf(e) {
				visit(m)
			}
		}
	}
	visit(e)

	s.logger.Debug("Force refreshed",
		zap.String("entity_id", e.ID()),
		zap.Int("refreshed_count", len(visited)),
	)
}

// AddMember adds memberID to a group and persists the membership
func (s *MonitorService) AddMember(ctx context.Context, groupID, memberID string) error {
	return s.Do(ctx, func() error {
		g, err := s.registry.LookupGroup(groupID)
		if err != nil {
			return err
		}
		if _, err := s.registry.Lookup(memberID); err != nil {
			return err
		}
		if groupID == memberID {
			return fmt.Errorf("%w: %s", entity.ErrSelfMembership, groupID)
		}
		if g.HasMember(memberID) {
			return nil
		}
		if err := s.repo.AddMember(groupID, memberID); err != nil {
			return err
		}
		g.AddMember(memberID)

		s.refreshFanOut(g)
		s.runCycle(ctx)
		return nil
	})
}

// RemoveMember removes memberID from a group and persists the change
func (s *MonitorService) RemoveMember(ctx context.Context, groupID, memberID string) error {
	return s.Do(ctx, func() error {
		g, err := s.registry.LookupGroup(groupID)
		if err != nil {
			return err
		}
		if !g.HasMember(memberID) {
			return fmt.Errorf("%w: %s is not a member of %s", entity.ErrEntityNotFound, memberID, groupID)
		}
		if err := s.repo.RemoveMember(groupID, memberID); err != nil {
			return err
		}
		g.RemoveMember(memberID)

		s.refreshFanOut(g)
		s.runCycle(ctx)
		return nil
	})
}

// Entities read models of all entities as of the last cycle
func (s *MonitorService) Entities(ctx context.Context) ([]models.EntityView, error) {
	var views []models.EntityView
	err := s.Do(ctx, func() error {
		for _, e := range s.registry.All() {
			views = append(views, e.View(s.lastCycleAt))
		}
		return nil
	})
	return views, err
}

// Entity read model of one entity
func (s *MonitorService) Entity(ctx context.Context, entityID string) (*models.EntityView, error) {
	var view *models.EntityView
	err := s.Do(ctx, func() error {
		e, err := s.registry.Lookup(entityID)
		if err != nil {
			return err
		}
		v := e.View(s.lastCycleAt)
		view = &v
		return nil
	})
	return view, err
}

// Reload re-reads the configuration: new entities are added, entities that
// disappeared are unregistered and their persisted state and read model
// dropped, and group memberships follow the configuration.
func (s *MonitorService) Reload(ctx context.Context) (*ReloadResult, error) {
	res := &ReloadResult{}
	err := s.Do(ctx, func() error {
		defaults, err := s.repo.GetDefaultConfig()
		if err != nil {
			return fmt.Errorf("failed to load default config: %w", err)
		}
		configs, err := s.repo.ListEntities()
		if err != nil {
			return fmt.Errorf("failed to load entities: %w", err)
		}
		s.defaults = *defaults

		wanted := make(map[string]models.EntityConfig, len(configs))
		for _, cfg := range configs {
			wanted[cfg.EntityID] = cfg
		}

		for _, e := range s.registry.All() {
			if _, ok := wanted[e.ID()]; ok {
				continue
			}
			s.removeEntity(ctx, e.ID())
			res.Removed = append(res.Removed, e.ID())
		}

		for _, cfg := range configs {
			e, err := s.registry.Lookup(cfg.EntityID)
			if err != nil {
				if _, err := s.addEntity(ctx, cfg); err != nil {
					return err
				}
				res.Added = append(res.Added, cfg.EntityID)
				continue
			}
			if e.SetMembers(cfg.Members) {
				res.Updated = append(res.Updated, cfg.EntityID)
			}
		}

		s.runCycle(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reloaded configuration",
		zap.Int("added_count", len(res.Added)),
		zap.Int("removed_count", len(res.Removed)),
		zap.Int("updated_count", len(res.Updated)),
	)
	return res, nil
}

func (s *MonitorService) removeEntity(ctx context.Context, id string) {
	if err := s.registry.Unregister(id); err != nil {
		return
	}
	delete(s.lastDevice, id)
	delete(s.lastMetrics, id)

	if err := s.states.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete entity state", zap.String("entity_id", id), zap.Error(err))
	}
	if s.views != nil {
		if err := s.views.Delete(ctx, id); err != nil {
			s.logger.Error("Failed to delete read model", zap.String("entity_id", id), zap.Error(err))
		}
	}
}

// Close unregisters every entity, dropping all source subscriptions. Call it
// after Run has returned.
func (s *MonitorService) Close() {
	for _, e := range s.registry.All() {
		_ = s.registry.Unregister(e.ID())
	}
}
