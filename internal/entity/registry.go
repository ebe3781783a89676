package entity

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrEntityNotFound  = errors.New("entity not found")
	ErrNotGroup        = errors.New("entity is not a group")
	ErrDuplicateEntity = errors.New("entity already registered")
	ErrSelfMembership  = errors.New("group cannot contain itself")
)

// Registry owns entity lifecycle; the monitor injects it where lookups are needed
type Registry struct {
	entities map[string]*Entity
	order    []string
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		logger:   logger,
	}
}

// Register adds e; ids are unique
func (r *Registry) Register(e *Entity) error {
	if _, ok := r.entities[e.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.ID())
	}
	r.entities[e.ID()] = e
	r.order = append(r.order, e.ID())

	r.logger.Info("Entity registered",
		zap.String("entity_id", e.ID()),
		zap.String("kind", string(e.Kind())),
	)
	return nil
}

// Lookup by id
func (r *Registry) Lookup(id string) (*Entity, error) {
	e, ok := r.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return e, nil
}

// LookupGroup like Lookup but the entity must be a group
func (r *Registry) LookupGroup(id string) (*Entity, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	if !e.IsGroup() {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, id)
	}
	return e, nil
}

// Unregister closes the entity's subscriptions and drops it from every group
func (r *Registry) Unregister(id string) error {
	e, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	e.Close()
	delete(r.entities, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for _, other := range r.entities {
		other.RemoveMember(id)
	}

	r.logger.Info("Entity unregistered", zap.String("entity_id", id))
	return nil
}

// All entities in registration order
func (r *Registry) All() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entities[id])
	}
	return out
}

// Len number of registered entities
func (r *Registry) Len() int { return len(r.entities) }

// MembersOf resolves a group's member ids, skipping ids that are not registered
func (r *Registry) MembersOf(group *Entity) []*Entity {
	ids := group.Members()
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// GroupsOf groups having id as a direct member
func (r *Registry) GroupsOf(id string) []*Entity {
	var out []*Entity
	for _, gid := range r.order {
		g := r.entities[gid]
		if g.IsGroup() && g.HasMember(id) {
			out = append(out, g)
		}
	}
	return out
}

// GroupsInDependencyOrder groups ordered so that a group nested in another
// comes first. Membership cycles are broken at the first revisit.
func (r *Registry) GroupsInDependencyOrder() []*Entity {
	var out []*Entity
	state := make(map[string]int) // 1 visiting, 2 done

	var visit func(e *Entity)
	visit = func(e *Entity) {
		switch state[e.ID()] {
		case 1:
			r.logger.Warn("Group membership cycle", zap.String("entity_id", e.ID()))
			return
		case 2:
			return
		}
		state[e.ID()] = 1
		for _, m := range r.MembersOf(e) {
			if m.IsGroup() {
				visit(m)
			}
		}
		state[e.ID()] = 2
		out = append(out, e)
	}

	for _, e := range r.All() {
		if e.IsGroup() {
			visit(e)
		}
	}
	return out
}
