// Package source is the host state store seen from the monitor: a pull API
// (State) and a push API (Subscribe) over the latest reading of every
// external value provider. It is fed by the MQTT consumer and the REST
// poller and is only touched from the monitor's scheduler goroutine.
package source

import (
	"errors"
	"sort"

	"brokkoli/internal/models"

	"go.uber.org/zap"
)

// ErrSourceNotFound the source has never reported or was removed
var ErrSourceNotFound = errors.New("source not found")

// Listener receives the new state of sourceID; state is nil when the source was removed
type Listener func(sourceID string, state *models.SourceState)

// Reader pull side
type Reader interface {
	State(sourceID string) (models.SourceState, error)
}

// Subscriber push side
type Subscriber interface {
	Subscribe(sourceID string, l Listener) Subscription
}

// Hub both sides, as bindings need them
type Hub interface {
	Reader
	Subscriber
}

// Subscription cancels one Subscribe call
type Subscription interface {
	Unsubscribe()
}

// Store in-memory host state store
type Store struct {
	states    map[string]models.SourceState
	listeners map[string]map[uint64]Listener
	nextID    uint64
	logger    *zap.Logger
}

// NewStore creates an empty store
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		states:    make(map[string]models.SourceState),
		listeners: make(map[string]map[uint64]Listener),
		logger:    logger,
	}
}

// State latest state of sourceID
func (s *Store) State(sourceID string) (models.SourceState, error) {
	st, ok := s.states[sourceID]
	if !ok {
		return models.SourceState{}, ErrSourceNotFound
	}
	return st, nil
}

// Apply records state and notifies its listeners synchronously
func (s *Store) Apply(state models.SourceState) {
	if state.SourceID == "" {
		return
	}
	s.states[state.SourceID] = state
	st := state
	s.notify(state.SourceID, &st)
}

// Remove forgets sourceID; listeners see a nil state
func (s *Store) Remove(sourceID string) {
	if _, ok := s.states[sourceID]; !ok {
		return
	}
	delete(s.states, sourceID)
	s.notify(sourceID, nil)
}

// Subscribe registers l for sourceID
func (s *Store) Subscribe(sourceID string, l Listener) Subscription {
	s.nextID++
	id := s.nextID
	if s.listeners[sourceID] == nil {
		s.listeners[sourceID] = make(map[uint64]Listener)
	}
	s.listeners[sourceID][id] = l
	return &subscription{store: s, sourceID: sourceID, id: id}
}

// SubscribedIDs every source id with at least one listener, sorted
func (s *Store) SubscribedIDs() []string {
	ids := make([]string, 0, len(s.listeners))
	for id, ls := range s.listeners {
		if len(ls) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ListenerCount number of listeners on sourceID
func (s *Store) ListenerCount(sourceID string) int {
	return len(s.listeners[sourceID])
}

func (s *Store) notify(sourceID string, state *models.SourceState) {
	ls := s.listeners[sourceID]
	if len(ls) == 0 {
		return
	}
	// listeners may rebind (and so unsubscribe) while being notified
	ids := make([]uint64, 0, len(ls))
	for id := range ls {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		l, ok := s.listeners[sourceID][id]
		if !ok {
			continue
		}
		l(sourceID, state)
	}
	s.logger.Debug("Dispatched source state",
		zap.String("source_id", sourceID),
		zap.Int("listeners", len(ids)),
	)
}

type subscription struct {
	store    *Store
	sourceID string
	id       uint64
	done     bool
}

func (u *subscription) Unsubscribe() {
	if u.done {
		return
	}
	u.done = true
	ls := u.store.listeners[u.sourceID]
	delete(ls, u.id)
	if len(ls) == 0 {
		delete(u.store.listeners, u.sourceID)
	}
}
