// Package memstore is an in-memory implementation of every repository the
// domain services use, for service tests. RunInTransaction serializes
// transactions and restores the previous state when fn fails, so rollback
// behaves like the database.
package memstore

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/security"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
	"stockledger/internal/domain/snapshot"
)

// AuditRecord is one LogChange call.
type AuditRecord struct {
	EntityType string
	EntityID   id.ID
	Action     domain.AuditAction
	Changes    map[string]any
	Actor      string
}

type state struct {
	locations map[id.ID]*location.Location
	items     map[id.ID]*ledger.StockItem
	movements []*ledger.Movement
	records   map[id.ID]*snapshot.Record
	sessions  map[id.ID]*counting.Session
	lines     map[id.ID]*counting.Line
	events    []domain.Event
	audits    []AuditRecord
}

func newState() *state {
	return &state{
		locations: make(map[id.ID]*location.Location),
		items:     make(map[id.ID]*ledger.StockItem),
		records:   make(map[id.ID]*snapshot.Record),
		sessions:  make(map[id.ID]*counting.Session),
		lines:     make(map[id.ID]*counting.Line),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.locations {
		out.locations[k] = cloneLocation(v)
	}
	for k, v := range s.items {
		out.items[k] = cloneItem(v)
	}
	out.movements = make([]*ledger.Movement, 0, len(s.movements))
	for _, m := range s.movements {
		out.movements = append(out.movements, cloneMovement(m))
	}
	for k, v := range s.records {
		r := *v
		out.records[k] = &r
	}
	for k, v := range s.sessions {
		out.sessions[k] = cloneSession(v)
	}
	for k, v := range s.lines {
		l := *v
		out.lines[k] = &l
	}
	out.events = slices.Clone(s.events)
	out.audits = slices.Clone(s.audits)
	return out
}

// Store holds all state behind one mutex.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New creates an empty store.
func New() *Store {
	return &Store{state: newState()}
}

var _ tx.Manager = (*Store)(nil)

type txKey struct{ store *Store }

// RunInTransaction runs fn with exclusive access. Nested calls join the
// outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.state = saved
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool)
	return v
}

// lock guards a single repository call made outside a transaction.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Locations returns the location repository.
func (s *Store) Locations() *Locations { return &Locations{s} }

// Items returns the stock item repository.
func (s *Store) Items() *Items { return &Items{s} }

// Movements returns the movement repository.
func (s *Store) Movements() *Movements { return &Movements{s} }

// Snapshots returns the snapshot repository.
func (s *Store) Snapshots() *Snapshots { return &Snapshots{s} }

// Counts returns the count session repository.
func (s *Store) Counts() *Counts { return &Counts{s} }

// Publisher returns an event publisher that records into the store.
func (s *Store) Publisher() *Publisher { return &Publisher{s} }

// Audit returns an audit logger that records into the store.
func (s *Store) Audit() *AuditLog { return &AuditLog{s} }

// Events returns committed events.
func (s *Store) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.events)
}

// EventsOfType returns committed events of one type.
func (s *Store) EventsOfType(eventType string) []domain.Event {
	var out []domain.Event
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Audits returns committed audit records.
func (s *Store) Audits() []AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.audits)
}

// Publisher records events in the store.
type Publisher struct{ s *Store }

var _ domain.EventPublisher = (*Publisher)(nil)

// Publish implements domain.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, e domain.Event) error {
	defer p.s.lock(ctx)()
	p.s.state.events = append(p.s.state.events, e)
	return nil
}

// PublishBatch records several events at once.
func (p *Publisher) PublishBatch(ctx context.Context, events []domain.Event) error {
	defer p.s.lock(ctx)()
	p.s.state.events = append(p.s.state.events, events...)
	return nil
}

// AuditLog records audit entries in the store.
type AuditLog struct{ s *Store }

var (
	_ domain.AuditLogger = (*AuditLog)(nil)
	_ domain.AuditReader = (*AuditLog)(nil)
)

// LogChange implements domain.AuditLogger.
func (a *AuditLog) LogChange(ctx context.Context, entityType string, entityID id.ID, action domain.AuditAction, changes map[string]any) error {
	defer a.s.lock(ctx)()
	a.s.state.audits = append(a.s.state.audits, AuditRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Changes:    maps.Clone(changes),
		Actor:      security.ActorOrSystem(ctx),
	})
	return nil
}

// History implements domain.AuditReader.
func (a *AuditLog) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]domain.AuditEntry, error) {
	defer a.s.lock(ctx)()
	var out []domain.AuditEntry
	for _, r := range slices.Backward(a.s.state.audits) {
		if r.EntityType != entityType || r.EntityID != entityID {
			continue
		}
		raw, err := json.Marshal(r.Changes)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.AuditEntry{
			ID:         id.New(),
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Action:     r.Action,
			UserID:     r.Actor,
			Changes:    raw,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Clock is a settable time source for service configs.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

// Now returns the current time and advances the clock by a second, so
// successive events are strictly ordered.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

func cloneLocation(l *location.Location) *location.Location {
	out := *l
	if l.Capacity != nil {
		c := *l.Capacity
		out.Capacity = &c
	}
	return &out
}

func cloneItem(it *ledger.StockItem) *ledger.StockItem {
	out := *it
	out.Locations = it.Locations.Clone()
	if it.MergedInto != nil {
		m := *it.MergedInto
		out.MergedInto = &m
	}
	return &out
}

func cloneMovement(m *ledger.Movement) *ledger.Movement {
	out := *m
	return &out
}

func cloneSession(s *counting.Session) *counting.Session {
	out := *s
	out.Counters = slices.Clone(s.Counters)
	return &out
}

func compareIDs(a, b id.ID) int {
	return slices.Compare(a[:], b[:])
}

func page[T any](items []T, f domain.ListFilter) domain.ListResult[T] {
	total := int64(len(items))
	start := min(f.Offset, len(items))
	end := len(items)
	if f.Limit > 0 {
		end = min(start+f.Limit, len(items))
	}
	return domain.ListResult[T]{
		Items:      items[start:end],
		TotalCount: total,
		Limit:      f.Limit,
		Offset:     f.Offset,
	}
}
