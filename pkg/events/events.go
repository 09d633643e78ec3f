// Package events records the registry's observable events. Events are
// informational: they are written after a call commits and are never read
// back to drive control flow.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// Event names emitted by the registry and the aggregator.
const (
	IdentityRegistered = "IdentityRegistered"
	ClaimGenerated     = "ClaimGenerated"
)

// Attribute keys used on emitted events.
const (
	AttrOwner   = "owner"
	AttrClaimID = "claim_id"
)

// LogRecorder writes committed events to the structured log.
type LogRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder creates a recorder that logs each event.
func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// Record implements ledger.EventRecorder.
func (r *LogRecorder) Record(_ context.Context, evs []ledger.Event) error {
	for _, ev := range evs {
		fields := make([]zap.Field, 0, len(ev.Attributes)+2)
		fields = append(fields,
			zap.String("event", ev.Name),
			zap.String("event_id", ev.ID.String()),
		)
		for k, v := range ev.Attributes {
			fields = append(fields, zap.String(k, v))
		}
		r.logger.Info("event emitted", fields...)
	}
	return nil
}

// MemoryStore keeps committed events in memory. Used in tests and as the
// observable log of the memory-only deployment.
type MemoryStore struct {
	mu     sync.RWMutex
	events []ledger.Event
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record implements ledger.EventRecorder.
func (s *MemoryStore) Record(_ context.Context, evs []ledger.Event) error {
	s.mu.Lock()
	s.events = append(s.events, evs...)
	s.mu.Unlock()
	return nil
}

// List returns all recorded events in commit order.
func (s *MemoryStore) List() []ledger.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledger.Event(nil), s.events...)
}

// ByName returns recorded events with the given name.
func (s *MemoryStore) ByName(name string) []ledger.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Event
	for _, ev := range s.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Multi fans a committed event batch out to several recorders.
type Multi struct {
	recorders []ledger.EventRecorder
}

// NewMulti creates a recorder that forwards to all given recorders.
func NewMulti(recorders ...ledger.EventRecorder) *Multi {
	return &Multi{recorders: recorders}
}

// Record implements ledger.EventRecorder. The first failure is returned but
// all recorders are attempted.
func (m *Multi) Record(ctx context.Context, evs []ledger.Event) error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Record(ctx, evs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
