package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ctxKey int

const (
	journalKey ctxKey = iota
	transientsKey
	eventsKey
	idbKey
)

// WithJournal stores a mutation journal in the context for memory stores.
func WithJournal(ctx context.Context, j *Journal) context.Context {
	if j == nil {
		return ctx
	}
	return context.WithValue(ctx, journalKey, j)
}

// JournalFrom extracts the mutation journal from the context if present.
func JournalFrom(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalKey).(*Journal)
	return j, ok
}

// WithTransients stores the transaction-scoped capability set in the context.
func WithTransients(ctx context.Context, t *Transients) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, transientsKey, t)
}

// TransientsFrom extracts the transient capability set from the context.
func TransientsFrom(ctx context.Context) (*Transients, bool) {
	t, ok := ctx.Value(transientsKey).(*Transients)
	return t, ok
}

// WithIDB stores a bun transaction (or database) in the context for
// downstream store usage.
func WithIDB(ctx context.Context, db bun.IDB) context.Context {
	if db == nil {
		return ctx
	}
	return context.WithValue(ctx, idbKey, db)
}

// IDBFrom extracts the bun handle from the context if present.
func IDBFrom(ctx context.Context) (bun.IDB, bool) {
	db, ok := ctx.Value(idbKey).(bun.IDB)
	return db, ok
}

func withEventBuffer(ctx context.Context, b *eventBuffer) context.Context {
	return context.WithValue(ctx, eventsKey, b)
}

// Emit buffers an event for recording after the enclosing call commits.
// Outside an Execute call the event is silently dropped; events never
// drive control flow.
func Emit(ctx context.Context, name string, attributes map[string]string) {
	b, ok := ctx.Value(eventsKey).(*eventBuffer)
	if !ok {
		return
	}
	b.append(Event{
		ID:         uuid.New(),
		Name:       name,
		Attributes: attributes,
		EmittedAt:  time.Now().UTC(),
	})
}

type eventBuffer struct {
	events []Event
}

func newEventBuffer() *eventBuffer {
	return &eventBuffer{}
}

func (b *eventBuffer) append(ev Event) {
	b.events = append(b.events, ev)
}

func (b *eventBuffer) drain() []Event {
	evs := b.events
	b.events = nil
	return evs
}
