// Package ledger provides the transactional execution model for the
// registry: single-writer, serializable state transitions with full
// rollback of every mutation performed inside a failed top-level call.
//
// Memory-backed stores register compensating actions in a per-call Journal;
// postgres-backed stores join the enclosing bun transaction carried in the
// context. Transient capability grants live in a per-call set that is
// discarded on both success and failure, so partial authorization can never
// outlive the call that issued it. Events are buffered and recorded only
// after the call commits.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Event is an observable fact recorded after a successful state transition.
// Events are informational only and never drive control flow.
type Event struct {
	ID         uuid.UUID
	Name       string
	Attributes map[string]string
	EmittedAt  time.Time
}

// EventRecorder persists events emitted by committed calls.
type EventRecorder interface {
	Record(ctx context.Context, events []Event) error
}

// Executor runs top-level operations one at a time against the shared state.
type Executor struct {
	mu       sync.Mutex
	db       *bun.DB // nil when running on memory stores only
	recorder EventRecorder
	logger   *zap.Logger
}

// NewExecutor creates an executor. db may be nil for memory-only deployments;
// when set, every call runs inside a database transaction as well.
func NewExecutor(db *bun.DB, recorder EventRecorder, logger *zap.Logger) *Executor {
	return &Executor{
		db:       db,
		recorder: recorder,
		logger:   logger,
	}
}

// Execute runs fn as one atomic top-level call. If fn returns an error,
// every journaled mutation is reverted (and any enclosing database
// transaction rolled back) as if the call never happened. Transient grants
// issued during the call are dropped either way. Buffered events are
// recorded only on success.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	journal := NewJournal()
	transients := NewTransients()
	events := newEventBuffer()

	ctx = WithJournal(ctx, journal)
	ctx = WithTransients(ctx, transients)
	ctx = withEventBuffer(ctx, events)

	var err error
	if e.db != nil {
		err = e.db.RunInTx(ctx, nil, func(txCtx context.Context, tx bun.Tx) error {
			return fn(WithIDB(txCtx, tx))
		})
	} else {
		err = fn(ctx)
	}

	if err != nil {
		journal.Revert()
		return err
	}

	if e.recorder != nil {
		if recErr := e.recorder.Record(ctx, events.drain()); recErr != nil && e.logger != nil {
			// Events are observational; a recording failure must not fail
			// the already-committed call.
			e.logger.Warn("failed to record events", zap.Error(recErr))
		}
	}
	return nil
}
