package events

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// EventDao maps directly to the 'events' table in PostgreSQL.
type EventDao struct {
	bun.BaseModel `bun:"table:events,alias:e"`
	ID            string            `bun:"id,pk,type:uuid"`
	Name          string            `bun:"name,notnull,type:varchar(64)"`
	Attributes    map[string]string `bun:"attributes,type:jsonb"`
	EmittedAt     time.Time         `bun:"emitted_at,notnull"`
}

// PgStore persists committed events to postgres.
//
// Events are recorded after the emitting call has committed, so this store
// deliberately does not join the call's transaction.
type PgStore struct {
	db *bun.DB
}

// NewPgStore creates a postgres-backed event store.
func NewPgStore(db *bun.DB) *PgStore {
	return &PgStore{db: db}
}

// Record implements ledger.EventRecorder.
func (s *PgStore) Record(ctx context.Context, evs []ledger.Event) error {
	if len(evs) == 0 {
		return nil
	}
	daos := make([]EventDao, len(evs))
	for i, ev := range evs {
		daos[i] = EventDao{
			ID:         ev.ID.String(),
			Name:       ev.Name,
			Attributes: ev.Attributes,
			EmittedAt:  ev.EmittedAt,
		}
	}
	if _, err := s.db.NewInsert().Model(&daos).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store events: %w", err)
	}
	return nil
}
