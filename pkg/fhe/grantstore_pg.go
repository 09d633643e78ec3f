package fhe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// GrantDao maps directly to the 'grants' table in PostgreSQL.
type GrantDao struct {
	bun.BaseModel `bun:"table:grants,alias:g"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Handle        string    `bun:"handle,notnull,type:varchar(66)"`
	Grantee       string    `bun:"grantee,notnull,type:varchar(42)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

type pgGrantStore struct {
	db *bun.DB
}

// NewPgGrantStore creates a postgres-backed persistent grant store.
// Rollback on a failed call is inherited from the enclosing bun transaction
// carried in the context.
func NewPgGrantStore(db *bun.DB) GrantStore {
	return &pgGrantStore{db: db}
}

func (s *pgGrantStore) conn(ctx context.Context) bun.IDB {
	if idb, ok := ledger.IDBFrom(ctx); ok {
		return idb
	}
	return s.db
}

func (s *pgGrantStore) Add(ctx context.Context, h Handle, grantee common.Address) error {
	dao := &GrantDao{
		Handle:  h.Hex(),
		Grantee: grantee.Hex(),
	}
	_, err := s.conn(ctx).NewInsert().
		Model(dao).
		On("CONFLICT (handle, grantee) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add grant: %w", err)
	}
	return nil
}

func (s *pgGrantStore) Has(ctx context.Context, h Handle, grantee common.Address) (bool, error) {
	exists, err := s.conn(ctx).NewSelect().
		Model((*GrantDao)(nil)).
		Where("handle = ?", h.Hex()).
		Where("grantee = ?", grantee.Hex()).
		Exists(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check grant: %w", err)
	}
	return exists, nil
}
