package idmapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// MappingDao maps directly to the 'id_mappings' table in PostgreSQL.
type MappingDao struct {
	bun.BaseModel `bun:"table:id_mappings,alias:m"`
	UserID        int64     `bun:"user_id,pk,autoincrement"`
	Address       string    `bun:"address,unique,notnull,type:varchar(42)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

type pgStore struct {
	db *bun.DB
}

// NewPgStore creates a postgres-backed mapping store. User ids come from the
// table's sequence, so they are monotonic starting at 1.
func NewPgStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) conn(ctx context.Context) bun.IDB {
	if idb, ok := ledger.IDBFrom(ctx); ok {
		return idb
	}
	return s.db
}

func (s *pgStore) Issue(ctx context.Context, addr common.Address) (identity.UserID, error) {
	if id, err := s.IDByAddress(ctx, addr); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNoIDIssued) {
		return 0, err
	}

	dao := &MappingDao{Address: addr.Hex()}
	if _, err := s.conn(ctx).NewInsert().Model(dao).Returning("user_id").Exec(ctx); err != nil {
		// A concurrent Issue for the same address can win the insert between
		// the pre-check and here; return the id it assigned.
		if isUniqueViolation(err) {
			return s.IDByAddress(ctx, addr)
		}
		return 0, fmt.Errorf("failed to issue user id: %w", err)
	}
	return identity.UserID(dao.UserID), nil
}

// isUniqueViolation reports whether err is a postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

func (s *pgStore) IDByAddress(ctx context.Context, addr common.Address) (identity.UserID, error) {
	dao := new(MappingDao)
	err := s.conn(ctx).NewSelect().
		Model(dao).
		Where("address = ?", addr.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoIDIssued
		}
		return 0, fmt.Errorf("failed to look up user id: %w", err)
	}
	return identity.UserID(dao.UserID), nil
}

func (s *pgStore) AddressByID(ctx context.Context, id identity.UserID) (common.Address, error) {
	dao := new(MappingDao)
	err := s.conn(ctx).NewSelect().
		Model(dao).
		Where("user_id = ?", int64(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.Address{}, ErrUnknownUserID
		}
		return common.Address{}, fmt.Errorf("failed to look up address: %w", err)
	}
	return common.HexToAddress(dao.Address), nil
}
