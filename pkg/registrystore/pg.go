package registrystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

type pgStore struct {
	db *bun.DB
}

// NewPgStore creates a postgres-backed identity record store.
func NewPgStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func pgConn(ctx context.Context, db *bun.DB) bun.IDB {
	if idb, ok := ledger.IDBFrom(ctx); ok {
		return idb
	}
	return db
}

func (s *pgStore) CreateRecord(ctx context.Context, record *identity.Record) error {
	dao := toIdentityDao(record)
	_, err := pgConn(ctx, s.db).NewInsert().Model(dao).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("failed to create identity record: %w", err)
	}
	return nil
}

func (s *pgStore) GetRecord(ctx context.Context, userID identity.UserID) (*identity.Record, error) {
	dao := new(IdentityDao)
	err := pgConn(ctx, s.db).NewSelect().
		Model(dao).
		Where("user_id = ?", int64(userID)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("failed to get identity record: %w", err)
	}
	return toRecord(dao)
}

func (s *pgStore) IsRegistered(ctx context.Context, userID identity.UserID) (bool, error) {
	exists, err := pgConn(ctx, s.db).NewSelect().
		Model((*IdentityDao)(nil)).
		Where("user_id = ?", int64(userID)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	return exists, nil
}

// isUniqueViolation reports whether err is a postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

type pgRoleStore struct {
	db *bun.DB
}

// NewPgRoleStore creates a postgres-backed role store.
func NewPgRoleStore(db *bun.DB) RoleStore {
	return &pgRoleStore{db: db}
}

func (s *pgRoleStore) addRole(ctx context.Context, addr common.Address, role string) error {
	dao := &RoleDao{Address: addr.Hex(), Role: role}
	_, err := pgConn(ctx, s.db).NewInsert().
		Model(dao).
		On("CONFLICT (address, role) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add %s role: %w", role, err)
	}
	return nil
}

func (s *pgRoleStore) removeRole(ctx context.Context, addr common.Address, role string) error {
	_, err := pgConn(ctx, s.db).NewDelete().
		Model((*RoleDao)(nil)).
		Where("address = ?", addr.Hex()).
		Where("role = ?", role).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove %s role: %w", role, err)
	}
	return nil
}

func (s *pgRoleStore) hasRole(ctx context.Context, addr common.Address, role string) (bool, error) {
	exists, err := pgConn(ctx, s.db).NewSelect().
		Model((*RoleDao)(nil)).
		Where("address = ?", addr.Hex()).
		Where("role = ?", role).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check %s role: %w", role, err)
	}
	return exists, nil
}

func (s *pgRoleStore) AddRegistrar(ctx context.Context, addr common.Address) error {
	return s.addRole(ctx, addr, roleRegistrar)
}

func (s *pgRoleStore) RemoveRegistrar(ctx context.Context, addr common.Address) error {
	return s.removeRole(ctx, addr, roleRegistrar)
}

func (s *pgRoleStore) IsRegistrar(ctx context.Context, addr common.Address) (bool, error) {
	return s.hasRole(ctx, addr, roleRegistrar)
}

func (s *pgRoleStore) AddRequester(ctx context.Context, addr common.Address) error {
	return s.addRole(ctx, addr, roleRequester)
}

func (s *pgRoleStore) RemoveRequester(ctx context.Context, addr common.Address) error {
	return s.removeRole(ctx, addr, roleRequester)
}

func (s *pgRoleStore) IsRequester(ctx context.Context, addr common.Address) (bool, error) {
	return s.hasRole(ctx, addr, roleRequester)
}
