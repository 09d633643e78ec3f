// Package registrystore persists the Identity Registry's state: encrypted
// identity records, the registered flag, and the role/whitelist sets.
package registrystore

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherid/registry-middleware/pkg/identity"
)

var (
	// ErrAlreadyRegistered is returned when a record exists for the user id.
	ErrAlreadyRegistered = errors.New("identity already registered")
	// ErrNotRegistered is returned when no record exists for the user id.
	ErrNotRegistered = errors.New("identity not registered")
)

// Store is the identity record store. The registered flag is set atomically
// with record creation: it is never true without a fully populated record.
type Store interface {
	CreateRecord(ctx context.Context, record *identity.Record) error
	GetRecord(ctx context.Context, userID identity.UserID) (*identity.Record, error)
	IsRegistered(ctx context.Context, userID identity.UserID) (bool, error)
}

// RoleStore holds the registrar and claim-requester capability sets.
// The owner is fixed at deployment time and lives in configuration.
type RoleStore interface {
	AddRegistrar(ctx context.Context, addr common.Address) error
	RemoveRegistrar(ctx context.Context, addr common.Address) error
	IsRegistrar(ctx context.Context, addr common.Address) (bool, error)

	AddRequester(ctx context.Context, addr common.Address) error
	RemoveRequester(ctx context.Context, addr common.Address) error
	IsRequester(ctx context.Context, addr common.Address) (bool, error)
}
