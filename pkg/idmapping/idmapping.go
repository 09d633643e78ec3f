// Package idmapping implements the identifier mapping service: it issues
// opaque numeric user ids for addresses and resolves them back. The registry
// depends on GetAddr to know whom to grant persistent access to at
// registration time.
package idmapping

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	"github.com/cipherid/registry-middleware/pkg/identity"
)

var (
	// ErrNoIDIssued is returned when an address has no user id yet.
	ErrNoIDIssued = errors.New("no user id issued for address")
	// ErrUnknownUserID is returned when a user id was never issued.
	ErrUnknownUserID = errors.New("unknown user id")
)

// Store persists the bidirectional address <-> user id mapping.
type Store interface {
	// Issue allocates the next user id for addr, or returns the existing id
	// when one was already issued. Ids are monotonic starting at 1.
	Issue(ctx context.Context, addr common.Address) (identity.UserID, error)
	IDByAddress(ctx context.Context, addr common.Address) (identity.UserID, error)
	AddressByID(ctx context.Context, id identity.UserID) (common.Address, error)
}

// Service is the public surface of the identifier mapping.
type Service interface {
	// GenerateID issues a user id for addr. Idempotent: calling it again for
	// the same address returns the originally issued id.
	GenerateID(ctx context.Context, addr common.Address) (identity.UserID, error)
	GetID(ctx context.Context, addr common.Address) (identity.UserID, error)
	GetAddr(ctx context.Context, id identity.UserID) (common.Address, error)
}

type service struct {
	store Store
}

// NewService creates the identifier mapping service.
func NewService(store Store) Service {
	return &service{store: store}
}

func (s *service) GenerateID(ctx context.Context, addr common.Address) (identity.UserID, error) {
	return s.store.Issue(ctx, addr)
}

func (s *service) GetID(ctx context.Context, addr common.Address) (identity.UserID, error) {
	id, err := s.store.IDByAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrNoIDIssued) {
			return 0, apperrors.ResourceNotFoundError(err, "no user id issued for address")
		}
		return 0, err
	}
	return id, nil
}

func (s *service) GetAddr(ctx context.Context, id identity.UserID) (common.Address, error) {
	addr, err := s.store.AddressByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnknownUserID) {
			return common.Address{}, apperrors.ResourceNotFoundError(err, "unknown user id")
		}
		return common.Address{}, err
	}
	return addr, nil
}
