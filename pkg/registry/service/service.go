// Package service implements the identity registry: one-time registration of
// encrypted identities, per-field reads, capability administration, and claim
// generation over registered users.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	"github.com/cipherid/registry-middleware/pkg/claims"
	"github.com/cipherid/registry-middleware/pkg/events"
	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/ledger"
	"github.com/cipherid/registry-middleware/pkg/registrystore"

	"github.com/cipherid/registry-middleware/internal/metrics"
)

var (
	ErrNotRegistrar          = errors.New("caller is not a registrar")
	ErrNotWhitelisted        = errors.New("caller is not a whitelisted requester")
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrAlreadyRegistered     = errors.New("identity already registered")
	ErrIdentityNotRegistered = errors.New("identity not registered")
	ErrInvalidField          = errors.New("invalid field name")
	ErrNoIDIssued            = errors.New("no user id issued for user")
	ErrClaimGenerationFailed = errors.New("claim generation failed")
	ErrRequestNotBound       = errors.New("signed message does not bind the request")
)

// EncryptedInput is a client-encrypted field value with its input proof
// binding the ciphertext to the submitting caller.
type EncryptedInput struct {
	Ciphertext []byte
	Proof      []byte
}

// RegisterRequest carries one identity registration. Caller is the address
// recovered from the request signature and must hold the registrar role.
type RegisterRequest struct {
	Caller    common.Address
	UserID    identity.UserID
	Score     EncryptedInput
	Firstname EncryptedInput
	Lastname  EncryptedInput
	Birthdate EncryptedInput
}

// ClaimRequest carries one claim generation. Caller must be whitelisted.
type ClaimRequest struct {
	Caller     common.Address
	UserIDs    []identity.UserID
	FieldNames []string
}

// ClaimResult is a generated claim together with its computed cost.
type ClaimResult struct {
	Claim *claims.Claim
	Cost  decimal.Decimal
}

// AddressResolver resolves a user id back to the address it was issued to.
// Defined here to keep the registry decoupled from the mapping store.
type AddressResolver interface {
	AddressByID(ctx context.Context, id identity.UserID) (common.Address, error)
}

// Service defines the interface for the registry business logic
type Service interface {
	RegisterIdentity(ctx context.Context, req *RegisterRequest) (*identity.Record, error)
	GetIdentity(ctx context.Context, userID identity.UserID) (*identity.Record, error)
	GetField(ctx context.Context, userID identity.UserID, fieldName string) (fhe.Handle, error)
	GenerateClaim(ctx context.Context, req *ClaimRequest) (*ClaimResult, error)
	GetClaim(ctx context.Context, claimID claims.ClaimID) (*claims.Claim, error)
	AddRegistrar(ctx context.Context, caller, addr common.Address) error
	RemoveRegistrar(ctx context.Context, caller, addr common.Address) error
	AddRequester(ctx context.Context, caller, addr common.Address) error
	RemoveRequester(ctx context.Context, caller, addr common.Address) error
}

type registryService struct {
	executor   *ledger.Executor
	records    registrystore.Store
	roles      registrystore.RoleStore
	resolver   AddressResolver
	aggregator claims.Aggregator
	cop        fhe.Coprocessor
	acl        *fhe.ACL
	logger     *zap.Logger

	owner          common.Address
	self           common.Address
	aggregatorAddr common.Address
	costRate       decimal.Decimal
}

// NewService creates the registry service. self is the registry's own
// capability address; aggregatorAddr is the address transient grants are
// scoped to before the aggregator is invoked.
func NewService(
	executor *ledger.Executor,
	records registrystore.Store,
	roles registrystore.RoleStore,
	resolver AddressResolver,
	aggregator claims.Aggregator,
	cop fhe.Coprocessor,
	acl *fhe.ACL,
	owner, self, aggregatorAddr common.Address,
	costRate decimal.Decimal,
	logger *zap.Logger,
) Service {
	return &registryService{
		executor:       executor,
		records:        records,
		roles:          roles,
		resolver:       resolver,
		aggregator:     aggregator,
		cop:            cop,
		acl:            acl,
		logger:         logger,
		owner:          owner,
		self:           self,
		aggregatorAddr: aggregatorAddr,
		costRate:       costRate,
	}
}

// RegisterIdentity registers an encrypted identity exactly once per user id.
//
// The registration process:
//  1. Verifies the caller holds the registrar role
//  2. Rejects a second registration for the same user id
//  3. Resolves the user's address from the id mapping
//  4. Verifies every input proof and imports the ciphertexts
//  5. Samples a fresh encrypted internal identifier
//  6. Stores the record and sets the registered flag
//  7. Grants the user and the registry persistent access to every field
//
// All steps run inside one atomic call: any failure rolls back the record,
// the flag, and every grant.
func (s *registryService) RegisterIdentity(
	ctx context.Context,
	req *RegisterRequest,
) (*identity.Record, error) {
	var record *identity.Record
	err := s.executor.Execute(ctx, func(ctx context.Context) error {
		isRegistrar, err := s.roles.IsRegistrar(ctx, req.Caller)
		if err != nil {
			return fmt.Errorf("failed to check registrar role: %w", err)
		}
		if !isRegistrar {
			return apperrors.UnAuthorizedError(ErrNotRegistrar, "caller is not a registrar")
		}

		registered, err := s.records.IsRegistered(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("failed to check registration: %w", err)
		}
		if registered {
			return apperrors.ConflictError(ErrAlreadyRegistered, "identity already registered")
		}

		owner, err := s.resolver.AddressByID(ctx, req.UserID)
		if err != nil {
			return apperrors.BadRequestError(ErrNoIDIssued, "no user id issued for user")
		}

		record = &identity.Record{UserID: req.UserID}
		for _, in := range []struct {
			field identity.Field
			input EncryptedInput
			dst   *fhe.Handle
		}{
			{identity.FieldScore, req.Score, &record.Score},
			{identity.FieldFirstname, req.Firstname, &record.Firstname},
			{identity.FieldLastname, req.Lastname, &record.Lastname},
			{identity.FieldBirthdate, req.Birthdate, &record.Birthdate},
		} {
			h, err := s.cop.VerifyInput(ctx, in.input.Ciphertext, in.input.Proof, req.Caller, in.field.Type())
			if err != nil {
				return apperrors.BadRequestError(err, fmt.Sprintf("invalid %s input", in.field))
			}
			*in.dst = h
		}

		// The internal identifier is never supplied by the client.
		record.ID, err = s.cop.RandEncrypted(ctx, identity.FieldID.Type())
		if err != nil {
			return fmt.Errorf("failed to sample internal id: %w", err)
		}

		if err := s.records.CreateRecord(ctx, record); err != nil {
			if errors.Is(err, registrystore.ErrAlreadyRegistered) {
				return apperrors.ConflictError(ErrAlreadyRegistered, "identity already registered")
			}
			return fmt.Errorf("failed to store record: %w", err)
		}

		for _, h := range record.Handles() {
			if err := s.acl.Grant(ctx, h, owner); err != nil {
				return fmt.Errorf("failed to grant owner access: %w", err)
			}
			if err := s.acl.Grant(ctx, h, s.self); err != nil {
				return fmt.Errorf("failed to grant registry access: %w", err)
			}
			metrics.GrantsIssued.WithLabelValues("field").Add(2)
		}

		ledger.Emit(ctx, events.IdentityRegistered, map[string]string{
			events.AttrOwner: owner.Hex(),
		})
		return nil
	})
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	return record, nil
}

// GetIdentity returns the stored record for a registered user.
func (s *registryService) GetIdentity(
	ctx context.Context,
	userID identity.UserID,
) (*identity.Record, error) {
	record, err := s.records.GetRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, registrystore.ErrNotRegistered) {
			return nil, apperrors.ResourceNotFoundError(ErrIdentityNotRegistered, "identity not registered")
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// GetField returns the handle of one encrypted field of a registered user.
func (s *registryService) GetField(
	ctx context.Context,
	userID identity.UserID,
	fieldName string,
) (fhe.Handle, error) {
	field, err := identity.ParseField(fieldName)
	if err != nil {
		return fhe.Handle{}, apperrors.BadRequestError(ErrInvalidField, "invalid field name")
	}
	record, err := s.GetIdentity(ctx, userID)
	if err != nil {
		return fhe.Handle{}, err
	}
	return record.Handle(field), nil
}
