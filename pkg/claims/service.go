package claims

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cipherid/registry-middleware/pkg/events"
	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// Service computes claims over the score field. It holds its own capability
// address: the registry issues transient grants to that address before
// invoking Aggregate, and the service verifies every read against the ACL.
type Service struct {
	self     common.Address
	registry common.Address
	cop      fhe.Coprocessor
	acl      *fhe.ACL
	fields   FieldSource
	store    Store
	costRate decimal.Decimal
}

// NewService creates the aggregator. registry is the only address allowed to
// call Aggregate; costRate is the per-user aggregation cost.
func NewService(
	self common.Address,
	registry common.Address,
	cop fhe.Coprocessor,
	acl *fhe.ACL,
	fields FieldSource,
	store Store,
	costRate decimal.Decimal,
) *Service {
	return &Service{
		self:     self,
		registry: registry,
		cop:      cop,
		acl:      acl,
		fields:   fields,
		store:    store,
		costRate: costRate,
	}
}

// Aggregate sums the score field of every listed user and divides by the
// user count, truncating toward zero. The result handle is granted to the
// registry and to the requester; no intermediate handle is granted to anyone.
func (s *Service) Aggregate(
	ctx context.Context,
	caller, requester common.Address,
	userIDs []identity.UserID,
) (*Claim, error) {
	if caller != s.registry {
		return nil, ErrNotAuthorized
	}
	if len(userIDs) == 0 {
		return nil, ErrEmptyUserList
	}

	id, err := s.store.NextClaimID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate claim id: %w", err)
	}

	var sum fhe.Handle
	for i, userID := range userIDs {
		h, err := s.fields.FieldHandle(ctx, userID, identity.FieldScore)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve score of user %d: %w", userID, err)
		}
		allowed, err := s.acl.CanAccess(ctx, h, s.self)
		if err != nil {
			return nil, fmt.Errorf("failed to check access for user %d: %w", userID, err)
		}
		if !allowed {
			return nil, fmt.Errorf("no grant on score of user %d: %w", userID, ErrNotAuthorized)
		}
		if i == 0 {
			sum = h
			continue
		}
		sum, err = s.cop.Add(ctx, sum, h)
		if err != nil {
			return nil, fmt.Errorf("failed to add score of user %d: %w", userID, err)
		}
	}

	avg, err := s.cop.DivScalar(ctx, sum, uint64(len(userIDs)))
	if err != nil {
		return nil, fmt.Errorf("failed to divide aggregate: %w", err)
	}

	if err := s.acl.Grant(ctx, avg, s.registry); err != nil {
		return nil, fmt.Errorf("failed to grant registry access: %w", err)
	}
	if err := s.acl.Grant(ctx, avg, requester); err != nil {
		return nil, fmt.Errorf("failed to grant requester access: %w", err)
	}

	claim := &Claim{
		ID:        id,
		Result:    avg,
		Requester: requester,
		UserCount: len(userIDs),
		Cost:      s.costRate.Mul(decimal.NewFromInt(int64(len(userIDs)))),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.StoreClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to store claim: %w", err)
	}

	ledger.Emit(ctx, events.ClaimGenerated, map[string]string{
		events.AttrClaimID: strconv.FormatUint(uint64(id), 10),
	})
	return claim, nil
}

// GetClaim returns a stored claim. Id 0 and ids beyond the counter are
// rejected with ErrInvalidClaimID.
func (s *Service) GetClaim(ctx context.Context, id ClaimID) (*Claim, error) {
	if id == 0 {
		return nil, ErrInvalidClaimID
	}
	last, err := s.store.LastClaimID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read claim counter: %w", err)
	}
	if id > last {
		return nil, ErrInvalidClaimID
	}
	claim, err := s.store.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	return claim, nil
}
