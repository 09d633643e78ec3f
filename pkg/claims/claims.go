// Package claims computes privacy-preserving aggregate claims over encrypted
// identity fields. A claim is the truncated average of the score field across
// a set of users, produced without revealing any individual value.
package claims

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/identity"
)

var (
	// ErrNotAuthorized is returned when Aggregate is invoked by anyone other
	// than the registry.
	ErrNotAuthorized = errors.New("caller is not authorized to aggregate")
	// ErrEmptyUserList is returned when a claim is requested over zero users.
	ErrEmptyUserList = errors.New("user list must not be empty")
	// ErrInvalidClaimID is returned for claim id 0 or beyond the counter.
	ErrInvalidClaimID = errors.New("invalid claim id")
	// ErrUnknownClaim is returned by stores when no claim exists for an id.
	ErrUnknownClaim = errors.New("unknown claim")
)

// ClaimID identifies a generated claim. Ids are dense and start at 1.
type ClaimID uint64

// Claim is a stored aggregation result. Result is the encrypted average;
// decrypt access is granted to the requester only.
type Claim struct {
	ID        ClaimID
	Result    fhe.Handle
	Requester common.Address
	UserCount int
	Cost      decimal.Decimal
	CreatedAt time.Time
}

// Store persists claims and the claim counter.
type Store interface {
	// NextClaimID pre-increments the counter and returns the new id.
	NextClaimID(ctx context.Context) (ClaimID, error)
	StoreClaim(ctx context.Context, claim *Claim) error
	// GetClaim returns ErrUnknownClaim when no claim exists for the id.
	GetClaim(ctx context.Context, id ClaimID) (*Claim, error)
	LastClaimID(ctx context.Context) (ClaimID, error)
}

// FieldSource resolves the encrypted field handles the aggregator reads.
// The registry backs this with its record store.
type FieldSource interface {
	FieldHandle(ctx context.Context, userID identity.UserID, field identity.Field) (fhe.Handle, error)
}

// Aggregator is the claim computation entry point. Selected statically at
// wiring time; the registry is its only legitimate caller.
type Aggregator interface {
	Aggregate(ctx context.Context, caller, requester common.Address, userIDs []identity.UserID) (*Claim, error)
	GetClaim(ctx context.Context, id ClaimID) (*Claim, error)
}
