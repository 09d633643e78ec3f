package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherid/registry-middleware/pkg/claims"
	"github.com/cipherid/registry-middleware/pkg/identity"
)

// MockAggregator is a mock implementation of claims.Aggregator
type MockAggregator struct {
	AggregateFunc func(ctx context.Context, caller, requester common.Address, userIDs []identity.UserID) (*claims.Claim, error)
	GetClaimFunc  func(ctx context.Context, id claims.ClaimID) (*claims.Claim, error)
}

func (m *MockAggregator) Aggregate(
	ctx context.Context,
	caller, requester common.Address,
	userIDs []identity.UserID,
) (*claims.Claim, error) {
	if m.AggregateFunc != nil {
		return m.AggregateFunc(ctx, caller, requester, userIDs)
	}
	return nil, nil
}

func (m *MockAggregator) GetClaim(ctx context.Context, id claims.ClaimID) (*claims.Claim, error) {
	if m.GetClaimFunc != nil {
		return m.GetClaimFunc(ctx, id)
	}
	return nil, nil
}
