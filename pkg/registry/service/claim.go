package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	"github.com/cipherid/registry-middleware/pkg/claims"
	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/registrystore"

	"github.com/cipherid/registry-middleware/internal/metrics"
)

// GenerateClaim produces an aggregate claim over the requested users.
//
// The generation process:
//  1. Verifies the caller is a whitelisted requester
//  2. Validates every field name before touching any state
//  3. Verifies every requested user is registered
//  4. Issues transient grants on each (user, field) handle to the aggregator
//  5. Invokes the aggregator, which sums and divides the score field
//
// Transient grants are scoped to this call and vanish with it. Any failure
// downstream of step 4 rolls the whole call back, including the claim
// counter, so a failed claim leaves no trace.
func (s *registryService) GenerateClaim(
	ctx context.Context,
	req *ClaimRequest,
) (*ClaimResult, error) {
	start := time.Now()

	var result *ClaimResult
	err := s.executor.Execute(ctx, func(ctx context.Context) error {
		whitelisted, err := s.roles.IsRequester(ctx, req.Caller)
		if err != nil {
			return fmt.Errorf("failed to check whitelist: %w", err)
		}
		if !whitelisted {
			return apperrors.UnAuthorizedError(ErrNotWhitelisted, "caller is not a whitelisted requester")
		}

		fields := make([]identity.Field, 0, len(req.FieldNames))
		for _, name := range req.FieldNames {
			field, err := identity.ParseField(name)
			if err != nil {
				return apperrors.BadRequestError(ErrInvalidField, fmt.Sprintf("invalid field name %q", name))
			}
			fields = append(fields, field)
		}

		for _, userID := range req.UserIDs {
			record, err := s.records.GetRecord(ctx, userID)
			if err != nil {
				if errors.Is(err, registrystore.ErrNotRegistered) {
					return apperrors.ResourceNotFoundError(ErrIdentityNotRegistered,
						fmt.Sprintf("user %d is not registered", userID))
				}
				return fmt.Errorf("failed to get record of user %d: %w", userID, err)
			}
			for _, field := range fields {
				s.acl.GrantTransient(ctx, record.Handle(field), s.aggregatorAddr)
			}
		}

		claim, err := s.aggregator.Aggregate(ctx, s.self, req.Caller, req.UserIDs)
		if err != nil {
			if errors.Is(err, claims.ErrEmptyUserList) {
				return apperrors.BadRequestError(claims.ErrEmptyUserList, "user list must not be empty")
			}
			return apperrors.DependencyFailureError(
				fmt.Errorf("%w: %w", ErrClaimGenerationFailed, err), "claim generation failed")
		}

		cost := s.costRate.
			Mul(decimal.NewFromInt(int64(len(req.UserIDs)))).
			Mul(decimal.NewFromInt(int64(len(fields))))
		result = &ClaimResult{Claim: claim, Cost: cost}
		return nil
	})
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	metrics.ClaimsTotal.WithLabelValues("success").Inc()
	metrics.ClaimDuration.Observe(time.Since(start).Seconds())
	metrics.ClaimUserCount.Observe(float64(len(req.UserIDs)))
	return result, nil
}

// GetClaim returns a previously generated claim.
func (s *registryService) GetClaim(
	ctx context.Context,
	claimID claims.ClaimID,
) (*claims.Claim, error) {
	claim, err := s.aggregator.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, claims.ErrInvalidClaimID) || errors.Is(err, claims.ErrUnknownClaim) {
			return nil, apperrors.BadRequestError(claims.ErrInvalidClaimID, "invalid claim id")
		}
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return claim, nil
}
