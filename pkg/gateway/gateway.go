// Package gateway is the off-chain decryption gateway. It releases a
// plaintext only to a caller that proves control of an address holding a
// persistent grant on the requested handle.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	"github.com/cipherid/registry-middleware/pkg/auth"
	"github.com/cipherid/registry-middleware/pkg/fhe"

	"github.com/cipherid/registry-middleware/internal/metrics"
)

var (
	ErrNoGrant        = errors.New("caller holds no grant on handle")
	ErrHandleNotBound = errors.New("signed message does not bind the handle")
)

// DecryptRequest asks for the plaintext behind a handle. Message must
// contain the handle's hex form and Signature must be the caller's EIP-191
// signature over it, so a signature cannot be replayed for another handle.
type DecryptRequest struct {
	Handle    fhe.Handle
	Message   string
	Signature string
}

// DecryptResult is the released plaintext. Value is set for numeric types,
// Bytes for blob types.
type DecryptResult struct {
	Type  fhe.Type
	Value uint64
	Bytes []byte
}

// Service defines the interface for the decryption gateway
type Service interface {
	Decrypt(ctx context.Context, req *DecryptRequest) (*DecryptResult, error)
}

type gatewayService struct {
	cop    fhe.Coprocessor
	acl    *fhe.ACL
	logger *zap.Logger
}

// NewService creates the decryption gateway.
func NewService(cop fhe.Coprocessor, acl *fhe.ACL, logger *zap.Logger) Service {
	return &gatewayService{
		cop:    cop,
		acl:    acl,
		logger: logger,
	}
}

// Decrypt verifies the caller's signature, checks the grant and releases the
// plaintext. Only persistent grants count here: the gateway runs outside any
// registry call, so no transient grant can be in scope.
func (s *gatewayService) Decrypt(
	ctx context.Context,
	req *DecryptRequest,
) (*DecryptResult, error) {
	result, err := s.decrypt(ctx, req)
	if err != nil {
		metrics.DecryptRequests.WithLabelValues("denied").Inc()
		return nil, err
	}
	metrics.DecryptRequests.WithLabelValues("granted").Inc()
	return result, nil
}

func (s *gatewayService) decrypt(
	ctx context.Context,
	req *DecryptRequest,
) (*DecryptResult, error) {
	caller, err := auth.VerifyEIP191Signature(req.Message, req.Signature)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid signature")
	}
	if !strings.Contains(strings.ToLower(req.Message), strings.ToLower(req.Handle.Hex())) {
		return nil, apperrors.BadRequestError(ErrHandleNotBound, "signed message does not bind the handle")
	}

	allowed, err := s.acl.CanAccess(ctx, req.Handle, caller)
	if err != nil {
		return nil, fmt.Errorf("failed to check grant: %w", err)
	}
	if !allowed {
		return nil, apperrors.ForbiddenError(ErrNoGrant, "caller holds no grant on handle")
	}

	typ, err := s.cop.TypeOf(ctx, req.Handle)
	if err != nil {
		if errors.Is(err, fhe.ErrUnknownHandle) {
			return nil, apperrors.ResourceNotFoundError(err, "unknown handle")
		}
		return nil, fmt.Errorf("failed to resolve handle type: %w", err)
	}

	s.logger.Info("releasing plaintext",
		zap.String("handle", req.Handle.Hex()),
		zap.String("caller", caller.Hex()),
		zap.String("type", typ.String()),
	)

	if typ.Numeric() {
		value, err := s.cop.Decrypt(ctx, req.Handle)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt: %w", err)
		}
		return &DecryptResult{Type: typ, Value: value}, nil
	}

	raw, err := s.cop.DecryptBytes(ctx, req.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return &DecryptResult{Type: typ, Bytes: raw}, nil
}
