package fhe

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// GrantStore persists durable decrypt/use grants attached to handles.
type GrantStore interface {
	Add(ctx context.Context, h Handle, grantee common.Address) error
	Has(ctx context.Context, h Handle, grantee common.Address) (bool, error)
}

// ACL is the capability list for ciphertext handles. Persistent grants are
// durable; transient grants are valid only inside the top-level call that
// issued them and vanish with its context.
type ACL struct {
	store GrantStore
}

// NewACL creates an ACL over the given persistent grant store.
func NewACL(store GrantStore) *ACL {
	return &ACL{store: store}
}

// Grant issues a persistent decrypt/use grant on h to grantee.
func (a *ACL) Grant(ctx context.Context, h Handle, grantee common.Address) error {
	return a.store.Add(ctx, h, grantee)
}

// GrantTransient issues a grant valid only for the current top-level call.
// Outside an executing call this is a no-op: there is no call scope for the
// grant to live in.
func (a *ACL) GrantTransient(ctx context.Context, h Handle, grantee common.Address) {
	transients, ok := ledger.TransientsFrom(ctx)
	if !ok {
		return
	}
	transients.Add(transientKey(h, grantee))
}

// CanAccess reports whether grantee holds either a persistent grant or a
// transient grant issued earlier in the same top-level call.
func (a *ACL) CanAccess(ctx context.Context, h Handle, grantee common.Address) (bool, error) {
	if transients, ok := ledger.TransientsFrom(ctx); ok {
		if transients.Has(transientKey(h, grantee)) {
			return true, nil
		}
	}
	return a.store.Has(ctx, h, grantee)
}

func transientKey(h Handle, grantee common.Address) string {
	return h.Hex() + "/" + grantee.Hex()
}
