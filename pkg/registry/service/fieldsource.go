package service

import (
	"context"
	"fmt"

	"github.com/cipherid/registry-middleware/pkg/claims"
	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/registrystore"
)

type recordFieldSource struct {
	records registrystore.Store
}

// NewFieldSource exposes the registry's record store to the aggregator as a
// read-only handle resolver.
func NewFieldSource(records registrystore.Store) claims.FieldSource {
	return &recordFieldSource{records: records}
}

func (f *recordFieldSource) FieldHandle(
	ctx context.Context,
	userID identity.UserID,
	field identity.Field,
) (fhe.Handle, error) {
	record, err := f.records.GetRecord(ctx, userID)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("failed to resolve field %s of user %d: %w", field, userID, err)
	}
	return record.Handle(field), nil
}
