package fhe

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherid/registry-middleware/pkg/ledger"
)

type memoryGrantStore struct {
	mu     sync.RWMutex
	grants map[Handle]map[common.Address]struct{}
}

// NewMemoryGrantStore creates an in-memory persistent grant store. Mutations
// performed inside a ledger call register compensating actions in the call's
// journal so a failed call leaves no grant behind. Has is served from handler
// goroutines concurrently with grants, hence the RWMutex.
func NewMemoryGrantStore() GrantStore {
	return &memoryGrantStore{grants: make(map[Handle]map[common.Address]struct{})}
}

func (s *memoryGrantStore) Add(ctx context.Context, h Handle, grantee common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grantees, ok := s.grants[h]
	if !ok {
		grantees = make(map[common.Address]struct{})
		s.grants[h] = grantees
	}
	if _, exists := grantees[grantee]; exists {
		return nil
	}
	grantees[grantee] = struct{}{}

	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(grantees, grantee)
		})
	}
	return nil
}

func (s *memoryGrantStore) Has(_ context.Context, h Handle, grantee common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grantees, ok := s.grants[h]
	if !ok {
		return false, nil
	}
	_, ok = grantees[grantee]
	return ok, nil
}
