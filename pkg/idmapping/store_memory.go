package idmapping

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

type memoryStore struct {
	mu     sync.RWMutex
	nextID identity.UserID
	byAddr map[common.Address]identity.UserID
	byID   map[identity.UserID]common.Address
}

// NewMemoryStore creates an in-memory mapping store. Lookups run on handler
// goroutines concurrently with issuance, so the maps are guarded with an
// RWMutex.
func NewMemoryStore() Store {
	return &memoryStore{
		nextID: 1,
		byAddr: make(map[common.Address]identity.UserID),
		byID:   make(map[identity.UserID]common.Address),
	}
}

func (s *memoryStore) Issue(ctx context.Context, addr common.Address) (identity.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAddr[addr]; ok {
		return id, nil
	}
	id := s.nextID
	s.nextID++
	s.byAddr[addr] = id
	s.byID[id] = addr

	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.byAddr, addr)
			delete(s.byID, id)
			s.nextID = id
		})
	}
	return id, nil
}

func (s *memoryStore) IDByAddress(_ context.Context, addr common.Address) (identity.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddr[addr]
	if !ok {
		return 0, ErrNoIDIssued
	}
	return id, nil
}

func (s *memoryStore) AddressByID(_ context.Context, id identity.UserID) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.byID[id]
	if !ok {
		return common.Address{}, ErrUnknownUserID
	}
	return addr, nil
}
