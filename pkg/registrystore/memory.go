package registrystore

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// The executor serializes writers, but reads are served straight from HTTP
// handler goroutines, so every memory store guards its maps with an RWMutex.
// Journal undo closures run under the write lock for the same reason.
type memoryStore struct {
	mu         sync.RWMutex
	records    map[identity.UserID]*identity.Record
	registered map[identity.UserID]bool
}

// NewMemoryStore creates an in-memory identity record store.
func NewMemoryStore() Store {
	return &memoryStore{
		records:    make(map[identity.UserID]*identity.Record),
		registered: make(map[identity.UserID]bool),
	}
}

func (s *memoryStore) CreateRecord(ctx context.Context, record *identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := record.UserID
	if s.registered[userID] {
		return ErrAlreadyRegistered
	}

	stored := *record
	s.records[userID] = &stored
	s.registered[userID] = true

	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.records, userID)
			delete(s.registered, userID)
		})
	}
	return nil
}

func (s *memoryStore) GetRecord(_ context.Context, userID identity.UserID) (*identity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, ErrNotRegistered
	}
	out := *record
	return &out, nil
}

func (s *memoryStore) IsRegistered(_ context.Context, userID identity.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registered[userID], nil
}

type memoryRoleStore struct {
	mu         sync.RWMutex
	registrars map[common.Address]struct{}
	requesters map[common.Address]struct{}
}

// NewMemoryRoleStore creates an in-memory role store.
func NewMemoryRoleStore() RoleStore {
	return &memoryRoleStore{
		registrars: make(map[common.Address]struct{}),
		requesters: make(map[common.Address]struct{}),
	}
}

func (s *memoryRoleStore) addRole(ctx context.Context, set map[common.Address]struct{}, addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := set[addr]; ok {
		return
	}
	set[addr] = struct{}{}
	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(set, addr)
		})
	}
}

func (s *memoryRoleStore) removeRole(ctx context.Context, set map[common.Address]struct{}, addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := set[addr]; !ok {
		return
	}
	delete(set, addr)
	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			set[addr] = struct{}{}
		})
	}
}

func (s *memoryRoleStore) hasRole(set map[common.Address]struct{}, addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := set[addr]
	return ok
}

func (s *memoryRoleStore) AddRegistrar(ctx context.Context, addr common.Address) error {
	s.addRole(ctx, s.registrars, addr)
	return nil
}

func (s *memoryRoleStore) RemoveRegistrar(ctx context.Context, addr common.Address) error {
	s.removeRole(ctx, s.registrars, addr)
	return nil
}

func (s *memoryRoleStore) IsRegistrar(_ context.Context, addr common.Address) (bool, error) {
	return s.hasRole(s.registrars, addr), nil
}

func (s *memoryRoleStore) AddRequester(ctx context.Context, addr common.Address) error {
	s.addRole(ctx, s.requesters, addr)
	return nil
}

func (s *memoryRoleStore) RemoveRequester(ctx context.Context, addr common.Address) error {
	s.removeRole(ctx, s.requesters, addr)
	return nil
}

func (s *memoryRoleStore) IsRequester(_ context.Context, addr common.Address) (bool, error) {
	return s.hasRole(s.requesters, addr), nil
}
