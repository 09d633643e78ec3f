package claims

import (
	"context"
	"sync"

	"github.com/cipherid/registry-middleware/pkg/ledger"
)

type memoryStore struct {
	mu     sync.RWMutex
	nextID ClaimID
	claims map[ClaimID]*Claim
}

// NewMemoryStore creates an in-memory claim store. The first issued id is 1.
// GetClaim runs on handler goroutines concurrently with claim generation, so
// the maps are guarded with an RWMutex.
func NewMemoryStore() Store {
	return &memoryStore{
		nextID: 1,
		claims: make(map[ClaimID]*Claim),
	}
}

func (s *memoryStore) NextClaimID(ctx context.Context) (ClaimID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.nextID = id
		})
	}
	return id, nil
}

func (s *memoryStore) StoreClaim(ctx context.Context, claim *Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *claim
	s.claims[claim.ID] = &stored

	if journal, ok := ledger.JournalFrom(ctx); ok {
		journal.RecordUndo(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.claims, claim.ID)
		})
	}
	return nil
}

func (s *memoryStore) GetClaim(_ context.Context, id ClaimID) (*Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	claim, ok := s.claims[id]
	if !ok {
		return nil, ErrUnknownClaim
	}
	out := *claim
	return &out, nil
}

func (s *memoryStore) LastClaimID(_ context.Context) (ClaimID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID - 1, nil
}
