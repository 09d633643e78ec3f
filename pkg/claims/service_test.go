package claims

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cipherid/registry-middleware/pkg/events"
	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/fhe/sealbox"
	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

var (
	aggregatorAddr = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	registryAddr   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	requesterAddr  = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

// mapFieldSource resolves score handles from a fixed map.
type mapFieldSource struct {
	scores map[identity.UserID]fhe.Handle
}

func (m *mapFieldSource) FieldHandle(_ context.Context, userID identity.UserID, field identity.Field) (fhe.Handle, error) {
	if field != identity.FieldScore {
		return fhe.Handle{}, errors.New("unexpected field")
	}
	h, ok := m.scores[userID]
	if !ok {
		return fhe.Handle{}, errors.New("unknown user")
	}
	return h, nil
}

type aggregatorFixture struct {
	box      *sealbox.Sealbox
	acl      *fhe.ACL
	store    Store
	fields   *mapFieldSource
	svc      *Service
	executor *ledger.Executor
	sink     *events.MemoryStore
}

func newFixture(t *testing.T) *aggregatorFixture {
	t.Helper()

	box, err := sealbox.New(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("sealbox.New() failed: %v", err)
	}
	acl := fhe.NewACL(fhe.NewMemoryGrantStore())
	store := NewMemoryStore()
	fields := &mapFieldSource{scores: make(map[identity.UserID]fhe.Handle)}
	sink := events.NewMemoryStore()

	return &aggregatorFixture{
		box:      box,
		acl:      acl,
		store:    store,
		fields:   fields,
		svc:      NewService(aggregatorAddr, registryAddr, box, acl, fields, store, decimal.RequireFromString("2.5")),
		executor: ledger.NewExecutor(nil, sink, zap.NewNop()),
		sink:     sink,
	}
}

// addUser encrypts a score, registers its handle for the user and grants the
// aggregator persistent access.
func (f *aggregatorFixture) addUser(t *testing.T, userID identity.UserID, score uint64) {
	t.Helper()
	ctx := context.Background()
	h, err := f.box.TrivialEncrypt(ctx, score, fhe.TypeUint16)
	if err != nil {
		t.Fatalf("TrivialEncrypt() failed: %v", err)
	}
	f.fields.scores[userID] = h
	if err := f.acl.Grant(ctx, h, aggregatorAddr); err != nil {
		t.Fatalf("Grant() failed: %v", err)
	}
}

func (f *aggregatorFixture) aggregate(t *testing.T, userIDs []identity.UserID) (*Claim, error) {
	t.Helper()
	var claim *Claim
	err := f.executor.Execute(context.Background(), func(ctx context.Context) error {
		var err error
		claim, err = f.svc.Aggregate(ctx, registryAddr, requesterAddr, userIDs)
		return err
	})
	return claim, err
}

func TestAggregate_TruncatedAverage(t *testing.T) {
	cases := []struct {
		name   string
		scores []uint64
		want   uint64
	}{
		{"two users", []uint64{723, 145}, 434},
		{"three users", []uint64{723, 145, 132}, 333},
		{"single user", []uint64{500}, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			userIDs := make([]identity.UserID, 0, len(tc.scores))
			for i, score := range tc.scores {
				id := identity.UserID(i + 1)
				f.addUser(t, id, score)
				userIDs = append(userIDs, id)
			}

			claim, err := f.aggregate(t, userIDs)
			if err != nil {
				t.Fatalf("Aggregate() failed: %v", err)
			}

			value, err := f.box.Decrypt(context.Background(), claim.Result)
			if err != nil {
				t.Fatalf("Decrypt() failed: %v", err)
			}
			if value != tc.want {
				t.Errorf("expected average %d, got %d", tc.want, value)
			}
			if claim.UserCount != len(tc.scores) {
				t.Errorf("expected user count %d, got %d", len(tc.scores), claim.UserCount)
			}
		})
	}
}

func TestAggregate_GrantsResultToRequesterAndRegistry(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, 100)
	f.addUser(t, 2, 200)

	claim, err := f.aggregate(t, []identity.UserID{1, 2})
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}

	ctx := context.Background()
	for _, grantee := range []common.Address{requesterAddr, registryAddr} {
		allowed, err := f.acl.CanAccess(ctx, claim.Result, grantee)
		if err != nil {
			t.Fatalf("CanAccess() failed: %v", err)
		}
		if !allowed {
			t.Errorf("expected %s granted on result", grantee.Hex())
		}
	}

	// No persistent grant on any input handle was created for the requester.
	for userID, h := range f.fields.scores {
		allowed, _ := f.acl.CanAccess(ctx, h, requesterAddr)
		if allowed {
			t.Errorf("requester must not gain access to score of user %d", userID)
		}
	}
}

func TestAggregate_RejectsNonRegistryCaller(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, 100)

	_, err := f.svc.Aggregate(context.Background(), requesterAddr, requesterAddr, []identity.UserID{1})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestAggregate_RejectsEmptyUserList(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Aggregate(context.Background(), registryAddr, requesterAddr, nil)
	if !errors.Is(err, ErrEmptyUserList) {
		t.Errorf("expected ErrEmptyUserList, got %v", err)
	}
}

func TestAggregate_RejectsUngrantedInput(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, 100)

	// User 2 has a score handle but the aggregator holds no grant on it.
	h, err := f.box.TrivialEncrypt(context.Background(), 200, fhe.TypeUint16)
	if err != nil {
		t.Fatalf("TrivialEncrypt() failed: %v", err)
	}
	f.fields.scores[2] = h

	_, err = f.aggregate(t, []identity.UserID{1, 2})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestAggregate_ClaimIDsAreDenseFromOne(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, 100)

	for want := ClaimID(1); want <= 3; want++ {
		claim, err := f.aggregate(t, []identity.UserID{1})
		if err != nil {
			t.Fatalf("Aggregate() failed: %v", err)
		}
		if claim.ID != want {
			t.Errorf("expected claim id %d, got %d", want, claim.ID)
		}
	}
}

func TestAggregate_CostScalesWithUserCount(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, 100)
	f.addUser(t, 2, 200)
	f.addUser(t, 3, 300)

	claim, err := f.aggregate(t, []identity.UserID{1, 2, 3})
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}
	if !claim.Cost.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("expected cost 7.5, got %s", claim.Cost)
	}
}

func TestAggregate_EmitsClaimGenerated(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, 100)

	if _, err := f.aggregate(t, []identity.UserID{1}); err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}

	emitted := f.sink.ByName(events.ClaimGenerated)
	if len(emitted) != 1 {
		t.Fatalf("expected 1 ClaimGenerated event, got %d", len(emitted))
	}
	if emitted[0].Attributes[events.AttrClaimID] != "1" {
		t.Errorf("expected claim_id attribute 1, got %v", emitted[0].Attributes)
	}
}

func TestGetClaim(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, 100)

	generated, err := f.aggregate(t, []identity.UserID{1})
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}

	ctx := context.Background()
	claim, err := f.svc.GetClaim(ctx, generated.ID)
	if err != nil {
		t.Fatalf("GetClaim() failed: %v", err)
	}
	if claim.Result != generated.Result {
		t.Errorf("result handle mismatch")
	}
	if claim.Requester != requesterAddr {
		t.Errorf("expected requester %s, got %s", requesterAddr.Hex(), claim.Requester.Hex())
	}

	if _, err := f.svc.GetClaim(ctx, 0); !errors.Is(err, ErrInvalidClaimID) {
		t.Errorf("expected ErrInvalidClaimID for id 0, got %v", err)
	}
	if _, err := f.svc.GetClaim(ctx, generated.ID+1); !errors.Is(err, ErrInvalidClaimID) {
		t.Errorf("expected ErrInvalidClaimID beyond counter, got %v", err)
	}
}

func TestMemoryStore_CounterRollback(t *testing.T) {
	store := NewMemoryStore()
	journal := ledger.NewJournal()
	ctx := ledger.WithJournal(context.Background(), journal)

	id, err := store.NextClaimID(ctx)
	if err != nil {
		t.Fatalf("NextClaimID() failed: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}

	journal.Revert()

	// The reverted allocation must be reissued: ids stay dense.
	id, err = store.NextClaimID(context.Background())
	if err != nil {
		t.Fatalf("NextClaimID() failed: %v", err)
	}
	if id != 1 {
		t.Errorf("expected id 1 reissued after rollback, got %d", id)
	}
}

// GetClaim serves handler goroutines while claims are being generated, so the
// memory store must tolerate concurrent writes and reads.
func TestMemoryStore_ConcurrentStoreAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const total = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			id, err := store.NextClaimID(ctx)
			if err != nil {
				t.Errorf("NextClaimID() failed: %v", err)
				return
			}
			if err := store.StoreClaim(ctx, &Claim{ID: id, UserCount: 1}); err != nil {
				t.Errorf("StoreClaim() failed: %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for round := 0; round < 100; round++ {
			last, err := store.LastClaimID(ctx)
			if err != nil {
				t.Errorf("LastClaimID() failed: %v", err)
				return
			}
			for id := ClaimID(1); id <= last; id++ {
				if _, err := store.GetClaim(ctx, id); err != nil && !errors.Is(err, ErrUnknownClaim) {
					t.Errorf("GetClaim(%d) failed: %v", id, err)
				}
			}
		}
	}()
	wg.Wait()

	last, err := store.LastClaimID(ctx)
	if err != nil || last != total {
		t.Fatalf("expected last claim id %d, got %d (err %v)", total, last, err)
	}
}
