package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	"github.com/cipherid/registry-middleware/pkg/claims"
	"github.com/cipherid/registry-middleware/pkg/events"
	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/fhe/sealbox"
	"github.com/cipherid/registry-middleware/pkg/identity"
	"github.com/cipherid/registry-middleware/pkg/idmapping"
	"github.com/cipherid/registry-middleware/pkg/ledger"
	"github.com/cipherid/registry-middleware/pkg/registrystore"
)

var (
	ownerAddr      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	registrarAddr  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	requesterAddr  = common.HexToAddress("0x0000000000000000000000000000000000000003")
	strangerAddr   = common.HexToAddress("0x0000000000000000000000000000000000000004")
	registryAddr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	aggregatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

var testCostRate = decimal.RequireFromString("1")

type fixture struct {
	box        *sealbox.Sealbox
	acl        *fhe.ACL
	records    registrystore.Store
	roles      registrystore.RoleStore
	mappings   idmapping.Store
	claimStore claims.Store
	executor   *ledger.Executor
	sink       *events.MemoryStore
	svc        Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	box, err := sealbox.New(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("sealbox.New() failed: %v", err)
	}

	f := &fixture{
		box:        box,
		acl:        fhe.NewACL(fhe.NewMemoryGrantStore()),
		records:    registrystore.NewMemoryStore(),
		roles:      registrystore.NewMemoryRoleStore(),
		mappings:   idmapping.NewMemoryStore(),
		claimStore: claims.NewMemoryStore(),
		sink:       events.NewMemoryStore(),
	}
	f.executor = ledger.NewExecutor(nil, f.sink, zap.NewNop())

	aggregator := claims.NewService(
		aggregatorAddr,
		registryAddr,
		box,
		f.acl,
		NewFieldSource(f.records),
		f.claimStore,
		testCostRate,
	)
	f.svc = f.withAggregator(aggregator)

	ctx := context.Background()
	if err := f.roles.AddRegistrar(ctx, registrarAddr); err != nil {
		t.Fatalf("AddRegistrar() failed: %v", err)
	}
	if err := f.roles.AddRequester(ctx, requesterAddr); err != nil {
		t.Fatalf("AddRequester() failed: %v", err)
	}
	return f
}

// withAggregator builds a service over the fixture's stores with the given
// aggregator. Used to inject failing aggregators.
func (f *fixture) withAggregator(agg claims.Aggregator) Service {
	return NewService(
		f.executor,
		f.records,
		f.roles,
		f.mappings,
		agg,
		f.box,
		f.acl,
		ownerAddr,
		registryAddr,
		aggregatorAddr,
		testCostRate,
		zap.NewNop(),
	)
}

func (f *fixture) issueUserID(t *testing.T, addr common.Address) identity.UserID {
	t.Helper()
	id, err := f.mappings.Issue(context.Background(), addr)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	return id
}

func pad32(s string) []byte {
	buf := make([]byte, 32)
	copy(buf, s)
	return buf
}

func (f *fixture) newRegisterRequest(t *testing.T, caller common.Address, userID identity.UserID, score uint64) *RegisterRequest {
	t.Helper()

	sealNumeric := func(value uint64, typ fhe.Type) EncryptedInput {
		ciphertext, proof, err := f.box.SealNumericInput(value, caller, typ)
		if err != nil {
			t.Fatalf("SealNumericInput() failed: %v", err)
		}
		return EncryptedInput{Ciphertext: ciphertext, Proof: proof}
	}
	sealBytes := func(value []byte) EncryptedInput {
		ciphertext, proof, err := f.box.SealInput(value, caller, fhe.TypeBytes32)
		if err != nil {
			t.Fatalf("SealInput() failed: %v", err)
		}
		return EncryptedInput{Ciphertext: ciphertext, Proof: proof}
	}

	return &RegisterRequest{
		Caller:    caller,
		UserID:    userID,
		Score:     sealNumeric(score, fhe.TypeUint16),
		Firstname: sealBytes(pad32("jane")),
		Lastname:  sealBytes(pad32("doe")),
		Birthdate: sealNumeric(631152000, fhe.TypeUint32),
	}
}

func (f *fixture) registerUser(t *testing.T, userAddr common.Address, score uint64) identity.UserID {
	t.Helper()
	userID := f.issueUserID(t, userAddr)
	req := f.newRegisterRequest(t, registrarAddr, userID, score)
	if _, err := f.svc.RegisterIdentity(context.Background(), req); err != nil {
		t.Fatalf("RegisterIdentity() failed: %v", err)
	}
	return userID
}

func TestRegisterIdentity_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userAddr := common.HexToAddress("0x0000000000000000000000000000000000000100")

	userID := f.issueUserID(t, userAddr)
	record, err := f.svc.RegisterIdentity(ctx, f.newRegisterRequest(t, registrarAddr, userID, 723))
	if err != nil {
		t.Fatalf("RegisterIdentity() failed: %v", err)
	}

	for _, field := range identity.Fields {
		if record.Handle(field).IsZero() {
			t.Errorf("expected handle set for field %s", field)
		}
	}

	value, err := f.box.Decrypt(ctx, record.Score)
	if err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}
	if value != 723 {
		t.Errorf("expected score 723, got %d", value)
	}

	// The user and the registry hold persistent grants on every field.
	for _, field := range identity.Fields {
		h := record.Handle(field)
		for _, grantee := range []common.Address{userAddr, registryAddr} {
			allowed, err := f.acl.CanAccess(ctx, h, grantee)
			if err != nil {
				t.Fatalf("CanAccess() failed: %v", err)
			}
			if !allowed {
				t.Errorf("expected %s granted on field %s", grantee.Hex(), field)
			}
		}
		allowed, _ := f.acl.CanAccess(ctx, h, strangerAddr)
		if allowed {
			t.Errorf("stranger must not be granted on field %s", field)
		}
	}

	registered, err := f.records.IsRegistered(ctx, userID)
	if err != nil {
		t.Fatalf("IsRegistered() failed: %v", err)
	}
	if !registered {
		t.Error("expected registered flag set")
	}

	emitted := f.sink.ByName(events.IdentityRegistered)
	if len(emitted) != 1 {
		t.Fatalf("expected 1 IdentityRegistered event, got %d", len(emitted))
	}
	if emitted[0].Attributes[events.AttrOwner] != userAddr.Hex() {
		t.Errorf("expected owner attribute %s, got %v", userAddr.Hex(), emitted[0].Attributes)
	}
}

func TestRegisterIdentity_RejectsNonRegistrar(t *testing.T) {
	f := newFixture(t)
	userID := f.issueUserID(t, common.HexToAddress("0x0000000000000000000000000000000000000100"))

	_, err := f.svc.RegisterIdentity(context.Background(), f.newRegisterRequest(t, strangerAddr, userID, 1))
	if !errors.Is(err, ErrNotRegistrar) {
		t.Errorf("expected ErrNotRegistrar, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryUnauthorized) {
		t.Errorf("expected unauthorized category, got %v", err)
	}
}

func TestRegisterIdentity_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	userAddr := common.HexToAddress("0x0000000000000000000000000000000000000100")
	userID := f.registerUser(t, userAddr, 100)

	_, err := f.svc.RegisterIdentity(context.Background(), f.newRegisterRequest(t, registrarAddr, userID, 200))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Errorf("expected conflict category, got %v", err)
	}

	// The original record is untouched.
	record, err := f.svc.GetIdentity(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetIdentity() failed: %v", err)
	}
	value, err := f.box.Decrypt(context.Background(), record.Score)
	if err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}
	if value != 100 {
		t.Errorf("expected original score 100, got %d", value)
	}
}

func TestRegisterIdentity_RejectsUnissuedUserID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterIdentity(context.Background(), f.newRegisterRequest(t, registrarAddr, 999, 1))
	if !errors.Is(err, ErrNoIDIssued) {
		t.Errorf("expected ErrNoIDIssued, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Errorf("expected data error category, got %v", err)
	}
}

func TestRegisterIdentity_RejectsBadProofAndLeavesNoState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userAddr := common.HexToAddress("0x0000000000000000000000000000000000000100")
	userID := f.issueUserID(t, userAddr)

	req := f.newRegisterRequest(t, registrarAddr, userID, 1)
	req.Birthdate.Proof[0] ^= 0xFF

	_, err := f.svc.RegisterIdentity(ctx, req)
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Errorf("expected data error category, got %v", err)
	}

	// Earlier fields were already imported when the bad proof was hit; the
	// rollback must leave the user unregistered with no stored record.
	registered, err := f.records.IsRegistered(ctx, userID)
	if err != nil {
		t.Fatalf("IsRegistered() failed: %v", err)
	}
	if registered {
		t.Error("expected registered flag rolled back")
	}
	if _, err := f.svc.GetIdentity(ctx, userID); !errors.Is(err, ErrIdentityNotRegistered) {
		t.Errorf("expected ErrIdentityNotRegistered, got %v", err)
	}
	if len(f.sink.List()) != 0 {
		t.Errorf("expected no events from the failed call, got %d", len(f.sink.List()))
	}
}

func TestGetIdentity_NotRegistered(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetIdentity(context.Background(), 42)
	if !errors.Is(err, ErrIdentityNotRegistered) {
		t.Errorf("expected ErrIdentityNotRegistered, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Errorf("expected not found category, got %v", err)
	}
}

func TestGetField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userAddr := common.HexToAddress("0x0000000000000000000000000000000000000100")
	userID := f.registerUser(t, userAddr, 250)

	record, err := f.svc.GetIdentity(ctx, userID)
	if err != nil {
		t.Fatalf("GetIdentity() failed: %v", err)
	}

	h, err := f.svc.GetField(ctx, userID, "score")
	if err != nil {
		t.Fatalf("GetField() failed: %v", err)
	}
	if h != record.Score {
		t.Error("expected score handle from the stored record")
	}

	_, err = f.svc.GetField(ctx, userID, "shoesize")
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
}

func TestGenerateClaim_TruncatedAverage(t *testing.T) {
	cases := []struct {
		name   string
		scores []uint64
		want   uint64
	}{
		{"two users", []uint64{723, 145}, 434},
		{"three users", []uint64{723, 145, 132}, 333},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			userIDs := make([]identity.UserID, 0, len(tc.scores))
			for i, score := range tc.scores {
				addr := common.BytesToAddress([]byte{0x10, byte(i + 1)})
				userIDs = append(userIDs, f.registerUser(t, addr, score))
			}

			result, err := f.svc.GenerateClaim(ctx, &ClaimRequest{
				Caller:     requesterAddr,
				UserIDs:    userIDs,
				FieldNames: []string{"score"},
			})
			if err != nil {
				t.Fatalf("GenerateClaim() failed: %v", err)
			}

			value, err := f.box.Decrypt(ctx, result.Claim.Result)
			if err != nil {
				t.Fatalf("Decrypt() failed: %v", err)
			}
			if value != tc.want {
				t.Errorf("expected average %d, got %d", tc.want, value)
			}

			// The requester can decrypt the result, not the inputs.
			allowed, err := f.acl.CanAccess(ctx, result.Claim.Result, requesterAddr)
			if err != nil {
				t.Fatalf("CanAccess() failed: %v", err)
			}
			if !allowed {
				t.Error("expected requester granted on result")
			}
			for _, userID := range userIDs {
				record, err := f.records.GetRecord(ctx, userID)
				if err != nil {
					t.Fatalf("GetRecord() failed: %v", err)
				}
				allowed, _ := f.acl.CanAccess(ctx, record.Score, requesterAddr)
				if allowed {
					t.Errorf("requester must not gain access to score of user %d", userID)
				}
				allowed, _ = f.acl.CanAccess(ctx, record.Score, aggregatorAddr)
				if allowed {
					t.Errorf("transient aggregator grant on user %d must not persist", userID)
				}
			}

			wantCost := testCostRate.
				Mul(decimal.NewFromInt(int64(len(userIDs))))
			if !result.Cost.Equal(wantCost) {
				t.Errorf("expected cost %s, got %s", wantCost, result.Cost)
			}
		})
	}
}

func TestGenerateClaim_RejectsNonWhitelisted(t *testing.T) {
	f := newFixture(t)
	userID := f.registerUser(t, common.HexToAddress("0x0000000000000000000000000000000000000100"), 1)

	_, err := f.svc.GenerateClaim(context.Background(), &ClaimRequest{
		Caller:     strangerAddr,
		UserIDs:    []identity.UserID{userID},
		FieldNames: []string{"score"},
	})
	if !errors.Is(err, ErrNotWhitelisted) {
		t.Errorf("expected ErrNotWhitelisted, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryUnauthorized) {
		t.Errorf("expected unauthorized category, got %v", err)
	}
}

func TestGenerateClaim_RejectsInvalidFieldBeforeAnyGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.registerUser(t, common.HexToAddress("0x0000000000000000000000000000000000000100"), 1)

	_, err := f.svc.GenerateClaim(ctx, &ClaimRequest{
		Caller:     requesterAddr,
		UserIDs:    []identity.UserID{userID},
		FieldNames: []string{"score", "shoesize"},
	})
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}

	// Validation happens before any state is touched: no claim id burned.
	last, err := f.claimStore.LastClaimID(ctx)
	if err != nil {
		t.Fatalf("LastClaimID() failed: %v", err)
	}
	if last != 0 {
		t.Errorf("expected no claim id allocated, counter at %d", last)
	}
}

func TestGenerateClaim_RejectsUnregisteredUser(t *testing.T) {
	f := newFixture(t)
	userID := f.registerUser(t, common.HexToAddress("0x0000000000000000000000000000000000000100"), 1)

	_, err := f.svc.GenerateClaim(context.Background(), &ClaimRequest{
		Caller:     requesterAddr,
		UserIDs:    []identity.UserID{userID, 999},
		FieldNames: []string{"score"},
	})
	if !errors.Is(err, ErrIdentityNotRegistered) {
		t.Errorf("expected ErrIdentityNotRegistered, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Errorf("expected not found category, got %v", err)
	}
}

func TestGenerateClaim_RejectsEmptyUserList(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateClaim(context.Background(), &ClaimRequest{
		Caller:     requesterAddr,
		UserIDs:    nil,
		FieldNames: []string{"score"},
	})
	if !errors.Is(err, claims.ErrEmptyUserList) {
		t.Errorf("expected ErrEmptyUserList, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Errorf("expected data error category, got %v", err)
	}
}

func TestGenerateClaim_RollbackOnAggregationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.registerUser(t, common.HexToAddress("0x0000000000000000000000000000000000000100"), 100)

	var leaked fhe.Handle
	record, err := f.records.GetRecord(ctx, userID)
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	leaked = record.Score

	// The aggregator burns a claim id and issues a grant, then fails. The
	// whole call must revert as if it never ran.
	failing := &MockAggregator{
		AggregateFunc: func(ctx context.Context, _, requester common.Address, _ []identity.UserID) (*claims.Claim, error) {
			if _, err := f.claimStore.NextClaimID(ctx); err != nil {
				return nil, err
			}
			if err := f.acl.Grant(ctx, leaked, requester); err != nil {
				return nil, err
			}
			return nil, errors.New("coprocessor offline")
		},
	}
	svc := f.withAggregator(failing)

	_, err = svc.GenerateClaim(ctx, &ClaimRequest{
		Caller:     requesterAddr,
		UserIDs:    []identity.UserID{userID},
		FieldNames: []string{"score"},
	})
	if !errors.Is(err, ErrClaimGenerationFailed) {
		t.Errorf("expected ErrClaimGenerationFailed, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryDependencyFailure) {
		t.Errorf("expected dependency failure category, got %v", err)
	}

	// Counter and grant are rolled back.
	last, err := f.claimStore.LastClaimID(ctx)
	if err != nil {
		t.Fatalf("LastClaimID() failed: %v", err)
	}
	if last != 0 {
		t.Errorf("expected claim counter reverted, at %d", last)
	}
	allowed, _ := f.acl.CanAccess(ctx, leaked, requesterAddr)
	if allowed {
		t.Error("expected grant from the failed call reverted")
	}

	// The next successful claim takes id 1: ids stay dense across failures.
	result, err := f.svc.GenerateClaim(ctx, &ClaimRequest{
		Caller:     requesterAddr,
		UserIDs:    []identity.UserID{userID},
		FieldNames: []string{"score"},
	})
	if err != nil {
		t.Fatalf("GenerateClaim() failed: %v", err)
	}
	if result.Claim.ID != 1 {
		t.Errorf("expected claim id 1 after rollback, got %d", result.Claim.ID)
	}
}

func TestGetClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.registerUser(t, common.HexToAddress("0x0000000000000000000000000000000000000100"), 100)

	result, err := f.svc.GenerateClaim(ctx, &ClaimRequest{
		Caller:     requesterAddr,
		UserIDs:    []identity.UserID{userID},
		FieldNames: []string{"score"},
	})
	if err != nil {
		t.Fatalf("GenerateClaim() failed: %v", err)
	}

	claim, err := f.svc.GetClaim(ctx, result.Claim.ID)
	if err != nil {
		t.Fatalf("GetClaim() failed: %v", err)
	}
	if claim.Result != result.Claim.Result {
		t.Error("result handle mismatch")
	}

	_, err = f.svc.GetClaim(ctx, 0)
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Errorf("expected data error for id 0, got %v", err)
	}
	_, err = f.svc.GetClaim(ctx, result.Claim.ID+1)
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Errorf("expected data error beyond counter, got %v", err)
	}
}

func TestAdmin_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidate := common.HexToAddress("0x0000000000000000000000000000000000000200")

	err := f.svc.AddRegistrar(ctx, strangerAddr, candidate)
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if !apperrors.Is(err, apperrors.CategoryForbidden) {
		t.Errorf("expected forbidden category, got %v", err)
	}

	if err := f.svc.AddRegistrar(ctx, ownerAddr, candidate); err != nil {
		t.Fatalf("AddRegistrar() failed: %v", err)
	}
	isRegistrar, err := f.roles.IsRegistrar(ctx, candidate)
	if err != nil {
		t.Fatalf("IsRegistrar() failed: %v", err)
	}
	if !isRegistrar {
		t.Error("expected candidate added as registrar")
	}

	if err := f.svc.RemoveRegistrar(ctx, ownerAddr, candidate); err != nil {
		t.Fatalf("RemoveRegistrar() failed: %v", err)
	}
	isRegistrar, _ = f.roles.IsRegistrar(ctx, candidate)
	if isRegistrar {
		t.Error("expected candidate removed")
	}
}

func TestAdmin_RequesterWhitelistLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.registerUser(t, common.HexToAddress("0x0000000000000000000000000000000000000100"), 100)
	newRequester := common.HexToAddress("0x0000000000000000000000000000000000000300")

	claimReq := &ClaimRequest{
		Caller:     newRequester,
		UserIDs:    []identity.UserID{userID},
		FieldNames: []string{"score"},
	}

	if _, err := f.svc.GenerateClaim(ctx, claimReq); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("expected ErrNotWhitelisted before whitelisting, got %v", err)
	}

	if err := f.svc.AddRequester(ctx, ownerAddr, newRequester); err != nil {
		t.Fatalf("AddRequester() failed: %v", err)
	}
	if _, err := f.svc.GenerateClaim(ctx, claimReq); err != nil {
		t.Fatalf("GenerateClaim() failed after whitelisting: %v", err)
	}

	if err := f.svc.RemoveRequester(ctx, ownerAddr, newRequester); err != nil {
		t.Fatalf("RemoveRequester() failed: %v", err)
	}
	if _, err := f.svc.GenerateClaim(ctx, claimReq); !errors.Is(err, ErrNotWhitelisted) {
		t.Errorf("expected ErrNotWhitelisted after removal, got %v", err)
	}
}

// Reads are served from handler goroutines outside the executor, so they must
// be safe against a registration mutating the stores at the same time.
func TestService_ReadsConcurrentWithRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const users = 20
	ids := make([]identity.UserID, users)
	for i := range ids {
		ids[i] = f.issueUserID(t, common.BytesToAddress([]byte{0x20, byte(i + 1)}))
	}
	reqs := make([]*RegisterRequest, users)
	for i, id := range ids {
		reqs[i] = f.newRegisterRequest(t, registrarAddr, id, uint64(100+i))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, req := range reqs {
			if _, err := f.svc.RegisterIdentity(ctx, req); err != nil {
				t.Errorf("RegisterIdentity() failed: %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for round := 0; round < 50; round++ {
			for _, id := range ids {
				if _, err := f.svc.GetIdentity(ctx, id); err != nil && !errors.Is(err, ErrIdentityNotRegistered) {
					t.Errorf("GetIdentity() failed: %v", err)
				}
				if _, err := f.svc.GetField(ctx, id, "score"); err != nil && !errors.Is(err, ErrIdentityNotRegistered) {
					t.Errorf("GetField() failed: %v", err)
				}
			}
		}
	}()
	wg.Wait()

	for _, id := range ids {
		if _, err := f.svc.GetIdentity(ctx, id); err != nil {
			t.Errorf("GetIdentity(%d) after registration failed: %v", id, err)
		}
	}
}
