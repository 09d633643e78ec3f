package fhe

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherid/registry-middleware/pkg/ledger"
)

func TestACL_PersistentGrant(t *testing.T) {
	acl := NewACL(NewMemoryGrantStore())
	ctx := context.Background()

	var h Handle
	h[0] = 1
	grantee := common.HexToAddress("0x1111111111111111111111111111111111111111")
	stranger := common.HexToAddress("0x2222222222222222222222222222222222222222")

	allowed, err := acl.CanAccess(ctx, h, grantee)
	if err != nil {
		t.Fatalf("CanAccess() failed: %v", err)
	}
	if allowed {
		t.Error("expected no access before grant")
	}

	if err := acl.Grant(ctx, h, grantee); err != nil {
		t.Fatalf("Grant() failed: %v", err)
	}

	allowed, err = acl.CanAccess(ctx, h, grantee)
	if err != nil {
		t.Fatalf("CanAccess() failed: %v", err)
	}
	if !allowed {
		t.Error("expected access after grant")
	}

	allowed, _ = acl.CanAccess(ctx, h, stranger)
	if allowed {
		t.Error("grant must not extend to other addresses")
	}
}

func TestACL_TransientGrantScopedToCall(t *testing.T) {
	acl := NewACL(NewMemoryGrantStore())

	var h Handle
	h[0] = 2
	grantee := common.HexToAddress("0x1111111111111111111111111111111111111111")

	callCtx := ledger.WithTransients(context.Background(), ledger.NewTransients())
	acl.GrantTransient(callCtx, h, grantee)

	allowed, err := acl.CanAccess(callCtx, h, grantee)
	if err != nil {
		t.Fatalf("CanAccess() failed: %v", err)
	}
	if !allowed {
		t.Error("expected transient grant visible inside the call")
	}

	// Outside the call's context the grant does not exist.
	allowed, err = acl.CanAccess(context.Background(), h, grantee)
	if err != nil {
		t.Fatalf("CanAccess() failed: %v", err)
	}
	if allowed {
		t.Error("transient grant must not be visible outside the call")
	}
}

func TestACL_GrantTransientOutsideCallIsNoop(t *testing.T) {
	acl := NewACL(NewMemoryGrantStore())

	var h Handle
	h[0] = 3
	grantee := common.HexToAddress("0x1111111111111111111111111111111111111111")

	// No transient set in scope; must not panic and must not persist.
	acl.GrantTransient(context.Background(), h, grantee)

	allowed, err := acl.CanAccess(context.Background(), h, grantee)
	if err != nil {
		t.Fatalf("CanAccess() failed: %v", err)
	}
	if allowed {
		t.Error("no-op transient grant must not authorize anything")
	}
}

func TestMemoryGrantStore_JournaledRollback(t *testing.T) {
	store := NewMemoryGrantStore()
	journal := ledger.NewJournal()
	ctx := ledger.WithJournal(context.Background(), journal)

	var h Handle
	h[0] = 4
	grantee := common.HexToAddress("0x1111111111111111111111111111111111111111")

	if err := store.Add(ctx, h, grantee); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	has, _ := store.Has(ctx, h, grantee)
	if !has {
		t.Fatal("expected grant present before revert")
	}

	journal.Revert()

	has, _ = store.Has(ctx, h, grantee)
	if has {
		t.Error("expected grant reverted")
	}
}

func TestMemoryGrantStore_DuplicateAddIsIdempotent(t *testing.T) {
	store := NewMemoryGrantStore()
	journal := ledger.NewJournal()
	plainCtx := context.Background()

	var h Handle
	h[0] = 5
	grantee := common.HexToAddress("0x1111111111111111111111111111111111111111")

	// First grant outside any call, second inside a call that later fails.
	if err := store.Add(plainCtx, h, grantee); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	callCtx := ledger.WithJournal(plainCtx, journal)
	if err := store.Add(callCtx, h, grantee); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	journal.Revert()

	// The pre-existing grant must survive the revert of the duplicate.
	has, _ := store.Has(plainCtx, h, grantee)
	if !has {
		t.Error("revert of a duplicate add must not remove the original grant")
	}
}

func TestHandleFromHex(t *testing.T) {
	var h Handle
	h[0] = 0xAB
	h[31] = 0xCD

	parsed, err := HandleFromHex(h.Hex())
	if err != nil {
		t.Fatalf("HandleFromHex() failed: %v", err)
	}
	if parsed != h {
		t.Errorf("round trip mismatch: %s != %s", parsed.Hex(), h.Hex())
	}

	if _, err := HandleFromHex("0x1234"); err == nil {
		t.Error("expected error for short handle")
	}
	if _, err := HandleFromHex("not-hex"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

// The gateway checks grants from handler goroutines while registrations issue
// new ones, so the memory grant store must tolerate concurrent Add and Has.
func TestMemoryGrantStore_ConcurrentAddAndHas(t *testing.T) {
	store := NewMemoryGrantStore()
	ctx := context.Background()

	handles := make([]Handle, 16)
	for i := range handles {
		handles[i][0] = byte(i + 1)
	}
	grantee := common.HexToAddress("0x0000000000000000000000000000000000000042")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, h := range handles {
			if err := store.Add(ctx, h, grantee); err != nil {
				t.Errorf("Add() failed: %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for round := 0; round < 100; round++ {
			for _, h := range handles {
				if _, err := store.Has(ctx, h, grantee); err != nil {
					t.Errorf("Has() failed: %v", err)
				}
			}
		}
	}()
	wg.Wait()

	for _, h := range handles {
		ok, err := store.Has(ctx, h, grantee)
		if err != nil || !ok {
			t.Errorf("expected grant on %s, got ok=%v err=%v", h.Hex(), ok, err)
		}
	}
}
