package bridge

import (
	"testing"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

func TestPairingStoreLifecycle(t *testing.T) {
	store := NewPairingStore(t.TempDir())

	if _, err := store.Get(); err == nil {
		t.Fatal("expected NotFound before pairing")
	}

	principal, err := store.Pair("user-123", "my laptop")
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	if principal.PrincipalID != "user-123" {
		t.Errorf("PrincipalID = %q", principal.PrincipalID)
	}

	got, err := store.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PrincipalID != "user-123" || got.Label != "my laptop" {
		t.Errorf("got %+v", got)
	}

	// Re-pairing replaces the existing principal.
	if _, err := store.Pair("user-456", "phone"); err != nil {
		t.Fatalf("re-pair: %v", err)
	}
	got, _ = store.Get()
	if got.PrincipalID != "user-456" {
		t.Errorf("expected replaced principal, got %+v", got)
	}

	if err := store.Unpair(); err != nil {
		t.Fatalf("unpair: %v", err)
	}
	if _, err := store.Get(); err == nil {
		t.Fatal("expected NotFound after unpair")
	}

	// Unpairing again is not an error.
	if err := store.Unpair(); err != nil {
		t.Fatalf("second unpair: %v", err)
	}
}

func TestPairRejectsEmptyPrincipal(t *testing.T) {
	store := NewPairingStore(t.TempDir())
	if _, err := store.Pair("", "label"); err == nil {
		t.Fatal("expected error for empty principal id")
	} else if e, ok := coreerrors.As(err); !ok || e.Kind != coreerrors.KindAuthFailed {
		t.Errorf("expected AuthFailed, got %v", err)
	}
}
