package bridge

import (
	"os"
	"testing"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

func TestVaultRegisterAndGetCredentials(t *testing.T) {
	v := NewVault(t.TempDir())

	if err := v.Register("telegram", []byte("abc")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := v.GetCredentials("unknown"); err == nil {
		t.Fatal("expected NotRegistered for unknown bridge id")
	} else if e, ok := coreerrors.As(err); !ok || e.Kind != coreerrors.KindNotRegistered {
		t.Errorf("expected NotRegistered kind, got %v", err)
	}

	got, err := v.GetCredentials("telegram")
	if err != nil {
		t.Fatalf("get_credentials: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
}

func TestVaultDecryptsFromDiskOnColdCache(t *testing.T) {
	dir := t.TempDir()
	v1 := NewVault(dir)
	if err := v1.Register("discord", []byte("s3cr3t")); err != nil {
		t.Fatalf("register: %v", err)
	}

	// A fresh Vault over the same directory has no in-process cache and
	// must decrypt from disk using the persisted device master key.
	v2 := NewVault(dir)
	got, err := v2.GetCredentials("discord")
	if err != nil {
		t.Fatalf("get_credentials from disk: %v", err)
	}
	if string(got) != "s3cr3t" {
		t.Errorf("got %q, want %q", got, "s3cr3t")
	}
}

func TestVaultTamperedCiphertextFailsAuthentication(t *testing.T) {
	dir := t.TempDir()
	v := NewVault(dir)
	if err := v.Register("telegram", []byte("abc")); err != nil {
		t.Fatalf("register: %v", err)
	}

	path := v.bridgesDir() + "/telegram.enc"
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read credential file: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("rewrite credential file: %v", err)
	}

	v2 := NewVault(dir)
	if _, err := v2.GetCredentials("telegram"); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}

func TestValidateBridgeID(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"telegram", true},
		{"my-bridge_01", true},
		{"", false},
		{"has space", false},
		{"semicolon;", false},
	}
	for _, c := range cases {
		err := ValidateBridgeID(c.id)
		if (err == nil) != c.valid {
			t.Errorf("ValidateBridgeID(%q): valid=%v, want %v (err=%v)", c.id, err == nil, c.valid, err)
		}
	}
	longID := make([]byte, 65)
	for i := range longID {
		longID[i] = 'a'
	}
	if err := ValidateBridgeID(string(longID)); err == nil {
		t.Error("expected 65-char id to be rejected")
	}
}
