package bridge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

const (
	deviceKeySize  = 32
	bridgeIDMaxLen = 64
)

var bridgeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateBridgeID checks the bridge-id grammar from the data model:
// ascii [A-Za-z0-9_-]{1,64}.
func ValidateBridgeID(id string) error {
	if id == "" {
		return coreerrors.AuthFailed("bridge id cannot be empty")
	}
	if len(id) > bridgeIDMaxLen {
		return coreerrors.AuthFailed("bridge id too long (max 64 chars)")
	}
	if !bridgeIDPattern.MatchString(id) {
		return coreerrors.AuthFailed("bridge id contains invalid characters; allowed: a-z, A-Z, 0-9, -, _")
	}
	return nil
}

// Vault stores and dispenses per-bridge secrets, encrypted at rest with a
// key derived from a device-wide master key. Mirrors
// original_source's security::bridge BridgeManager credential half.
type Vault struct {
	dataDir string

	mu          sync.RWMutex
	credentials map[string][]byte // bridge_id -> plaintext, in-process cache
}

// NewVault opens (or prepares to create) the vault rooted at dataDir. The
// device master key file and bridges/ subdirectory are created lazily on
// first use.
func NewVault(dataDir string) *Vault {
	return &Vault{
		dataDir:     dataDir,
		credentials: make(map[string][]byte),
	}
}

func (v *Vault) bridgesDir() string {
	return filepath.Join(v.dataDir, "bridges")
}

func (v *Vault) deviceKeyPath() string {
	return filepath.Join(v.dataDir, "device_master_key")
}

// deviceMasterKey reads the 32-byte device master key, generating and
// persisting one with user-only permissions on first run.
func (v *Vault) deviceMasterKey() ([]byte, error) {
	path := v.deviceKeyPath()

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != deviceKeySize {
			return nil, fmt.Errorf("device master key at %s has wrong length %d", path, len(data))
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read device master key: %w", err)
	}

	if err := os.MkdirAll(v.dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	key := make([]byte, deviceKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate device master key: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, key, 0o600); err != nil {
		return nil, fmt.Errorf("write device master key: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("install device master key: %w", err)
	}
	return key, nil
}

// deriveBridgeKey computes HMAC-SHA256(master, "bridge-key:" || bridge_id),
// matching original_source's derive_bridge_key.
func deriveBridgeKey(master []byte, bridgeID string) []byte {
	mac := hmac.New(sha256.New, master)
	mac.Write([]byte("bridge-key:"))
	mac.Write([]byte(bridgeID))
	return mac.Sum(nil)
}

// Register encrypts and persists secret under bridge_id, and caches the
// plaintext in process. The on-disk layout is
// [12-byte nonce][AEAD ciphertext], mode 0600.
func (v *Vault) Register(bridgeID string, secret []byte) error {
	if err := ValidateBridgeID(bridgeID); err != nil {
		return err
	}

	master, err := v.deviceMasterKey()
	if err != nil {
		return coreerrors.InternalFrom(fmt.Errorf("device master key: %w", err))
	}

	key := deriveBridgeKey(master, bridgeID)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return coreerrors.InternalFrom(fmt.Errorf("init cipher: %w", err))
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return coreerrors.InternalFrom(fmt.Errorf("generate nonce: %w", err))
	}
	ciphertext := aead.Seal(nil, nonce, secret, nil)

	if err := os.MkdirAll(v.bridgesDir(), 0o700); err != nil {
		return coreerrors.InternalFrom(fmt.Errorf("create bridges dir: %w", err))
	}

	fileContent := append(append([]byte{}, nonce...), ciphertext...)
	path := filepath.Join(v.bridgesDir(), bridgeID+".enc")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, fileContent, 0o600); err != nil {
		return coreerrors.InternalFrom(fmt.Errorf("write credential file: %w", err))
	}
	if err := os.Rename(tmp, path); err != nil {
		return coreerrors.InternalFrom(fmt.Errorf("install credential file: %w", err))
	}

	v.mu.Lock()
	v.credentials[bridgeID] = append([]byte{}, secret...)
	v.mu.Unlock()

	return nil
}

// GetCredentials returns the plaintext secret for bridge_id, consulting the
// in-process cache before decrypting from disk. Returns NotRegistered if
// unknown, AuthFailed if bridge_id is malformed.
func (v *Vault) GetCredentials(bridgeID string) ([]byte, error) {
	if err := ValidateBridgeID(bridgeID); err != nil {
		return nil, err
	}

	v.mu.RLock()
	if secret, ok := v.credentials[bridgeID]; ok {
		v.mu.RUnlock()
		return append([]byte{}, secret...), nil
	}
	v.mu.RUnlock()

	secret, err := v.loadFromDisk(bridgeID)
	if err != nil {
		return nil, coreerrors.NotRegistered(bridgeID)
	}

	v.mu.Lock()
	v.credentials[bridgeID] = append([]byte{}, secret...)
	v.mu.Unlock()

	return secret, nil
}

func (v *Vault) loadFromDisk(bridgeID string) ([]byte, error) {
	path := filepath.Join(v.bridgesDir(), bridgeID+".enc")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	if len(content) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("credential file too short")
	}

	nonce := content[:chacha20poly1305.NonceSize]
	ciphertext := content[chacha20poly1305.NonceSize:]

	master, err := v.deviceMasterKey()
	if err != nil {
		return nil, fmt.Errorf("device master key: %w", err)
	}
	key := deriveBridgeKey(master, bridgeID)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
