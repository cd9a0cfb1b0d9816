package bridge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// PairedPrincipal is the single remote principal allowed to drive this
// daemon through a non-local bridge (e.g. the HTTP façade), persisted as
// one JSON file. Grounded on the teacher's internal/pairing/store.go
// atomic-write pattern, narrowed to the single-principal shape the data
// model calls for.
type PairedPrincipal struct {
	PrincipalID string    `json:"principal_id"`
	Label       string    `json:"label"`
	PairedAt    time.Time `json:"paired_at"`
}

// PairingStore persists at most one PairedPrincipal to disk.
type PairingStore struct {
	path string
}

func NewPairingStore(dataDir string) *PairingStore {
	return &PairingStore{path: filepath.Join(dataDir, "paired_principal.json")}
}

// Get returns the current pairing, or NotFound if unpaired.
func (p *PairingStore) Get() (*PairedPrincipal, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coreerrors.NotFound("no paired principal")
		}
		return nil, coreerrors.InternalFrom(err)
	}
	var principal PairedPrincipal
	if err := json.Unmarshal(data, &principal); err != nil {
		return nil, coreerrors.InternalFrom(err)
	}
	return &principal, nil
}

// Pair replaces any existing pairing with a new principal, writing
// atomically via a temp file and rename.
func (p *PairingStore) Pair(principalID, label string) (*PairedPrincipal, error) {
	if principalID == "" {
		return nil, coreerrors.New(coreerrors.KindAuthFailed, "principal id cannot be empty")
	}
	principal := &PairedPrincipal{
		PrincipalID: principalID,
		Label:       label,
		PairedAt:    time.Now(),
	}

	data, err := json.MarshalIndent(principal, "", "  ")
	if err != nil {
		return nil, coreerrors.InternalFrom(err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return nil, coreerrors.InternalFrom(err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return nil, coreerrors.InternalFrom(err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return nil, coreerrors.InternalFrom(err)
	}
	return principal, nil
}

// Unpair removes the current pairing, if any. Unpairing an already-unpaired
// store is not an error.
func (p *PairingStore) Unpair() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return coreerrors.InternalFrom(err)
	}
	return nil
}
