package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/warp/provenance-ledger/provenance"
)

// =============================================================================
// MEMORY DIRECTORY
// =============================================================================

// Directory is an in-memory actor → role table.
type Directory struct {
	mu    sync.RWMutex
	roles map[provenance.ActorID]provenance.Role
}

func NewDirectory(assignments ...provenance.RoleAssignment) *Directory {
	d := &Directory{roles: make(map[provenance.ActorID]provenance.Role)}
	for _, a := range assignments {
		d.roles[a.Actor] = a.Role
	}
	return d
}

func (d *Directory) ResolveRole(_ context.Context, actor provenance.ActorID) (provenance.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	role, ok := d.roles[actor]
	if !ok {
		return "", &provenance.NotFoundError{Kind: provenance.KindActor, ID: string(actor)}
	}
	return role, nil
}

// AssignRole records a signup. An actor keeps its first role.
func (d *Directory) AssignRole(_ context.Context, actor provenance.ActorID, role provenance.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", provenance.ErrInvalidInput, role)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.roles[actor]; ok {
		if existing == role {
			return nil
		}
		return &provenance.DuplicateIDError{Kind: provenance.KindActor, ID: string(actor)}
	}
	d.roles[actor] = role
	return nil
}

// =============================================================================
// CONTENT-ADDRESSED DOCUMENTS
// =============================================================================

// Documents keeps uploaded certificate documents keyed by their sha256.
type Documents struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewDocuments() *Documents {
	return &Documents{docs: make(map[string][]byte)}
}

func (d *Documents) UploadDocument(_ context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", provenance.ErrInvalidInput)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[hash] = append([]byte(nil), data...)
	return hash, nil
}

func (d *Documents) Document(_ context.Context, hash string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.docs[hash]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", hash, provenance.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (d *Directory) Reset(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles = make(map[provenance.ActorID]provenance.Role)
	return nil
}

func (d *Documents) Reset(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs = make(map[string][]byte)
	return nil
}
