// Package store provides in-memory implementations of the provenance
// persistence interfaces.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/provenance-ledger/provenance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements provenance.Store. Every read returns a deep copy taken
// under the read lock, so callers never observe a half-applied write.
type Memory struct {
	mu       sync.RWMutex
	batches  map[provenance.BatchID]provenance.Batch
	products map[provenance.ProductID]provenance.Product
}

func NewMemory() *Memory {
	return &Memory{
		batches:  make(map[provenance.BatchID]provenance.Batch),
		products: make(map[provenance.ProductID]provenance.Product),
	}
}

func (m *Memory) CreateBatch(_ context.Context, b provenance.Batch) (provenance.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batches[b.ID]; ok {
		return provenance.Batch{}, provenance.DuplicateBatch(b.ID)
	}
	b.Certification = nil
	b.IsCertified = false
	m.batches[b.ID] = b.Clone()
	return b, nil
}

func (m *Memory) CreateProduct(_ context.Context, p provenance.Product) (provenance.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[p.ID]; ok {
		return provenance.Product{}, provenance.DuplicateProduct(p.ID)
	}
	if _, ok := m.batches[p.BatchID]; !ok {
		return provenance.Product{}, provenance.BatchNotFound(p.BatchID)
	}
	p.DeliveryStatus = provenance.StatusCreated
	p.Checkpoints = []provenance.Checkpoint{}
	m.products[p.ID] = p.Clone()
	return p, nil
}

// UpdateProduct runs fn on a copy and swaps it in only if fn succeeds and
// the result passes CheckProductUpdate.
func (m *Memory) UpdateProduct(_ context.Context, id provenance.ProductID, fn provenance.ProductMutator) (provenance.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before, ok := m.products[id]
	if !ok {
		return provenance.Product{}, provenance.ProductNotFound(id)
	}
	after := before.Clone()
	if err := fn(&after); err != nil {
		return provenance.Product{}, err
	}
	if err := provenance.CheckProductUpdate(before, after); err != nil {
		return provenance.Product{}, err
	}
	m.products[id] = after.Clone()
	return after, nil
}

func (m *Memory) CertifyBatch(_ context.Context, id provenance.BatchID, cert provenance.Certification) (provenance.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return provenance.Batch{}, provenance.BatchNotFound(id)
	}
	if b.IsCertified {
		return provenance.Batch{}, provenance.ErrAlreadyCertified
	}
	b.Certification = &cert
	b.IsCertified = true
	m.batches[id] = b
	return b.Clone(), nil
}

func (m *Memory) AppendCheckpoint(_ context.Context, id provenance.ProductID, cp provenance.Checkpoint) (provenance.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return provenance.Product{}, provenance.ProductNotFound(id)
	}
	p = p.Clone()
	p.Checkpoints = append(p.Checkpoints, cp)
	m.products[id] = p
	return p.Clone(), nil
}

func (m *Memory) GetBatch(_ context.Context, id provenance.BatchID) (provenance.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return provenance.Batch{}, provenance.BatchNotFound(id)
	}
	return b.Clone(), nil
}

func (m *Memory) GetProduct(_ context.Context, id provenance.ProductID) (provenance.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return provenance.Product{}, provenance.ProductNotFound(id)
	}
	return p.Clone(), nil
}

func (m *Memory) ListBatchIDs(_ context.Context) ([]provenance.BatchID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]provenance.BatchID, 0, len(m.batches))
	for id := range m.batches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) ListProductIDs(_ context.Context) ([]provenance.ProductID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]provenance.ProductID, 0, len(m.products))
	for id := range m.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// =============================================================================
// MEMORY EVENT LOG
// =============================================================================

type Events struct {
	mu     sync.RWMutex
	events []provenance.Event
	base   uint64 // Seq of the last event dropped by Reset
}

func NewEvents() *Events {
	return &Events{}
}

func (l *Events) AppendEvent(_ context.Context, e provenance.Event) (provenance.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = l.base + uint64(len(l.events)) + 1
	e.Payload = copyPayload(e.Payload)
	l.events = append(l.events, e)
	return e, nil
}

func (l *Events) EventsSince(_ context.Context, after uint64, limit int) ([]provenance.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := []provenance.Event{}
	if after < l.base {
		after = l.base
	}
	start := after - l.base
	if start >= uint64(len(l.events)) {
		return result, nil
	}
	for _, e := range l.events[start:] {
		if limit > 0 && len(result) >= limit {
			break
		}
		e.Payload = copyPayload(e.Payload)
		result = append(result, e)
	}
	return result, nil
}

func copyPayload(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	c := make(map[string]string, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = make(map[provenance.BatchID]provenance.Batch)
	m.products = make(map[provenance.ProductID]provenance.Product)
	return nil
}

// Reset drops all events. The sequence keeps counting so existing cursors
// stay valid.
func (l *Events) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base += uint64(len(l.events))
	l.events = nil
	return nil
}
