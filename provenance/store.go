/*
store.go - Persistence interfaces for the provenance ledger

PURPOSE:
  Defines the boundary between the ledger's rules and the database. The
  Store holds Batches and Products (with Checkpoints as an ordered
  sub-collection). Different implementations use SQLite, PostgreSQL, or
  in-memory storage; the Engine never knows which.

KEY INTERFACES:
  Store:         Batches, Products, Checkpoints (append/monotonic only)
  EventLog:      Ordered, append-only domain events
  Directory:     actor → role, owned by identity management
  DocumentStore: content-addressed certificate documents
  Notifier:      outbound delivery of events (email etc.)

APPEND/MONOTONIC CONTRACT:
  - No Delete method exists on any interface
  - UpdateProduct results are checked by CheckProductUpdate before they are
    written, so a buggy mutator cannot regress status, reassign a party or
    drop checkpoints
  - Every write is atomic: on error the Store is left exactly as it was

IMPLEMENTATIONS:
  - provenance/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: Embedded SQLite
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - engine.go: The only writer
  - query.go: Read-only projections
*/
package provenance

import (
	"context"
	"fmt"
)

// =============================================================================
// STORE - Batches, Products, Checkpoints
// =============================================================================

// ProductMutator transforms a product in place. Returning an error aborts
// the update with no change.
type ProductMutator func(p *Product) error

type Store interface {
	// CreateBatch fails with ErrDuplicateID if the id exists.
	CreateBatch(ctx context.Context, b Batch) (Batch, error)

	// CreateProduct fails with ErrDuplicateID if the id exists and with
	// ErrUnknownBatch if BatchID is missing. Stored with StatusCreated and
	// no checkpoints regardless of input.
	CreateProduct(ctx context.Context, p Product) (Product, error)

	// UpdateProduct applies fn atomically. ErrNotFound if absent.
	UpdateProduct(ctx context.Context, id ProductID, fn ProductMutator) (Product, error)

	// CertifyBatch sets the certification once. ErrNotFound, ErrAlreadyCertified.
	CertifyBatch(ctx context.Context, id BatchID, cert Certification) (Batch, error)

	// AppendCheckpoint appends to the ordered sequence. ErrNotFound.
	// Time ordering is not validated here.
	AppendCheckpoint(ctx context.Context, id ProductID, cp Checkpoint) (Product, error)

	GetBatch(ctx context.Context, id BatchID) (Batch, error)
	GetProduct(ctx context.Context, id ProductID) (Product, error)

	// List operations return ids in ascending order, empty when none.
	ListBatchIDs(ctx context.Context) ([]BatchID, error)
	ListProductIDs(ctx context.Context) ([]ProductID, error)
}

// =============================================================================
// EVENT LOG
// =============================================================================

// EventLog is append-only. Append assigns Seq, strictly increasing in
// commit order.
type EventLog interface {
	AppendEvent(ctx context.Context, e Event) (Event, error)

	// EventsSince returns events with Seq > after, oldest first. limit <= 0
	// means no limit.
	EventsSince(ctx context.Context, after uint64, limit int) ([]Event, error)
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// Directory resolves an actor to its role. Read-only for the core.
type Directory interface {
	ResolveRole(ctx context.Context, actor ActorID) (Role, error)
}

// DirectoryWriter is implemented by directories that accept signups.
type DirectoryWriter interface {
	Directory
	AssignRole(ctx context.Context, actor ActorID, role Role) error
}

// DocumentStore is a content-addressed document store. The core only keeps
// the returned hash; Document fails with ErrNotFound for unknown hashes.
type DocumentStore interface {
	UploadDocument(ctx context.Context, data []byte) (string, error)
	Document(ctx context.Context, hash string) ([]byte, error)
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// =============================================================================
// INVARIANT CHECKS
// =============================================================================

// CheckProductUpdate verifies that after is a legal successor of before.
// Stores call it after running a mutator and before writing.
func CheckProductUpdate(before, after Product) error {
	if after.ID != before.ID || after.BatchID != before.BatchID || after.Manufacturer != before.Manufacturer {
		return fmt.Errorf("%w: product %d identity fields are immutable", ErrInvalidTransition, before.ID)
	}
	if before.LogisticsPartner != "" && after.LogisticsPartner != before.LogisticsPartner {
		return &AssignmentError{ProductID: before.ID, Slot: "courier", Current: before.LogisticsPartner}
	}
	if before.Customer != "" && after.Customer != before.Customer {
		return &AssignmentError{ProductID: before.ID, Slot: "customer", Current: before.Customer}
	}
	if !after.DeliveryStatus.Valid() || after.DeliveryStatus.Before(before.DeliveryStatus) {
		return &TransitionError{ProductID: before.ID, From: before.DeliveryStatus, To: after.DeliveryStatus}
	}
	if len(after.Checkpoints) < len(before.Checkpoints) {
		return fmt.Errorf("%w: product %d checkpoints are append-only", ErrInvalidTransition, before.ID)
	}
	for i := range before.Checkpoints {
		if after.Checkpoints[i] != before.Checkpoints[i] {
			return fmt.Errorf("%w: product %d checkpoint %d is immutable", ErrInvalidTransition, before.ID, i)
		}
	}
	return nil
}
