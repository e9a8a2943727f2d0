/*
errors.go - Centralized error types for the provenance ledger

PURPOSE:
  All error types in one place. Every failure of a ledger operation is
  reported synchronously with one of the sentinels below, usually wrapped
  in a structured error that carries the context needed to tell a
  programmer error apart from legitimate contention.

ERROR CATEGORIES:
  1. Identity errors   - ErrDuplicateID, ErrNotFound, ErrUnknownBatch
  2. Access errors     - ErrUnauthorized
  3. Contention errors - ErrAlreadyAssigned, ErrAlreadyCertified
  4. Lifecycle errors  - ErrInvalidTransition, ErrInvalidInput

USAGE:
  if errors.Is(err, provenance.ErrAlreadyAssigned) {
      // another courier won the claim, not a bug
  }

  var unauth *provenance.UnauthorizedError
  if errors.As(err, &unauth) {
      log.Printf("%s may not %s: %s", unauth.Actor, unauth.Operation, unauth.Reason)
  }

SEE ALSO:
  - guard.go: Produces UnauthorizedError and the precondition errors
  - store.go: Stores produce DuplicateIDError and NotFoundError
*/
package provenance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateID is returned when creating an entity whose id already exists.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound is returned when a referenced Batch or Product doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownBatch is returned when a product references a missing batch.
	// It also matches ErrNotFound.
	ErrUnknownBatch = fmt.Errorf("unknown batch: %w", ErrNotFound)

	// ErrUnauthorized is returned on a role or ownership mismatch.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyAssigned is returned to every courier claim after the first.
	// Expected under concurrent claims.
	ErrAlreadyAssigned = errors.New("already assigned")

	// ErrAlreadyCertified is returned on a second certification attempt.
	ErrAlreadyCertified = errors.New("already certified")

	// ErrInvalidTransition is returned when a delivery status would regress.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidInput is returned for malformed operation arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnauthorizedError explains why the Guard denied an operation.
type UnauthorizedError struct {
	Actor     ActorID
	Role      Role
	Operation Operation
	Reason    string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: actor %q (%s) may not %s: %s", e.Actor, e.Role, e.Operation, e.Reason)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

type EntityKind string

const (
	KindBatch   EntityKind = "batch"
	KindProduct EntityKind = "product"
	KindActor   EntityKind = "actor"
)

type NotFoundError struct {
	Kind EntityKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	if e.Kind == KindBatch {
		return ErrUnknownBatch
	}
	return ErrNotFound
}

type DuplicateIDError struct {
	Kind EntityKind
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// AssignmentError is returned when a write-once party slot is already taken.
type AssignmentError struct {
	ProductID ProductID
	Slot      string // "courier" or "customer"
	Current   ActorID
}

func (e *AssignmentError) Error() string {
	return fmt.Sprintf("product %d %s already assigned to %q", e.ProductID, e.Slot, e.Current)
}

func (e *AssignmentError) Unwrap() error { return ErrAlreadyAssigned }

type TransitionError struct {
	ProductID ProductID
	From      DeliveryStatus
	To        DeliveryStatus
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("product %d cannot move from %s to %s", e.ProductID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func batchNotFound(id BatchID) error {
	return &NotFoundError{Kind: KindBatch, ID: fmt.Sprint(id)}
}

func productNotFound(id ProductID) error {
	return &NotFoundError{Kind: KindProduct, ID: fmt.Sprint(id)}
}

// BatchNotFound and ProductNotFound let Store implementations report misses
// in the shared shape.
func BatchNotFound(id BatchID) error     { return batchNotFound(id) }
func ProductNotFound(id ProductID) error { return productNotFound(id) }

func DuplicateBatch(id BatchID) error {
	return &DuplicateIDError{Kind: KindBatch, ID: fmt.Sprint(id)}
}

func DuplicateProduct(id ProductID) error {
	return &DuplicateIDError{Kind: KindProduct, ID: fmt.Sprint(id)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsContention returns true for errors expected when actors race for the
// same write-once slot. Callers may re-poll; the core never retries.
func IsContention(err error) bool {
	return errors.Is(err, ErrAlreadyAssigned) || errors.Is(err, ErrAlreadyCertified)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidInput) ||
		IsContention(err) ||
		IsNotFound(err)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
