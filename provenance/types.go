/*
Package provenance provides the supply-chain provenance ledger.

PURPOSE:
  This package records the history of physical goods moving through a
  multi-party supply chain. A Manufacturer creates Batches and Products, a
  Courier claims a Product and appends Checkpoints until delivery, and a
  Certification Authority certifies Batches. Every mutation is authorized
  by the Guard, applied through the Store, and announced on the EventLog.

KEY CONCEPTS IN THIS FILE (types.go):
  - Role: The closed set of actor roles
  - Batch: A manufactured lot with an optional Certification
  - Product: A trackable unit belonging to a Batch
  - Checkpoint: An immutable location record appended during transit
  - DeliveryStatus: Created → InTransit → Delivered (monotonic)

DESIGN PRINCIPLES:
  1. Append/monotonic only: nothing is ever deleted or rolled back
  2. Write-once fields: manufacturer, batch link, courier, customer
  3. Type safety: distinct ID types for batches, products and actors

SEE ALSO:
  - guard.go: Who may do what
  - engine.go: How operations are applied
  - store.go: Persistence contract
*/
package provenance

import (
	"fmt"
	"strings"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BatchID uint64
type ProductID uint64

// ActorID is an opaque authenticated identity. External tooling maps a
// logged-in user to one of these.
type ActorID string

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleManufacturer           Role = "Manufacturer"
	RoleCourier                Role = "Courier"
	RoleCertificationAuthority Role = "Certification Authority"
	RoleCustomer               Role = "Customer"
)

// Roles lists every role in a stable order.
var Roles = []Role{RoleManufacturer, RoleCourier, RoleCertificationAuthority, RoleCustomer}

func (r Role) Valid() bool {
	switch r {
	case RoleManufacturer, RoleCourier, RoleCertificationAuthority, RoleCustomer:
		return true
	}
	return false
}

// ParseRole accepts the canonical role names plus a few lowercase spellings
// ("certification-authority", "ca").
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manufacturer":
		return RoleManufacturer, nil
	case "courier", "logistics", "logistics partner":
		return RoleCourier, nil
	case "certification authority", "certification-authority", "certification_authority", "ca":
		return RoleCertificationAuthority, nil
	case "customer":
		return RoleCustomer, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// =============================================================================
// BATCH
// =============================================================================

// Location is a geographic point. Coordinates are kept as the decimal
// strings the caller supplied so reads return them verbatim.
type Location struct {
	Longitude string
	Latitude  string
}

type Certification struct {
	AuthorityName    string
	DigitalSignature string
	DocumentHash     string
	CertifiedBy      ActorID
}

type Batch struct {
	ID                  BatchID
	Name                string
	Price               int64
	ManufacturerName    string
	ManufacturerDetails string
	Location            Location
	Category            string

	// Manufacturer is the creating actor. Set once, never changes.
	Manufacturer ActorID

	// Certification is nil until certified. IsCertified flips false→true once.
	Certification *Certification
	IsCertified   bool
}

func (b Batch) clone() Batch {
	if b.Certification != nil {
		c := *b.Certification
		b.Certification = &c
	}
	return b
}

// =============================================================================
// PRODUCT
// =============================================================================

type DeliveryStatus string

const (
	StatusCreated   DeliveryStatus = "Created"
	StatusInTransit DeliveryStatus = "InTransit"
	StatusDelivered DeliveryStatus = "Delivered"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusInTransit:
		return 1
	case StatusDelivered:
		return 2
	}
	return -1
}

// Before reports whether s comes strictly earlier in the delivery lifecycle.
func (s DeliveryStatus) Before(other DeliveryStatus) bool { return s.rank() < other.rank() }

func (s DeliveryStatus) Valid() bool { return s.rank() >= 0 }

// ParseDeliveryStatus accepts the spellings clients send ("delivered",
// "in-transit", "InTransit", ...).
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "created":
		return StatusCreated, nil
	case "intransit":
		return StatusInTransit, nil
	case "delivered":
		return StatusDelivered, nil
	}
	return "", fmt.Errorf("%w: unknown delivery status %q", ErrInvalidInput, s)
}

type CustomerDetails struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

// Checkpoint times are logical timestamps (unix seconds in practice).
type Checkpoint struct {
	Location     string
	Longitude    string
	Latitude     string
	CheckInTime  int64
	CheckOutTime int64
}

type Product struct {
	ID           ProductID
	BatchID      BatchID
	Manufacturer ActorID

	// Empty until assigned. Each may be set at most once.
	LogisticsPartner ActorID
	Customer         ActorID

	CustomerDetails CustomerDetails
	DeliveryStatus  DeliveryStatus

	// Ordered by insertion, append-only.
	Checkpoints []Checkpoint
}

func (p Product) clone() Product {
	p.Checkpoints = append([]Checkpoint(nil), p.Checkpoints...)
	return p
}

// Clone returns a deep copy safe to hand to callers or mutators.
func (p Product) Clone() Product { return p.clone() }

// Clone returns a deep copy.
func (b Batch) Clone() Batch { return b.clone() }

// ProductView is a Product with its parent Batch's certification mirrored in,
// computed at read time.
type ProductView struct {
	Product
	Batch         Batch
	Certification *Certification
	IsCertified   bool
}

// RoleAssignment maps an actor to its role. Created at signup.
type RoleAssignment struct {
	Actor ActorID
	Role  Role
}
