/*
guard.go - Authorization Guard

PURPOSE:
  A pure decision function consulted before every mutation. Given who is
  asking, in which role, for which operation, and a snapshot of the target
  entity, it either allows the call or explains the denial. It touches no
  storage; the Engine supplies snapshots taken under the entity lock.

RULES:
  ┌───────────────────┬─────────────────────────┬────────────────────────────────────┐
  │ Operation         │ Required role           │ Extra precondition                 │
  ├───────────────────┼─────────────────────────┼────────────────────────────────────┤
  │ createBatch       │ Manufacturer            │ -                                  │
  │ createProduct     │ Manufacturer            │ batch exists                       │
  │ certifyBatch      │ Certification Authority │ batch not yet certified            │
  │ assignCourier     │ Courier                 │ logisticsPartner empty             │
  │ appendCheckpoint  │ Courier                 │ caller is the logisticsPartner     │
  │ markDelivered     │ Courier                 │ caller is the logisticsPartner,    │
  │                   │                         │ status moves forward               │
  │ assignCustomer    │ Manufacturer (owner) or │ customer empty, target is a        │
  │                   │ Customer (self)         │ Customer                           │
  │ read              │ any valid role          │ -                                  │
  └───────────────────┴─────────────────────────┴────────────────────────────────────┘

PRECEDENCE:
  assignCourier and assignCustomer check the write-once slot first, so
  every caller after the winner sees ErrAlreadyAssigned whatever its role.
  Everything else checks role/ownership first, then state.

SEE ALSO:
  - engine.go: the only caller
  - errors.go: UnauthorizedError and friends
*/
package provenance

// =============================================================================
// OPERATIONS
// =============================================================================

type Operation string

const (
	OpCreateBatch      Operation = "createBatch"
	OpCreateProduct    Operation = "createProduct"
	OpCertifyBatch     Operation = "certifyBatch"
	OpAssignCourier    Operation = "assignCourier"
	OpAppendCheckpoint Operation = "appendCheckpoint"
	OpMarkDelivered    Operation = "markDelivered"
	OpAssignCustomer   Operation = "assignCustomer"
	OpRead             Operation = "read"
)

// AccessRequest is everything the Guard needs to decide.
type AccessRequest struct {
	Actor     ActorID
	Role      Role
	Operation Operation

	// Snapshots of the target. Nil means "does not exist".
	Batch   *Batch
	Product *Product

	// NewStatus is the requested status for OpMarkDelivered.
	NewStatus DeliveryStatus

	// Assignee and AssigneeRole describe the target party for OpAssignCustomer.
	Assignee     ActorID
	AssigneeRole Role
}

type Guard interface {
	Authorize(req AccessRequest) error
}

// GuardFunc adapts a function to Guard.
type GuardFunc func(req AccessRequest) error

func (f GuardFunc) Authorize(req AccessRequest) error { return f(req) }

// DefaultGuard implements the rule table above.
var DefaultGuard Guard = GuardFunc(Authorize)

// Authorize returns nil when req is allowed.
func Authorize(req AccessRequest) error {
	if req.Actor == "" || !req.Role.Valid() {
		return deny(req, "actor has no recognised role")
	}

	switch req.Operation {
	case OpRead:
		return nil

	case OpCreateBatch:
		return requireRole(req, RoleManufacturer)

	case OpCreateProduct:
		if err := requireRole(req, RoleManufacturer); err != nil {
			return err
		}
		if req.Batch == nil {
			return ErrUnknownBatch
		}
		return nil

	case OpCertifyBatch:
		if err := requireRole(req, RoleCertificationAuthority); err != nil {
			return err
		}
		if req.Batch == nil {
			return ErrNotFound
		}
		if req.Batch.IsCertified {
			return ErrAlreadyCertified
		}
		return nil

	case OpAssignCourier:
		if req.Product == nil {
			return ErrNotFound
		}
		if req.Product.LogisticsPartner != "" {
			return &AssignmentError{ProductID: req.Product.ID, Slot: "courier", Current: req.Product.LogisticsPartner}
		}
		return requireRole(req, RoleCourier)

	case OpAppendCheckpoint:
		return requireAssignedCourier(req)

	case OpMarkDelivered:
		if err := requireAssignedCourier(req); err != nil {
			return err
		}
		p := req.Product
		if req.NewStatus != StatusInTransit && req.NewStatus != StatusDelivered {
			return &TransitionError{ProductID: p.ID, From: p.DeliveryStatus, To: req.NewStatus, Reason: "only InTransit or Delivered may be requested"}
		}
		if !p.DeliveryStatus.Before(req.NewStatus) {
			return &TransitionError{ProductID: p.ID, From: p.DeliveryStatus, To: req.NewStatus, Reason: "status may only move forward"}
		}
		return nil

	case OpAssignCustomer:
		if req.Product == nil {
			return ErrNotFound
		}
		if req.Product.Customer != "" {
			return &AssignmentError{ProductID: req.Product.ID, Slot: "customer", Current: req.Product.Customer}
		}
		switch req.Role {
		case RoleManufacturer:
			if req.Actor != req.Product.Manufacturer {
				return deny(req, "only the product's manufacturer may assign its customer")
			}
		case RoleCustomer:
			if req.Actor != req.Assignee {
				return deny(req, "customers may only claim products for themselves")
			}
		default:
			return deny(req, "requires role Manufacturer or Customer")
		}
		if req.AssigneeRole != RoleCustomer {
			return deny(req, "assignee must hold role Customer")
		}
		return nil
	}

	return deny(req, "unknown operation")
}

func requireRole(req AccessRequest, role Role) error {
	if req.Role != role {
		return deny(req, "requires role "+string(role))
	}
	return nil
}

func requireAssignedCourier(req AccessRequest) error {
	if err := requireRole(req, RoleCourier); err != nil {
		return err
	}
	if req.Product == nil {
		return ErrNotFound
	}
	if req.Product.LogisticsPartner != req.Actor {
		return deny(req, "caller is not the product's logistics partner")
	}
	return nil
}

func deny(req AccessRequest, reason string) error {
	return &UnauthorizedError{Actor: req.Actor, Role: req.Role, Operation: req.Operation, Reason: reason}
}
