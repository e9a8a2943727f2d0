/*
engine.go - State Machine Engine

PURPOSE:
  Applies ledger operations. Each public method is one logical transaction:

    resolve role ──▶ lock entity ──▶ snapshot ──▶ Guard ──▶ Store ──▶ Event

  The entity lock is held from snapshot to event append, so the Guard
  decides on exactly the state the Store will mutate, and events for one
  entity are appended in commit order.

  Input is validated after the Guard: a caller in the wrong role gets
  ErrUnauthorized whatever it sent.

PRODUCT LIFECYCLE:
  ┌─────────┐ assignCourier  ┌─────────┐ addCheckpoint /       ┌───────────┐ markAsDelivered ┌───────────┐
  │ Created │ ─────────────▶ │ Created │ ─ markAsDelivered ──▶ │ InTransit │ ──(delivered)─▶ │ Delivered │
  └─────────┘ (courier set)  └─────────┘   (in-transit)        └───────────┘                 └───────────┘

  Delivered is terminal for status. By default checkpoints may still be
  appended after delivery and checkOutTime is not compared with
  checkInTime; Config switches both on.

CONCURRENCY:
  One lock per Product and one per Batch. Concurrent assignCourier calls
  on a product resolve to a single winner; the rest get ErrAlreadyAssigned.
  No operation locks two entities. Reads don't take entity locks; Stores
  give them consistent snapshots.

EVENTS:
  Appended only after the Store commits. If appending fails the mutation
  stays committed and the failure is logged.

USAGE:
  engine := provenance.NewEngine(store, directory, events)
  batch, err := engine.AddBatch(ctx, "acme", provenance.NewBatch{ID: 1, Name: "Laptop", ...})

SEE ALSO:
  - guard.go: authorization rules
  - query.go: read side
*/
package provenance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONFIG
// =============================================================================

type Config struct {
	// StrictCheckpointTimes rejects checkpoints whose CheckOutTime is
	// before CheckInTime.
	StrictCheckpointTimes bool

	// SealOnDelivery rejects checkpoints on Delivered products.
	SealOnDelivery bool
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store     Store
	Directory Directory
	Events    EventLog
	Documents DocumentStore
	Guard     Guard
	Config    Config

	// Now stamps events. Defaults to time.Now.
	Now func() time.Time

	locks lockSet
}

func NewEngine(store Store, directory Directory, events EventLog) *Engine {
	return &Engine{
		Store:     store,
		Directory: directory,
		Events:    events,
		Guard:     DefaultGuard,
		Now:       time.Now,
	}
}

// =============================================================================
// INPUTS
// =============================================================================

type NewBatch struct {
	ID                  BatchID
	Name                string
	Price               int64
	ManufacturerName    string
	ManufacturerDetails string
	Longitude           string
	Latitude            string
	Category            string
}

type NewProduct struct {
	ID       ProductID
	BatchID  BatchID
	Customer CustomerDetails
}

type CertificationInput struct {
	AuthorityName    string
	DigitalSignature string
	DocumentHash     string
}

// =============================================================================
// BATCH OPERATIONS
// =============================================================================

// AddBatch creates a batch owned by actor. Manufacturer only.
func (e *Engine) AddBatch(ctx context.Context, actor ActorID, in NewBatch) (Batch, error) {
	role, err := e.resolve(ctx, actor)
	if err != nil {
		return Batch{}, err
	}
	if err := e.authorize(AccessRequest{Actor: actor, Role: role, Operation: OpCreateBatch}); err != nil {
		return Batch{}, err
	}

	if in.ID == 0 {
		return Batch{}, fmt.Errorf("%w: batch id must be non-zero", ErrInvalidInput)
	}
	if in.Price < 0 {
		return Batch{}, fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}
	if err := ValidateCoordinates(in.Longitude, in.Latitude); err != nil {
		return Batch{}, err
	}

	unlock := e.locks.lock(batchKey(in.ID))
	defer unlock()

	batch, err := e.Store.CreateBatch(ctx, Batch{
		ID:                  in.ID,
		Name:                in.Name,
		Price:               in.Price,
		ManufacturerName:    in.ManufacturerName,
		ManufacturerDetails: in.ManufacturerDetails,
		Location:            Location{Longitude: in.Longitude, Latitude: in.Latitude},
		Category:            in.Category,
		Manufacturer:        actor,
	})
	if err != nil {
		return Batch{}, err
	}

	e.emit(ctx, Event{
		Type:    EventBatchCreated,
		Actor:   actor,
		BatchID: batch.ID,
		Payload: map[string]string{
			"name":             batch.Name,
			"price":            strconv.FormatInt(batch.Price, 10),
			"manufacturerName": batch.ManufacturerName,
			"category":         batch.Category,
			"longitude":        batch.Location.Longitude,
			"latitude":         batch.Location.Latitude,
		},
	})
	return batch, nil
}

// CertifyBatch attaches a certification once. Certification Authority only.
func (e *Engine) CertifyBatch(ctx context.Context, actor ActorID, id BatchID, in CertificationInput) (Batch, error) {
	role, err := e.resolve(ctx, actor)
	if err != nil {
		return Batch{}, err
	}

	unlock := e.locks.lock(batchKey(id))
	defer unlock()

	current, err := e.Store.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if err := e.authorize(AccessRequest{Actor: actor, Role: role, Operation: OpCertifyBatch, Batch: &current}); err != nil {
		return Batch{}, err
	}

	batch, err := e.Store.CertifyBatch(ctx, id, Certification{
		AuthorityName:    in.AuthorityName,
		DigitalSignature: in.DigitalSignature,
		DocumentHash:     in.DocumentHash,
		CertifiedBy:      actor,
	})
	if err != nil {
		return Batch{}, err
	}

	e.emit(ctx, Event{
		Type:    EventBatchCertified,
		Actor:   actor,
		BatchID: id,
		Payload: map[string]string{
			"authorityName": in.AuthorityName,
			"documentHash":  in.DocumentHash,
		},
	})
	return batch, nil
}

// CertifyBatchWithDocument uploads the certificate document and certifies
// the batch with the returned content hash. Authorization is checked before
// the upload so denied callers never write to the document store.
func (e *Engine) CertifyBatchWithDocument(ctx context.Context, actor ActorID, id BatchID, authorityName, signature string, document []byte) (Batch, error) {
	if e.Documents == nil {
		return Batch{}, errors.New("no document store configured")
	}
	role, err := e.resolve(ctx, actor)
	if err != nil {
		return Batch{}, err
	}
	current, err := e.Store.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if err := e.authorize(AccessRequest{Actor: actor, Role: role, Operation: OpCertifyBatch, Batch: &current}); err != nil {
		return Batch{}, err
	}

	hash, err := e.Documents.UploadDocument(ctx, document)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to upload certificate document: %w", err)
	}
	return e.CertifyBatch(ctx, actor, id, CertificationInput{
		AuthorityName:    authorityName,
		DigitalSignature: signature,
		DocumentHash:     hash,
	})
}

// =============================================================================
// PRODUCT OPERATIONS
// =============================================================================

// AddProduct creates a product in an existing batch. Manufacturer only.
func (e *Engine) AddProduct(ctx context.Context, actor ActorID, in NewProduct) (Product, error) {
	role, err := e.resolve(ctx, actor)
	if err != nil {
		return Product{}, err
	}

	unlock := e.locks.lock(productKey(in.ID))
	defer unlock()

	// The batch is read, not locked: no cross-entity transactions.
	var batch *Batch
	b, err := e.Store.GetBatch(ctx, in.BatchID)
	switch {
	case err == nil:
		batch = &b
	case !IsNotFound(err):
		return Product{}, err
	}
	if err := e.authorize(AccessRequest{Actor: actor, Role: role, Operation: OpCreateProduct, Batch: batch}); err != nil {
		if batch == nil && errors.Is(err, ErrUnknownBatch) {
			return Product{}, BatchNotFound(in.BatchID)
		}
		return Product{}, err
	}
	if in.ID == 0 {
		return Product{}, fmt.Errorf("%w: product id must be non-zero", ErrInvalidInput)
	}

	product, err := e.Store.CreateProduct(ctx, Product{
		ID:              in.ID,
		BatchID:         in.BatchID,
		Manufacturer:    actor,
		CustomerDetails: in.Customer,
	})
	if err != nil {
		return Product{}, err
	}

	e.emit(ctx, Event{
		Type:      EventProductAdded,
		Actor:     actor,
		BatchID:   product.BatchID,
		ProductID: product.ID,
		Payload: map[string]string{
			"customerName":    in.Customer.Name,
			"customerAddress": in.Customer.Address,
			"customerPhone":   in.Customer.Phone,
			"customerEmail":   in.Customer.Email,
		},
	})
	return product, nil
}

// AssignCourier claims a product for the calling courier. First caller wins.
func (e *Engine) AssignCourier(ctx context.Context, actor ActorID, id ProductID) (Product, error) {
	role, err := e.resolve(ctx, actor)
	if err != nil {
		return Product{}, err
	}

	unlock := e.locks.lock(productKey(id))
	defer unlock()

	current, err := e.Store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := e.authorize(AccessRequest{Actor: actor, Role: role, Operation: OpAssignCourier, Product: &current}); err != nil {
		return Product{}, err
	}

	product, err := e.Store.UpdateProduct(ctx, id, func(p *Product) error {
		if p.LogisticsPartner != "" {
			return &AssignmentError{ProductID: id, Slot: "courier", Current: p.LogisticsPartner}
		}
		p.LogisticsPartner = actor
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	e.emit(ctx, Event{
		Type:      EventProductAssignedToCourier,
		Actor:     actor,
		BatchID:   product.BatchID,
		ProductID: id,
		Payload:   map[string]string{"logisticsPartner": string(actor)},
	})
	return product, nil
}

// AssignToCustomer records the receiving customer. Allowed for the
// product's manufacturer, or for a customer claiming it for themselves.
func (e *Engine) AssignToCustomer(ctx context.Context, actor ActorID, id ProductID, customer ActorID) (Product, error) {
	role, err := e.resolve(ctx, actor)
	if err != nil {
		return Product{}, err
	}
	assigneeRole, err := e.resolve(ctx, customer)
	if err != nil {
		return Product{}, err
	}

	unlock := e.locks.lock(productKey(id))
	defer unlock()

	current, err := e.Store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := e.authorize(AccessRequest{
		Actor:        actor,
		Role:         role,
		Operation:    OpAssignCustomer,
		Product:      &current,
		Assignee:     customer,
		AssigneeRole: assigneeRole,
	}); err != nil {
		return Product{}, err
	}

	product, err := e.Store.UpdateProduct(ctx, id, func(p *Product) error {
		if p.Customer != "" {
			return &AssignmentError{ProductID: id, Slot: "customer", Current: p.Customer}
		}
		p.Customer = customer
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	e.emit(ctx, Event{
		Type:      EventProductAssignedToCustomer,
		Actor:     actor,
		BatchID:   product.BatchID,
		ProductID: id,
		Payload:   map[string]string{"customer": string(customer)},
	})
	return product, nil
}

// AddCheckpoint appends a checkpoint. Only the assigned courier may call it.
// The first checkpoint moves a Created product to InTransit.
func (e *Engine) AddCheckpoint(ctx context.Context, actor ActorID, id ProductID, cp Checkpoint) (Product, error) {
	role, err := e.resolve(ctx, actor)
	if err != nil {
		return Product{}, err
	}

	unlock := e.locks.lock(productKey(id))
	defer unlock()

	current, err := e.Store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := e.authorize(AccessRequest{Actor: actor, Role: role, Operation: OpAppendCheckpoint, Product: &current}); err != nil {
		return Product{}, err
	}
	if err := ValidateCoordinates(cp.Longitude, cp.Latitude); err != nil {
		return Product{}, err
	}
	if e.Config.StrictCheckpointTimes && cp.CheckOutTime < cp.CheckInTime {
		return Product{}, fmt.Errorf("%w: checkOutTime %d is before checkInTime %d", ErrInvalidInput, cp.CheckOutTime, cp.CheckInTime)
	}
	if e.Config.SealOnDelivery && current.DeliveryStatus == StatusDelivered {
		return Product{}, &TransitionError{ProductID: id, From: StatusDelivered, To: StatusDelivered, Reason: "product is delivered, checkpoints are sealed"}
	}

	var product Product
	if current.DeliveryStatus == StatusCreated {
		product, err = e.Store.UpdateProduct(ctx, id, func(p *Product) error {
			p.Checkpoints = append(p.Checkpoints, cp)
			if p.DeliveryStatus == StatusCreated {
				p.DeliveryStatus = StatusInTransit
			}
			return nil
		})
	} else {
		product, err = e.Store.AppendCheckpoint(ctx, id, cp)
	}
	if err != nil {
		return Product{}, err
	}

	e.emit(ctx, Event{
		Type:      EventCheckpointAdded,
		Actor:     actor,
		BatchID:   product.BatchID,
		ProductID: id,
		Payload: map[string]string{
			"location":     cp.Location,
			"longitude":    cp.Longitude,
			"latitude":     cp.Latitude,
			"checkInTime":  strconv.FormatInt(cp.CheckInTime, 10),
			"checkOutTime": strconv.FormatInt(cp.CheckOutTime, 10),
		},
	})
	return product, nil
}

// MarkAsDelivered moves the delivery status forward to InTransit or
// Delivered. Only the assigned courier may call it.
func (e *Engine) MarkAsDelivered(ctx context.Context, actor ActorID, id ProductID, status string) (Product, error) {
	role, err := e.resolve(ctx, actor)
	if err != nil {
		return Product{}, err
	}

	unlock := e.locks.lock(productKey(id))
	defer unlock()

	current, err := e.Store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	next, parseErr := ParseDeliveryStatus(status)
	if parseErr != nil {
		// appendCheckpoint has the same caller rule as markDelivered and
		// needs no target status.
		if err := e.authorize(AccessRequest{Actor: actor, Role: role, Operation: OpAppendCheckpoint, Product: &current}); err != nil {
			return Product{}, err
		}
		return Product{}, parseErr
	}
	if err := e.authorize(AccessRequest{Actor: actor, Role: role, Operation: OpMarkDelivered, Product: &current, NewStatus: next}); err != nil {
		return Product{}, err
	}

	product, err := e.Store.UpdateProduct(ctx, id, func(p *Product) error {
		if !p.DeliveryStatus.Before(next) {
			return &TransitionError{ProductID: id, From: p.DeliveryStatus, To: next}
		}
		p.DeliveryStatus = next
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	e.emit(ctx, Event{
		Type:      EventProductDelivered,
		Actor:     actor,
		BatchID:   product.BatchID,
		ProductID: id,
		Payload: map[string]string{
			"deliveryStatus":   string(next),
			"logisticsPartner": string(product.LogisticsPartner),
		},
	})
	return product, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// resolve looks up the actor's role. Unknown actors get an empty role,
// which the Guard denies.
func (e *Engine) resolve(ctx context.Context, actor ActorID) (Role, error) {
	if e.Directory == nil || actor == "" {
		return "", nil
	}
	role, err := e.Directory.ResolveRole(ctx, actor)
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve role for %q: %w", actor, err)
	}
	return role, nil
}

func (e *Engine) authorize(req AccessRequest) error {
	g := e.Guard
	if g == nil {
		g = DefaultGuard
	}
	return g.Authorize(req)
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	if e.Events == nil {
		return
	}
	ev.ID = uuid.NewString()
	if e.Now != nil {
		ev.At = e.Now().UTC()
	} else {
		ev.At = time.Now().UTC()
	}
	// The mutation has committed; a cancelled caller must not lose the event.
	if _, err := e.Events.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("[Engine] failed to append %s event (batch %d, product %d): %v", ev.Type, ev.BatchID, ev.ProductID, err)
	}
}
