/*
handlers.go - HTTP API handlers for the provenance ledger

PURPOSE:
  Exposes the provenance Engine and QueryService via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Batches:
    GET    /api/batches                 List all batches
    POST   /api/batches                 Create batch (Manufacturer)
    GET    /api/batches/{id}            Get batch details
    GET    /api/batches/{id}/products   Product ids in the batch
    POST   /api/batches/{id}/certify    Certify batch (Certification Authority)
    GET    /api/batches/{id}/certificate Stored certificate document

  Products:
    GET    /api/products                List all products
    POST   /api/products                Create product (batch's Manufacturer)
    GET    /api/products/{id}           Product with mirrored certification
    POST   /api/products/{id}/courier   Claim as courier (first claim wins)
    POST   /api/products/{id}/customer  Assign customer
    GET    /api/products/{id}/customer  Customer details
    POST   /api/products/{id}/checkpoints Append checkpoint (assigned courier)
    GET    /api/products/{id}/checkpoints Checkpoints in insertion order
    POST   /api/products/{id}/delivery  Advance delivery status

  Caller views:
    GET    /api/me/products             Products the caller is a party to
    GET    /api/me/batches              Batches visible to the caller's role

  Events, actors, scenarios:
    GET    /api/events?after=&limit=    Event log page
    POST   /api/actors                  Register actor role (signup)
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/load          Load a demo scenario

AUTHENTICATION:
  The caller's actor id comes from the X-Actor-ID header, set by the
  identity layer in front of this service. Every ledger route rejects a
  missing header with 401. Reads pass through requireReader, which needs
  the actor to hold a role (403 otherwise). Mutation role checks happen
  in the Engine.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, bad id, invalid input
  - 401: Missing X-Actor-ID
  - 403: Unauthorized (unknown actor, role or ownership mismatch)
  - 404: Batch or product not found
  - 409: Duplicate id, already assigned, already certified
  - 422: Invalid delivery status transition
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/provenance-ledger/provenance"
)

// ActorHeader carries the authenticated caller.
const ActorHeader = "X-Actor-ID"

// Resetter is implemented by stores that can be wiped for demos.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *provenance.Engine
	Query     *provenance.QueryService
	Directory provenance.DirectoryWriter
	Events    provenance.EventLog

	// Resetters are wiped before a scenario loads.
	Resetters []Resetter

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over an engine. The query service reads the
// engine's store.
func NewHandler(engine *provenance.Engine, dir provenance.DirectoryWriter, resetters ...Resetter) *Handler {
	return &Handler{
		Engine:    engine,
		Query:     provenance.NewQueryService(engine.Store, engine.Directory),
		Directory: dir,
		Events:    engine.Events,
		Resetters: resetters,
	}
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// ListBatches returns every batch in id order.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Query.ListBatchIDs(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list batches", err)
		return
	}

	batches := make([]provenance.Batch, 0, len(ids))
	for _, id := range ids {
		b, err := h.Query.GetBatch(r.Context(), id)
		if err != nil {
			writeDomainError(w, "Failed to load batch", err)
			return
		}
		batches = append(batches, b)
	}
	writeJSON(w, http.StatusOK, toBatchDTOs(batches))
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}

	b, err := h.Query.GetBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(b))
}

// CreateBatch creates a batch owned by the caller.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Engine.AddBatch(r.Context(), actor, provenance.NewBatch{
		ID:                  provenance.BatchID(req.ID),
		Name:                req.Name,
		Price:               req.Price,
		ManufacturerName:    req.ManufacturerName,
		ManufacturerDetails: req.ManufacturerDetails,
		Longitude:           req.Longitude,
		Latitude:            req.Latitude,
		Category:            req.Category,
	})
	if err != nil {
		writeDomainError(w, "Failed to create batch", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(b))
}

// ListBatchProducts returns the product ids linked to a batch.
func (h *Handler) ListBatchProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}

	ids, err := h.Query.ProductsInBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list batch products", err)
		return
	}
	out := make([]uint64, len(ids))
	for i, pid := range ids {
		out[i] = uint64(pid)
	}
	writeJSON(w, http.StatusOK, out)
}

// CertifyBatch certifies a batch once. A request carrying the document
// itself stores it and certifies with its hash.
func (h *Handler) CertifyBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	var req CertifyBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		b   provenance.Batch
		err error
	)
	if len(req.Document) > 0 {
		b, err = h.Engine.CertifyBatchWithDocument(r.Context(), actor, id, req.AuthorityName, req.DigitalSignature, req.Document)
	} else {
		b, err = h.Engine.CertifyBatch(r.Context(), actor, id, provenance.CertificationInput{
			AuthorityName:    req.AuthorityName,
			DigitalSignature: req.DigitalSignature,
			DocumentHash:     req.DocumentHash,
		})
	}
	if err != nil {
		writeDomainError(w, "Failed to certify batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(b))
}

// GetCertificate streams the certificate document of a batch certified
// with an uploaded document.
func (h *Handler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}

	b, err := h.Query.GetBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get batch", err)
		return
	}
	if b.Certification == nil || b.Certification.DocumentHash == "" || h.Engine.Documents == nil {
		writeError(w, http.StatusNotFound, "Batch has no certificate document", nil)
		return
	}

	data, err := h.Engine.Documents.Document(r.Context(), b.Certification.DocumentHash)
	if err != nil {
		writeDomainError(w, "Failed to load certificate document", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("batch-%d-certificate", id)))
	w.Header().Set("ETag", `"`+b.Certification.DocumentHash+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns every product with its batch certification mirrored.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Query.ListProductIDs(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list products", err)
		return
	}

	views := make([]provenance.ProductView, 0, len(ids))
	for _, id := range ids {
		v, err := h.Query.GetProduct(r.Context(), id)
		if err != nil {
			writeDomainError(w, "Failed to load product", err)
			return
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, toProductViewDTOs(views))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}

	v, err := h.Query.GetProduct(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductViewDTO(v))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Engine.AddProduct(r.Context(), actor, provenance.NewProduct{
		ID:       provenance.ProductID(req.ID),
		BatchID:  provenance.BatchID(req.BatchID),
		Customer: req.Customer.toDetails(),
	})
	if err != nil {
		writeDomainError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// AssignCourier claims the product for the calling courier.
func (h *Handler) AssignCourier(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}

	p, err := h.Engine.AssignCourier(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, "Failed to assign courier", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

func (h *Handler) AssignCustomer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req AssignCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Engine.AssignToCustomer(r.Context(), actor, id, provenance.ActorID(req.Customer))
	if err != nil {
		writeDomainError(w, "Failed to assign customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

func (h *Handler) GetCustomerDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}

	c, err := h.Query.GetCustomerDetails(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get customer details", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

func (h *Handler) AddCheckpoint(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req CheckpointDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Engine.AddCheckpoint(r.Context(), actor, id, req.toCheckpoint())
	if err != nil {
		writeDomainError(w, "Failed to add checkpoint", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

func (h *Handler) GetCheckpoints(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}

	cps, err := h.Query.GetCheckpoints(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get checkpoints", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckpointDTOs(cps))
}

// UpdateDelivery advances the delivery status. An empty body or status
// means "delivered".
func (h *Handler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req DeliveryRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if req.Status == "" {
		req.Status = string(provenance.StatusDelivered)
	}

	p, err := h.Engine.MarkAsDelivered(r.Context(), actor, id, req.Status)
	if err != nil {
		writeDomainError(w, "Failed to update delivery status", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// =============================================================================
// CALLER VIEWS
// =============================================================================

// MyProducts returns the products the caller manufactured, carries or owns.
func (h *Handler) MyProducts(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	views, err := h.Query.ProductsVisibleTo(r.Context(), actor)
	if err != nil {
		writeDomainError(w, "Failed to list products", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductViewDTOs(views))
}

// MyBatches returns the batches visible to the caller's role.
func (h *Handler) MyBatches(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	role, err := h.Directory.ResolveRole(r.Context(), actor)
	if err != nil {
		if provenance.IsNotFound(err) {
			writeError(w, http.StatusForbidden, "Unknown actor", err)
			return
		}
		writeDomainError(w, "Failed to resolve role", err)
		return
	}

	batches, err := h.Query.BatchesVisibleTo(r.Context(), actor, role)
	if err != nil {
		writeDomainError(w, "Failed to list batches", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTOs(batches))
}

// =============================================================================
// EVENTS AND ACTORS
// =============================================================================

// ListEvents returns events with seq greater than ?after, oldest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var (
		after uint64
		limit int
		err   error
	)
	if s := r.URL.Query().Get("after"); s != "" {
		if after, err = strconv.ParseUint(s, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid after parameter", err)
			return
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit parameter", err)
			return
		}
	}

	events, err := h.Events.EventsSince(r.Context(), after, limit)
	if err != nil {
		writeDomainError(w, "Failed to read events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// RegisterActor records an actor's role at signup.
func (h *Handler) RegisterActor(w http.ResponseWriter, r *http.Request) {
	var req RegisterActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	role, err := provenance.ParseRole(req.Role)
	if err != nil {
		writeDomainError(w, "Invalid role", err)
		return
	}

	if err := h.Directory.AssignRole(r.Context(), provenance.ActorID(req.ID), role); err != nil {
		writeDomainError(w, "Failed to register actor", err)
		return
	}
	writeJSON(w, http.StatusCreated, ActorDTO{ID: req.ID, Role: string(role)})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a ledger error to its HTTP status and code. Errors
// not caused by the request are logged.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	if !provenance.IsClientError(err) {
		log.Printf("[API] %s: %v", message, err)
	}
	status, code := classify(err)
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, provenance.ErrInvalidInput):
		return http.StatusBadRequest, "InvalidInput"
	case errors.Is(err, provenance.ErrUnauthorized):
		return http.StatusForbidden, "Unauthorized"
	case errors.Is(err, provenance.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, provenance.ErrDuplicateID):
		return http.StatusConflict, "DuplicateId"
	case errors.Is(err, provenance.ErrAlreadyAssigned):
		return http.StatusConflict, "AlreadyAssigned"
	case errors.Is(err, provenance.ErrAlreadyCertified):
		return http.StatusConflict, "AlreadyCertified"
	case errors.Is(err, provenance.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "InvalidTransition"
	}
	return http.StatusInternalServerError, ""
}

// requireReader lets a request through only when its actor may read the
// ledger.
func (h *Handler) requireReader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if err := h.Query.AuthorizeRead(r.Context(), actor); err != nil {
			writeDomainError(w, "Read not allowed", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireActor(w http.ResponseWriter, r *http.Request) (provenance.ActorID, bool) {
	actor := r.Header.Get(ActorHeader)
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+ActorHeader+" header", nil)
		return "", false
	}
	return provenance.ActorID(actor), true
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid id %q", raw), err)
		return 0, false
	}
	return id, true
}

func batchIDParam(w http.ResponseWriter, r *http.Request) (provenance.BatchID, bool) {
	id, ok := parseID(w, r)
	return provenance.BatchID(id), ok
}

func productIDParam(w http.ResponseWriter, r *http.Request) (provenance.ProductID, bool) {
	id, ok := parseID(w, r)
	return provenance.ProductID(id), ok
}
