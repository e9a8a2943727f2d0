/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Batch:       BatchDTO, CertificationDTO, CreateBatchRequest, CertifyBatchRequest
  Product:     ProductDTO, CheckpointDTO, CustomerDTO, CreateProductRequest,
               AssignCustomerRequest, DeliveryRequest
  Events:      EventDTO
  Actors:      ActorDTO, RegisterActorRequest
  Scenarios:   ScenarioDTO, LoadScenarioRequest

IDS:
  Batch and product ids are unsigned 64-bit integers in JSON.

VALIDATION:
  Validation is done by the Engine, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/provenance-ledger/provenance"
)

// =============================================================================
// BATCHES
// =============================================================================

type CertificationDTO struct {
	AuthorityName    string `json:"authority_name"`
	DigitalSignature string `json:"digital_signature"`
	DocumentHash     string `json:"document_hash"`
	CertifiedBy      string `json:"certified_by"`
}

type BatchDTO struct {
	ID                  uint64            `json:"id"`
	Name                string            `json:"name"`
	Price               int64             `json:"price"`
	ManufacturerName    string            `json:"manufacturer_name"`
	ManufacturerDetails string            `json:"manufacturer_details"`
	Longitude           string            `json:"longitude"`
	Latitude            string            `json:"latitude"`
	Category            string            `json:"category"`
	Manufacturer        string            `json:"manufacturer"`
	IsCertified         bool              `json:"is_certified"`
	Certification       *CertificationDTO `json:"certification,omitempty"`
}

type CreateBatchRequest struct {
	ID                  uint64 `json:"id"`
	Name                string `json:"name"`
	Price               int64  `json:"price"`
	ManufacturerName    string `json:"manufacturer_name"`
	ManufacturerDetails string `json:"manufacturer_details"`
	Longitude           string `json:"longitude"`
	Latitude            string `json:"latitude"`
	Category            string `json:"category"`
}

// CertifyBatchRequest certifies with a precomputed document hash, or with
// the document itself (base64 in JSON), which is stored and hashed.
type CertifyBatchRequest struct {
	AuthorityName    string `json:"authority_name"`
	DigitalSignature string `json:"digital_signature"`
	DocumentHash     string `json:"document_hash,omitempty"`
	Document         []byte `json:"document,omitempty"`
}

// =============================================================================
// PRODUCTS
// =============================================================================

type CustomerDTO struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

type CheckpointDTO struct {
	Location     string `json:"location"`
	Longitude    string `json:"longitude"`
	Latitude     string `json:"latitude"`
	CheckInTime  int64  `json:"check_in_time"`
	CheckOutTime int64  `json:"check_out_time"`
}

type ProductDTO struct {
	ID               uint64            `json:"id"`
	BatchID          uint64            `json:"batch_id"`
	Manufacturer     string            `json:"manufacturer"`
	LogisticsPartner string            `json:"logistics_partner"`
	Customer         string            `json:"customer"`
	CustomerDetails  CustomerDTO       `json:"customer_details"`
	DeliveryStatus   string            `json:"delivery_status"`
	Checkpoints      []CheckpointDTO   `json:"checkpoints"`
	IsCertified      bool              `json:"is_certified"`
	Certification    *CertificationDTO `json:"certification,omitempty"`
	Batch            *BatchDTO         `json:"batch,omitempty"`
}

type CreateProductRequest struct {
	ID       uint64      `json:"id"`
	BatchID  uint64      `json:"batch_id"`
	Customer CustomerDTO `json:"customer"`
}

type AssignCustomerRequest struct {
	Customer string `json:"customer"`
}

// DeliveryRequest carries the requested status; empty means "delivered".
type DeliveryRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// EVENTS, ACTORS, SCENARIOS
// =============================================================================

type EventDTO struct {
	Seq       uint64            `json:"seq"`
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Actor     string            `json:"actor"`
	BatchID   uint64            `json:"batch_id,omitempty"`
	ProductID uint64            `json:"product_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	At        string            `json:"at"`
}

type ActorDTO struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type RegisterActorRequest struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toCertificationDTO(c *provenance.Certification) *CertificationDTO {
	if c == nil {
		return nil
	}
	return &CertificationDTO{
		AuthorityName:    c.AuthorityName,
		DigitalSignature: c.DigitalSignature,
		DocumentHash:     c.DocumentHash,
		CertifiedBy:      string(c.CertifiedBy),
	}
}

func toBatchDTO(b provenance.Batch) BatchDTO {
	return BatchDTO{
		ID:                  uint64(b.ID),
		Name:                b.Name,
		Price:               b.Price,
		ManufacturerName:    b.ManufacturerName,
		ManufacturerDetails: b.ManufacturerDetails,
		Longitude:           b.Location.Longitude,
		Latitude:            b.Location.Latitude,
		Category:            b.Category,
		Manufacturer:        string(b.Manufacturer),
		IsCertified:         b.IsCertified,
		Certification:       toCertificationDTO(b.Certification),
	}
}

func toBatchDTOs(batches []provenance.Batch) []BatchDTO {
	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	return dtos
}

func toCustomerDTO(c provenance.CustomerDetails) CustomerDTO {
	return CustomerDTO{Name: c.Name, Address: c.Address, Phone: c.Phone, Email: c.Email}
}

func (c CustomerDTO) toDetails() provenance.CustomerDetails {
	return provenance.CustomerDetails{Name: c.Name, Address: c.Address, Phone: c.Phone, Email: c.Email}
}

func toCheckpointDTOs(cps []provenance.Checkpoint) []CheckpointDTO {
	dtos := make([]CheckpointDTO, len(cps))
	for i, c := range cps {
		dtos[i] = CheckpointDTO{
			Location:     c.Location,
			Longitude:    c.Longitude,
			Latitude:     c.Latitude,
			CheckInTime:  c.CheckInTime,
			CheckOutTime: c.CheckOutTime,
		}
	}
	return dtos
}

func (c CheckpointDTO) toCheckpoint() provenance.Checkpoint {
	return provenance.Checkpoint{
		Location:     c.Location,
		Longitude:    c.Longitude,
		Latitude:     c.Latitude,
		CheckInTime:  c.CheckInTime,
		CheckOutTime: c.CheckOutTime,
	}
}

func toProductDTO(p provenance.Product) ProductDTO {
	return ProductDTO{
		ID:               uint64(p.ID),
		BatchID:          uint64(p.BatchID),
		Manufacturer:     string(p.Manufacturer),
		LogisticsPartner: string(p.LogisticsPartner),
		Customer:         string(p.Customer),
		CustomerDetails:  toCustomerDTO(p.CustomerDetails),
		DeliveryStatus:   string(p.DeliveryStatus),
		Checkpoints:      toCheckpointDTOs(p.Checkpoints),
	}
}

func toProductViewDTO(v provenance.ProductView) ProductDTO {
	dto := toProductDTO(v.Product)
	batch := toBatchDTO(v.Batch)
	dto.Batch = &batch
	dto.IsCertified = v.IsCertified
	dto.Certification = toCertificationDTO(v.Certification)
	return dto
}

func toProductViewDTOs(views []provenance.ProductView) []ProductDTO {
	dtos := make([]ProductDTO, len(views))
	for i, v := range views {
		dtos[i] = toProductViewDTO(v)
	}
	return dtos
}

func toEventDTOs(events []provenance.Event) []EventDTO {
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = EventDTO{
			Seq:       e.Seq,
			ID:        e.ID,
			Type:      string(e.Type),
			Actor:     string(e.Actor),
			BatchID:   uint64(e.BatchID),
			ProductID: uint64(e.ProductID),
			Payload:   e.Payload,
			At:        e.At.UTC().Format(time.RFC3339),
		}
	}
	return dtos
}
