/*
Package factory provides JSON to Go conversion for actor rosters and ledger manifests.

PURPOSE:
  Converts JSON documents into directory entries and Engine inputs. Actor
  rosters configure who holds which role without code changes; manifests
  describe a whole supply chain (batches, products, custody steps) and are
  replayed through the Engine, so every step is authorized and evented
  exactly like a live call.

JSON SCHEMA (actors):
  {
    "actors": [
      {"id": "acme",  "role": "Manufacturer"},
      {"id": "dhl",   "role": "courier"},
      {"id": "iso",   "role": "Certification Authority"},
      {"id": "alice", "role": "Customer"}
    ]
  }

JSON SCHEMA (manifest):
  {
    "actors":   [ ...as above... ],
    "batches":  [{"id": 1, "manufacturer": "acme", "name": "Laptop", "price": 500,
                  "manufacturer_name": "ABC Corp", "longitude": "77.5946", ...}],
    "products": [{"id": 1, "batch_id": 1, "manufacturer": "acme",
                  "customer": {"name": "Alice", "email": "alice@example.com"},
                  "courier": "dhl",
                  "assign_to": "alice",
                  "checkpoints": [{"location": "Warehouse", "check_in_time": 1700000000, ...}],
                  "status": "delivered"}],
    "certifications": [{"batch_id": 1, "authority": "iso", "authority_name": "ISO", ...}]
  }

  Role names are parsed leniently (see provenance.ParseRole).

USAGE:
  assignments, err := factory.ParseActors(data)
  dir := store.NewDirectory(assignments...)

  m, err := factory.ParseManifest(data)
  err = m.Apply(ctx, engine, dir)

SEE ALSO:
  - provenance/engine.go: Apply drives these operations
  - api/scenarios.go: built-in manifests
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/warp/provenance-ledger/provenance"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type ActorJSON struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type BatchJSON struct {
	ID                  uint64 `json:"id"`
	Manufacturer        string `json:"manufacturer"`
	Name                string `json:"name"`
	Price               int64  `json:"price"`
	ManufacturerName    string `json:"manufacturer_name"`
	ManufacturerDetails string `json:"manufacturer_details,omitempty"`
	Longitude           string `json:"longitude,omitempty"`
	Latitude            string `json:"latitude,omitempty"`
	Category            string `json:"category,omitempty"`
}

type CustomerJSON struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

type CheckpointJSON struct {
	Location     string `json:"location"`
	Longitude    string `json:"longitude,omitempty"`
	Latitude     string `json:"latitude,omitempty"`
	CheckInTime  int64  `json:"check_in_time"`
	CheckOutTime int64  `json:"check_out_time"`
}

type ProductJSON struct {
	ID           uint64           `json:"id"`
	BatchID      uint64           `json:"batch_id"`
	Manufacturer string           `json:"manufacturer"`
	Customer     CustomerJSON     `json:"customer"`
	Courier      string           `json:"courier,omitempty"`     // claims the product
	AssignTo     string           `json:"assign_to,omitempty"`   // customer actor id
	Checkpoints  []CheckpointJSON `json:"checkpoints,omitempty"` // appended by Courier
	Status       string           `json:"status,omitempty"`      // in-transit, delivered
}

type CertificationJSON struct {
	BatchID          uint64 `json:"batch_id"`
	Authority        string `json:"authority"`
	AuthorityName    string `json:"authority_name"`
	DigitalSignature string `json:"digital_signature,omitempty"`
	DocumentHash     string `json:"document_hash,omitempty"`
}

type Manifest struct {
	Actors         []ActorJSON         `json:"actors"`
	Batches        []BatchJSON         `json:"batches,omitempty"`
	Products       []ProductJSON       `json:"products,omitempty"`
	Certifications []CertificationJSON `json:"certifications,omitempty"`
}

// =============================================================================
// ACTORS
// =============================================================================

// ParseActors parses an actor roster. Both a bare array and an object with
// an "actors" key are accepted.
func ParseActors(data []byte) ([]provenance.RoleAssignment, error) {
	var list []ActorJSON
	if err := json.Unmarshal(data, &list); err != nil {
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse actors JSON: %w", err)
		}
		list = m.Actors
	}
	return toAssignments(list)
}

// LoadActorsFile reads and parses an actor roster from disk.
func LoadActorsFile(path string) ([]provenance.RoleAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actors file: %w", err)
	}
	return ParseActors(data)
}

// RegisterActors writes assignments into dir. Re-registering an actor with
// the same role is not an error.
func RegisterActors(ctx context.Context, dir provenance.DirectoryWriter, assignments []provenance.RoleAssignment) error {
	for _, a := range assignments {
		if err := dir.AssignRole(ctx, a.Actor, a.Role); err != nil {
			return fmt.Errorf("actor %q: %w", a.Actor, err)
		}
	}
	return nil
}

func toAssignments(list []ActorJSON) ([]provenance.RoleAssignment, error) {
	seen := make(map[string]bool, len(list))
	out := make([]provenance.RoleAssignment, 0, len(list))
	for i, a := range list {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: actor %d has no id", provenance.ErrInvalidInput, i)
		}
		if seen[a.ID] {
			return nil, &provenance.DuplicateIDError{Kind: provenance.KindActor, ID: a.ID}
		}
		seen[a.ID] = true

		role, err := provenance.ParseRole(a.Role)
		if err != nil {
			return nil, fmt.Errorf("actor %q: %w", a.ID, err)
		}
		out = append(out, provenance.RoleAssignment{Actor: provenance.ActorID(a.ID), Role: role})
	}
	return out, nil
}

// =============================================================================
// MANIFEST
// =============================================================================

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}
	return &m, nil
}

func (b BatchJSON) ToNewBatch() provenance.NewBatch {
	return provenance.NewBatch{
		ID:                  provenance.BatchID(b.ID),
		Name:                b.Name,
		Price:               b.Price,
		ManufacturerName:    b.ManufacturerName,
		ManufacturerDetails: b.ManufacturerDetails,
		Longitude:           b.Longitude,
		Latitude:            b.Latitude,
		Category:            b.Category,
	}
}

func (c CustomerJSON) ToDetails() provenance.CustomerDetails {
	return provenance.CustomerDetails{Name: c.Name, Address: c.Address, Phone: c.Phone, Email: c.Email}
}

func (c CheckpointJSON) ToCheckpoint() provenance.Checkpoint {
	return provenance.Checkpoint{
		Location:     c.Location,
		Longitude:    c.Longitude,
		Latitude:     c.Latitude,
		CheckInTime:  c.CheckInTime,
		CheckOutTime: c.CheckOutTime,
	}
}

// Apply registers the manifest's actors in dir and replays every batch,
// product and custody step through the Engine in document order. It stops
// at the first error.
func (m *Manifest) Apply(ctx context.Context, engine *provenance.Engine, dir provenance.DirectoryWriter) error {
	assignments, err := toAssignments(m.Actors)
	if err != nil {
		return err
	}
	if err := RegisterActors(ctx, dir, assignments); err != nil {
		return err
	}

	for _, b := range m.Batches {
		if _, err := engine.AddBatch(ctx, provenance.ActorID(b.Manufacturer), b.ToNewBatch()); err != nil {
			return fmt.Errorf("batch %d: %w", b.ID, err)
		}
	}

	for _, p := range m.Products {
		id := provenance.ProductID(p.ID)
		_, err := engine.AddProduct(ctx, provenance.ActorID(p.Manufacturer), provenance.NewProduct{
			ID:       id,
			BatchID:  provenance.BatchID(p.BatchID),
			Customer: p.Customer.ToDetails(),
		})
		if err != nil {
			return fmt.Errorf("product %d: %w", p.ID, err)
		}
		if p.AssignTo != "" {
			if _, err := engine.AssignToCustomer(ctx, provenance.ActorID(p.Manufacturer), id, provenance.ActorID(p.AssignTo)); err != nil {
				return fmt.Errorf("product %d: assign customer: %w", p.ID, err)
			}
		}
		if p.Courier == "" {
			continue
		}
		courier := provenance.ActorID(p.Courier)
		if _, err := engine.AssignCourier(ctx, courier, id); err != nil {
			return fmt.Errorf("product %d: assign courier: %w", p.ID, err)
		}
		for _, c := range p.Checkpoints {
			if _, err := engine.AddCheckpoint(ctx, courier, id, c.ToCheckpoint()); err != nil {
				return fmt.Errorf("product %d: checkpoint %q: %w", p.ID, c.Location, err)
			}
		}
		if p.Status != "" {
			if _, err := engine.MarkAsDelivered(ctx, courier, id, p.Status); err != nil {
				return fmt.Errorf("product %d: status: %w", p.ID, err)
			}
		}
	}

	for _, c := range m.Certifications {
		_, err := engine.CertifyBatch(ctx, provenance.ActorID(c.Authority), provenance.BatchID(c.BatchID), provenance.CertificationInput{
			AuthorityName:    c.AuthorityName,
			DigitalSignature: c.DigitalSignature,
			DocumentHash:     c.DocumentHash,
		})
		if err != nil {
			return fmt.Errorf("certify batch %d: %w", c.BatchID, err)
		}
	}
	return nil
}
