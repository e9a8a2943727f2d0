/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for demos. Each scenario is a factory manifest replayed through the
	Engine, so every step is authorized and emits its event exactly as a
	live request would.

AVAILABLE SCENARIOS:

	laptop-delivery:  One batch, one product carried Shenzhen → Berlin and delivered
	courier-race:     Unclaimed products and three registered couriers
	certified-pharma: Certified vaccine batch with a customer-assigned shipment

HOW SCENARIOS WORK:
 1. Reset every registered store
 2. Parse the manifest JSON
 3. Register actors, then replay batches, products, custody and certifications

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "laptop-delivery"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add the manifest to 'scenarioManifests' under the same ID

NOTE:

	Scenarios reset the ledger. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and Resetter
  - factory/manifest.go: Manifest format
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/warp/provenance-ledger/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "laptop-delivery",
		Name:        "Laptop Delivery",
		Description: "A laptop batch shipped through two checkpoints and delivered to its customer",
	},
	{
		ID:          "courier-race",
		Name:        "Courier Race",
		Description: "Unclaimed products with three couriers competing for the first claim",
	},
	{
		ID:          "certified-pharma",
		Name:        "Certified Pharma",
		Description: "A certified vaccine batch whose products mirror the certification",
	},
}

var scenarioManifests = map[string]string{
	"laptop-delivery": `{
  "actors": [
    {"id": "acme", "role": "Manufacturer"},
    {"id": "dhl", "role": "Courier"},
    {"id": "tuv", "role": "Certification Authority"},
    {"id": "alice", "role": "Customer"}
  ],
  "batches": [
    {"id": 1, "manufacturer": "acme", "name": "Laptop X1", "price": 1299,
     "manufacturer_name": "Acme Electronics", "manufacturer_details": "Plant 4, Shenzhen",
     "longitude": "114.0579", "latitude": "22.5431", "category": "Electronics"}
  ],
  "products": [
    {"id": 1, "batch_id": 1, "manufacturer": "acme", "assign_to": "alice",
     "customer": {"name": "Alice Martin", "address": "Unter den Linden 1, Berlin", "phone": "+49 30 1234567", "email": "alice@example.com"},
     "courier": "dhl",
     "checkpoints": [
       {"location": "Shenzhen Port", "longitude": "114.2655", "latitude": "22.5700", "check_in_time": 1735689600, "check_out_time": 1735776000},
       {"location": "Hamburg Port", "longitude": "9.9937", "latitude": "53.5511", "check_in_time": 1737504000, "check_out_time": 1737590400}
     ],
     "status": "delivered"},
    {"id": 2, "batch_id": 1, "manufacturer": "acme",
     "customer": {"name": "Bob Keller", "address": "Marienplatz 8, Munich", "email": "bob@example.com"}}
  ],
  "certifications": [
    {"batch_id": 1, "authority": "tuv", "authority_name": "TUV Rheinland",
     "digital_signature": "tuv-sig-7f3a", "document_hash": "9b74c9897bac770ffc029102a200c5de"}
  ]
}`,

	"courier-race": `{
  "actors": [
    {"id": "acme", "role": "Manufacturer"},
    {"id": "dhl", "role": "Courier"},
    {"id": "ups", "role": "Courier"},
    {"id": "fedex", "role": "Courier"}
  ],
  "batches": [
    {"id": 10, "manufacturer": "acme", "name": "Smartphone S", "price": 799,
     "manufacturer_name": "Acme Electronics", "longitude": "121.4737", "latitude": "31.2304", "category": "Electronics"}
  ],
  "products": [
    {"id": 100, "batch_id": 10, "manufacturer": "acme", "customer": {"name": "Carol Diaz", "email": "carol@example.com"}},
    {"id": 101, "batch_id": 10, "manufacturer": "acme", "customer": {"name": "Dan Evans"}},
    {"id": 102, "batch_id": 10, "manufacturer": "acme", "customer": {"name": "Erin Fox"}, "courier": "ups"}
  ]
}`,

	"certified-pharma": `{
  "actors": [
    {"id": "pharmaco", "role": "Manufacturer"},
    {"id": "coldchain", "role": "Courier"},
    {"id": "ema", "role": "Certification Authority"},
    {"id": "clinic-7", "role": "Customer"}
  ],
  "batches": [
    {"id": 20, "manufacturer": "pharmaco", "name": "Vaccine Lot 2025-A", "price": 45,
     "manufacturer_name": "PharmaCo", "manufacturer_details": "GMP site Basel",
     "longitude": "7.5886", "latitude": "47.5596", "category": "Pharmaceuticals"}
  ],
  "certifications": [
    {"batch_id": 20, "authority": "ema", "authority_name": "European Medicines Agency",
     "digital_signature": "ema-sig-001", "document_hash": "e3b0c44298fc1c149afbf4c8996fb924"}
  ],
  "products": [
    {"id": 200, "batch_id": 20, "manufacturer": "pharmaco", "assign_to": "clinic-7",
     "customer": {"name": "Clinic 7", "address": "Bahnhofstrasse 3, Zurich", "email": "orders@clinic7.example"},
     "courier": "coldchain",
     "checkpoints": [
       {"location": "Basel Cold Store", "longitude": "7.5886", "latitude": "47.5596", "check_in_time": 1740787200, "check_out_time": 1740790800}
     ]}
  ]
}`,
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario resets the ledger and loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, ok := scenarioManifests[req.ScenarioID]; !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("%q", req.ScenarioID))
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// LoadScenarioByID resets every store and replays the named manifest.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	raw, ok := scenarioManifests[id]
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}
	m, err := factory.ParseManifest([]byte(raw))
	if err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, rs := range h.Resetters {
		if err := rs.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	h.currentScenario = ""

	if err := m.Apply(ctx, h.Engine, h.Directory); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.currentScenario = id
	log.Printf("[Scenario] Loaded %s", id)
	return nil
}
