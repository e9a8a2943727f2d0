/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontends

READS:
  Ledger GET routes run behind Handler.requireReader.

ROUTE GROUPS:
  /api/batches/*     Batch creation, certification, reads
  /api/products/*    Product custody chain
  /api/me/*          Caller-scoped views
  /api/events        Event log
  /api/actors        Role registration
  /api/scenarios/*   Demo scenarios
  /healthz           Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins is used when no origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.With(h.requireReader).Get("/", h.ListBatches)
			r.Post("/", h.CreateBatch)
			r.With(h.requireReader).Get("/{id}", h.GetBatch)
			r.With(h.requireReader).Get("/{id}/products", h.ListBatchProducts)
			r.Post("/{id}/certify", h.CertifyBatch)
			r.With(h.requireReader).Get("/{id}/certificate", h.GetCertificate)
		})

		r.Route("/products", func(r chi.Router) {
			r.With(h.requireReader).Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.With(h.requireReader).Get("/{id}", h.GetProduct)
			r.Post("/{id}/courier", h.AssignCourier)
			r.Post("/{id}/customer", h.AssignCustomer)
			r.With(h.requireReader).Get("/{id}/customer", h.GetCustomerDetails)
			r.Post("/{id}/checkpoints", h.AddCheckpoint)
			r.With(h.requireReader).Get("/{id}/checkpoints", h.GetCheckpoints)
			r.Post("/{id}/delivery", h.UpdateDelivery)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(h.requireReader)
			r.Get("/products", h.MyProducts)
			r.Get("/batches", h.MyBatches)
		})

		r.With(h.requireReader).Get("/events", h.ListEvents)
		r.Post("/actors", h.RegisterActor)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
