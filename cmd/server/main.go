/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the provenance ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment), then apply flag overrides
  2. Open the store (sqlite, postgres or memory)
  3. Register actors from the actors file, if any
  4. Build Engine, API handler and router
  5. Start the event dispatcher
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: PROVENANCE_PORT or 8080)
  -driver   sqlite | postgres | memory (default: PROVENANCE_DB_DRIVER or sqlite)
  -db       SQLite database path (default: PROVENANCE_DB_PATH or provenance.db)
            Use ":memory:" for in-memory database
  -actors   Role assignments JSON file (default: PROVENANCE_ACTORS_FILE)
  -scenario Demo scenario to load at startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the dispatcher
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run against postgres
  PROVENANCE_DATABASE_URL=postgres://... ./server -driver=postgres

  # Demo
  ./server -driver=memory -scenario=laptop-delivery

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - notify/dispatcher.go: Event delivery
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/provenance-ledger/api"
	"github.com/warp/provenance-ledger/config"
	"github.com/warp/provenance-ledger/factory"
	"github.com/warp/provenance-ledger/notify"
	"github.com/warp/provenance-ledger/provenance"
	"github.com/warp/provenance-ledger/provenance/store"
	"github.com/warp/provenance-ledger/store/postgres"
	"github.com/warp/provenance-ledger/store/sqlite"
)

// backend is everything the server needs from a storage driver.
type backend struct {
	store     provenance.Store
	events    provenance.EventLog
	directory provenance.DirectoryWriter
	documents provenance.DocumentStore
	resetters []api.Resetter
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override environment
	port := flag.Int("port", cfg.App.Port, "HTTP server port")
	driver := flag.String("driver", cfg.Database.Driver, "Storage driver: sqlite, postgres or memory")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	actorsFile := flag.String("actors", cfg.App.ActorsFile, "Role assignments JSON file")
	scenario := flag.String("scenario", "", "Demo scenario to load at startup")
	flag.Parse()

	cfg.App.Port = *port
	cfg.Database.Driver = *driver
	cfg.Database.Path = *dbPath
	cfg.App.ActorsFile = *actorsFile
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	// Initialize store
	b, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Database.Driver, err)
	}
	defer b.close()

	if cfg.App.ActorsFile != "" {
		assignments, err := factory.LoadActorsFile(cfg.App.ActorsFile)
		if err != nil {
			log.Fatalf("Failed to load actors: %v", err)
		}
		if err := factory.RegisterActors(ctx, b.directory, assignments); err != nil {
			log.Fatalf("Failed to register actors: %v", err)
		}
		log.Printf("[Server] Registered %d actor(s) from %s", len(assignments), cfg.App.ActorsFile)
	}

	engine := provenance.NewEngine(b.store, b.directory, b.events)
	engine.Documents = b.documents
	engine.Config = cfg.Ledger

	handler := api.NewHandler(engine, b.directory, b.resetters...)
	if *scenario != "" {
		if err := handler.LoadScenarioByID(ctx, *scenario); err != nil {
			log.Fatalf("Failed to load scenario: %v", err)
		}
	}

	// Event delivery starts after the last event already in the log
	dispatcher := notify.NewDispatcher(b.events, notify.Multi{
		notify.NewLogNotifier(),
		notify.NewCustomerMailer(notify.LogSender(), b.store),
	})
	dispatcher.Interval = cfg.App.NotifyInterval
	if *scenario == "" {
		dispatcher.StartAt(lastSeq(ctx, b.events))
	}
	dispatcher.Start()

	router := api.NewRouter(handler, cfg.App.AllowedOrigins...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[Server] Starting on http://localhost:%d (store: %s)", cfg.App.Port, cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Forced to shutdown: %v", err)
	}
	dispatcher.Stop()

	log.Println("[Server] Stopped")
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return &backend{
			store: s, events: s, directory: s, documents: s,
			resetters: []api.Resetter{s},
			close:     s.Close,
		}, nil

	case config.DriverMemory:
		mem, events, dir, docs := store.NewMemory(), store.NewEvents(), store.NewDirectory(), store.NewDocuments()
		return &backend{
			store: mem, events: events, directory: dir, documents: docs,
			resetters: []api.Resetter{mem, events, dir, docs},
			close:     func() {},
		}, nil
	}

	s, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	return &backend{
		store: s, events: s, directory: s, documents: s,
		resetters: []api.Resetter{s},
		close:     func() { s.Close() },
	}, nil
}

// lastSeq returns the sequence number of the newest event, or 0.
func lastSeq(ctx context.Context, events provenance.EventLog) uint64 {
	var seq uint64
	for {
		page, err := events.EventsSince(ctx, seq, 500)
		if err != nil {
			log.Printf("[Server] Could not read event log: %v", err)
			return seq
		}
		if len(page) == 0 {
			return seq
		}
		seq = page[len(page)-1].Seq
	}
}
