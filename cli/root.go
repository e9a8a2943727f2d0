/*
root.go - Operator CLI for the provenance ledger

PURPOSE:
  A cobra command tree over a local SQLite ledger. Each invocation opens
  the database, runs one Engine or QueryService call as the --actor
  identity, prints the result and closes the database. Reads also need
  --actor, and the actor must be registered.

COMMANDS:
  actor register <id> <role>
  batch add|show|list
  product add|show|list|mine
  courier assign <product>
  customer assign <product> <customer>
  checkpoint add <product>
  deliver <product>
  certify <batch>
  events
  import <manifest.json>

GLOBAL FLAGS:
  --db     SQLite database path (default: PROVENANCE_DB_PATH or provenance.db)
  --actor  Acting identity (default: PROVENANCE_ACTOR)

SEE ALSO:
  - cmd/provenance/main.go: Entry point
  - store/sqlite/sqlite.go: Storage
*/
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/warp/provenance-ledger/config"
	"github.com/warp/provenance-ledger/provenance"
	"github.com/warp/provenance-ledger/store/sqlite"
)

// ledger is the per-invocation wiring.
type ledger struct {
	store  *sqlite.Store
	engine *provenance.Engine
	query  *provenance.QueryService
	out    io.Writer
}

type globals struct {
	dbPath string
	actor  string
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "provenance",
		Short:         "Supply-chain provenance ledger",
		Long:          "Record batches, products, custody and certification on a local provenance ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (default: PROVENANCE_DB_PATH or provenance.db)")
	root.PersistentFlags().StringVar(&g.actor, "actor", os.Getenv("PROVENANCE_ACTOR"), "Acting identity")

	root.AddCommand(actorCmd(g))
	root.AddCommand(batchCmd(g))
	root.AddCommand(productCmd(g))
	root.AddCommand(courierCmd(g))
	root.AddCommand(customerCmd(g))
	root.AddCommand(checkpointCmd(g))
	root.AddCommand(deliverCmd(g))
	root.AddCommand(certifyCmd(g))
	root.AddCommand(eventsCmd(g))
	root.AddCommand(importCmd(g))
	return root
}

// withLedger opens the database, runs fn and closes the database.
func (g *globals) withLedger(cmd *cobra.Command, fn func(l *ledger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path := g.dbPath
	if path == "" {
		path = cfg.Database.Path
	}

	store, err := sqlite.New(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	defer store.Close()

	engine := provenance.NewEngine(store, store, store)
	engine.Documents = store
	engine.Config = cfg.Ledger

	return fn(&ledger{
		store:  store,
		engine: engine,
		query:  provenance.NewQueryService(store, store),
		out:    cmd.OutOrStdout(),
	})
}

// withReader is withLedger for read commands: the --actor identity must
// hold a role before fn runs.
func (g *globals) withReader(cmd *cobra.Command, fn func(l *ledger) error) error {
	actor, err := g.requireActor()
	if err != nil {
		return err
	}
	return g.withLedger(cmd, func(l *ledger) error {
		if err := l.query.AuthorizeRead(cmd.Context(), actor); err != nil {
			return err
		}
		return fn(l)
	})
}

func (g *globals) requireActor() (provenance.ActorID, error) {
	if g.actor == "" {
		return "", fmt.Errorf("no acting identity\nHint: use --actor or set PROVENANCE_ACTOR")
	}
	return provenance.ActorID(g.actor), nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func statusLabel(s provenance.DeliveryStatus) string {
	switch s {
	case provenance.StatusCreated:
		return color.New(color.FgYellow).Sprint(s)
	case provenance.StatusInTransit:
		return color.New(color.FgCyan).Sprint(s)
	case provenance.StatusDelivered:
		return color.New(color.FgGreen).Sprint(s)
	}
	return string(s)
}

func certLabel(certified bool) string {
	if certified {
		return color.New(color.FgGreen).Sprint("certified")
	}
	return color.New(color.FgHiBlack).Sprint("uncertified")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ok(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgGreen).Sprint("✓"), fmt.Sprintf(format, args...))
}
