package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/warp/provenance-ledger/factory"
	"github.com/warp/provenance-ledger/provenance"
)

func actorCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage actor roles",
	}
	register := &cobra.Command{
		Use:   "register <actor-id> <role>",
		Short: "Register an actor's role (Manufacturer, Courier, Certification Authority, Customer)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := provenance.ParseRole(args[1])
			if err != nil {
				return err
			}
			return g.withLedger(cmd, func(l *ledger) error {
				if err := l.store.AssignRole(cmd.Context(), provenance.ActorID(args[0]), role); err != nil {
					return fmt.Errorf("failed to register actor: %w", err)
				}
				ok(l.out, "Registered %s as %s", args[0], role)
				return nil
			})
		},
	}
	cmd.AddCommand(register)
	return cmd
}

func eventsCmd(g *globals) *cobra.Command {
	var after uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withReader(cmd, func(l *ledger) error {
				events, err := l.store.EventsSince(cmd.Context(), after, limit)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					fmt.Fprintln(l.out, "No events")
					return nil
				}
				for _, e := range events {
					fmt.Fprintf(l.out, "%4d  %s  %-26s %s%s\n",
						e.Seq, e.At.UTC().Format(time.RFC3339),
						color.New(color.FgCyan).Sprint(e.Type), e.Actor, eventTarget(e))
				}
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "Only events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum events to show (0 = all)")
	return cmd
}

func eventTarget(e provenance.Event) string {
	var parts []string
	if e.BatchID != 0 {
		parts = append(parts, fmt.Sprintf("batch=%d", e.BatchID))
	}
	if e.ProductID != 0 {
		parts = append(parts, fmt.Sprintf("product=%d", e.ProductID))
	}
	keys := make([]string, 0, len(e.Payload))
	for k, v := range e.Payload {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, e.Payload[k]))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  " + strings.Join(parts, " ")
}

// importCmd replays a manifest (actors, batches, products, custody,
// certifications) through the Engine.
func importCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest.json>",
		Short: "Replay a ledger manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read manifest: %w", err)
			}
			m, err := factory.ParseManifest(data)
			if err != nil {
				return err
			}
			return g.withLedger(cmd, func(l *ledger) error {
				if err := m.Apply(cmd.Context(), l.engine, l.store); err != nil {
					return fmt.Errorf("failed to import manifest: %w", err)
				}
				ok(l.out, "Imported %d actor(s), %d batch(es), %d product(s), %d certification(s)",
					len(m.Actors), len(m.Batches), len(m.Products), len(m.Certifications))
				return nil
			})
		},
	}
}
