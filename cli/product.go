package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/provenance-ledger/provenance"
)

func parseProductID(s string) (provenance.ProductID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return provenance.ProductID(id), nil
}

func productCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Create and inspect products",
	}

	var id, batchID uint64
	var customer provenance.CustomerDetails
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a product in one of your batches (Manufacturer)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.requireActor()
			if err != nil {
				return err
			}
			return g.withLedger(cmd, func(l *ledger) error {
				p, err := l.engine.AddProduct(cmd.Context(), actor, provenance.NewProduct{
					ID:       provenance.ProductID(id),
					BatchID:  provenance.BatchID(batchID),
					Customer: customer,
				})
				if err != nil {
					return fmt.Errorf("failed to create product: %w", err)
				}
				ok(l.out, "Created product %d in batch %d", p.ID, p.BatchID)
				return nil
			})
		},
	}
	add.Flags().Uint64Var(&id, "id", 0, "Product id (required)")
	add.Flags().Uint64Var(&batchID, "batch", 0, "Batch id (required)")
	add.Flags().StringVar(&customer.Name, "customer-name", "", "Customer name")
	add.Flags().StringVar(&customer.Address, "customer-address", "", "Customer address")
	add.Flags().StringVar(&customer.Phone, "customer-phone", "", "Customer phone")
	add.Flags().StringVar(&customer.Email, "customer-email", "", "Customer email")
	_ = add.MarkFlagRequired("id")
	_ = add.MarkFlagRequired("batch")

	show := &cobra.Command{
		Use:   "show <product-id>",
		Short: "Show a product with its custody chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return g.withReader(cmd, func(l *ledger) error {
				v, err := l.query.GetProduct(cmd.Context(), id)
				if err != nil {
					return err
				}
				printProduct(l, v)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withReader(cmd, func(l *ledger) error {
				ids, err := l.query.ListProductIDs(cmd.Context())
				if err != nil {
					return err
				}
				views := make([]provenance.ProductView, 0, len(ids))
				for _, id := range ids {
					v, err := l.query.GetProduct(cmd.Context(), id)
					if err != nil {
						return err
					}
					views = append(views, v)
				}
				return printProductTable(l, views)
			})
		},
	}

	mine := &cobra.Command{
		Use:   "mine",
		Short: "List products you manufactured, carry or own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withReader(cmd, func(l *ledger) error {
				views, err := l.query.ProductsVisibleTo(cmd.Context(), provenance.ActorID(g.actor))
				if err != nil {
					return err
				}
				return printProductTable(l, views)
			})
		},
	}

	cmd.AddCommand(add, show, list, mine)
	return cmd
}

func printProductTable(l *ledger, views []provenance.ProductView) error {
	if len(views) == 0 {
		fmt.Fprintln(l.out, "No products")
		return nil
	}
	w := tabwriter.NewWriter(l.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBATCH\tSTATUS\tCOURIER\tCUSTOMER\tCHECKPOINTS\tBATCH STATUS")
	for _, v := range views {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%d\t%s\n",
			v.ID, v.BatchID, statusLabel(v.DeliveryStatus),
			orDash(string(v.LogisticsPartner)), orDash(string(v.Customer)),
			len(v.Checkpoints), certLabel(v.IsCertified))
	}
	return w.Flush()
}

func printProduct(l *ledger, v provenance.ProductView) {
	fmt.Fprintf(l.out, "Product %d (batch %d: %s)\n", v.ID, v.BatchID, v.Batch.Name)
	fmt.Fprintf(l.out, "  Status:       %s\n", statusLabel(v.DeliveryStatus))
	fmt.Fprintf(l.out, "  Manufacturer: %s\n", v.Manufacturer)
	fmt.Fprintf(l.out, "  Courier:      %s\n", orDash(string(v.LogisticsPartner)))
	fmt.Fprintf(l.out, "  Customer:     %s\n", orDash(string(v.Customer)))
	if c := v.CustomerDetails; c.Name != "" || c.Email != "" {
		fmt.Fprintf(l.out, "  Ship to:      %s <%s> %s\n", orDash(c.Name), orDash(c.Email), c.Address)
	}
	fmt.Fprintf(l.out, "  Batch:        %s\n", certLabel(v.IsCertified))
	if v.Certification != nil {
		fmt.Fprintf(l.out, "  Authority:    %s\n", v.Certification.AuthorityName)
	}
	if len(v.Checkpoints) == 0 {
		fmt.Fprintln(l.out, "  Checkpoints:  none")
		return
	}
	fmt.Fprintln(l.out, "  Checkpoints:")
	for i, c := range v.Checkpoints {
		fmt.Fprintf(l.out, "    %d. %s (%s, %s) in=%d out=%d\n", i+1, c.Location, orDash(c.Latitude), orDash(c.Longitude), c.CheckInTime, c.CheckOutTime)
	}
}

// =============================================================================
// CUSTODY COMMANDS
// =============================================================================

func courierCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "courier",
		Short: "Courier operations",
	}
	assign := &cobra.Command{
		Use:   "assign <product-id>",
		Short: "Claim a product as its courier (first claim wins)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.requireActor()
			if err != nil {
				return err
			}
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return g.withLedger(cmd, func(l *ledger) error {
				p, err := l.engine.AssignCourier(cmd.Context(), actor, id)
				if err != nil {
					return fmt.Errorf("failed to claim product: %w", err)
				}
				ok(l.out, "Product %d assigned to courier %s", p.ID, p.LogisticsPartner)
				return nil
			})
		},
	}
	cmd.AddCommand(assign)
	return cmd
}

func customerCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Customer operations",
	}
	assign := &cobra.Command{
		Use:   "assign <product-id> <customer-id>",
		Short: "Assign a product to a customer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.requireActor()
			if err != nil {
				return err
			}
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return g.withLedger(cmd, func(l *ledger) error {
				p, err := l.engine.AssignToCustomer(cmd.Context(), actor, id, provenance.ActorID(args[1]))
				if err != nil {
					return fmt.Errorf("failed to assign customer: %w", err)
				}
				ok(l.out, "Product %d assigned to customer %s", p.ID, p.Customer)
				return nil
			})
		},
	}
	cmd.AddCommand(assign)
	return cmd
}

func checkpointCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Checkpoint operations",
	}

	var cp provenance.Checkpoint
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Append a checkpoint (assigned courier)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.requireActor()
			if err != nil {
				return err
			}
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return g.withLedger(cmd, func(l *ledger) error {
				p, err := l.engine.AddCheckpoint(cmd.Context(), actor, id, cp)
				if err != nil {
					return fmt.Errorf("failed to add checkpoint: %w", err)
				}
				ok(l.out, "Checkpoint %d recorded for product %d at %s", len(p.Checkpoints), p.ID, cp.Location)
				return nil
			})
		},
	}
	add.Flags().StringVar(&cp.Location, "location", "", "Location name (required)")
	add.Flags().StringVar(&cp.Longitude, "lon", "", "Longitude")
	add.Flags().StringVar(&cp.Latitude, "lat", "", "Latitude")
	add.Flags().Int64Var(&cp.CheckInTime, "in", 0, "Check-in time (unix seconds)")
	add.Flags().Int64Var(&cp.CheckOutTime, "out", 0, "Check-out time (unix seconds)")
	_ = add.MarkFlagRequired("location")

	cmd.AddCommand(add)
	return cmd
}

func deliverCmd(g *globals) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "deliver <product-id>",
		Short: "Advance a product's delivery status (assigned courier)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.requireActor()
			if err != nil {
				return err
			}
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return g.withLedger(cmd, func(l *ledger) error {
				p, err := l.engine.MarkAsDelivered(cmd.Context(), actor, id, status)
				if err != nil {
					return fmt.Errorf("failed to update delivery status: %w", err)
				}
				ok(l.out, "Product %d is %s", p.ID, statusLabel(p.DeliveryStatus))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "delivered", "New status (in-transit or delivered)")
	return cmd
}
