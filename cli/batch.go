package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/provenance-ledger/provenance"
)

func parseBatchID(s string) (provenance.BatchID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid batch id %q", s)
	}
	return provenance.BatchID(id), nil
}

func batchCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Create and inspect batches",
	}

	var in provenance.NewBatch
	var id uint64
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a batch (Manufacturer)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.requireActor()
			if err != nil {
				return err
			}
			in.ID = provenance.BatchID(id)
			return g.withLedger(cmd, func(l *ledger) error {
				b, err := l.engine.AddBatch(cmd.Context(), actor, in)
				if err != nil {
					return fmt.Errorf("failed to create batch: %w", err)
				}
				ok(l.out, "Created batch %d: %s", b.ID, b.Name)
				return nil
			})
		},
	}
	add.Flags().Uint64Var(&id, "id", 0, "Batch id (required)")
	add.Flags().StringVar(&in.Name, "name", "", "Product name")
	add.Flags().Int64Var(&in.Price, "price", 0, "Unit price")
	add.Flags().StringVar(&in.ManufacturerName, "manufacturer-name", "", "Manufacturer display name")
	add.Flags().StringVar(&in.ManufacturerDetails, "details", "", "Manufacturer details")
	add.Flags().StringVar(&in.Longitude, "lon", "", "Origin longitude")
	add.Flags().StringVar(&in.Latitude, "lat", "", "Origin latitude")
	add.Flags().StringVar(&in.Category, "category", "", "Category")
	_ = add.MarkFlagRequired("id")

	show := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBatchID(args[0])
			if err != nil {
				return err
			}
			return g.withReader(cmd, func(l *ledger) error {
				b, err := l.query.GetBatch(cmd.Context(), id)
				if err != nil {
					return err
				}
				products, err := l.query.ProductsInBatch(cmd.Context(), id)
				if err != nil {
					return err
				}
				printBatch(l, b, products)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withReader(cmd, func(l *ledger) error {
				ids, err := l.query.ListBatchIDs(cmd.Context())
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(l.out, "No batches")
					return nil
				}
				w := tabwriter.NewWriter(l.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tMANUFACTURER\tSTATUS")
				for _, id := range ids {
					b, err := l.query.GetBatch(cmd.Context(), id)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", b.ID, b.Name, orDash(b.Category), b.Manufacturer, certLabel(b.IsCertified))
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(add, show, list)
	return cmd
}

func printBatch(l *ledger, b provenance.Batch, products []provenance.ProductID) {
	fmt.Fprintf(l.out, "Batch %d: %s\n", b.ID, b.Name)
	fmt.Fprintf(l.out, "  Price:        %d\n", b.Price)
	fmt.Fprintf(l.out, "  Category:     %s\n", orDash(b.Category))
	fmt.Fprintf(l.out, "  Manufacturer: %s (%s)\n", orDash(b.ManufacturerName), b.Manufacturer)
	if b.ManufacturerDetails != "" {
		fmt.Fprintf(l.out, "  Details:      %s\n", b.ManufacturerDetails)
	}
	if b.Location.Longitude != "" {
		fmt.Fprintf(l.out, "  Origin:       %s, %s\n", b.Location.Latitude, b.Location.Longitude)
	}
	fmt.Fprintf(l.out, "  Status:       %s\n", certLabel(b.IsCertified))
	if c := b.Certification; c != nil {
		fmt.Fprintf(l.out, "  Authority:    %s (%s)\n", c.AuthorityName, c.CertifiedBy)
		fmt.Fprintf(l.out, "  Document:     %s\n", orDash(c.DocumentHash))
	}
	fmt.Fprintf(l.out, "  Products:     %d\n", len(products))
}

func certifyCmd(g *globals) *cobra.Command {
	var in provenance.CertificationInput
	var document string

	cmd := &cobra.Command{
		Use:   "certify <batch-id>",
		Short: "Certify a batch (Certification Authority)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.requireActor()
			if err != nil {
				return err
			}
			id, err := parseBatchID(args[0])
			if err != nil {
				return err
			}
			var data []byte
			if document != "" {
				if data, err = os.ReadFile(document); err != nil {
					return fmt.Errorf("failed to read document: %w", err)
				}
			}

			return g.withLedger(cmd, func(l *ledger) error {
				var b provenance.Batch
				if data != nil {
					b, err = l.engine.CertifyBatchWithDocument(cmd.Context(), actor, id, in.AuthorityName, in.DigitalSignature, data)
				} else {
					b, err = l.engine.CertifyBatch(cmd.Context(), actor, id, in)
				}
				if err != nil {
					return fmt.Errorf("failed to certify batch: %w", err)
				}
				ok(l.out, "Certified batch %d by %s", b.ID, b.Certification.AuthorityName)
				if b.Certification.DocumentHash != "" {
					fmt.Fprintf(l.out, "  Document: %s\n", b.Certification.DocumentHash)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.AuthorityName, "authority-name", "", "Certifying authority name")
	cmd.Flags().StringVar(&in.DigitalSignature, "signature", "", "Digital signature")
	cmd.Flags().StringVar(&in.DocumentHash, "hash", "", "Certificate document hash")
	cmd.Flags().StringVar(&document, "document", "", "Certificate document file to store and hash")
	cmd.MarkFlagsMutuallyExclusive("hash", "document")
	return cmd
}
