package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/logging"
)

// NewIngestCmd constructs the `ragbot ingest` command, which stores local
// PDF files and trains one or more tenants on them.
func NewIngestCmd() *cobra.Command {
	var tenants []string

	cmd := &cobra.Command{
		Use:   "ingest --tenant <id> <file.pdf>...",
		Short: "Upload PDF documents and index them for a tenant",
		Long: `Store PDF files in the blob store and index them into the tenant's
knowledge base.

Each file is identified by its base name. Ingesting a file that the tenant
already has replaces the previous version; other tenants are not affected.

Examples:
  ragbot ingest --tenant bot1 faq.pdf
  ragbot ingest -t bot1 -t bot2 handbook.pdf pricing.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(tenants) == 0 {
				return fmt.Errorf("ingest: at least one --tenant is required")
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildApp(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close() //nolint:errcheck // best effort on exit

			out := cmd.OutOrStdout()
			for _, path := range args {
				data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				key, err := a.svc.Upload(ctx, filepath.Base(path), data)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}

				for _, tenant := range tenants {
					res, err := a.svc.Train(ctx, tenant, key)
					if err != nil {
						return fmt.Errorf("ingest: %s for %s: %w", key, tenant, err)
					}
					log.Info("document ingested",
						slog.String("tenant", res.TenantID),
						slog.String("document", res.DocumentID),
						slog.Int("fragments", res.Fragments),
						slog.Int("removed", res.Removed),
					)
					fmt.Fprintf(out, "%s\t%s\t%d fragments", res.TenantID, res.DocumentID, res.Fragments)
					if res.Replaced {
						fmt.Fprintf(out, " (replaced %d)", res.Removed)
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&tenants, "tenant", "t", nil, "Tenant to train (repeatable)")

	return cmd
}
