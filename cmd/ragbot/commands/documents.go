package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/logging"
)

// NewDocumentsCmd constructs the `ragbot documents` command. With --tenant
// it lists the tenant's indexed documents; without it, the stored files.
func NewDocumentsCmd() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "documents [--tenant <id>]",
		Short: "List a tenant's indexed documents, or all stored files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildApp(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			defer a.Close() //nolint:errcheck // best effort on exit

			var names []string
			if tenant != "" {
				names, err = a.svc.Documents(ctx, tenant)
			} else {
				names, err = a.svc.Files(ctx)
			}
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant to list")

	return cmd
}
