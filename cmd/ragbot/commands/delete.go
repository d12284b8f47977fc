package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/logging"
)

// NewDeleteCmd constructs the `ragbot delete` command, which removes a
// document from one tenant or, without --tenant, from every tenant together
// with the stored file.
func NewDeleteCmd() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "delete <filename> [--tenant <id>]",
		Short: "Delete a document from one tenant or from all tenants",
		Long: `Delete a document's indexed fragments.

With --tenant only that tenant's fragments are removed and the stored file is
kept. Without it the document is removed from every tenant that indexed it
and the stored file is deleted.

Examples:
  ragbot delete faq.pdf --tenant bot1
  ragbot delete faq.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildApp(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			defer a.Close() //nolint:errcheck // best effort on exit

			res, err := a.svc.DeleteDocument(ctx, tenant, args[0])
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d fragments removed", res.DocumentID, res.Fragments)
			if len(res.Tenants) > 0 {
				fmt.Fprintf(out, " from %s", strings.Join(res.Tenants, ", "))
			}
			if res.FileDeleted {
				fmt.Fprint(out, ", file deleted")
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Limit the deletion to one tenant")

	return cmd
}
