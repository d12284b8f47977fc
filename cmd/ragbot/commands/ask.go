package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/logging"
)

// NewAskCmd constructs the `ragbot ask` command, which answers one question
// from a tenant's knowledge base and prints the reply to stdout.
func NewAskCmd() *cobra.Command {
	var tenant string
	var session string

	cmd := &cobra.Command{
		Use:   "ask --tenant <id> [question]",
		Short: "Ask a tenant's chatbot a question",
		Long: `Answer a question from the tenant's indexed documents.

Pass --session to continue a conversation; without it a new session id is
generated and printed to stderr so it can be reused.

Examples:
  ragbot ask --tenant bot1 "what are your opening hours?"
  ragbot ask -t bot1 -s 2f0c... "and on weekends?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return fmt.Errorf("ask: --tenant is required")
			}
			if session == "" {
				session = uuid.NewString()
				fmt.Fprintf(os.Stderr, "session: %s\n", session)
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildApp(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close() //nolint:errcheck // best effort on exit

			reply, err := a.svc.Query(ctx, tenant, session, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant whose knowledge base answers")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Conversation session id")

	return cmd
}
