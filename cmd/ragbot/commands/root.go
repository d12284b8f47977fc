// Package commands defines all Cobra CLI commands for the ragbot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/audit"
	"github.com/54b3r/ragbot-go/internal/config"
	"github.com/54b3r/ragbot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragbot",
		Short: "ragbot: multi-tenant retrieval-augmented chatbot backend",
		Long: `ragbot answers questions from per-tenant knowledge bases built from
uploaded PDF documents.

Documents are split into fragments, embedded and stored in a vector index
(Qdrant, or an in-process index for development). Questions are answered by
an LLM grounded on the most relevant fragments of the asking tenant only,
with per-session conversation memory.

Configuration comes from environment variables, a .env file and an optional
YAML file (~/.ragbot/config.yaml). Real environment variables always win.
See 'ragbot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Logging settings may have come from the files just loaded.
			audit.LogCommandStart(cmd.Context(), logging.New(), cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragbot/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the config file")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewDocumentsCmd(),
		NewDeleteCmd(),
		NewVersionCmd(),
	)

	return root
}
