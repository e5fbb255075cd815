// Package commands defines all Cobra CLI commands for the askweb binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/askweb/askweb-go/internal/audit"
	"github.com/askweb/askweb-go/internal/config"
	"github.com/askweb/askweb-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "askweb",
		Short: "AskWeb answers natural language questions over indexed sites",
		Long: `AskWeb answers natural language questions over schema.org content
indexed from participating sites.

Candidates are fetched from a vector store and scored in parallel by an LLM;
high scoring results stream to the client as soon as they are judged, and a
fast track races the conversational pre-checks so first-turn queries answer
with minimal latency.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.askweb/config.yaml).
See 'askweb --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.askweb/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
