// Package commands defines all Cobra CLI commands for the folio binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/folio-go/internal/audit"
	"github.com/54b3r/folio-go/internal/config"
	"github.com/54b3r/folio-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "folio",
		Short: "folio; a portfolio assistant that answers questions from your own documents",
		Long: `folio answers visitor questions about a portfolio owner using retrieval
over a directory of Markdown documents and a hosted chat model.

Settings are read from a .env file, a YAML config file (~/.folio/config.yaml
or ./folio.yaml), and the environment, with the environment always winning.
See 'folio --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(log); err != nil {
				return err
			}
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.folio/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewVersionCmd(),
	)

	return root
}
