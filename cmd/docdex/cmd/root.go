// Package cmd provides the CLI commands for docdex.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/docdex/docdex/pkg/version"
)

// NewRootCmd creates the root command for the docdex CLI.
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "docdex",
		Short: "Documentation indexer with hybrid search",
		Long: `Docdex scrapes library documentation, chunks it along its heading
structure and indexes it for combined full-text and semantic search.

Run 'docdex serve' to start the HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docdex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
