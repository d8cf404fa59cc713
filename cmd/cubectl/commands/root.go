// Package commands implements the cubectl command tree, generalized from
// cmd/commands/root.go's RootCmd/Execute shape: a persistent-flagged root
// command with one subcommand per lifecycle operation (ingest, query,
// consolidate, chunks, serve).
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arx-os/datakernel-cube/internal/config"
	"github.com/arx-os/datakernel-cube/internal/logging"
)

var (
	cfgFile string
	env     string
)

// RootCmd is cubectl's base command.
var RootCmd = &cobra.Command{
	Use:   "cubectl",
	Short: "cubectl drives a DataKernel-Cube engine: ingest, query, consolidate",
	Long: `cubectl is a thin command-line driver over internal/cube.Engine.

Use 'cubectl [command] --help' for more information about a command.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cfgFile); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return logging.Init(env)
	},
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.cubectl/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&env, "env", "development", "logging environment (development|production)")

	RootCmd.AddCommand(ingestCmd, queryCmd, consolidateCmd, chunksCmd)
}
