package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arx-os/datakernel-cube/internal/chunkindex"
)

var consolidateStrategy string

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run one consolidation pass over the demo aggregation's chunks",
	Example: `  cubectl consolidate --strategy hot-segment
  cubectl consolidate --strategy min-key`,
	RunE: runConsolidate,
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateStrategy, "strategy", "min-key", "consolidation strategy: hot-segment|min-key")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	var strategy chunkindex.Strategy
	switch consolidateStrategy {
	case "hot-segment":
		strategy = chunkindex.StrategyHotSegment
	case "min-key":
		strategy = chunkindex.StrategyMinKey
	default:
		return fmt.Errorf("unknown strategy %q", consolidateStrategy)
	}

	engine, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}

	out, err := engine.Consolidate(cmd.Context(), demoAggregationID, strategy, 1)
	if err != nil {
		return fmt.Errorf("consolidating: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d replacement chunk(s)\n", len(out))
	return nil
}
