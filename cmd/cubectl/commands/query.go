package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arx-os/datakernel-cube/internal/cube"
)

var (
	queryAttributes []string
	queryMeasures   []string
	queryLimit      int
	queryOffset     int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query against the engine and print the result as JSON",
	Example: `  cubectl query --attributes country --measures revenue`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringSliceVar(&queryAttributes, "attributes", nil, "dimensions/attributes to group by")
	queryCmd.Flags().StringSliceVar(&queryMeasures, "measures", nil, "measures to select")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 100, "maximum rows to return")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "row offset for pagination")
}

func runQuery(cmd *cobra.Command, args []string) error {
	engine, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}

	result, err := engine.Query(cmd.Context(), cube.CubeQuery{
		Attributes: queryAttributes,
		Measures:   queryMeasures,
		Limit:      queryLimit,
		Offset:     queryOffset,
	})
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
