package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "Inspect an aggregation's chunk set",
}

var chunksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every live chunk for the demo aggregation",
	RunE:  runChunksList,
}

func init() {
	chunksCmd.AddCommand(chunksListCmd)
}

func runChunksList(cmd *cobra.Command, args []string) error {
	engine, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}

	chunks, err := engine.ListChunks(demoAggregationID, nil, nil)
	if err != nil {
		return fmt.Errorf("listing chunks: %w", err)
	}
	for _, c := range chunks {
		fmt.Fprintf(cmd.OutOrStdout(), "chunk %d\trecords=%d\tsize=%d\tkey=[%v,%v]\n",
			c.ID, c.RecordCount, c.SizeBytes, c.MinKey, c.MaxKey)
	}
	return nil
}
