package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/arx-os/datakernel-cube/internal/chunkio"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest newline-delimited JSON rows into an aggregation",
	Example: `  cubectl ingest --file rows.jsonl
  cat rows.jsonl | cubectl ingest`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to a newline-delimited JSON row file (default: stdin)")
}

// jsonRow is the on-disk shape ingest reads: {"key":[...],"measures":[...]}.
type jsonRow struct {
	Key      []any `json:"key"`
	Measures []any `json:"measures"`
}

// jsonRunReader adapts a bufio.Scanner over newline-delimited JSON rows to
// chunkio.RunReader.
type jsonRunReader struct {
	scanner *bufio.Scanner
}

func (r *jsonRunReader) Next() (chunkio.Row, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return chunkio.Row{}, err
		}
		return chunkio.Row{}, io.EOF
	}
	var jr jsonRow
	if err := json.Unmarshal(r.scanner.Bytes(), &jr); err != nil {
		return chunkio.Row{}, fmt.Errorf("parsing ingest row: %w", err)
	}
	return chunkio.Row{Key: jr.Key, Measures: jr.Measures}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	src := os.Stdin
	if ingestFile != "" {
		f, err := os.Open(ingestFile)
		if err != nil {
			return fmt.Errorf("opening ingest file: %w", err)
		}
		defer f.Close()
		src = f
	}

	engine, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}

	rows := &jsonRunReader{scanner: bufio.NewScanner(src)}
	if err := engine.Ingest(cmd.Context(), demoAggregationID, rows, 1); err != nil {
		return fmt.Errorf("ingesting rows: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ingest complete")
	return nil
}
