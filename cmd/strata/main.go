// Command strata inspects delimited-text sources through the ingestion
// core: schema inference, row previews and scan statistics.
package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/strataframe/strata/pkg/csv"
	"github.com/strataframe/strata/pkg/logger"
	"github.com/strataframe/strata/pkg/micropartition"
	"github.com/strataframe/strata/pkg/storage"
)

var (
	flagDelimiter  string
	flagNoHeader   bool
	flagBufferSize int
	flagChunkSize  int
	flagLogLevel   string

	flagHeadRows    int
	flagHeadColumns []string
)

func main() {
	root := &cobra.Command{
		Use:   "strata",
		Short: "Inspect delimited-text sources",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return logger.Init(logger.Config{Level: flagLogLevel})
		},
	}
	root.PersistentFlags().StringVar(&flagDelimiter, "delimiter", ",", "field delimiter")
	root.PersistentFlags().BoolVar(&flagNoHeader, "no-header", false, "treat the first record as data")
	root.PersistentFlags().IntVar(&flagBufferSize, "buffer-size", 0, "stream read buffer bytes (0 = default)")
	root.PersistentFlags().IntVar(&flagChunkSize, "chunk-size", 0, "target batch bytes (0 = default)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	head := &cobra.Command{
		Use:   "head <uri>",
		Short: "Print the first rows of a source as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE:  runHead,
	}
	head.Flags().IntVarP(&flagHeadRows, "rows", "n", 10, "number of rows to print")
	head.Flags().StringSliceVarP(&flagHeadColumns, "columns", "c", nil, "columns to include, in order")

	root.AddCommand(
		&cobra.Command{
			Use:   "schema <uri>...",
			Short: "Infer and print source schemas",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runSchema,
		},
		head,
		&cobra.Command{
			Use:   "stats <uri>...",
			Short: "Read sources and print row and byte counts",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runStats,
		},
	)

	defer logger.Sync()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseOptions() (csv.ParseOptions, error) {
	parse := csv.DefaultParseOptions().WithHasHeader(!flagNoHeader)
	runes := []rune(flagDelimiter)
	if len(runes) != 1 {
		return parse, fmt.Errorf("delimiter must be a single character, got %q", flagDelimiter)
	}
	return parse.WithDelimiter(runes[0]), nil
}

func readOptions() csv.ReadOptions {
	return csv.DefaultReadOptions().
		WithBufferSize(flagBufferSize).
		WithChunkSize(flagChunkSize)
}

func runSchema(cmd *cobra.Command, uris []string) error {
	parse, err := parseOptions()
	if err != nil {
		return err
	}
	client := storage.NewClient()
	schemas, err := csv.InferSchemaBulk(cmd.Context(), client, uris, parse)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for i, schema := range schemas {
		fields := make([]map[string]string, schema.Len())
		for j := 0; j < schema.Len(); j++ {
			f := schema.Field(j)
			fields[j] = map[string]string{"name": f.Name, "type": f.Type.String()}
		}
		if err := enc.Encode(map[string]interface{}{"uri": uris[i], "fields": fields}); err != nil {
			return err
		}
	}
	return nil
}

func runHead(cmd *cobra.Command, args []string) error {
	parse, err := parseOptions()
	if err != nil {
		return err
	}
	client := storage.NewClient()
	convert := csv.DefaultConvertOptions().
		WithLimit(flagHeadRows).
		WithIncludeColumns(flagHeadColumns)
	tbl, err := csv.Read(cmd.Context(), client, args[0], convert, parse, readOptions())
	if err != nil {
		return err
	}
	rows, err := tbl.Rows(-1)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, uris []string) error {
	parse, err := parseOptions()
	if err != nil {
		return err
	}
	ioStats := storage.NewIOStats()
	client := storage.NewClient(storage.WithIOStats(ioStats))
	mp, err := micropartition.ReadCSV(cmd.Context(), client, uris,
		csv.DefaultConvertOptions(), parse, readOptions())
	if err != nil {
		return err
	}
	rows, err := mp.NumRows(cmd.Context())
	if err != nil {
		return err
	}
	size, err := mp.SizeBytes(cmd.Context())
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
		"uris":       uris,
		"rows":       rows,
		"size_bytes": size,
		"opens":      ioStats.Opens(),
		"bytes_read": ioStats.BytesRead(),
	})
}
