// Package micropartition provides the lazily-materialized partition
// abstraction used by query execution.
//
// A partition is either Deferred (it knows the URIs and options needed
// to produce its tables) or Materialized (the tables are in memory).
// Predicates absorb into a deferred partition without triggering I/O,
// and per-column statistics can prove a predicate false before any
// byte is read. Materialization is single-flight: concurrent callers
// observe one load.
package micropartition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strataframe/strata/pkg/csv"
	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/errors"
	"github.com/strataframe/strata/pkg/expr"
	"github.com/strataframe/strata/pkg/logger"
	"github.com/strataframe/strata/pkg/metrics"
	"github.com/strataframe/strata/pkg/stats"
	"github.com/strataframe/strata/pkg/storage"
	"github.com/strataframe/strata/pkg/table"
)

// FormatParams is the closed set of ingestible source formats
type FormatParams interface {
	formatName() string
}

// CsvParams carries the delimited-text read configuration for a
// deferred partition.
type CsvParams struct {
	Parse csv.ParseOptions
	Read  csv.ReadOptions
	// ColumnNames positionally renames leading fields before parsing
	ColumnNames []string
	// KnownSchema skips inference at materialization time
	KnownSchema *datatypes.Schema
}

func (CsvParams) formatName() string { return "csv" }

// ParquetParams marks a partition whose bytes are Parquet. Decoding
// Parquet is delegated to the surrounding engine; materializing such a
// partition here reports a capability error.
type ParquetParams struct{}

func (ParquetParams) formatName() string { return "parquet" }

// DeferredLoadingParams is everything needed to materialize a
// partition later: where the bytes live and how to turn them into
// tables.
type DeferredLoadingParams struct {
	URIs   []string
	Format FormatParams
	// Limit caps total rows per source; negative means no limit
	Limit int
	// IncludeColumns restricts and reorders output columns
	IncludeColumns []string
	// Predicates are applied to every table at materialization
	Predicates []expr.Expr
}

// withPredicates clones the parameter set and appends predicates; the
// receiver is never mutated.
func (p DeferredLoadingParams) withPredicates(preds []expr.Expr) DeferredLoadingParams {
	clone := p
	clone.URIs = append([]string(nil), p.URIs...)
	clone.IncludeColumns = append([]string(nil), p.IncludeColumns...)
	clone.Predicates = append(append([]expr.Expr(nil), p.Predicates...), preds...)
	return clone
}

type loadState int

const (
	stateDeferred loadState = iota
	stateMaterialized
)

// MicroPartition is a lazily-materialized set of tables sharing one
// schema.
type MicroPartition struct {
	schema     *datatypes.Schema
	statistics *stats.TableStatistics
	client     *storage.Client

	// mu guards state transitions only and is never held across I/O;
	// loadMu serializes the load itself.
	mu     sync.Mutex
	state  loadState
	params DeferredLoadingParams
	tables []*table.Table

	loadMu sync.Mutex
}

// NewDeferred creates an unloaded partition. Statistics may be nil.
func NewDeferred(client *storage.Client, schema *datatypes.Schema, params DeferredLoadingParams, statistics *stats.TableStatistics) *MicroPartition {
	return &MicroPartition{
		schema:     schema,
		statistics: statistics,
		client:     client,
		state:      stateDeferred,
		params:     params,
	}
}

// FromTables creates a materialized partition from tables that all
// share the given schema.
func FromTables(schema *datatypes.Schema, tables []*table.Table) (*MicroPartition, error) {
	for _, t := range tables {
		if !t.Schema().Equal(schema) {
			return nil, errors.Newf(errors.TypeInternal,
				"partition table schema %s does not match partition schema %s", t.Schema(), schema)
		}
	}
	return &MicroPartition{
		schema: schema,
		state:  stateMaterialized,
		tables: tables,
	}, nil
}

// Empty returns a materialized zero-row partition for the schema
func Empty(schema *datatypes.Schema) *MicroPartition {
	return &MicroPartition{
		schema: schema,
		state:  stateMaterialized,
	}
}

// Schema returns the partition's schema without materializing
func (mp *MicroPartition) Schema() *datatypes.Schema {
	return mp.schema
}

// Statistics returns the partition's column statistics, if any
func (mp *MicroPartition) Statistics() *stats.TableStatistics {
	return mp.statistics
}

// ColumnNames returns schema column names without materializing
func (mp *MicroPartition) ColumnNames() []string {
	return mp.schema.Names()
}

// IsMaterialized reports whether the tables are already in memory
func (mp *MicroPartition) IsMaterialized() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.state == stateMaterialized
}

// Tables forces materialization and returns a shared handle to the
// partition's tables. Concurrent callers observe the same single
// materialization. A failed load leaves the partition deferred.
func (mp *MicroPartition) Tables(ctx context.Context) ([]*table.Table, error) {
	mp.mu.Lock()
	if mp.state == stateMaterialized {
		tables := mp.tables
		mp.mu.Unlock()
		return tables, nil
	}
	params := mp.params
	mp.mu.Unlock()

	mp.loadMu.Lock()
	defer mp.loadMu.Unlock()

	mp.mu.Lock()
	if mp.state == stateMaterialized {
		tables := mp.tables
		mp.mu.Unlock()
		return tables, nil
	}
	mp.mu.Unlock()

	start := time.Now()
	tables, err := mp.load(ctx, params)
	if err != nil {
		return nil, err
	}

	mp.mu.Lock()
	mp.state = stateMaterialized
	mp.tables = tables
	mp.params = DeferredLoadingParams{}
	mp.mu.Unlock()

	metrics.Materializations.Inc()
	logger.Debug("partition materialized",
		zap.Int("tables", len(tables)),
		zap.Duration("elapsed", time.Since(start)))
	return tables, nil
}

// load dispatches to the format-specific bulk reader and applies the
// accumulated predicates to every table.
func (mp *MicroPartition) load(ctx context.Context, params DeferredLoadingParams) ([]*table.Table, error) {
	switch format := params.Format.(type) {
	case CsvParams:
		convert := csv.DefaultConvertOptions().
			WithLimit(params.Limit).
			WithIncludeColumns(params.IncludeColumns).
			WithColumnNames(format.ColumnNames).
			WithSchema(format.KnownSchema)
		tables, err := csv.ReadBulk(ctx, mp.client, params.URIs, convert, format.Parse, format.Read)
		if err != nil {
			return nil, err
		}
		filtered := make([]*table.Table, len(tables))
		for i, t := range tables {
			filtered[i], err = expr.Filter(t, params.Predicates)
			if err != nil {
				return nil, err
			}
		}
		return filtered, nil
	case ParquetParams:
		return nil, errors.New(errors.TypeCapability,
			"parquet decoding is delegated to the execution engine")
	default:
		return nil, errors.Newf(errors.TypeInternal,
			"unknown partition format %T", params.Format)
	}
}

// Filter absorbs predicates into the partition.
//
// An empty predicate list selects nothing: the result is an empty
// materialized partition with the original schema. When statistics
// prove the conjunction false, the result is likewise empty and no
// I/O occurs. Otherwise a deferred partition stays deferred with the
// predicates appended, and a materialized one filters eagerly.
func (mp *MicroPartition) Filter(preds []expr.Expr) (*MicroPartition, error) {
	if len(preds) == 0 {
		return Empty(mp.schema), nil
	}

	if mp.statistics != nil {
		if mp.statistics.Eval(expr.Fold(preds)) == stats.False {
			logger.Debug("predicate proven false from statistics, skipping read",
				zap.String("stats", mp.statistics.String()))
			return Empty(mp.schema), nil
		}
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.state == stateDeferred {
		return NewDeferred(mp.client, mp.schema, mp.params.withPredicates(preds), mp.statistics), nil
	}

	filtered := make([]*table.Table, len(mp.tables))
	for i, t := range mp.tables {
		ft, err := expr.Filter(t, preds)
		if err != nil {
			return nil, err
		}
		filtered[i] = ft
	}
	out, err := FromTables(mp.schema, filtered)
	if err != nil {
		return nil, err
	}
	out.statistics = mp.statistics
	return out, nil
}

// NumRows forces materialization and returns the total row count
func (mp *MicroPartition) NumRows(ctx context.Context) (int, error) {
	tables, err := mp.Tables(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, t := range tables {
		total += t.NumRows()
	}
	return total, nil
}

// SizeBytes forces materialization and returns the total column buffer
// footprint.
func (mp *MicroPartition) SizeBytes(ctx context.Context) (int64, error) {
	tables, err := mp.Tables(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, t := range tables {
		total += t.SizeBytes()
	}
	return total, nil
}

// Concat forces materialization and returns the partition's contents
// as one table.
func (mp *MicroPartition) Concat(ctx context.Context) (*table.Table, error) {
	tables, err := mp.Tables(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return table.Empty(mp.schema), nil
	}
	return table.Concat(tables)
}

// String renders the partition's load state without materializing
func (mp *MicroPartition) String() string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.state == stateDeferred {
		return fmt.Sprintf("micropartition{deferred, %d uris, %s}",
			len(mp.params.URIs), mp.schema)
	}
	rows := 0
	for _, t := range mp.tables {
		rows += t.NumRows()
	}
	return fmt.Sprintf("micropartition{materialized, %d tables, %d rows, %s}",
		len(mp.tables), rows, mp.schema)
}

// ReadCSV reads delimited sources eagerly into a materialized
// partition, one table per source.
func ReadCSV(ctx context.Context, client *storage.Client, uris []string, convert csv.ConvertOptions, parse csv.ParseOptions, read csv.ReadOptions) (*MicroPartition, error) {
	if len(uris) == 0 {
		return nil, errors.New(errors.TypeConfig, "at least one URI is required")
	}
	tables, err := csv.ReadBulk(ctx, client, uris, convert, parse, read)
	if err != nil {
		return nil, err
	}
	return FromTables(tables[0].Schema(), tables)
}
