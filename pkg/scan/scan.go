// Package scan models scannable sources behind one capability
// interface: pushdowns (filter, limit, select) flow into the source if
// it can absorb them, and ScanUnits produces the deferred partitions
// execution will materialize.
//
// Polymorphism over source kinds stays confined to this layer; the
// ingestion pipeline underneath is concrete.
package scan

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/strataframe/strata/pkg/csv"
	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/expr"
	"github.com/strataframe/strata/pkg/logger"
	"github.com/strataframe/strata/pkg/micropartition"
	"github.com/strataframe/strata/pkg/storage"
	"github.com/strataframe/strata/pkg/table"
)

// Operator is a scannable source. Pushdown methods return a new
// operator; the receiver is never mutated.
type Operator interface {
	// Name identifies the source kind for logs
	Name() string
	// Schema resolves the source schema, inferring it at most once
	Schema(ctx context.Context) (*datatypes.Schema, error)
	// Filter offers predicates for absorption. The boolean reports
	// whether the source absorbed them; when false the caller must
	// apply the predicates itself after scanning.
	Filter(preds []expr.Expr) (Operator, bool)
	// Limit caps the number of rows produced per scan unit
	Limit(n int) Operator
	// Select restricts and reorders output columns
	Select(columns []string) Operator
	// PartitioningKeys names columns the source is partitioned by
	PartitioningKeys() []string
	// ScanUnits produces one deferred partition per unit of work
	ScanUnits(ctx context.Context) ([]*micropartition.MicroPartition, error)
}

// CSVOperator scans a set of delimited-text URIs. It absorbs all three
// pushdowns into the deferred plan.
type CSVOperator struct {
	client *storage.Client
	uris   []string
	parse  csv.ParseOptions
	read   csv.ReadOptions

	columnNames []string
	known       *datatypes.Schema

	limit      int
	include    []string
	predicates []expr.Expr

	// shared by clones so inference runs at most once per source
	cache *schemaCache
}

type schemaCache struct {
	once   sync.Once
	schema *datatypes.Schema
	err    error
}

// CSVOption configures a CSVOperator
type CSVOption func(*CSVOperator)

// WithParseOptions overrides record splitting options
func WithParseOptions(parse csv.ParseOptions) CSVOption {
	return func(op *CSVOperator) { op.parse = parse }
}

// WithReadOptions overrides buffer sizing options
func WithReadOptions(read csv.ReadOptions) CSVOption {
	return func(op *CSVOperator) { op.read = read }
}

// WithColumnNames positionally renames leading fields
func WithColumnNames(names []string) CSVOption {
	return func(op *CSVOperator) { op.columnNames = names }
}

// WithSchema declares the source schema, skipping inference
func WithSchema(schema *datatypes.Schema) CSVOption {
	return func(op *CSVOperator) { op.known = schema }
}

// NewCSV creates a scan operator over delimited-text URIs
func NewCSV(client *storage.Client, uris []string, opts ...CSVOption) *CSVOperator {
	op := &CSVOperator{
		client: client,
		uris:   uris,
		parse:  csv.DefaultParseOptions(),
		read:   csv.DefaultReadOptions(),
		limit:  -1,
		cache:  &schemaCache{},
	}
	for _, opt := range opts {
		opt(op)
	}
	return op
}

// Name implements Operator
func (op *CSVOperator) Name() string { return "csv" }

// Schema resolves the output schema: declared or inferred from the
// first URI, then renamed and projected per the absorbed pushdowns.
func (op *CSVOperator) Schema(ctx context.Context) (*datatypes.Schema, error) {
	base, err := op.baseSchema(ctx)
	if err != nil {
		return nil, err
	}
	if op.columnNames != nil {
		renamed, err := base.Rename(op.columnNames)
		if err != nil {
			return nil, err
		}
		base = renamed
	}
	if op.include == nil {
		return base, nil
	}
	indices, err := base.Projection(op.include)
	if err != nil {
		return nil, err
	}
	return base.Select(indices)
}

func (op *CSVOperator) baseSchema(ctx context.Context) (*datatypes.Schema, error) {
	if op.known != nil {
		return op.known, nil
	}
	op.cache.once.Do(func() {
		op.cache.schema, _, op.cache.err = csv.InferSchema(ctx, op.client, op.uris[0], op.parse)
	})
	return op.cache.schema, op.cache.err
}

// Filter absorbs predicates into the deferred plan
func (op *CSVOperator) Filter(preds []expr.Expr) (Operator, bool) {
	clone := op.clone()
	clone.predicates = append(append([]expr.Expr(nil), op.predicates...), preds...)
	return clone, true
}

// Limit caps rows per scan unit
func (op *CSVOperator) Limit(n int) Operator {
	clone := op.clone()
	clone.limit = n
	return clone
}

// Select restricts output columns, preserving the requested order
func (op *CSVOperator) Select(columns []string) Operator {
	clone := op.clone()
	clone.include = columns
	return clone
}

// PartitioningKeys implements Operator; file scans carry none
func (op *CSVOperator) PartitioningKeys() []string { return nil }

// ScanUnits produces one deferred partition per URI
func (op *CSVOperator) ScanUnits(ctx context.Context) ([]*micropartition.MicroPartition, error) {
	schema, err := op.Schema(ctx)
	if err != nil {
		return nil, err
	}
	known := op.known
	if known == nil {
		known = op.cache.schema
	}

	units := make([]*micropartition.MicroPartition, len(op.uris))
	for i, uri := range op.uris {
		params := micropartition.DeferredLoadingParams{
			URIs: []string{uri},
			Format: micropartition.CsvParams{
				Parse:       op.parse,
				Read:        op.read,
				ColumnNames: op.columnNames,
				KnownSchema: known,
			},
			Limit:          op.limit,
			IncludeColumns: op.include,
			Predicates:     append([]expr.Expr(nil), op.predicates...),
		}
		units[i] = micropartition.NewDeferred(op.client, schema, params, nil)
	}
	return units, nil
}

func (op *CSVOperator) clone() *CSVOperator {
	return &CSVOperator{
		client:      op.client,
		uris:        op.uris,
		parse:       op.parse,
		read:        op.read,
		columnNames: op.columnNames,
		known:       op.known,
		limit:       op.limit,
		include:     op.include,
		predicates:  op.predicates,
		cache:       op.cache,
	}
}

// AnonymousOperator scans tables that already live in memory. It
// absorbs no pushdowns; callers apply them after scanning.
type AnonymousOperator struct {
	schema *datatypes.Schema
	tables []*table.Table
}

// NewAnonymous wraps in-memory tables as a scannable source
func NewAnonymous(schema *datatypes.Schema, tables []*table.Table) *AnonymousOperator {
	return &AnonymousOperator{schema: schema, tables: tables}
}

// Name implements Operator
func (op *AnonymousOperator) Name() string { return "anonymous" }

// Schema implements Operator
func (op *AnonymousOperator) Schema(context.Context) (*datatypes.Schema, error) {
	return op.schema, nil
}

// Filter declines absorption; the tables are already in memory
func (op *AnonymousOperator) Filter([]expr.Expr) (Operator, bool) {
	return op, false
}

// Limit declines absorption
func (op *AnonymousOperator) Limit(int) Operator { return op }

// Select declines absorption
func (op *AnonymousOperator) Select([]string) Operator { return op }

// PartitioningKeys implements Operator
func (op *AnonymousOperator) PartitioningKeys() []string { return nil }

// ScanUnits produces a single materialized partition
func (op *AnonymousOperator) ScanUnits(context.Context) ([]*micropartition.MicroPartition, error) {
	mp, err := micropartition.FromTables(op.schema, op.tables)
	if err != nil {
		return nil, err
	}
	return []*micropartition.MicroPartition{mp}, nil
}

// BridgeOperator forwards every call to a foreign source supplied by
// the surrounding engine, logging each delegation. It keeps foreign
// implementations behind the same capability surface as built-ins.
type BridgeOperator struct {
	inner Operator
}

// NewBridge wraps a foreign operator
func NewBridge(inner Operator) *BridgeOperator {
	return &BridgeOperator{inner: inner}
}

// Name implements Operator
func (op *BridgeOperator) Name() string { return "bridge(" + op.inner.Name() + ")" }

// Schema implements Operator
func (op *BridgeOperator) Schema(ctx context.Context) (*datatypes.Schema, error) {
	return op.inner.Schema(ctx)
}

// Filter forwards absorption to the foreign source
func (op *BridgeOperator) Filter(preds []expr.Expr) (Operator, bool) {
	inner, absorbed := op.inner.Filter(preds)
	logger.Debug("bridge filter pushdown",
		zap.String("source", op.inner.Name()),
		zap.Bool("absorbed", absorbed))
	return &BridgeOperator{inner: inner}, absorbed
}

// Limit forwards to the foreign source
func (op *BridgeOperator) Limit(n int) Operator {
	return &BridgeOperator{inner: op.inner.Limit(n)}
}

// Select forwards to the foreign source
func (op *BridgeOperator) Select(columns []string) Operator {
	return &BridgeOperator{inner: op.inner.Select(columns)}
}

// PartitioningKeys forwards to the foreign source
func (op *BridgeOperator) PartitioningKeys() []string {
	return op.inner.PartitioningKeys()
}

// ScanUnits forwards to the foreign source
func (op *BridgeOperator) ScanUnits(ctx context.Context) ([]*micropartition.MicroPartition, error) {
	return op.inner.ScanUnits(ctx)
}
