// Package table provides the in-memory columnar table value type.
//
// A Table owns one Arrow array per schema field; all columns share the
// same length. Tables are immutable: every operation returns a new
// table.
package table

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/errors"
)

// Table is an ordered set of equally-sized columns bound to a schema
type Table struct {
	schema  *datatypes.Schema
	columns []arrow.Array
	numRows int
}

// New builds a table from a schema and matching columns. A mismatch
// between column count and field count, or ragged column lengths, is a
// programming-contract violation rather than a user-facing error.
func New(schema *datatypes.Schema, columns []arrow.Array) (*Table, error) {
	if len(columns) != schema.Len() {
		return nil, errors.Newf(errors.TypeInternal,
			"table construction got %d columns for %d schema fields", len(columns), schema.Len())
	}
	numRows := 0
	for i, col := range columns {
		if i == 0 {
			numRows = col.Len()
		} else if col.Len() != numRows {
			return nil, errors.Newf(errors.TypeInternal,
				"column %q has %d rows, expected %d", schema.Field(i).Name, col.Len(), numRows)
		}
		if !arrow.TypeEqual(col.DataType(), schema.Field(i).Type) {
			return nil, errors.Newf(errors.TypeInternal,
				"column %q has type %s, schema declares %s",
				schema.Field(i).Name, col.DataType(), schema.Field(i).Type)
		}
	}
	return &Table{schema: schema, columns: columns, numRows: numRows}, nil
}

// Empty returns a correctly-typed zero-row table for the schema
func Empty(schema *datatypes.Schema) *Table {
	columns := make([]arrow.Array, schema.Len())
	for i := 0; i < schema.Len(); i++ {
		bldr := array.NewBuilder(memory.DefaultAllocator, schema.Field(i).Type)
		columns[i] = bldr.NewArray()
		bldr.Release()
	}
	t, _ := New(schema, columns)
	return t
}

// Schema returns the table's schema
func (t *Table) Schema() *datatypes.Schema {
	return t.schema
}

// NumRows returns the row count
func (t *Table) NumRows() int {
	return t.numRows
}

// NumColumns returns the column count
func (t *Table) NumColumns() int {
	return len(t.columns)
}

// Column returns the i-th column
func (t *Table) Column(i int) arrow.Array {
	return t.columns[i]
}

// ColumnByName returns the named column
func (t *Table) ColumnByName(name string) (arrow.Array, error) {
	i := t.schema.IndexOf(name)
	if i < 0 {
		return nil, errors.Newf(errors.TypeNotFound, "column %q not found in table schema", name)
	}
	return t.columns[i], nil
}

// ColumnNames returns the column names in schema order
func (t *Table) ColumnNames() []string {
	return t.schema.Names()
}

// SizeBytes reports the heap footprint of all column buffers
func (t *Table) SizeBytes() int64 {
	var total int64
	for _, col := range t.columns {
		for _, buf := range col.Data().Buffers() {
			if buf != nil {
				total += int64(buf.Len())
			}
		}
	}
	return total
}

// FilterByMask keeps rows whose mask bit is set. Null mask entries drop
// the row.
func (t *Table) FilterByMask(mask *array.Boolean) (*Table, error) {
	if mask.Len() != t.numRows {
		return nil, errors.Newf(errors.TypeInternal,
			"filter mask has %d rows, table has %d", mask.Len(), t.numRows)
	}
	columns := make([]arrow.Array, len(t.columns))
	for i, col := range t.columns {
		filtered, err := filterArray(col, mask)
		if err != nil {
			return nil, err
		}
		columns[i] = filtered
	}
	return New(t.schema, columns)
}

// Concat concatenates schema-identical tables in order
func Concat(tables []*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, errors.New(errors.TypeInternal, "cannot concatenate zero tables")
	}
	if len(tables) == 1 {
		return tables[0], nil
	}
	first := tables[0]
	for _, t := range tables[1:] {
		if !t.schema.Equal(first.schema) {
			return nil, errors.Newf(errors.TypeInternal,
				"cannot concatenate tables with mismatched schemas: %s vs %s", first.schema, t.schema)
		}
	}
	columns := make([]arrow.Array, first.NumColumns())
	for i := range columns {
		fragments := make([]arrow.Array, len(tables))
		for j, t := range tables {
			fragments[j] = t.columns[i]
		}
		merged, err := array.Concatenate(fragments, memory.DefaultAllocator)
		if err != nil {
			return nil, errors.Wrapf(err, errors.TypeInternal,
				"failed to concatenate column %q", first.schema.Field(i).Name)
		}
		columns[i] = merged
	}
	return New(first.schema, columns)
}

// Value returns the Go value at (column, row); nil for null cells.
// Int64/Float64/Boolean/Utf8/Timestamp columns are supported.
func (t *Table) Value(col, row int) (interface{}, error) {
	return arrayValue(t.columns[col], row)
}

// Rows extracts up to limit rows as name->value maps. A negative limit
// extracts all rows. Intended for CLI output and tests, not hot paths.
func (t *Table) Rows(limit int) ([]map[string]interface{}, error) {
	n := t.numRows
	if limit >= 0 && limit < n {
		n = limit
	}
	names := t.schema.Names()
	rows := make([]map[string]interface{}, 0, n)
	for r := 0; r < n; r++ {
		row := make(map[string]interface{}, len(names))
		for c, name := range names {
			v, err := arrayValue(t.columns[c], r)
			if err != nil {
				return nil, err
			}
			row[name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// String renders a short description
func (t *Table) String() string {
	return fmt.Sprintf("table{%d rows, [%s]}", t.numRows, strings.Join(t.schema.Names(), ", "))
}

func arrayValue(col arrow.Array, row int) (interface{}, error) {
	if col.IsNull(row) {
		return nil, nil
	}
	switch arr := col.(type) {
	case *array.Int64:
		return arr.Value(row), nil
	case *array.Float64:
		return arr.Value(row), nil
	case *array.Boolean:
		return arr.Value(row), nil
	case *array.String:
		return arr.Value(row), nil
	case *array.Timestamp:
		return int64(arr.Value(row)), nil
	default:
		return nil, errors.Newf(errors.TypeCapability, "unsupported column type %s", col.DataType())
	}
}

func filterArray(col arrow.Array, mask *array.Boolean) (arrow.Array, error) {
	keep := func(i int) bool {
		return mask.IsValid(i) && mask.Value(i)
	}
	switch arr := col.(type) {
	case *array.Int64:
		bldr := array.NewInt64Builder(memory.DefaultAllocator)
		defer bldr.Release()
		for i := 0; i < arr.Len(); i++ {
			if !keep(i) {
				continue
			}
			if arr.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(arr.Value(i))
			}
		}
		return bldr.NewArray(), nil
	case *array.Float64:
		bldr := array.NewFloat64Builder(memory.DefaultAllocator)
		defer bldr.Release()
		for i := 0; i < arr.Len(); i++ {
			if !keep(i) {
				continue
			}
			if arr.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(arr.Value(i))
			}
		}
		return bldr.NewArray(), nil
	case *array.Boolean:
		bldr := array.NewBooleanBuilder(memory.DefaultAllocator)
		defer bldr.Release()
		for i := 0; i < arr.Len(); i++ {
			if !keep(i) {
				continue
			}
			if arr.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(arr.Value(i))
			}
		}
		return bldr.NewArray(), nil
	case *array.String:
		bldr := array.NewStringBuilder(memory.DefaultAllocator)
		defer bldr.Release()
		for i := 0; i < arr.Len(); i++ {
			if !keep(i) {
				continue
			}
			if arr.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(arr.Value(i))
			}
		}
		return bldr.NewArray(), nil
	case *array.Timestamp:
		dtype, ok := col.DataType().(*arrow.TimestampType)
		if !ok {
			return nil, errors.Newf(errors.TypeInternal, "timestamp column with type %s", col.DataType())
		}
		bldr := array.NewTimestampBuilder(memory.DefaultAllocator, dtype)
		defer bldr.Release()
		for i := 0; i < arr.Len(); i++ {
			if !keep(i) {
				continue
			}
			if arr.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(arr.Value(i))
			}
		}
		return bldr.NewArray(), nil
	default:
		return nil, errors.Newf(errors.TypeCapability, "cannot filter column type %s", col.DataType())
	}
}
