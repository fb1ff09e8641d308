package csv

import (
	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/errors"
)

const (
	defaultBufferSize = 512 * 1024
	defaultChunkSize  = 64 * 1024

	// Priors for bytes-per-record before any observation exists
	priorMeanRecordBytes   = 200.0
	priorStddevRecordBytes = 20.0

	// Inference samples at most this many bytes of the source
	inferenceSampleBytes = 1024 * 1024
)

// ConvertOptions controls how parsed records become a typed table
type ConvertOptions struct {
	// Limit caps the number of data rows decoded. Negative means no
	// limit; zero yields an empty table.
	Limit int
	// IncludeColumns restricts and reorders output columns by name.
	// The output follows this list's order, not the schema's. Nil keeps
	// every column.
	IncludeColumns []string
	// ColumnNames positionally renames the first len(ColumnNames)
	// fields before parsing begins.
	ColumnNames []string
	// Schema, when set, skips inference and declares the file layout.
	// Cells that fail to coerce to the declared type become null.
	Schema *datatypes.Schema
}

// DefaultConvertOptions returns convert options with no limit,
// projection, rename or declared schema.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{Limit: -1}
}

// WithLimit caps the number of rows decoded
func (o ConvertOptions) WithLimit(limit int) ConvertOptions {
	o.Limit = limit
	return o
}

// WithIncludeColumns restricts output to the named columns, in the
// given order.
func (o ConvertOptions) WithIncludeColumns(names []string) ConvertOptions {
	o.IncludeColumns = names
	return o
}

// WithColumnNames positionally renames leading fields
func (o ConvertOptions) WithColumnNames(names []string) ConvertOptions {
	o.ColumnNames = names
	return o
}

// WithSchema declares the file layout, skipping inference
func (o ConvertOptions) WithSchema(schema *datatypes.Schema) ConvertOptions {
	o.Schema = schema
	return o
}

// ParseOptions controls record splitting
type ParseOptions struct {
	// HasHeader marks the first record as a header row
	HasHeader bool
	// Delimiter separates fields within a record
	Delimiter rune
}

// DefaultParseOptions returns comma-delimited parsing with a header row
func DefaultParseOptions() ParseOptions {
	return ParseOptions{HasHeader: true, Delimiter: ','}
}

// WithHasHeader sets whether the first record is a header
func (o ParseOptions) WithHasHeader(hasHeader bool) ParseOptions {
	o.HasHeader = hasHeader
	return o
}

// WithDelimiter sets the field delimiter
func (o ParseOptions) WithDelimiter(delimiter rune) ParseOptions {
	o.Delimiter = delimiter
	return o
}

func (o ParseOptions) validate() error {
	if o.Delimiter == 0 {
		return errors.New(errors.TypeConfig, "delimiter must not be NUL")
	}
	if o.Delimiter > 0x7f {
		return errors.Newf(errors.TypeConfig, "delimiter %q is not a single byte", o.Delimiter)
	}
	return nil
}

// ReadOptions controls buffer sizing for the byte stream. When only
// one of the two sizes is given the other derives from it: buffer is
// eight chunks, a chunk is an eighth of the buffer.
type ReadOptions struct {
	// BufferSize is the stream read buffer in bytes (0 = derive)
	BufferSize int
	// ChunkSize is the target decoded batch size in bytes (0 = derive)
	ChunkSize int
}

// DefaultReadOptions returns a 512 KiB buffer with 64 KiB chunks
func DefaultReadOptions() ReadOptions {
	return ReadOptions{}
}

// WithBufferSize sets the stream read buffer size
func (o ReadOptions) WithBufferSize(n int) ReadOptions {
	o.BufferSize = n
	return o
}

// WithChunkSize sets the target batch size in bytes
func (o ReadOptions) WithChunkSize(n int) ReadOptions {
	o.ChunkSize = n
	return o
}

// resolve fills in derived or default sizes
func (o ReadOptions) resolve() (bufferSize, chunkSize int, err error) {
	if o.BufferSize < 0 || o.ChunkSize < 0 {
		return 0, 0, errors.Newf(errors.TypeConfig,
			"buffer and chunk sizes must be non-negative, got %d and %d", o.BufferSize, o.ChunkSize)
	}
	switch {
	case o.BufferSize > 0 && o.ChunkSize > 0:
		return o.BufferSize, o.ChunkSize, nil
	case o.BufferSize > 0:
		return o.BufferSize, max(1, o.BufferSize/8), nil
	case o.ChunkSize > 0:
		return o.ChunkSize * 8, o.ChunkSize, nil
	default:
		return defaultBufferSize, defaultChunkSize, nil
	}
}
