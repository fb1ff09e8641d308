package csv

import (
	"context"
	encsv "encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/strataframe/strata/pkg/compression"
	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/errors"
	"github.com/strataframe/strata/pkg/storage"
)

// ReadStats summarizes the bytes-per-record distribution observed while
// sampling a source. It seeds the adaptive reader's buffer sizing so
// the first batch is already close to the right size.
type ReadStats struct {
	MeanRecordBytes   float64
	StddevRecordBytes float64
	SampledRows       int64
}

// priorReadStats is used when no sample exists
func priorReadStats() ReadStats {
	return ReadStats{
		MeanRecordBytes:   priorMeanRecordBytes,
		StddevRecordBytes: priorStddevRecordBytes,
	}
}

// cellKind is an element of the inference ladder
type cellKind int

const (
	kindUnknown cellKind = iota
	kindInt64
	kindFloat64
	kindBool
	kindTimestamp
	kindUtf8
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// InferSchema samples up to 1 MiB of the source and derives a schema.
// Each column takes the narrowest type that admits every sampled cell:
// int64, then float64, bool, timestamp, falling back to utf8. Columns
// that were entirely empty in the sample come back as utf8. The
// returned ReadStats seed the adaptive reader.
func InferSchema(ctx context.Context, client *storage.Client, uri string, parse ParseOptions) (*datatypes.Schema, ReadStats, error) {
	if err := parse.validate(); err != nil {
		return nil, ReadStats{}, err
	}

	result, err := client.Open(ctx, uri)
	if err != nil {
		return nil, ReadStats{}, err
	}
	stream, err := result.Reader()
	if err != nil {
		return nil, ReadStats{}, err
	}
	defer stream.Close()

	decoded, err := wrapCompression(uri, stream)
	if err != nil {
		return nil, ReadStats{}, err
	}
	defer decoded.Close()

	reader := newRecordReader(decoded, parse)

	var names []string
	if parse.HasHeader {
		header, err := reader.Read()
		if err == io.EOF {
			return nil, ReadStats{}, errors.Newf(errors.TypeParse, "%s is empty, cannot infer a schema", uri)
		}
		if err != nil {
			return nil, ReadStats{}, errors.Wrapf(err, errors.TypeParse, "failed to read header of %s", uri)
		}
		names = append([]string(nil), header...)
	}

	kinds := make([]cellKind, len(names))
	var (
		rows       int64
		mean, m2   float64
		lastOffset = reader.InputOffset()
	)
	for reader.InputOffset() < inferenceSampleBytes {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ReadStats{}, errors.Wrapf(err, errors.TypeParse, "malformed record while sampling %s", uri)
		}
		if names == nil {
			names = make([]string, len(record))
			for i := range names {
				names[i] = fmt.Sprintf("field_%d", i)
			}
			kinds = make([]cellKind, len(record))
		}
		if len(record) != len(names) {
			return nil, ReadStats{}, errors.Newf(errors.TypeParse,
				"record %d has %d fields, but %d were expected", rows+1, len(record), len(names))
		}
		for i, cell := range record {
			kinds[i] = unifyKind(kinds[i], inferCell(cell))
		}

		offset := reader.InputOffset()
		bytesRead := float64(offset - lastOffset)
		lastOffset = offset
		rows++
		delta := bytesRead - mean
		mean += delta / float64(rows)
		delta2 := bytesRead - mean
		m2 += delta * delta2
	}

	if names == nil {
		return nil, ReadStats{}, errors.Newf(errors.TypeParse, "%s is empty, cannot infer a schema", uri)
	}

	fields := make([]datatypes.Field, len(names))
	for i, name := range names {
		fields[i] = datatypes.NewField(name, kinds[i].dataType())
	}
	schema, err := datatypes.NewSchema(fields)
	if err != nil {
		return nil, ReadStats{}, err
	}

	stats := priorReadStats()
	if rows >= 2 {
		stats = ReadStats{
			MeanRecordBytes:   mean,
			StddevRecordBytes: math.Sqrt(m2 / float64(rows-1)),
			SampledRows:       rows,
		}
	}
	return schema, stats, nil
}

// newRecordReader configures record splitting over a decoded stream.
// Field counts are checked by the caller so mismatches can carry both
// counts in the error.
func newRecordReader(r io.Reader, parse ParseOptions) *encsv.Reader {
	reader := encsv.NewReader(r)
	reader.Comma = parse.Delimiter
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	return reader
}

func wrapCompression(uri string, stream io.ReadCloser) (io.ReadCloser, error) {
	codec, ok := compression.FromURI(uri)
	if !ok {
		return stream, nil
	}
	return codec.WrapReader(stream)
}

func inferCell(cell string) cellKind {
	if cell == "" {
		return kindUnknown
	}
	if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return kindInt64
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return kindFloat64
	}
	if strings.EqualFold(cell, "true") || strings.EqualFold(cell, "false") {
		return kindBool
	}
	if _, ok := parseTimestamp(cell); ok {
		return kindTimestamp
	}
	return kindUtf8
}

// unifyKind widens a column's running type to admit a new cell
func unifyKind(have, cell cellKind) cellKind {
	switch {
	case cell == kindUnknown:
		return have
	case have == kindUnknown || have == cell:
		return cell
	case (have == kindInt64 && cell == kindFloat64) || (have == kindFloat64 && cell == kindInt64):
		return kindFloat64
	default:
		return kindUtf8
	}
}

func (k cellKind) dataType() arrow.DataType {
	switch k {
	case kindInt64:
		return datatypes.Int64
	case kindFloat64:
		return datatypes.Float64
	case kindBool:
		return datatypes.Boolean
	case kindTimestamp:
		return datatypes.Timestamp
	default:
		return datatypes.Utf8
	}
}

// parseTimestamp accepts the layouts the inference ladder recognizes
// and returns microseconds since the epoch.
func parseTimestamp(cell string) (int64, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts.UnixMicro(), true
		}
	}
	return 0, false
}
