package csv

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/strataframe/strata/pkg/errors"
)

// byteRecord holds one record's field bytes contiguously. ends[i] is
// the exclusive end offset of field i within buf.
type byteRecord struct {
	buf  []byte
	ends []int
}

func (r *byteRecord) numFields() int {
	return len(r.ends)
}

func (r *byteRecord) field(i int) []byte {
	start := 0
	if i > 0 {
		start = r.ends[i-1]
	}
	return r.buf[start:r.ends[i]]
}

// decodeColumn converts one source field across a record batch into a
// typed array. Cells that fail to coerce become null; coercion never
// fails the batch.
func decodeColumn(records []byteRecord, srcIdx int, dtype arrow.DataType) (arrow.Array, error) {
	switch dtype.ID() {
	case arrow.INT64:
		bldr := array.NewInt64Builder(memory.DefaultAllocator)
		defer bldr.Release()
		bldr.Reserve(len(records))
		for i := range records {
			cell := records[i].field(srcIdx)
			v, err := strconv.ParseInt(string(cell), 10, 64)
			if len(cell) == 0 || err != nil {
				bldr.AppendNull()
			} else {
				bldr.Append(v)
			}
		}
		return bldr.NewArray(), nil
	case arrow.FLOAT64:
		bldr := array.NewFloat64Builder(memory.DefaultAllocator)
		defer bldr.Release()
		bldr.Reserve(len(records))
		for i := range records {
			cell := records[i].field(srcIdx)
			v, err := strconv.ParseFloat(string(cell), 64)
			if len(cell) == 0 || err != nil {
				bldr.AppendNull()
			} else {
				bldr.Append(v)
			}
		}
		return bldr.NewArray(), nil
	case arrow.BOOL:
		bldr := array.NewBooleanBuilder(memory.DefaultAllocator)
		defer bldr.Release()
		bldr.Reserve(len(records))
		for i := range records {
			cell := string(records[i].field(srcIdx))
			switch {
			case strings.EqualFold(cell, "true"):
				bldr.Append(true)
			case strings.EqualFold(cell, "false"):
				bldr.Append(false)
			default:
				bldr.AppendNull()
			}
		}
		return bldr.NewArray(), nil
	case arrow.TIMESTAMP:
		tsType, ok := dtype.(*arrow.TimestampType)
		if !ok {
			return nil, errors.Newf(errors.TypeInternal, "timestamp field with type %s", dtype)
		}
		bldr := array.NewTimestampBuilder(memory.DefaultAllocator, tsType)
		defer bldr.Release()
		bldr.Reserve(len(records))
		for i := range records {
			cell := string(records[i].field(srcIdx))
			us, ok := parseTimestamp(cell)
			if !ok {
				bldr.AppendNull()
			} else {
				bldr.Append(arrow.Timestamp(us))
			}
		}
		return bldr.NewArray(), nil
	case arrow.STRING:
		bldr := array.NewStringBuilder(memory.DefaultAllocator)
		defer bldr.Release()
		bldr.Reserve(len(records))
		for i := range records {
			bldr.Append(string(records[i].field(srcIdx)))
		}
		return bldr.NewArray(), nil
	default:
		return nil, errors.Newf(errors.TypeCapability, "cannot decode delimited text into %s", dtype)
	}
}
