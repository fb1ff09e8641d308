// Package csv implements the streaming delimited-text reader: an
// adaptive chunked record reader feeding a bounded, order-preserving
// parallel decode pipeline that assembles typed columnar tables.
package csv

import (
	"bufio"
	"context"
	encsv "encoding/csv"
	"io"
	"math"
	"runtime"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/strataframe/strata/pkg/datatypes"
	"github.com/strataframe/strata/pkg/errors"
	"github.com/strataframe/strata/pkg/logger"
	"github.com/strataframe/strata/pkg/metrics"
	"github.com/strataframe/strata/pkg/storage"
	"github.com/strataframe/strata/pkg/table"
)

// sizeEstimate tracks a running mean/variance of bytes-per-record
// (Welford). It is owned by the sequential reader loop and sizes the
// next batch's record buffer and row count.
type sizeEstimate struct {
	rows int64
	mean float64
	m2   float64
}

func newSizeEstimate(seed ReadStats) *sizeEstimate {
	est := &sizeEstimate{}
	if seed.SampledRows >= 2 {
		est.rows = seed.SampledRows
		est.mean = seed.MeanRecordBytes
		est.m2 = seed.StddevRecordBytes * seed.StddevRecordBytes * float64(seed.SampledRows-1)
	}
	return est
}

func (e *sizeEstimate) observe(bytesRead float64) {
	e.rows++
	delta := bytesRead - e.mean
	e.mean += delta / float64(e.rows)
	delta2 := bytesRead - e.mean
	e.m2 += delta * delta2
}

func (e *sizeEstimate) meanStddev() (float64, float64) {
	if e.rows < 2 {
		return priorMeanRecordBytes, priorStddevRecordBytes
	}
	mean := e.mean
	if mean < 1 {
		mean = 1
	}
	return mean, math.Sqrt(e.m2 / float64(e.rows-1))
}

// recordBufferSize covers roughly 85% of records without reallocation
// under a normal assumption.
func (e *sizeEstimate) recordBufferSize() int {
	mean, stddev := e.meanStddev()
	return int(math.Ceil(mean + stddev))
}

// batchRows targets chunkBytes per batch and reads at least 8 rows;
// the caller caps the result at the rows remaining to the limit.
func (e *sizeEstimate) batchRows(chunkBytes, remaining int) int {
	mean, _ := e.meanStddev()
	rows := chunkBytes / int(math.Ceil(mean))
	if remaining >= 0 && remaining < rows {
		rows = remaining
	}
	if rows < 8 {
		rows = 8
	}
	return rows
}

type batchResult struct {
	tbl *table.Table
	err error
}

type columnResult struct {
	arr arrow.Array
	err error
}

// Read streams one delimited source into a typed table.
//
// Record splitting is sequential; decoding runs across batches on the
// shared worker pool with at most 2x GOMAXPROCS batches in flight.
// Output batch order matches input order regardless of decode
// completion order.
func Read(ctx context.Context, client *storage.Client, uri string, convert ConvertOptions, parse ParseOptions, read ReadOptions) (*table.Table, error) {
	start := time.Now()
	metrics.ReaderInvocations.Inc()

	if err := parse.validate(); err != nil {
		return nil, err
	}
	bufferSize, chunkSize, err := read.resolve()
	if err != nil {
		return nil, err
	}

	schema := convert.Schema
	seed := priorReadStats()
	if schema == nil {
		schema, seed, err = InferSchema(ctx, client, uri, parse)
		if err != nil {
			return nil, err
		}
	}
	if convert.ColumnNames != nil {
		schema, err = schema.Rename(convert.ColumnNames)
		if err != nil {
			return nil, err
		}
	}
	projIndices, err := schema.Projection(convert.IncludeColumns)
	if err != nil {
		return nil, err
	}
	outSchema, err := schema.Select(projIndices)
	if err != nil {
		return nil, err
	}

	result, err := client.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	stream, err := result.Reader()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	decoded, err := wrapCompression(uri, stream)
	if err != nil {
		return nil, err
	}
	defer decoded.Close()

	reader := newRecordReader(bufio.NewReaderSize(decoded, bufferSize), parse)

	if parse.HasHeader {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return table.Empty(outSchema), nil
			}
			return nil, errors.Wrapf(err, errors.TypeParse, "failed to read header of %s", uri)
		}
	}

	tables, rowsRead, bytesRead, err := runPipeline(ctx, reader, schema, outSchema, projIndices, convert.Limit, chunkSize, seed)
	if err != nil {
		return nil, err
	}

	metrics.RowsRead.Add(float64(rowsRead))
	metrics.BytesScanned.Add(float64(bytesRead))

	var out *table.Table
	if len(tables) == 0 {
		out = table.Empty(outSchema)
	} else {
		out, err = table.Concat(tables)
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("delimited read complete",
		zap.String("uri", uri),
		zap.Int("rows", out.NumRows()),
		zap.Int("batches", len(tables)),
		zap.Int64("bytes", bytesRead),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// runPipeline drives the adaptive batch loop and the bounded decode
// fan-out, collecting per-batch tables in input order.
func runPipeline(ctx context.Context, reader *encsv.Reader, schema, outSchema *datatypes.Schema, projIndices []int, limit, chunkBytes int, seed ReadStats) ([]*table.Table, int, int64, error) {
	est := newSizeEstimate(seed)
	sem := semaphore.NewWeighted(int64(2 * runtime.GOMAXPROCS(0)))
	expectedFields := schema.Len()

	var (
		results    []chan batchResult
		rowsRead   int
		lastOffset = reader.InputOffset()
		readErr    error
	)
	for {
		if err := ctx.Err(); err != nil {
			readErr = errors.Wrap(err, errors.TypeIO, "read cancelled")
			break
		}
		remaining := -1
		if limit >= 0 {
			remaining = limit - rowsRead
			if remaining <= 0 {
				break
			}
		}
		batch, err := readBatch(reader, est, remaining, chunkBytes, expectedFields, rowsRead, &lastOffset)
		if err != nil {
			readErr = err
			break
		}
		if len(batch) == 0 {
			break
		}
		rowsRead += len(batch)
		metrics.RecordBatches.Inc()

		if err := sem.Acquire(ctx, 1); err != nil {
			readErr = errors.Wrap(err, errors.TypeIO, "read cancelled")
			break
		}
		ch := make(chan batchResult, 1)
		results = append(results, ch)
		go decodeBatch(batch, projIndices, outSchema, ch, sem)
	}

	tables := make([]*table.Table, 0, len(results))
	var decodeErr error
	for _, ch := range results {
		res := <-ch
		if res.err != nil && decodeErr == nil {
			decodeErr = res.err
		}
		if decodeErr == nil {
			tables = append(tables, res.tbl)
		}
	}
	if readErr != nil {
		return nil, 0, 0, readErr
	}
	if decodeErr != nil {
		return nil, 0, 0, decodeErr
	}
	return tables, rowsRead, lastOffset, nil
}

// readBatch reads up to the adaptively-sized row count into compact
// byte records, observing consumed bytes per record. Returns a short
// batch at end of stream.
func readBatch(reader *encsv.Reader, est *sizeEstimate, remaining, chunkBytes, expectedFields, rowBase int, lastOffset *int64) ([]byteRecord, error) {
	recordBuf := est.recordBufferSize()
	rows := est.batchRows(chunkBytes, remaining)
	if remaining >= 0 && rows > remaining {
		rows = remaining
	}

	batch := make([]byteRecord, 0, rows)
	for len(batch) < rows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.TypeParse,
				"malformed record %d", rowBase+len(batch)+1)
		}
		if len(record) != expectedFields {
			return nil, errors.Newf(errors.TypeParse,
				"record %d has %d fields, but %d were expected",
				rowBase+len(batch)+1, len(record), expectedFields)
		}

		rec := byteRecord{
			buf:  make([]byte, 0, recordBuf),
			ends: make([]int, 0, len(record)),
		}
		for _, cell := range record {
			rec.buf = append(rec.buf, cell...)
			rec.ends = append(rec.ends, len(rec.buf))
		}
		batch = append(batch, rec)

		offset := reader.InputOffset()
		est.observe(float64(offset - *lastOffset))
		*lastOffset = offset
	}
	return batch, nil
}

// decodeBatch fans one batch's projected columns out to the shared
// worker pool and reports the assembled table over a single-use
// channel. A worker panic surfaces as a handoff error rather than
// taking the process down.
func decodeBatch(records []byteRecord, projIndices []int, outSchema *datatypes.Schema, ch chan<- batchResult, sem *semaphore.Weighted) {
	defer sem.Release(1)

	colChans := make([]chan columnResult, len(projIndices))
	for j, srcIdx := range projIndices {
		dtype := outSchema.Field(j).Type
		cch := make(chan columnResult, 1)
		colChans[j] = cch
		submitDecode(func() {
			defer func() {
				if r := recover(); r != nil {
					cch <- columnResult{err: errors.Newf(errors.TypeHandoff,
						"column decode worker panicked: %v", r)}
				}
			}()
			arr, err := decodeColumn(records, srcIdx, dtype)
			cch <- columnResult{arr: arr, err: err}
		})
	}

	columns := make([]arrow.Array, len(projIndices))
	var firstErr error
	for j, cch := range colChans {
		res := <-cch
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		columns[j] = res.arr
	}
	if firstErr != nil {
		ch <- batchResult{err: firstErr}
		return
	}
	tbl, err := table.New(outSchema, columns)
	ch <- batchResult{tbl: tbl, err: err}
}
