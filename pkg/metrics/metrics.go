// Package metrics exposes Prometheus counters for the ingestion core
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsRead counts decoded rows across all reads
	RowsRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strata_rows_read_total",
		Help: "Total number of rows decoded from delimited sources.",
	})

	// RecordBatches counts record batches produced by the chunked reader
	RecordBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strata_record_batches_total",
		Help: "Total number of raw record batches produced.",
	})

	// BytesScanned counts bytes consumed from byte sources
	BytesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strata_bytes_scanned_total",
		Help: "Total bytes consumed from byte sources.",
	})

	// ReaderInvocations counts single-file pipeline executions
	ReaderInvocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strata_reader_invocations_total",
		Help: "Total number of single-file read pipelines executed.",
	})

	// Materializations counts deferred partitions loaded into memory
	Materializations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strata_partition_materializations_total",
		Help: "Total number of deferred partitions materialized.",
	})
)
