// Package strata is the ingestion core of a columnar dataframe engine.
//
// It turns remote or local delimited-text files into typed, in-memory
// columnar tables and wraps the result, or the promise of the result,
// in a lazily-materialized partition used by query execution. See
// pkg/csv for the streaming reader, pkg/micropartition for the lazy
// partition, and pkg/scan for the scannable-source surface.
package strata
