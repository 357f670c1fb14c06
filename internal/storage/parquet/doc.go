// Package parquet implements the columnar transfer store.
//
// The package provides:
//   - TransferRow, the fixed 13-column store schema
//   - Writer with bulk and batch modes and an explicit Finalize
//   - StoreReader for batch-bounded typed reads
//   - RowReader/RowWriter for schema-agnostic copies used by merges
//   - Inspect for store metadata
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
