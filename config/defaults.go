// Package config provides configuration defaults and utilities
// for the xferstat tools.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command line flags.
package config

// =============================================================================
// Log Format
// =============================================================================

const (
	// LogFieldCount is the number of tab-separated columns of a transfer log line:
	// timestamp, user, size, path, direction, session, status, country,
	// region, city, coordinates, method, visibility.
	LogFieldCount = 13

	// LogFileExtension identifies compressed transfer logs during discovery.
	LogFileExtension = ".tsv.gz"

	// StoreExtension identifies columnar stores. Merge manifests ignore
	// entries without it.
	StoreExtension = ".parquet"
)

// =============================================================================
// Ingestion Defaults
// =============================================================================

const (
	// DefaultLogFileBatchSize is the number of accepted records per batch
	// yielded by the log reader and flushed by the writer in batch mode.
	// Override via config: log_file_batch_size
	DefaultLogFileBatchSize = 1000

	// DefaultWriteStrategy selects the columnar writer mode.
	// "batch" bounds memory by the batch size; "all" builds the store at once.
	// Override via config: storage.write_strategy
	DefaultWriteStrategy = "batch"

	// DefaultCompression is the block compression of columnar stores.
	// Override via config: storage.compression
	DefaultCompression = "snappy"

	// DefaultReadBufferSize is the read buffer used when opening stores.
	DefaultReadBufferSize = 1024 * 1024 // 1MB
)

// =============================================================================
// Analysis Defaults
// =============================================================================

const (
	// DefaultChunkSize is the number of rows scanned per batch by the
	// aggregator and the merger. Peak memory is proportional to it.
	// Override via config: chunk_size
	DefaultChunkSize = 100000

	// DefaultTopCounts is the number of entries of the top downloads report.
	// Override via config: top_counts
	DefaultTopCounts = 100

	// DefaultWorkers is the number of log files converted concurrently.
	// Override via config: workers
	DefaultWorkers = 1

	// DefaultOutputFormat is the encoding of report documents: json or jsonl.
	// Override via config: output.format
	DefaultOutputFormat = "json"

	// DefaultSketchAccuracy is the relative accuracy of the download
	// distribution quantiles (0.01 = 1% error).
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryMemoryLimit is the DuckDB memory limit for cross-store queries.
	// Override via config: query.memory_limit
	DefaultQueryMemoryLimit = "2GB"
)
