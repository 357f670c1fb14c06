// Package storage groups the columnar store of transfer records and the
// tools working on it.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│ BatchReader │────▶│   Parquet   │────▶│    Merge    │
//	│  (logfile)  │     │   Writer    │     │             │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │                   │
//	                           ▼                   ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │  Aggregate  │     │    Query    │
//	                    │             │     │  (DuckDB)   │
//	                    └─────────────┘     └─────────────┘
//
// Subpackages:
//   - types: records, batches and aggregate result types
//   - parquet: store schema, batch and bulk writers, readers, inspection
//   - aggregate: per-project, per-file and per-year counts over one store
//   - merge: schema-checked concatenation of stores
//   - query: DuckDB statistics across many stores
package storage
