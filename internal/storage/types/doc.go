// Package types defines the core data types shared by the ingestion and
// analysis sides of xferstat.
//
// Key types:
//   - TransferRecord: one accepted, normalized transfer-log line
//   - Batch: a bounded group of records handed from reader to writer
//   - ProjectCount, FileCount, YearlyCount, TopCount: aggregate results
package types
