// Package aggregate scans transfer stores batch by batch and derives
// download statistics: per-project, per-file and per-year counts, a
// percentile rank per project, the most downloaded projects and a full dump.
package aggregate

import (
	"context"
	"io"
	"log/slog"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/storage/parquet"
)

var log = logging.Component("aggregate")

// Sink receives the rows of a dump one at a time.
type Sink interface {
	Write(v any) error
}

// Options configures an Aggregator.
type Options struct {
	// BatchSize is the number of rows read per batch. Peak memory of a scan
	// is proportional to it plus the number of distinct keys.
	BatchSize int

	// TopK is the number of entries of the top downloads list.
	TopK int

	// SkippedYears excludes rows of these years from every statistic.
	SkippedYears []int

	// SketchAccuracy is the relative accuracy of the distribution quantiles.
	SketchAccuracy float64
}

// DefaultOptions returns default aggregator options.
func DefaultOptions() Options {
	return Options{
		BatchSize:      defaults.DefaultChunkSize,
		TopK:           defaults.DefaultTopCounts,
		SketchAccuracy: defaults.DefaultSketchAccuracy,
	}
}

// Aggregator computes statistics over stores.
type Aggregator struct {
	opts    Options
	skipped map[int]struct{}
	log     *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(opts Options) *Aggregator {
	d := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = d.BatchSize
	}
	if opts.TopK <= 0 {
		opts.TopK = d.TopK
	}
	if opts.SketchAccuracy <= 0 || opts.SketchAccuracy >= 1 {
		opts.SketchAccuracy = d.SketchAccuracy
	}

	skipped := make(map[int]struct{}, len(opts.SkippedYears))
	for _, y := range opts.SkippedYears {
		skipped[y] = struct{}{}
	}

	return &Aggregator{
		opts:    opts,
		skipped: skipped,
		log:     log,
	}
}

// Scan reads the store at storePath and returns its statistics.
// Cancelling ctx stops the scan between batches.
func (a *Aggregator) Scan(ctx context.Context, storePath string) (*Result, error) {
	return a.ScanAll(ctx, []string{storePath})
}

// ScanAll accumulates the statistics of several stores into one result.
// Counts of a key seen in several stores or batches are summed.
func (a *Aggregator) ScanAll(ctx context.Context, storePaths []string) (*Result, error) {
	result := newResult(a.opts.TopK, a.opts.SketchAccuracy)

	for _, path := range storePaths {
		if err := a.scanInto(ctx, path, result); err != nil {
			return nil, err
		}
	}

	a.log.Info("scan complete",
		"stores", len(storePaths),
		"records", result.total,
		"skipped", result.skipped,
		"projects", len(result.projects),
		"batches", result.batches)
	return result, nil
}

func (a *Aggregator) scanInto(ctx context.Context, path string, result *Result) error {
	r, err := parquet.OpenStore(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := r.ReadBatch(a.opts.BatchSize)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		for i := range rows {
			if _, skip := a.skipped[int(rows[i].Year)]; skip {
				result.skipped++
				continue
			}
			result.add(&rows[i])
		}
		result.batches++

		a.log.Debug("batch aggregated", "path", path, "rows", len(rows), "total", result.total)
	}
}

// Dump streams every row of the store to sink, batch by batch, and returns
// the number of rows written. Rows of skipped years are not filtered.
func (a *Aggregator) Dump(ctx context.Context, storePath string, sink Sink) (int64, error) {
	r, err := parquet.OpenStore(storePath)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		rows, err := r.ReadBatch(a.opts.BatchSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}

		for i := range rows {
			if err := sink.Write(rows[i]); err != nil {
				return n, xerrors.Wrapf(err, "dump %s", storePath)
			}
			n++
		}
	}

	a.log.Info("dump complete", "path", storePath, "rows", n)
	return n, nil
}
