package report

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/storage/aggregate"
)

var log = logging.Component("report")

// Paths names the documents of a report set. An empty path skips that
// document.
type Paths struct {
	Projects     string
	Files        string
	Yearly       string
	Top          string
	Distribution string
	All          string
}

// Set is the input of a report set. Store and Aggregator are only needed
// when Paths.All is set.
type Set struct {
	Result     *aggregate.Result
	Aggregator *aggregate.Aggregator
	Store      string
}

// WriteAll writes every document named in paths concurrently. It returns the
// first failure; documents that failed leave no file behind.
func WriteAll(ctx context.Context, set Set, paths Paths, format Format) error {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	if paths.Projects != "" {
		g.Go(func() error {
			return WriteDocument(paths.Projects, format, set.Result.ProjectCounts())
		})
	}
	if paths.Files != "" {
		g.Go(func() error {
			return WriteDocument(paths.Files, format, set.Result.FileCounts())
		})
	}
	if paths.Yearly != "" {
		g.Go(func() error {
			return WriteDocument(paths.Yearly, format, set.Result.YearlyCounts())
		})
	}
	if paths.Top != "" {
		g.Go(func() error {
			return WriteDocument(paths.Top, format, set.Result.TopK())
		})
	}
	if paths.Distribution != "" {
		g.Go(func() error {
			d, err := set.Result.Distribution()
			if err != nil {
				return err
			}
			return WriteObject(paths.Distribution, d)
		})
	}
	if paths.All != "" {
		g.Go(func() error {
			_, err := Dump(ctx, set.Aggregator, set.Store, paths.All, format)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("report set failed", "error", err)
		return err
	}

	log.Info("report set written", "format", format.String(), "elapsed", time.Since(start))
	return nil
}

// Dump streams every row of the store into a document at path.
func Dump(ctx context.Context, agg *aggregate.Aggregator, store, path string, format Format) (int64, error) {
	sink, err := Create(path, format)
	if err != nil {
		return 0, err
	}

	n, err := agg.Dump(ctx, store, sink)
	if err != nil {
		sink.Abort()
		return n, err
	}
	return n, sink.Close()
}
