// Package pipeline converts transfer logs into stores.
//
// A log is read through a BatchReader and every batch is handed to a
// columnar Writer, so memory stays bounded by the batch size. A run over a
// list of logs writes one store per log. Failures of one log are recorded
// in the run summary and never abort the run.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logfile"
	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/metrics"
	"github.com/xtxerr/xferstat/internal/storage/parquet"
	"github.com/xtxerr/xferstat/internal/storage/types"
)

var log = logging.Component("pipeline")

// Options configures a Service.
type Options struct {
	// BatchSize is the number of records per batch read from a log.
	BatchSize int

	// Workers is the number of logs converted concurrently by ProcessList.
	Workers int

	// Writer configures the store writer. Its BatchSize defaults to
	// BatchSize.
	Writer parquet.Options
}

// Service runs log conversions.
type Service struct {
	opts      Options
	extractor *logfile.Extractor
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// FileResult describes the conversion of one log.
type FileResult struct {
	Source  string
	Store   string
	Stats   logfile.Stats
	Rows    int64
	Written bool
	Elapsed time.Duration

	// SourceErr is set when the log could not be read to its end. Rows read
	// before the failure are still in the store.
	SourceErr error
}

// RunSummary describes a run over a list of logs.
type RunSummary struct {
	Files     int           `json:"files"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Lines     int64         `json:"lines"`
	Records   int64         `json:"records"`
	Skipped   int64         `json:"skipped"`
	Rows      int64         `json:"rows"`
	Stores    []string      `json:"stores"`
	Failures  []Failure     `json:"failures"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Failure names a log that failed and why.
type Failure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// New creates a pipeline service. A nil m gets fresh counters.
func New(extractor *logfile.Extractor, opts Options, m *metrics.Metrics) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.DefaultLogFileBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.DefaultWorkers
	}
	if opts.Writer.BatchSize <= 0 {
		opts.Writer.BatchSize = opts.BatchSize
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		opts:      opts,
		extractor: extractor,
		metrics:   m,
		log:       log,
	}
}

// Metrics returns the run counters.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// StorePath returns the store path of a log inside outDir: the log's base
// name with the log extension replaced by the store extension.
func StorePath(outDir, logPath string) string {
	return filepath.Join(outDir, storeName(logPath, 1)+defaults.StoreExtension)
}

// StorePaths assigns every log a distinct store inside outDir. Logs are
// named as by StorePath; logs sharing a base name are told apart by as many
// parent directories as needed, joined with "_". A log listed twice is a
// validation error.
func StorePaths(outDir string, logPaths []string) ([]string, error) {
	depth := make([]int, len(logPaths))
	names := make([]string, len(logPaths))
	seen := make(map[string]bool, len(logPaths))
	for i, p := range logPaths {
		clean := filepath.Clean(p)
		if seen[clean] {
			return nil, xerrors.NewValidation("log list", "duplicate log "+p)
		}
		seen[clean] = true
		depth[i] = 1
	}

	for {
		byName := make(map[string][]int, len(logPaths))
		for i, p := range logPaths {
			names[i] = storeName(p, depth[i])
			byName[names[i]] = append(byName[names[i]], i)
		}

		grown := false
		for name, idx := range byName {
			if len(idx) < 2 {
				continue
			}
			groupGrown := false
			for _, i := range idx {
				if depth[i] < len(pathSegments(logPaths[i])) {
					depth[i]++
					groupGrown = true
				}
			}
			if !groupGrown {
				return nil, xerrors.NewValidation("log list", "no distinct store name for "+name)
			}
			grown = true
		}
		if !grown {
			break
		}
	}

	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(outDir, name+defaults.StoreExtension)
	}
	return out, nil
}

// storeName joins the last depth segments of logPath with "_", without the
// log extension.
func storeName(logPath string, depth int) string {
	segs := pathSegments(logPath)
	if depth > len(segs) {
		depth = len(segs)
	}
	segs = append([]string(nil), segs[len(segs)-depth:]...)

	last := len(segs) - 1
	base := strings.TrimSuffix(segs[last], defaults.LogFileExtension)
	segs[last] = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Join(segs, "_")
}

func pathSegments(p string) []string {
	var segs []string
	for _, s := range strings.Split(filepath.ToSlash(filepath.Clean(p)), "/") {
		if s != "" && s != "." && s != ".." {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		segs = []string{"."}
	}
	return segs
}

// ProcessFile converts the log at logPath into the store at storePath.
// A log that cannot be read is not an error: the result carries a
// SourceErr and the store holds whatever was read before. Write failures
// and cancellation are returned as errors; cancellation is checked
// between batches.
func (s *Service) ProcessFile(ctx context.Context, logPath, storePath string) (*FileResult, error) {
	start := time.Now()
	res := &FileResult{Source: logPath, Store: storePath}
	ctx = logging.ContextWithSource(ctx, logPath)

	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return res, xerrors.Wrap(err, "create store directory")
	}

	reader := logfile.OpenBatchReader(logPath, s.extractor, s.opts.BatchSize)
	defer reader.Close()

	writer := parquet.NewWriter(storePath, s.opts.Writer)

	err := s.convert(ctx, reader, writer)
	res.Stats = reader.Stats()
	res.SourceErr = reader.Err()
	res.Rows = writer.RowCount()
	res.Written = res.Rows > 0
	res.Elapsed = time.Since(start)

	s.record(res, err)

	if err != nil {
		return res, err
	}

	logging.WithContext(ctx, s.log).Info("log converted",
		"store", storePath,
		"lines", res.Stats.Lines,
		"records", res.Stats.Records,
		"skipped", res.Stats.Skipped(),
		"rows", res.Rows,
		"elapsed", res.Elapsed)
	return res, nil
}

// convert moves every batch of reader into writer and finalizes the writer.
func (s *Service) convert(ctx context.Context, reader *logfile.BatchReader, writer *parquet.Writer) error {
	var all []types.TransferRecord

	for reader.Next() {
		if err := ctx.Err(); err != nil {
			s.finalizeAfter(writer, err)
			return err
		}

		batch := reader.Batch()
		if s.opts.Writer.Mode == parquet.ModeBulk {
			all = append(all, batch.Records...)
			continue
		}

		if _, err := writer.Append(batch.Records); err != nil {
			s.finalizeAfter(writer, err)
			return err
		}
	}

	if s.opts.Writer.Mode == parquet.ModeBulk {
		if _, err := writer.WriteAll(all); err != nil {
			return err
		}
	}

	_, err := writer.Finalize()
	return err
}

// finalizeAfter closes writer after cause ended the conversion early.
func (s *Service) finalizeAfter(writer *parquet.Writer, cause error) {
	if _, err := writer.Finalize(); err != nil {
		s.log.Error("finalize after failed conversion",
			"store", writer.Path(),
			"cause", cause,
			"error", err)
	}
}

func (s *Service) record(res *FileResult, err error) {
	m := s.metrics
	m.LinesRead.Add(float64(res.Stats.Lines))
	m.RecordsAccepted.Add(float64(res.Stats.Records))
	m.BatchesWritten.Add(float64(res.Stats.Batches))
	m.RowsWritten.Add(float64(res.Rows))
	for _, reason := range logfile.SkipReasons() {
		if n := res.Stats.SkippedBy(reason); n > 0 {
			m.LinesSkipped.WithLabelValues(reason.String()).Add(float64(n))
		}
	}
	m.ObserveFile(err != nil || res.SourceErr != nil, res.Elapsed)
}

// ProcessList converts every log in logPaths into its own store in outDir.
// Logs are converted by up to Workers goroutines. Only cancellation of ctx
// ends the run early; a list whose logs cannot be given distinct stores is
// rejected before any conversion starts.
func (s *Service) ProcessList(ctx context.Context, logPaths []string, outDir string) (*RunSummary, error) {
	start := time.Now()
	sum := &RunSummary{Files: len(logPaths)}
	var mu sync.Mutex

	storePaths, err := StorePaths(outDir, logPaths)
	if err != nil {
		return sum, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i, logPath := range logPaths {
		if gctx.Err() != nil {
			break
		}

		storePath := storePaths[i]
		g.Go(func() error {
			res, err := s.ProcessFile(gctx, logPath, storePath)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			sum.add(res, err)

			if err != nil {
				logging.WithContext(logging.ContextWithSource(ctx, logPath), s.log).
					Error("log conversion failed", "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	sum.normalize()
	sum.Elapsed = time.Since(start)

	logging.WithContext(ctx, s.log).Info("run complete",
		"files", sum.Files,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"records", sum.Records,
		"rows", sum.Rows,
		"elapsed", sum.Elapsed)
	return sum, nil
}

func (sum *RunSummary) add(res *FileResult, err error) {
	if res != nil {
		sum.Lines += res.Stats.Lines
		sum.Records += res.Stats.Records
		sum.Skipped += res.Stats.Skipped()
		sum.Rows += res.Rows
	}

	switch {
	case err != nil:
		sum.Failed++
		sum.Failures = append(sum.Failures, Failure{Source: res.Source, Error: err.Error()})
	case res.SourceErr != nil:
		sum.Failed++
		sum.Failures = append(sum.Failures, Failure{Source: res.Source, Error: res.SourceErr.Error()})
	default:
		sum.Succeeded++
	}

	if err == nil && res.Written {
		sum.Stores = append(sum.Stores, res.Store)
	}
}

// normalize orders stores and failures by path, independent of the order
// in which workers finished.
func (sum *RunSummary) normalize() {
	sort.Strings(sum.Stores)
	sort.Slice(sum.Failures, func(i, j int) bool {
		return sum.Failures[i].Source < sum.Failures[j].Source
	})
}
