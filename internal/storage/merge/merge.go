// Package merge concatenates transfer stores into one store.
//
// The output schema is pinned from the first batch of the first input and
// every later batch is checked against it. Rows are copied batch by batch,
// so the merged data set is never held in memory. The output is written to
// a temporary file and renamed into place only when the whole merge
// succeeded.
package merge

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/storage/parquet"
)

var log = logging.Component("merge")

// tempSuffix is appended to the output path while a merge is running.
const tempSuffix = ".tmp"

// Options configures a Merger.
type Options struct {
	// BatchSize is the number of rows copied per batch.
	BatchSize int

	// Compression of the merged store.
	Compression parquet.CompressionType
}

// DefaultOptions returns default merge options.
func DefaultOptions() Options {
	return Options{
		BatchSize:   defaults.DefaultChunkSize,
		Compression: parquet.ParseCompressionType(defaults.DefaultCompression),
	}
}

// Merger merges stores.
type Merger struct {
	opts  Options
	log   *slog.Logger
	stats Stats
}

// Stats holds merge statistics accumulated over the merger's lifetime.
type Stats struct {
	MergesCompleted atomic.Int64
	MergesFailed    atomic.Int64
	FilesRead       atomic.Int64
	RowsWritten     atomic.Int64
	BatchesWritten  atomic.Int64
}

// Summary describes one completed merge.
type Summary struct {
	Output    string
	Inputs    int
	Rows      int64
	Batches   int
	Signature string
}

// NewMerger creates a merger.
func NewMerger(opts Options) *Merger {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.DefaultChunkSize
	}
	return &Merger{
		opts: opts,
		log:  log,
	}
}

// ResolveManifest reads a manifest of candidate store paths, one per line.
// A file entry is kept if it exists and has the store extension; a directory
// entry contributes its store files. Anything else is ignored. It fails with
// ErrNoInputs when nothing is left.
func ResolveManifest(manifestPath string) ([]string, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, xerrors.Wrap(err, "open manifest")
	}
	defer f.Close()

	var inputs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		entry := strings.TrimSpace(sc.Text())
		if entry == "" {
			continue
		}

		info, err := os.Stat(entry)
		if err != nil {
			log.Debug("ignoring manifest entry", "entry", entry, "error", err)
			continue
		}

		if info.IsDir() {
			found, err := findStores(entry)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, found...)
			continue
		}

		if filepath.Ext(entry) == defaults.StoreExtension {
			inputs = append(inputs, entry)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Wrap(err, "read manifest")
	}

	if len(inputs) == 0 {
		return nil, xerrors.Wrapf(xerrors.ErrNoInputs, "manifest %s", manifestPath)
	}
	return inputs, nil
}

// findStores lists the store files directly inside dir, sorted.
func findStores(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read directory %s", dir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) != defaults.StoreExtension {
			continue
		}

		files = append(files, filepath.Join(dir, name))
	}

	sort.Strings(files)
	return files, nil
}

// MergeManifest resolves manifestPath and merges the stores it names.
func (m *Merger) MergeManifest(ctx context.Context, manifestPath, output string) (*Summary, error) {
	inputs, err := ResolveManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return m.Merge(ctx, inputs, output)
}

// Merge concatenates inputs into output. A batch whose schema differs from
// the pinned one aborts the merge with a *MergeSchemaError; no partial
// output is left behind on any failure. When the inputs hold no rows at all
// no output is written.
func (m *Merger) Merge(ctx context.Context, inputs []string, output string) (*Summary, error) {
	if len(inputs) == 0 {
		return nil, xerrors.ErrNoInputs
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, xerrors.Wrap(err, "create output directory")
	}

	job := &mergeJob{
		merger: m,
		tmp:    output + tempSuffix,
		sum:    &Summary{Output: output, Inputs: len(inputs)},
	}

	if err := job.run(ctx, inputs); err != nil {
		job.abort()
		m.stats.MergesFailed.Add(1)
		m.log.Error("merge failed", "output", output, "error", err)
		return nil, err
	}

	if job.writer == nil {
		m.log.Warn("inputs hold no rows, nothing written", "output", output, "inputs", len(inputs))
		return job.sum, nil
	}

	if err := job.writer.Close(); err != nil {
		os.Remove(job.tmp)
		m.stats.MergesFailed.Add(1)
		return nil, err
	}
	if err := os.Rename(job.tmp, output); err != nil {
		os.Remove(job.tmp)
		m.stats.MergesFailed.Add(1)
		return nil, xerrors.Wrap(err, "rename merged store")
	}

	m.stats.MergesCompleted.Add(1)
	m.log.Info("merge complete",
		"output", output,
		"inputs", len(inputs),
		"rows", job.sum.Rows,
		"batches", job.sum.Batches)
	return job.sum, nil
}

// mergeJob is the state of one Merge call.
type mergeJob struct {
	merger *Merger
	tmp    string
	writer *parquet.RowWriter
	pinned string
	sum    *Summary
}

func (j *mergeJob) run(ctx context.Context, inputs []string) error {
	for _, path := range inputs {
		if err := j.copyInput(ctx, path); err != nil {
			return err
		}
		j.merger.stats.FilesRead.Add(1)
	}
	return nil
}

func (j *mergeJob) copyInput(ctx context.Context, path string) error {
	r, err := parquet.OpenRows(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for batch := 0; ; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, schema, err := r.ReadRows(j.merger.opts.BatchSize)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		sig := parquet.SchemaSignature(schema)
		if j.writer == nil {
			w, err := parquet.NewRowWriter(j.tmp, schema, j.merger.opts.Compression)
			if err != nil {
				return err
			}
			j.writer = w
			j.pinned = sig
			j.sum.Signature = sig
			j.merger.log.Debug("schema pinned", "source", path, "schema", sig)
		} else if sig != j.pinned {
			return &xerrors.MergeSchemaError{
				Source:   path,
				Batch:    batch,
				Expected: j.pinned,
				Actual:   sig,
			}
		}

		if err := j.writer.WriteRows(rows); err != nil {
			return err
		}

		j.sum.Rows += int64(len(rows))
		j.sum.Batches++
		j.merger.stats.RowsWritten.Add(int64(len(rows)))
		j.merger.stats.BatchesWritten.Add(1)
	}
}

func (j *mergeJob) abort() {
	if j.writer != nil {
		j.writer.Abort()
	}
	os.Remove(j.tmp)
}

// Stats returns current statistics.
func (m *Merger) Stats() MergerStats {
	return MergerStats{
		MergesCompleted: m.stats.MergesCompleted.Load(),
		MergesFailed:    m.stats.MergesFailed.Load(),
		FilesRead:       m.stats.FilesRead.Load(),
		RowsWritten:     m.stats.RowsWritten.Load(),
		BatchesWritten:  m.stats.BatchesWritten.Load(),
	}
}

// MergerStats is a snapshot of Stats.
type MergerStats struct {
	MergesCompleted int64
	MergesFailed    int64
	FilesRead       int64
	RowsWritten     int64
	BatchesWritten  int64
}
