package logfile

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/storage/types"
)

var readerLog = logging.Component("reader")

// Stats counts what a reader saw.
type Stats struct {
	Lines   int64
	Records int64
	Batches int64
	skipped [numReasons]int64
}

// SkippedBy returns the number of lines dropped for reason.
func (s Stats) SkippedBy(reason SkipReason) int64 {
	if reason <= Accepted || reason >= numReasons {
		return 0
	}
	return s.skipped[reason]
}

// Skipped returns the number of dropped lines.
func (s Stats) Skipped() int64 {
	var n int64
	for r := SkipFieldCount; r < numReasons; r++ {
		n += s.skipped[r]
	}
	return n
}

// BatchReader streams accepted records of one log in batches of a fixed
// size. Every batch is full except possibly the last; empty batches are
// never yielded. A reader is forward-only and cannot be restarted.
//
//	r := logfile.OpenBatchReader(path, ex, 1000)
//	defer r.Close()
//	for r.Next() {
//		consume(r.Batch())
//	}
//	if err := r.Err(); err != nil { ... }
type BatchReader struct {
	path      string
	extractor *Extractor
	batchSize int
	log       *slog.Logger

	open    func() (io.Reader, error)
	closers []io.Closer
	lines   *bufio.Reader

	batch  *types.Batch
	lineNo int
	stats  Stats
	err    error
	done   bool
}

// OpenBatchReader returns a reader over the gzip-compressed log at path.
// The file is opened on the first call to Next. A missing or corrupt source
// does not panic or return an error here: it ends iteration, is logged, and
// is reported by Err.
func OpenBatchReader(path string, extractor *Extractor, batchSize int) *BatchReader {
	r := newBatchReader(path, extractor, batchSize)
	r.open = func() (io.Reader, error) {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %w", xerrors.ErrSourceNotFound, err)
			}
			return nil, err
		}
		r.closers = append(r.closers, f)

		gz, err := gzip.NewReader(bufio.NewReaderSize(f, defaults.DefaultReadBufferSize))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, gz)
		return gz, nil
	}
	return r
}

// NewBatchReader returns a reader over uncompressed log lines from src.
// name identifies the source in diagnostics.
func NewBatchReader(src io.Reader, name string, extractor *Extractor, batchSize int) *BatchReader {
	r := newBatchReader(name, extractor, batchSize)
	r.open = func() (io.Reader, error) { return src, nil }
	return r
}

func newBatchReader(path string, extractor *Extractor, batchSize int) *BatchReader {
	if batchSize <= 0 {
		batchSize = defaults.DefaultLogFileBatchSize
	}
	return &BatchReader{
		path:      path,
		extractor: extractor.WithSource(path),
		batchSize: batchSize,
		log:       readerLog.With("source", path),
	}
}

// Next advances to the next batch. It returns false when the source is
// exhausted or could not be read further.
func (r *BatchReader) Next() bool {
	if r.done {
		return false
	}
	if r.lines == nil {
		src, err := r.open()
		if err != nil {
			r.fail(err)
			return false
		}
		r.lines = bufio.NewReaderSize(src, defaults.DefaultReadBufferSize)
	}

	r.batch = types.NewBatch(r.batchSize)

	for {
		line, err := r.lines.ReadString('\n')
		if len(line) > 0 && (err == nil || err == io.EOF) {
			r.consume(line)
		}

		if err != nil {
			if err != io.EOF {
				// The unyielded remainder is dropped with the source.
				r.fail(err)
				return false
			}
			r.done = true
			ok := r.yield()
			r.log.Debug("source exhausted",
				"lines", r.stats.Lines,
				"records", r.stats.Records,
				"skipped", r.stats.Skipped(),
				"batches", r.stats.Batches)
			return ok
		}

		if r.batch.Len() >= r.batchSize {
			return r.yield()
		}
	}
}

func (r *BatchReader) consume(line string) {
	r.lineNo++
	r.stats.Lines++

	rec, reason := r.extractor.ParseLine(r.lineNo, strings.ToValidUTF8(line, "\uFFFD"))
	if reason.Skipped() {
		r.stats.skipped[reason]++
		return
	}
	r.stats.Records++
	r.batch.Add(rec)
}

func (r *BatchReader) yield() bool {
	if r.batch.Len() == 0 {
		return false
	}
	r.stats.Batches++
	return true
}

func (r *BatchReader) fail(err error) {
	r.done = true
	r.batch = nil
	r.err = &xerrors.SourceError{Path: r.path, Line: r.lineNo, Err: err}
	r.log.Warn("failed to read log file, skipping remainder",
		"line_no", r.lineNo,
		"error", err)
}

// Batch returns the batch produced by the last successful call to Next.
// The batch is not reused by later calls.
func (r *BatchReader) Batch() types.Batch {
	if r.batch == nil {
		return types.Batch{}
	}
	return *r.batch
}

// Err returns the source error that ended iteration, if any. It is always
// a *SourceError wrapping ErrSourceCorrupted.
func (r *BatchReader) Err() error {
	return r.err
}

// Stats returns the counters accumulated so far.
func (r *BatchReader) Stats() Stats {
	return r.stats
}

// Path returns the source name.
func (r *BatchReader) Path() string {
	return r.path
}

// Close releases the underlying file. It is safe to call more than once.
func (r *BatchReader) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	r.done = true
	return xerrors.Join(errs...)
}
