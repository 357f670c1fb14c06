package parquet

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/storage/types"
)

var log = logging.Component("writer")

// Mode selects how a Writer builds its store.
type Mode int

const (
	// ModeBatch buffers appended records and writes one row group per
	// BatchSize records. Memory is bounded by the batch size.
	ModeBatch Mode = iota

	// ModeBulk writes a complete in-memory record set at once.
	ModeBulk
)

// ParseMode parses a write strategy name: "batch" or "all".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "batch", "":
		return ModeBatch, nil
	case "all", "bulk":
		return ModeBulk, nil
	default:
		return ModeBatch, xerrors.NewValidation("storage.write_strategy", fmt.Sprintf("unknown strategy %q", s))
	}
}

func (m Mode) String() string {
	if m == ModeBulk {
		return "all"
	}
	return "batch"
}

// ErrWrongMode is returned when an operation does not belong to the
// writer's mode.
var ErrWrongMode = xerrors.New("operation not supported in this write mode")

// ErrAlreadyWritten is returned by a second WriteAll on a bulk writer.
var ErrAlreadyWritten = xerrors.New("store already written")

// Options configures the Parquet writer.
type Options struct {
	Mode Mode

	// BatchSize is the number of rows per row group in batch mode.
	BatchSize int

	// Compression algorithm
	Compression CompressionType
}

// DefaultOptions returns default writer options.
func DefaultOptions() Options {
	return Options{
		Mode:        ModeBatch,
		BatchSize:   defaults.DefaultLogFileBatchSize,
		Compression: ParseCompressionType(defaults.DefaultCompression),
	}
}

// Writer writes transfer records to one store.
//
// The output file is created on the first physical write, so a writer that
// never receives a record leaves nothing behind. Finalize must be called
// exactly once after the last write; the writer cannot be reused afterwards.
// Row groups already flushed are not rolled back when a later write fails.
type Writer struct {
	mu   sync.Mutex
	path string
	opts Options
	log  *slog.Logger

	file   *os.File
	writer *parquet.GenericWriter[TransferRow]
	buffer []TransferRow

	rowCount  int64
	rowGroups int
	written   bool // bulk unit attempted
	finalized bool
}

// NewWriter creates a writer for the store at path.
func NewWriter(path string, opts Options) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.DefaultLogFileBatchSize
	}
	w := &Writer{
		path: path,
		opts: opts,
		log:  log.With("path", path, "mode", opts.Mode.String()),
	}
	if opts.Mode == ModeBatch {
		w.buffer = make([]TransferRow, 0, opts.BatchSize)
	}
	return w
}

// WriteAll writes records as a single unit. It returns false without
// touching the file system when records is empty.
func (w *Writer) WriteAll(records []types.TransferRecord) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return false, w.usageError("write_all", xerrors.ErrWriterFinalized)
	}
	if w.opts.Mode != ModeBulk {
		return false, w.usageError("write_all", ErrWrongMode)
	}
	if len(records) == 0 {
		w.log.Debug("no records to write")
		return false, nil
	}
	if w.written {
		return false, w.usageError("write_all", ErrAlreadyWritten)
	}
	w.written = true

	if err := w.flush(RecordsToRows(records)); err != nil {
		w.abort()
		return false, err
	}
	if err := w.close(); err != nil {
		return true, err
	}

	w.log.Info("store written", "rows", w.rowCount)
	return true, nil
}

// Append adds records to the buffer and writes one row group for every
// BatchSize records buffered. A trailing partial chunk stays buffered until
// more records arrive or Finalize is called. It reports whether anything was
// written.
func (w *Writer) Append(records []types.TransferRecord) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return false, w.usageError("append", xerrors.ErrWriterFinalized)
	}
	if w.opts.Mode != ModeBatch {
		return false, w.usageError("append", ErrWrongMode)
	}

	for i := range records {
		w.buffer = append(w.buffer, RecordToRow(&records[i]))
	}

	flushed := false
	for len(w.buffer) >= w.opts.BatchSize {
		if err := w.flush(w.buffer[:w.opts.BatchSize]); err != nil {
			return flushed, err
		}
		n := copy(w.buffer, w.buffer[w.opts.BatchSize:])
		w.buffer = w.buffer[:n]
		flushed = true
	}
	return flushed, nil
}

// Finalize flushes any buffered remainder, even a short one, and closes the
// store. It reports whether data was written during the call. Calling it a
// second time returns ErrWriterFinalized.
func (w *Writer) Finalize() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return false, w.usageError("finalize", xerrors.ErrWriterFinalized)
	}
	w.finalized = true

	flushed := false
	if w.opts.Mode == ModeBatch && len(w.buffer) > 0 {
		if err := w.flush(w.buffer); err != nil {
			w.abort()
			return false, err
		}
		w.buffer = w.buffer[:0]
		flushed = true
	}

	if err := w.close(); err != nil {
		return flushed, err
	}

	if w.rowCount > 0 {
		w.log.Info("store finalized", "rows", w.rowCount, "row_groups", w.rowGroups)
	} else {
		w.log.Debug("store finalized without data")
	}
	return flushed, nil
}

// flush writes rows as one row group, opening the store if needed.
func (w *Writer) flush(rows []TransferRow) error {
	if err := w.open(); err != nil {
		return err
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return &xerrors.WriteError{Path: w.path, Op: "write", Rows: len(rows), Err: err}
	}
	if err := w.writer.Flush(); err != nil {
		return &xerrors.WriteError{Path: w.path, Op: "flush", Rows: len(rows), Err: err}
	}

	w.rowCount += int64(n)
	w.rowGroups++
	w.log.Debug("row group written", "rows", n, "total", w.rowCount)
	return nil
}

func (w *Writer) open() error {
	if w.writer != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return &xerrors.WriteError{Path: w.path, Op: "create directory", Err: err}
	}

	f, err := os.Create(w.path)
	if err != nil {
		return &xerrors.WriteError{Path: w.path, Op: "create file", Err: err}
	}

	w.file = f
	w.writer = parquet.NewGenericWriter[TransferRow](f,
		parquet.Compression(getCompression(w.opts.Compression)),
	)
	return nil
}

func (w *Writer) close() error {
	if w.writer == nil {
		return nil
	}

	err := w.writer.Close()
	w.writer = nil
	if err != nil {
		w.file.Close()
		return &xerrors.WriteError{Path: w.path, Op: "close writer", Err: err}
	}
	if err := w.file.Close(); err != nil {
		return &xerrors.WriteError{Path: w.path, Op: "close file", Err: err}
	}
	return nil
}

// abort closes the file handle after a failed write without writing a footer.
func (w *Writer) abort() {
	if w.file != nil {
		w.file.Close()
	}
	w.writer = nil
}

func (w *Writer) usageError(op string, err error) error {
	return &xerrors.WriteError{Path: w.path, Op: op, Err: err}
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// RowGroups returns the number of row groups written.
func (w *Writer) RowGroups() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowGroups
}

// Buffered returns the number of records waiting for a flush.
func (w *Writer) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}
