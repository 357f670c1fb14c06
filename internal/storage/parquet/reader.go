package parquet

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
)

// openFile opens path and parses its footer, so that a file that is not a
// store fails here with an error.
func openFile(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size(), parquet.ReadBufferSize(defaults.DefaultReadBufferSize))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("open parquet %s: %w: %w", path, xerrors.ErrRead, err)
	}
	return f, pf, nil
}

// StoreReader reads transfer rows from a store in caller-sized batches.
type StoreReader struct {
	file   *os.File
	reader *parquet.GenericReader[TransferRow]
	path   string
	rows   []TransferRow
}

// OpenStore opens the store at path.
func OpenStore(path string) (*StoreReader, error) {
	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}

	reader := parquet.NewGenericReader[TransferRow](pf)

	return &StoreReader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadBatch reads up to n rows. The returned slice is reused by the next
// call. At the end of the store it returns io.EOF and no rows.
func (r *StoreReader) ReadBatch(n int) ([]TransferRow, error) {
	if cap(r.rows) < n {
		r.rows = make([]TransferRow, n)
	}
	rows := r.rows[:n]

	count, err := r.reader.Read(rows)
	if count > 0 {
		return rows[:count], nil
	}
	if err == nil || err == io.EOF {
		return nil, io.EOF
	}
	return nil, fmt.Errorf("read %s: %w: %w", r.path, xerrors.ErrRead, err)
}

// NumRows returns the total number of rows in the store.
func (r *StoreReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *StoreReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *StoreReader) Path() string {
	return r.path
}

// =============================================================================
// Untyped rows
// =============================================================================

// RowReader reads the rows of any Parquet file without a Go type, row group
// by row group.
type RowReader struct {
	file   *os.File
	pf     *parquet.File
	path   string
	groups []parquet.RowGroup
	group  int
	rows   parquet.Rows
	buf    []parquet.Row
}

// OpenRows opens path for untyped reading.
func OpenRows(path string) (*RowReader, error) {
	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return &RowReader{
		file:   f,
		pf:     pf,
		path:   path,
		groups: pf.RowGroups(),
	}, nil
}

// Schema returns the file schema.
func (r *RowReader) Schema() *parquet.Schema {
	return r.pf.Schema()
}

// NumRows returns the total number of rows in the file.
func (r *RowReader) NumRows() int64 {
	return r.pf.NumRows()
}

// ReadRows reads up to n rows and returns them with the schema of the row
// group they came from. The rows are only valid until the next call. At the
// end of the file it returns io.EOF.
func (r *RowReader) ReadRows(n int) ([]parquet.Row, *parquet.Schema, error) {
	if cap(r.buf) < n {
		r.buf = make([]parquet.Row, n)
	}
	buf := r.buf[:n]

	for {
		if r.rows == nil {
			if r.group >= len(r.groups) {
				return nil, nil, io.EOF
			}
			r.rows = r.groups[r.group].Rows()
			r.group++
		}

		count, err := r.rows.ReadRows(buf)
		if count > 0 {
			if err == io.EOF {
				// Keep the group open; the next call observes EOF again.
				err = nil
			}
			if err != nil {
				return nil, nil, fmt.Errorf("read %s: %w: %w", r.path, xerrors.ErrRead, err)
			}
			return buf[:count], r.rows.Schema(), nil
		}
		if err != nil && err != io.EOF {
			return nil, nil, fmt.Errorf("read %s: %w: %w", r.path, xerrors.ErrRead, err)
		}

		r.rows.Close()
		r.rows = nil
	}
}

// Close closes the reader.
func (r *RowReader) Close() error {
	if r.rows != nil {
		r.rows.Close()
		r.rows = nil
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *RowReader) Path() string {
	return r.path
}

// RowWriter writes untyped rows with a fixed schema, one row group per
// WriteRows call.
type RowWriter struct {
	path     string
	file     *os.File
	writer   *parquet.Writer
	rowCount int64
}

// NewRowWriter creates path and prepares it for rows of schema.
func NewRowWriter(path string, schema *parquet.Schema, compression CompressionType) (*RowWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &xerrors.WriteError{Path: path, Op: "create file", Err: err}
	}

	writer := parquet.NewWriter(f, schema, parquet.Compression(getCompression(compression)))

	return &RowWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// WriteRows writes rows as one row group.
func (w *RowWriter) WriteRows(rows []parquet.Row) error {
	n, err := w.writer.WriteRows(rows)
	if err != nil {
		return &xerrors.WriteError{Path: w.path, Op: "write", Rows: len(rows), Err: err}
	}
	if err := w.writer.Flush(); err != nil {
		return &xerrors.WriteError{Path: w.path, Op: "flush", Rows: len(rows), Err: err}
	}
	w.rowCount += int64(n)
	return nil
}

// Close writes the footer and closes the file.
func (w *RowWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return &xerrors.WriteError{Path: w.path, Op: "close writer", Err: err}
	}
	if err := w.file.Close(); err != nil {
		return &xerrors.WriteError{Path: w.path, Op: "close file", Err: err}
	}
	return nil
}

// Abort closes the file without writing a footer.
func (w *RowWriter) Abort() {
	w.file.Close()
}

// RowCount returns the number of rows written.
func (w *RowWriter) RowCount() int64 {
	return w.rowCount
}

// =============================================================================
// Inspection
// =============================================================================

// ColumnInfo describes one leaf column of a store.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path      string       `json:"path"`
	Size      int64        `json:"size"`
	NumRows   int64        `json:"num_rows"`
	RowGroups []int64      `json:"row_groups"`
	Columns   []ColumnInfo `json:"columns"`
	CreatedBy string       `json:"created_by,omitempty"`
	Signature string       `json:"signature"`
}

// Inspect returns information about a Parquet file.
func Inspect(path string) (*FileInfo, error) {
	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := &FileInfo{
		Path:      path,
		Size:      pf.Size(),
		NumRows:   pf.NumRows(),
		CreatedBy: pf.Metadata().CreatedBy,
		Signature: SchemaSignature(pf.Schema()),
	}

	for _, rg := range pf.RowGroups() {
		info.RowGroups = append(info.RowGroups, rg.NumRows())
	}

	for _, field := range pf.Schema().Fields() {
		info.Columns = append(info.Columns, ColumnInfo{
			Name:     field.Name(),
			Type:     field.Type().String(),
			Optional: field.Optional(),
		})
	}

	return info, nil
}
