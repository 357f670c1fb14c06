// Package report writes analysis results as JSON documents.
//
// A document is either a JSON array of objects or line-delimited JSON with
// one object per line. Documents are written to a temporary file and renamed
// into place on Close, so readers never observe a partial document.
package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	gojson "github.com/goccy/go-json"

	xerrors "github.com/xtxerr/xferstat/internal/errors"
)

// Format is the encoding of a document.
type Format int

const (
	// FormatJSON is a single JSON array of objects.
	FormatJSON Format = iota

	// FormatJSONL is one JSON object per line.
	FormatJSONL
)

// ParseFormat parses "json" or "jsonl".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", "":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	default:
		return FormatJSON, xerrors.NewValidation("output.format", fmt.Sprintf("unknown format %q", s))
	}
}

func (f Format) String() string {
	if f == FormatJSONL {
		return "jsonl"
	}
	return "json"
}

const tempSuffix = ".tmp"

// FileSink encodes values one at a time into a document file.
type FileSink struct {
	path   string
	tmp    string
	format Format

	f   *os.File
	buf *bufio.Writer
	enc *gojson.Encoder

	count  int64
	closed bool
}

// Create opens a sink writing a document of the given format to path.
func Create(path string, format Format) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, xerrors.Wrap(err, "create report directory")
	}

	tmp := path + tempSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", tmp)
	}

	buf := bufio.NewWriter(f)
	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	return &FileSink{
		path:   path,
		tmp:    tmp,
		format: format,
		f:      f,
		buf:    buf,
		enc:    enc,
	}, nil
}

// Write encodes v as the next object of the document.
func (s *FileSink) Write(v any) error {
	if s.closed {
		return xerrors.Wrapf(os.ErrClosed, "write %s", s.path)
	}

	if s.format == FormatJSON {
		sep := byte(',')
		if s.count == 0 {
			sep = '['
		}
		if err := s.buf.WriteByte(sep); err != nil {
			return err
		}
	}

	if err := s.enc.Encode(v); err != nil {
		return xerrors.Wrapf(err, "encode %s", s.path)
	}
	s.count++
	return nil
}

// Count returns the number of objects written.
func (s *FileSink) Count() int64 {
	return s.count
}

// Path returns the final document path.
func (s *FileSink) Path() string {
	return s.path
}

// Close completes the document and moves it into place.
func (s *FileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.format == FormatJSON {
		end := "]\n"
		if s.count == 0 {
			end = "[]\n"
		}
		if _, err := s.buf.WriteString(end); err != nil {
			s.discard()
			return err
		}
	}

	if err := s.buf.Flush(); err != nil {
		s.discard()
		return xerrors.Wrapf(err, "flush %s", s.path)
	}
	if err := s.f.Close(); err != nil {
		os.Remove(s.tmp)
		return xerrors.Wrapf(err, "close %s", s.path)
	}
	if err := os.Rename(s.tmp, s.path); err != nil {
		os.Remove(s.tmp)
		return xerrors.Wrapf(err, "rename %s", s.path)
	}
	return nil
}

// Abort drops the document. An existing file at the final path is kept.
func (s *FileSink) Abort() {
	if s.closed {
		return
	}
	s.closed = true
	s.discard()
}

func (s *FileSink) discard() {
	s.f.Close()
	os.Remove(s.tmp)
}

// WriteDocument writes items as one document.
func WriteDocument[T any](path string, format Format, items []T) error {
	sink, err := Create(path, format)
	if err != nil {
		return err
	}
	for i := range items {
		if err := sink.Write(items[i]); err != nil {
			sink.Abort()
			return err
		}
	}
	return sink.Close()
}

// WriteObject writes a single indented JSON object to path, atomically.
func WriteObject(path string, v any) error {
	data, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Wrapf(err, "encode %s", path)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xerrors.Wrap(err, "create report directory")
	}
	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return xerrors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return xerrors.Wrapf(err, "rename %s", path)
	}
	return nil
}
