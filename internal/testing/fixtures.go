package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/xtxerr/xferstat/internal/storage/types"
)

// Filter settings matching the lines produced by Line.
var (
	Prefixes   = []string{"/archive/"}
	Statuses   = []string{"complete"}
	Accessions = []string{`PXD\d{6}`}
)

// =============================================================================
// Log Lines
// =============================================================================

// Line describes one transfer log line. The zero value of a field is
// replaced by a plausible default in String.
type Line struct {
	Timestamp  string
	User       string
	Bytes      string
	Path       string
	Direction  string
	Session    string
	Status     string
	Country    string
	Region     string
	City       string
	Location   string
	Method     string
	Visibility string
}

// DefaultLine returns a relevant line for accession PXD000001.
func DefaultLine() Line {
	return Line{
		Timestamp:  "2023-01-01T23:57:16.419698061Z",
		User:       "u1",
		Bytes:      "1024",
		Path:       "/archive/2023/01/PXD000001/a.raw",
		Direction:  "OUT",
		Session:    "s1",
		Status:     "Complete",
		Country:    "DE",
		Region:     "Bavaria",
		City:       "Munich",
		Location:   "48.1,11.5",
		Method:     "ftp",
		Visibility: "public",
	}
}

// Fields returns the 13 columns of the line.
func (l Line) Fields() []string {
	return []string{
		l.Timestamp, l.User, l.Bytes, l.Path, l.Direction, l.Session, l.Status,
		l.Country, l.Region, l.City, l.Location, l.Method, l.Visibility,
	}
}

// String joins the columns with tabs.
func (l Line) String() string {
	return strings.Join(l.Fields(), "\t")
}

// With returns a copy of l whose path points to accession/filename.
func (l Line) With(accession, filename string) Line {
	l.Path = fmt.Sprintf("/archive/2023/01/%s/%s", accession, filename)
	return l
}

// Lines returns n relevant lines spread over the given accessions.
func Lines(n int, accessions ...string) []string {
	if len(accessions) == 0 {
		accessions = []string{"PXD000001"}
	}
	out := make([]string, n)
	for i := range out {
		acc := accessions[i%len(accessions)]
		out[i] = DefaultLine().With(acc, fmt.Sprintf("file%d.raw", i%3)).String()
	}
	return out
}

// =============================================================================
// Log Files
// =============================================================================

// WriteGzipLog writes lines as a gzip-compressed log to dir/name and
// returns its path.
func WriteGzipLog(t *testing.T, dir, name string, lines []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	for _, line := range lines {
		if _, err := gz.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write log: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return path
}

// WriteCorruptLog writes a file with a .tsv.gz name that is not gzip data.
func WriteCorruptLog(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("this is not gzip data\n"), 0o644); err != nil {
		t.Fatalf("write corrupt log: %v", err)
	}
	return path
}

// WriteTruncatedLog writes a valid gzip log and cuts off its tail, so that
// decompression fails after the header.
func WriteTruncatedLog(t *testing.T, dir, name string, lines []string) string {
	t.Helper()

	path := WriteGzipLog(t, dir, name, lines)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)/2], 0o644); err != nil {
		t.Fatalf("truncate log: %v", err)
	}
	return path
}

// =============================================================================
// Records
// =============================================================================

// Record builds an accepted record for accession and filename at ts.
func Record(accession, filename string, ts time.Time) types.TransferRecord {
	ts = ts.UTC()
	return types.TransferRecord{
		Timestamp:    ts,
		User:         "u1",
		Bytes:        1024,
		ResourcePath: fmt.Sprintf("/archive/%d/%02d/%s/%s", ts.Year(), ts.Month(), accession, filename),
		Direction:    types.DirectionOut,
		Session:      "s1",
		Completed:    "complete",
		Country:      "DE",
		Region:       "Bavaria",
		City:         "Munich",
		Location:     "48.1,11.5",
		Method:       "ftp",
		Visibility:   "public",
		RawTimestamp: ts.Format("2006-01-02T15:04:05.000000Z"),
		Year:         ts.Year(),
		Month:        int(ts.Month()),
		Date:         time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
		Accession:    accession,
		Filename:     filename,
	}
}

// Records returns n records spread round-robin over accessions,
// one day apart starting 2023-01-01.
func Records(n int, accessions ...string) []types.TransferRecord {
	if len(accessions) == 0 {
		accessions = []string{"PXD000001"}
	}
	start := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]types.TransferRecord, n)
	for i := range out {
		acc := accessions[i%len(accessions)]
		out[i] = Record(acc, fmt.Sprintf("file%d.raw", i%3), start.AddDate(0, 0, i))
	}
	return out
}
