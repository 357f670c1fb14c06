package testing

import (
	"bufio"
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestLineHasThirteenFields(t *testing.T) {
	fields := strings.Split(DefaultLine().String(), "\t")
	if len(fields) != 13 {
		t.Errorf("expected 13 fields, got %d", len(fields))
	}
}

func TestWriteGzipLog(t *testing.T) {
	lines := Lines(5, "PXD000001", "PXD000002")
	path := WriteGzipLog(t, t.TempDir(), "a.tsv.gz", lines)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}

	var got []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	if len(got) != len(lines) {
		t.Fatalf("expected %d lines, got %d", len(lines), len(got))
	}
	if !strings.Contains(got[1], "PXD000002") {
		t.Errorf("expected second line for PXD000002, got %q", got[1])
	}
}

func TestRecords(t *testing.T) {
	recs := Records(4, "PXD000001", "PXD000002")
	if recs[3].Accession != "PXD000002" {
		t.Errorf("expected round-robin accessions, got %s", recs[3].Accession)
	}
	if recs[1].Date.Format("2006-01-02") != "2023-01-02" {
		t.Errorf("expected 2023-01-02, got %s", recs[1].Date.Format("2006-01-02"))
	}
}

func TestGoroutineTest(t *testing.T) {
	gt := NewGoroutineTest(t)
	defer gt.Wait()

	for i := 0; i < 5; i++ {
		gt.Go(func() error {
			return AssertEqual(len(Lines(i)), i, "lines")
		})
	}
}
