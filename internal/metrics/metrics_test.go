package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAreIndependentPerRun(t *testing.T) {
	a := New()
	b := New()

	a.LinesRead.Add(5)

	if got := testutil.ToFloat64(a.LinesRead); got != 5 {
		t.Errorf("expected 5, got %f", got)
	}
	if got := testutil.ToFloat64(b.LinesRead); got != 0 {
		t.Errorf("expected a fresh registry per run, got %f", got)
	}
}

func TestLinesSkippedByReason(t *testing.T) {
	m := New()
	m.LinesSkipped.WithLabelValues("status").Add(2)
	m.LinesSkipped.WithLabelValues("prefix").Inc()

	if got := testutil.ToFloat64(m.LinesSkipped.WithLabelValues("status")); got != 2 {
		t.Errorf("expected 2 status skips, got %f", got)
	}
	if n := testutil.CollectAndCount(m.LinesSkipped); n != 2 {
		t.Errorf("expected 2 series, got %d", n)
	}
}

func TestObserveFile(t *testing.T) {
	m := New()
	m.ObserveFile(false, time.Second)
	m.ObserveFile(false, time.Second)
	m.ObserveFile(true, time.Second)

	if got := testutil.ToFloat64(m.Files.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok files, got %f", got)
	}
	if got := testutil.ToFloat64(m.Files.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed file, got %f", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RowsWritten.Add(42)

	path := filepath.Join(t.TempDir(), "textfile", "xferstat.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "xferstat_rows_written_total 42") {
		t.Errorf("expected rows_written_total in textfile, got:\n%s", data)
	}
}
