package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logfile"
	"github.com/xtxerr/xferstat/internal/storage/parquet"
	fixtures "github.com/xtxerr/xferstat/internal/testing"
)

func newService(t *testing.T, opts Options) *Service {
	t.Helper()

	filter, err := logfile.NewFilter(fixtures.Prefixes, fixtures.Statuses, fixtures.Accessions)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	return New(logfile.NewExtractor(filter), opts, nil)
}

func readRows(t *testing.T, path string) []parquet.TransferRow {
	t.Helper()

	r, err := parquet.OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer r.Close()

	var out []parquet.TransferRow
	for {
		rows, err := r.ReadBatch(7)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ReadBatch: %v", err)
		}
		out = append(out, rows...)
	}
}

func failedLine() string {
	l := fixtures.DefaultLine()
	l.Status = "failed"
	return l.String()
}

func TestStorePath(t *testing.T) {
	tests := []struct {
		log  string
		want string
	}{
		{"/logs/http/public/2023/a.tsv.gz", "/out/a.parquet"},
		{"/logs/b.tsv", "/out/b.parquet"},
		{"c", "/out/c.parquet"},
	}

	for _, tt := range tests {
		if got := StorePath("/out", tt.log); got != tt.want {
			t.Errorf("StorePath(%q) = %q, want %q", tt.log, got, tt.want)
		}
	}
}

func TestStorePaths(t *testing.T) {
	logs := []string{
		"/logs/http/public/2023/01/day.tsv.gz",
		"/logs/ftp/public/2023/01/day.tsv.gz",
		"/logs/ftp/public/2023/01/night.tsv.gz",
		"/logs/http/private/2023/01/other.tsv.gz",
	}

	got, err := StorePaths("/out", logs)
	if err != nil {
		t.Fatalf("StorePaths: %v", err)
	}
	want := []string{
		"/out/http_public_2023_01_day.parquet",
		"/out/ftp_public_2023_01_day.parquet",
		"/out/night.parquet",
		"/out/other.parquet",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("store %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestStorePathsDuplicateLog(t *testing.T) {
	logs := []string{"/logs/a.tsv.gz", "/logs/./a.tsv.gz"}
	if _, err := StorePaths("/out", logs); !xerrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	lines := append(fixtures.Lines(25, "PXD000001", "PXD000002"), failedLine(), "short\tline")
	logPath := fixtures.WriteGzipLog(t, dir, "a.tsv.gz", lines)
	storePath := filepath.Join(dir, "out", "a.parquet")

	svc := newService(t, Options{BatchSize: 10})
	res, err := svc.ProcessFile(context.Background(), logPath, storePath)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if res.SourceErr != nil {
		t.Errorf("unexpected source error: %v", res.SourceErr)
	}
	if res.Stats.Lines != 27 || res.Stats.Records != 25 || res.Stats.Skipped() != 2 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}
	if res.Rows != 25 || !res.Written {
		t.Errorf("expected 25 rows written, got %d", res.Rows)
	}

	rows := readRows(t, storePath)
	if len(rows) != 25 {
		t.Fatalf("expected 25 rows in store, got %d", len(rows))
	}
	if rows[1].Accession != "PXD000002" || rows[1].DateString() != "2023-01-01" {
		t.Errorf("unexpected row: %+v", rows[1])
	}

	info, err := parquet.Inspect(storePath)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(info.RowGroups) != 3 {
		t.Errorf("expected 3 row groups of at most 10 rows, got %v", info.RowGroups)
	}

	m := svc.Metrics()
	if got := testutil.ToFloat64(m.LinesRead); got != 27 {
		t.Errorf("expected 27 lines read, got %f", got)
	}
	if got := testutil.ToFloat64(m.LinesSkipped.WithLabelValues(logfile.SkipStatus.String())); got != 1 {
		t.Errorf("expected 1 status skip, got %f", got)
	}
	if got := testutil.ToFloat64(m.LinesSkipped.WithLabelValues(logfile.SkipFieldCount.String())); got != 1 {
		t.Errorf("expected 1 field count skip, got %f", got)
	}
	if got := testutil.ToFloat64(m.RowsWritten); got != 25 {
		t.Errorf("expected 25 rows written, got %f", got)
	}
}

func TestProcessFileBulk(t *testing.T) {
	dir := t.TempDir()
	logPath := fixtures.WriteGzipLog(t, dir, "a.tsv.gz", fixtures.Lines(12))
	storePath := filepath.Join(dir, "a.parquet")

	svc := newService(t, Options{BatchSize: 5, Writer: parquet.Options{Mode: parquet.ModeBulk}})
	res, err := svc.ProcessFile(context.Background(), logPath, storePath)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if res.Rows != 12 {
		t.Errorf("expected 12 rows, got %d", res.Rows)
	}

	info, err := parquet.Inspect(storePath)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(info.RowGroups) != 1 {
		t.Errorf("expected a single row group, got %v", info.RowGroups)
	}
}

func TestProcessFileNoRelevantLines(t *testing.T) {
	dir := t.TempDir()
	logPath := fixtures.WriteGzipLog(t, dir, "a.tsv.gz", []string{failedLine()})
	storePath := filepath.Join(dir, "a.parquet")

	res, err := newService(t, Options{}).ProcessFile(context.Background(), logPath, storePath)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if res.Written {
		t.Error("expected nothing written")
	}
	if _, err := os.Stat(storePath); !os.IsNotExist(err) {
		t.Error("expected no store file")
	}
}

func TestProcessFileCorruptSource(t *testing.T) {
	dir := t.TempDir()
	logPath := fixtures.WriteCorruptLog(t, dir, "bad.tsv.gz")

	res, err := newService(t, Options{}).ProcessFile(context.Background(), logPath, filepath.Join(dir, "bad.parquet"))
	if err != nil {
		t.Fatalf("expected corruption to be absorbed, got %v", err)
	}

	var srcErr *xerrors.SourceError
	if !xerrors.As(res.SourceErr, &srcErr) {
		t.Fatalf("expected SourceError, got %v", res.SourceErr)
	}
	if !xerrors.Is(res.SourceErr, xerrors.ErrSourceCorrupted) {
		t.Error("expected ErrSourceCorrupted")
	}
	if res.Written {
		t.Error("expected nothing written")
	}
}

func TestProcessFileCancelled(t *testing.T) {
	dir := t.TempDir()
	logPath := fixtures.WriteGzipLog(t, dir, "a.tsv.gz", fixtures.Lines(5))
	storePath := filepath.Join(dir, "a.parquet")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newService(t, Options{BatchSize: 2}).ProcessFile(ctx, logPath, storePath); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProcessList(t *testing.T) {
	dir := t.TempDir()
	logs := []string{
		fixtures.WriteGzipLog(t, dir, "c.tsv.gz", fixtures.Lines(4)),
		fixtures.WriteCorruptLog(t, dir, "b.tsv.gz"),
		fixtures.WriteGzipLog(t, dir, "a.tsv.gz", fixtures.Lines(6, "PXD000003")),
		fixtures.WriteGzipLog(t, dir, "empty.tsv.gz", []string{failedLine()}),
	}
	outDir := filepath.Join(dir, "stores")

	svc := newService(t, Options{BatchSize: 3, Workers: 2})
	sum, err := svc.ProcessList(context.Background(), logs, outDir)
	if err != nil {
		t.Fatalf("ProcessList: %v", err)
	}

	if sum.Files != 4 || sum.Succeeded != 3 || sum.Failed != 1 {
		t.Errorf("expected 4 files, 3 ok, 1 failed, got %+v", sum)
	}
	if sum.Records != 10 || sum.Rows != 10 {
		t.Errorf("expected 10 records and rows, got %d and %d", sum.Records, sum.Rows)
	}

	wantStores := []string{filepath.Join(outDir, "a.parquet"), filepath.Join(outDir, "c.parquet")}
	if len(sum.Stores) != len(wantStores) {
		t.Fatalf("expected stores %v, got %v", wantStores, sum.Stores)
	}
	for i := range wantStores {
		if sum.Stores[i] != wantStores[i] {
			t.Errorf("store %d: expected %s, got %s", i, wantStores[i], sum.Stores[i])
		}
	}

	if len(sum.Failures) != 1 || sum.Failures[0].Source != logs[1] {
		t.Errorf("expected failure for %s, got %+v", logs[1], sum.Failures)
	}

	m := svc.Metrics()
	if got := testutil.ToFloat64(m.Files.WithLabelValues("ok")); got != 3 {
		t.Errorf("expected 3 ok files, got %f", got)
	}
	if got := testutil.ToFloat64(m.Files.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed file, got %f", got)
	}
}

func TestProcessListSameBaseName(t *testing.T) {
	dir := t.TempDir()
	logs := []string{
		fixtures.WriteGzipLog(t, dir, "http/public/day.tsv.gz", fixtures.Lines(4)),
		fixtures.WriteGzipLog(t, dir, "ftp/public/day.tsv.gz", fixtures.Lines(6)),
	}
	outDir := filepath.Join(dir, "stores")

	sum, err := newService(t, Options{BatchSize: 3, Workers: 2}).ProcessList(context.Background(), logs, outDir)
	if err != nil {
		t.Fatalf("ProcessList: %v", err)
	}

	if len(sum.Stores) != 2 || sum.Stores[0] == sum.Stores[1] {
		t.Fatalf("expected two distinct stores, got %v", sum.Stores)
	}
	onDisk := 0
	for _, store := range sum.Stores {
		onDisk += len(readRows(t, store))
	}
	if onDisk != 10 || sum.Rows != 10 {
		t.Errorf("expected 10 rows in summary and on disk, got %d and %d", sum.Rows, onDisk)
	}
}

func TestProcessListDuplicateLog(t *testing.T) {
	dir := t.TempDir()
	logPath := fixtures.WriteGzipLog(t, dir, "a.tsv.gz", fixtures.Lines(2))

	_, err := newService(t, Options{}).ProcessList(context.Background(), []string{logPath, logPath}, dir)
	if !xerrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestProcessFileWriteFailureLogsFinalize(t *testing.T) {
	dir := t.TempDir()
	logPath := fixtures.WriteGzipLog(t, dir, "a.tsv.gz", fixtures.Lines(5))
	storePath := filepath.Join(dir, "taken")
	if err := os.Mkdir(storePath, 0o755); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	svc := newService(t, Options{BatchSize: 2})
	svc.log = slog.New(slog.NewJSONHandler(&buf, nil))

	_, err := svc.ProcessFile(context.Background(), logPath, storePath)
	var werr *xerrors.WriteError
	if !xerrors.As(err, &werr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if !strings.Contains(buf.String(), "finalize after failed conversion") {
		t.Errorf("expected finalize failure to be logged, got %s", buf.String())
	}
}

func TestProcessListCancelled(t *testing.T) {
	dir := t.TempDir()
	logs := []string{fixtures.WriteGzipLog(t, dir, "a.tsv.gz", fixtures.Lines(4))}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newService(t, Options{})
	err := fixtures.WithTimeout(5*time.Second, func() error {
		_, err := svc.ProcessList(ctx, logs, dir)
		return err
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
