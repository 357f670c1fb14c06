package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"

	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/storage/parquet"
	"github.com/xtxerr/xferstat/internal/storage/types"
	fixtures "github.com/xtxerr/xferstat/internal/testing"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&globals{})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(args...)
	if err != nil {
		t.Fatalf("xferstat %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func writeConfig(t *testing.T, dir, root string) string {
	t.Helper()

	content := fmt.Sprintf(`root_dir: %s
protocols: [http, ftp]
public_private: [public]
resource_identifiers: ["/archive/"]
completeness: ["complete"]
accession_pattern: ['PXD\d{6}']
log_file_batch_size: 4
chunk_size: 5
workers: 2
top_counts: 2
logging:
  level: error
`, root)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "logs")
	fixtures.WriteGzipLog(t, root, "http/public/2023/01/a.tsv.gz", fixtures.Lines(9, "PXD000001", "PXD000002"))
	fixtures.WriteGzipLog(t, root, "ftp/public/2023/01/b.tsv.gz", fixtures.Lines(5, "PXD000001"))
	fixtures.WriteGzipLog(t, root, "ftp/private/2023/01/c.tsv.gz", fixtures.Lines(5, "PXD000009"))
	cfg := writeConfig(t, dir, root)

	list := filepath.Join(dir, "files.txt")
	run(t, "discover", "--config", cfg, "--output", list)

	stores := filepath.Join(dir, "stores")
	summary := filepath.Join(dir, "summary.json")
	textfile := filepath.Join(dir, "metrics", "xferstat.prom")
	run(t, "process-list", "--config", cfg, "--list", list, "--output-dir", stores,
		"--summary", summary, "--metrics-textfile", textfile)

	for _, name := range []string{"a.parquet", "b.parquet"} {
		if _, err := os.Stat(filepath.Join(stores, name)); err != nil {
			t.Errorf("expected store %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(stores, "c.parquet")); !os.IsNotExist(err) {
		t.Error("expected private log to be left out")
	}

	prom, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), "xferstat_records_accepted_total 14") {
		t.Errorf("expected 14 accepted records in metrics, got:\n%s", prom)
	}

	merged := filepath.Join(dir, "merged.parquet")
	manifest := filepath.Join(dir, "manifest.txt")
	if err := os.WriteFile(manifest, []byte(stores+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, "merge", "--config", cfg, "--manifest", manifest, "--output", merged)

	info, err := parquet.Inspect(merged)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.NumRows != 14 {
		t.Errorf("expected 14 merged rows, got %d", info.NumRows)
	}

	projects := filepath.Join(dir, "reports", "projects.json")
	top := filepath.Join(dir, "reports", "top.json")
	run(t, "analyze", "--config", cfg, "--store", merged, "--projects", projects, "--top", top)

	var counts []types.ProjectCount
	data, err := os.ReadFile(projects)
	if err != nil {
		t.Fatal(err)
	}
	if err := gojson.Unmarshal(data, &counts); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	want := []types.ProjectCount{
		{Accession: "PXD000001", Count: 10, Percentile: 100},
		{Accession: "PXD000002", Count: 4, Percentile: 50},
	}
	if len(counts) != len(want) || counts[0] != want[0] || counts[1] != want[1] {
		t.Errorf("expected %+v, got %+v", want, counts)
	}

	out := run(t, "inspect", merged)
	if !strings.Contains(out, `"num_rows": 14`) {
		t.Errorf("unexpected inspect output:\n%s", out)
	}
}

func TestFileCounts(t *testing.T) {
	dir := t.TempDir()
	stores := filepath.Join(dir, "stores")
	for i, n := range []int{3, 4} {
		w := parquet.NewWriter(filepath.Join(stores, fmt.Sprintf("s%d.parquet", i)), parquet.Options{Mode: parquet.ModeBulk})
		if _, err := w.WriteAll(fixtures.Records(n, "PXD000001")); err != nil {
			t.Fatalf("WriteAll: %v", err)
		}
	}

	grouped := filepath.Join(dir, "grouped.jsonl")
	summed := filepath.Join(dir, "summed.jsonl")
	run(t, "file-counts", "--input-dir", stores, "--output-grouped", grouped,
		"--output-summed", summed, "--format", "jsonl")

	data, err := os.ReadFile(summed)
	if err != nil {
		t.Fatal(err)
	}
	var total types.TopCount
	if err := gojson.Unmarshal(bytes.TrimSpace(data), &total); err != nil {
		t.Fatalf("decode summed: %v", err)
	}
	if total.Accession != "PXD000001" || total.Count != 7 {
		t.Errorf("expected PXD000001=7, got %+v", total)
	}

	lines := strings.Split(strings.TrimSpace(mustRead(t, grouped)), "\n")
	if len(lines) != 3 {
		t.Errorf("expected 3 file entries, got %d", len(lines))
	}
}

func TestProcessRequiresConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute("process", "--input", filepath.Join(dir, "a.tsv.gz"), "--output", filepath.Join(dir, "a.parquet")); err == nil {
		t.Fatal("expected error without --config")
	}
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfg, []byte("accession_pattern: ['PXD(']\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute("inspect", "--config", cfg, "x.parquet")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if code := exitCode(err); code != 2 {
		t.Errorf("expected exit code 2, got %d", code)
	}
}

func TestMalformedConfigExitCode(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfg, []byte("protocols: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute("inspect", "--config", cfg, "x.parquet")
	if code := exitCode(err); code != 2 {
		t.Errorf("expected exit code 2 for malformed YAML, got %d (%v)", code, err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", xerrors.ErrInvalidConfig), 2},
		{fmt.Errorf("merge: %w", xerrors.ErrMergeSchema), 3},
		{xerrors.ErrWrite, 3},
		{context.Canceled, 1},
	}

	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
