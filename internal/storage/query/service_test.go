package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/xferstat/internal/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/storage/parquet"
	"github.com/xtxerr/xferstat/internal/storage/types"
	testutil "github.com/xtxerr/xferstat/internal/testing"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(config.DefaultConfig().Query)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func writeStore(t *testing.T, name string, records []types.TransferRecord) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	w := parquet.NewWriter(path, parquet.Options{Mode: parquet.ModeBulk})
	if _, err := w.WriteAll(records); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	return path
}

func TestService_New(t *testing.T) {
	svc := newService(t)
	if svc == nil {
		t.Fatal("service is nil")
	}
}

func TestService_ExecuteSQL(t *testing.T) {
	svc := newService(t)

	results, err := svc.ExecuteSQL(context.Background(), "SELECT 1 AS value")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	stats := svc.Stats()
	if stats.QueriesExecuted != 1 {
		t.Errorf("expected 1 query executed, got %d", stats.QueriesExecuted)
	}
}

func TestService_ExecuteSQLError(t *testing.T) {
	svc := newService(t)

	if _, err := svc.ExecuteSQL(context.Background(), "SELECT FROM nowhere"); err == nil {
		t.Fatal("expected error")
	}
	if svc.Stats().Errors != 1 {
		t.Errorf("expected 1 error, got %d", svc.Stats().Errors)
	}
}

func TestService_FileCounts(t *testing.T) {
	ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	a := writeStore(t, "a.parquet", []types.TransferRecord{
		testutil.Record("PXD000001", "a.raw", ts),
		testutil.Record("PXD000001", "b.raw", ts),
		testutil.Record("PXD000002", "a.raw", ts),
	})
	b := writeStore(t, "b.parquet", []types.TransferRecord{
		testutil.Record("PXD000001", "a.raw", ts.AddDate(0, 0, 1)),
		testutil.Record("PXD000002", "a.raw", ts.AddDate(0, 0, 1)),
		testutil.Record("PXD000002", "c.raw", ts.AddDate(0, 0, 1)),
	})

	svc := newService(t)
	result, err := svc.FileCounts(context.Background(), []string{a, b})
	if err != nil {
		t.Fatalf("FileCounts: %v", err)
	}

	wantFiles := []types.FileCount{
		{Accession: "PXD000001", Filename: "a.raw", Count: 2},
		{Accession: "PXD000001", Filename: "b.raw", Count: 1},
		{Accession: "PXD000002", Filename: "a.raw", Count: 2},
		{Accession: "PXD000002", Filename: "c.raw", Count: 1},
	}
	if len(result.Files) != len(wantFiles) {
		t.Fatalf("expected %v, got %v", wantFiles, result.Files)
	}
	for i := range wantFiles {
		if result.Files[i] != wantFiles[i] {
			t.Errorf("file %d: expected %+v, got %+v", i, wantFiles[i], result.Files[i])
		}
	}

	// Equal counts order by accession.
	wantProjects := []types.TopCount{
		{Accession: "PXD000001", Count: 3},
		{Accession: "PXD000002", Count: 3},
	}
	if len(result.Projects) != len(wantProjects) {
		t.Fatalf("expected %v, got %v", wantProjects, result.Projects)
	}
	for i := range wantProjects {
		if result.Projects[i] != wantProjects[i] {
			t.Errorf("project %d: expected %+v, got %+v", i, wantProjects[i], result.Projects[i])
		}
	}
}

func TestService_FileCountsNoInputs(t *testing.T) {
	svc := newService(t)
	if _, err := svc.FileCounts(context.Background(), nil); !xerrors.Is(err, xerrors.ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got %v", err)
	}
}

func TestService_FileCountsMissingStore(t *testing.T) {
	svc := newService(t)
	missing := filepath.Join(t.TempDir(), "missing.parquet")
	if _, err := svc.FileCounts(context.Background(), []string{missing}); err == nil {
		t.Fatal("expected error for missing store")
	}
	if svc.Stats().Errors != 1 {
		t.Errorf("expected 1 error, got %d", svc.Stats().Errors)
	}
}

func TestReadParquetQuoting(t *testing.T) {
	got := readParquet([]string{"/a/b.parquet", "/it's.parquet"})
	want := "read_parquet(['/a/b.parquet', '/it''s.parquet'])"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
