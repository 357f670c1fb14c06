// Package query runs cross-store statistics with DuckDB.
//
// DuckDB reads the stores directly through read_parquet, so counts over many
// daily stores are computed without loading them into the process.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/xferstat/internal/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/storage/types"
)

var log = logging.Component("query")

// Service provides query capabilities over stores.
type Service struct {
	db  *sql.DB
	log *slog.Logger

	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted atomic.Int64
	RowsReturned    atomic.Int64
	Errors          atomic.Int64
}

// FileCountsResult holds the downloads per file and per accession over a
// set of stores.
type FileCountsResult struct {
	// Files is ordered by accession then filename.
	Files []types.FileCount

	// Projects is ordered by count descending, ties by accession.
	Projects []types.TopCount
}

// New creates a query service backed by an in-memory DuckDB database.
func New(cfg config.QueryConfig) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.MemoryLimit != "" {
		_, err = db.Exec(fmt.Sprintf("SET memory_limit=%s", quote(cfg.MemoryLimit)))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		db:  db,
		log: log,
	}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// FileCounts counts downloads per (accession, filename) and per accession
// over all stores in paths.
func (s *Service) FileCounts(ctx context.Context, paths []string) (*FileCountsResult, error) {
	if len(paths) == 0 {
		return nil, xerrors.ErrNoInputs
	}
	source := readParquet(paths)

	files, err := s.queryFiles(ctx, source)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, xerrors.Wrap(err, "query file counts")
	}

	projects, err := s.queryProjects(ctx, source)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, xerrors.Wrap(err, "query project counts")
	}

	s.log.Info("file counts computed",
		"stores", len(paths),
		"files", len(files),
		"projects", len(projects))

	return &FileCountsResult{Files: files, Projects: projects}, nil
}

func (s *Service) queryFiles(ctx context.Context, source string) ([]types.FileCount, error) {
	query := `
		SELECT accession, filename, count(*) AS count
		FROM ` + source + `
		GROUP BY accession, filename
		ORDER BY accession, filename
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.FileCount
	for rows.Next() {
		var r types.FileCount
		if err := rows.Scan(&r.Accession, &r.Filename, &r.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.stats.QueriesExecuted.Add(1)
	s.stats.RowsReturned.Add(int64(len(results)))
	return results, nil
}

func (s *Service) queryProjects(ctx context.Context, source string) ([]types.TopCount, error) {
	query := `
		SELECT accession, count(*) AS count
		FROM ` + source + `
		GROUP BY accession
		ORDER BY count DESC, accession
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.TopCount
	for rows.Next() {
		var r types.TopCount
		if err := rows.Scan(&r.Accession, &r.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.stats.QueriesExecuted.Add(1)
	s.stats.RowsReturned.Add(int64(len(results)))
	return results, nil
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// This is useful for ad-hoc queries against stores.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.stats.QueriesExecuted.Add(1)
	s.stats.RowsReturned.Add(int64(len(results)))

	return results, rows.Err()
}

// Stats returns query statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		QueriesExecuted: s.stats.QueriesExecuted.Load(),
		RowsReturned:    s.stats.RowsReturned.Load(),
		Errors:          s.stats.Errors.Load(),
	}
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// readParquet builds a read_parquet table function over an explicit file list.
func readParquet(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = quote(p)
	}
	return "read_parquet([" + strings.Join(quoted, ", ") + "])"
}

// quote renders s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
