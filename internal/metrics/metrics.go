// Package metrics holds the run counters of the pipeline.
//
// Every run gets its own registry. The counters can be exported after the
// run to a node_exporter textfile.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	xerrors "github.com/xtxerr/xferstat/internal/errors"
)

const namespace = "xferstat"

// Metrics are the counters of one run.
type Metrics struct {
	registry *prometheus.Registry

	LinesRead       prometheus.Counter
	LinesSkipped    *prometheus.CounterVec
	RecordsAccepted prometheus.Counter
	BatchesWritten  prometheus.Counter
	RowsWritten     prometheus.Counter
	Files           *prometheus.CounterVec
	FileDuration    prometheus.Histogram
	RowsScanned     prometheus.Counter
}

// New creates the run counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		LinesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Log lines read.",
		}),
		LinesSkipped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_skipped_total",
			Help:      "Log lines skipped, by reason.",
		}, []string{"reason"}),
		RecordsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_accepted_total",
			Help:      "Transfer records accepted by the extractor.",
		}),
		BatchesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_written_total",
			Help:      "Record batches handed to store writers.",
		}),
		RowsWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written to stores.",
		}),
		Files: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Log files processed, by status (ok, failed).",
		}, []string{"status"}),
		FileDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time spent converting one log file.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RowsScanned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_scanned_total",
			Help:      "Store rows scanned by the aggregator.",
		}),
	}
}

// Registry returns the registry holding the counters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFile records the outcome of converting one log file.
func (m *Metrics) ObserveFile(failed bool, elapsed time.Duration) {
	status := "ok"
	if failed {
		status = "failed"
	}
	m.Files.WithLabelValues(status).Inc()
	m.FileDuration.Observe(elapsed.Seconds())
}

// WriteTextfile writes the counters in Prometheus text format to path,
// atomically. A node_exporter textfile collector can pick it up.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xerrors.Wrap(err, "create metrics directory")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return xerrors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
