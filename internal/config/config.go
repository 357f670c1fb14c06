package config

import (
	"fmt"
	"os"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration.
// Top-level keys keep the names used by existing pipeline YAML files.
type Config struct {
	// RootDir is the root folder holding the transfer logs,
	// laid out as <root>/<protocol>/<visibility>/**/*.tsv.gz.
	RootDir string `yaml:"root_dir"`

	// Protocols are the protocol folder names to discover logs in
	// (e.g. fasp-aspera, gridftp-globus, http, ftp).
	Protocols []string `yaml:"protocols"`

	// PublicPrivate are the visibility folder names (public, private).
	PublicPrivate []string `yaml:"public_private"`

	// ResourceIdentifiers are the allowed resource path prefixes.
	ResourceIdentifiers []string `yaml:"resource_identifiers"`

	// Completeness are the allowed completion statuses. Compared
	// case-insensitively after trimming.
	Completeness []string `yaml:"completeness"`

	// AccessionPattern is the ordered list of accession regular expressions.
	// The first matching pattern wins.
	AccessionPattern []string `yaml:"accession_pattern"`

	// LogFileBatchSize is the number of records per batch when reading logs.
	LogFileBatchSize int `yaml:"log_file_batch_size"`

	// ChunkSize is the number of rows per batch when scanning stores.
	ChunkSize int `yaml:"chunk_size"`

	// Workers is the number of log files converted concurrently.
	Workers int `yaml:"workers"`

	// TopCounts is the size of the top downloads report.
	TopCounts int `yaml:"top_counts"`

	// SkippedYears are excluded from the analysis reports.
	SkippedYears []int `yaml:"skipped_years"`

	// Storage configures the columnar writer.
	Storage StorageConfig `yaml:"storage"`

	// Output configures report documents.
	Output OutputConfig `yaml:"output"`

	// Query configures the cross-store query service.
	Query QueryConfig `yaml:"query"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures run metrics export.
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig configures the columnar writer.
type StorageConfig struct {
	// Compression is the block compression: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// WriteStrategy is "batch" (bounded memory) or "all" (single write).
	WriteStrategy string `yaml:"write_strategy"`
}

// OutputConfig configures report documents.
type OutputConfig struct {
	// Format is "json" (array of objects) or "jsonl" (one object per line).
	Format string `yaml:"format"`
}

// QueryConfig configures the cross-store query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON forces JSON output. When unset, the CLI picks JSON if stderr
	// is not a terminal.
	JSON *bool `yaml:"json"`
}

// MetricsConfig configures run metrics export.
type MetricsConfig struct {
	// Textfile, if set, receives the run counters in Prometheus text format
	// after each command (node_exporter textfile collector).
	Textfile string `yaml:"textfile"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// Parse decodes YAML on top of the defaults without validating.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w: %w", xerrors.ErrInvalidConfig, err)
	}
	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
// Filter lists have no defaults and must be configured.
func DefaultConfig() *Config {
	return &Config{
		LogFileBatchSize: defaults.DefaultLogFileBatchSize,
		ChunkSize:        defaults.DefaultChunkSize,
		TopCounts:        defaults.DefaultTopCounts,
		Workers:          defaults.DefaultWorkers,
		Storage: StorageConfig{
			Compression:   defaults.DefaultCompression,
			WriteStrategy: defaults.DefaultWriteStrategy,
		},
		Output: OutputConfig{
			Format: defaults.DefaultOutputFormat,
		},
		Query: QueryConfig{
			MemoryLimit: defaults.DefaultQueryMemoryLimit,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
