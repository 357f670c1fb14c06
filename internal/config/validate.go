package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logging"
)

// Validate checks the configuration for errors.
// Everything needed to parse logs and analyze stores is checked; discovery
// settings are checked separately by ValidateDiscovery.
func (c *Config) Validate() error {
	var errs []error

	// Filter
	if err := c.ValidateFilter(); err != nil {
		errs = append(errs, err)
	}

	// Sizes
	if c.LogFileBatchSize <= 0 {
		errs = append(errs, xerrors.NewValidation("log_file_batch_size", "must be greater than 0"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, xerrors.NewValidation("chunk_size", "must be greater than 0"))
	}
	if c.Workers <= 0 {
		errs = append(errs, xerrors.NewValidation("workers", "must be greater than 0"))
	}
	if c.TopCounts <= 0 {
		errs = append(errs, xerrors.NewValidation("top_counts", "must be greater than 0"))
	}

	// Storage
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	// Output
	if err := c.Output.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}

	// Logging
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, xerrors.NewValidation("logging.level", err.Error()))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateFilter checks the relevance filter lists.
func (c *Config) ValidateFilter() error {
	var errs []error

	lists := []struct {
		name   string
		values []string
	}{
		{"resource_identifiers", c.ResourceIdentifiers},
		{"completeness", c.Completeness},
		{"accession_pattern", c.AccessionPattern},
	}
	for _, l := range lists {
		if len(l.values) == 0 {
			errs = append(errs, xerrors.NewMissingField(l.name))
			continue
		}
		for i, v := range l.values {
			if strings.TrimSpace(v) == "" {
				errs = append(errs, xerrors.NewValidation(l.name, fmt.Sprintf("entry %d is empty", i)))
			}
		}
	}

	for _, p := range c.AccessionPattern {
		if _, err := regexp.Compile(NormalizePattern(p)); err != nil {
			errs = append(errs, xerrors.NewInvalidPattern(p, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateDiscovery checks the settings used to locate log files.
func (c *Config) ValidateDiscovery() error {
	v := xerrors.NewValidationErrors()

	if c.RootDir == "" {
		v.AddMissing("root_dir")
	}
	if len(c.Protocols) == 0 {
		v.AddMissing("protocols")
	}
	if len(c.PublicPrivate) == 0 {
		v.AddMissing("public_private")
	}

	return v.Err()
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	var errs []error

	validAlgorithms := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"lz4":    true,
		"gzip":   true,
		"none":   true,
		"":       true, // Empty defaults to snappy
	}
	if !validAlgorithms[c.Compression] {
		errs = append(errs, errors.New("compression must be one of: snappy, zstd, lz4, gzip, none"))
	}

	switch strings.ToLower(c.WriteStrategy) {
	case "batch", "all", "":
	default:
		errs = append(errs, errors.New("write_strategy must be one of: batch, all"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the output configuration.
func (c *OutputConfig) Validate() error {
	switch c.Format {
	case "json", "jsonl", "":
		return nil
	default:
		return errors.New("format must be one of: json, jsonl")
	}
}

// NormalizePattern collapses doubled backslashes that YAML quoting leaves
// in accession patterns ("PXD\\d{6}" -> "PXD\d{6}").
func NormalizePattern(p string) string {
	return strings.ReplaceAll(p, `\\`, `\`)
}
