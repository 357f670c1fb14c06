package main

import (
	"fmt"
	"path/filepath"
	"sort"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	defaults "github.com/xtxerr/xferstat/config"
	"github.com/xtxerr/xferstat/internal/logfile"
	"github.com/xtxerr/xferstat/internal/pipeline"
	"github.com/xtxerr/xferstat/internal/report"
	"github.com/xtxerr/xferstat/internal/storage/aggregate"
	"github.com/xtxerr/xferstat/internal/storage/merge"
	"github.com/xtxerr/xferstat/internal/storage/parquet"
	"github.com/xtxerr/xferstat/internal/storage/query"
)

// =============================================================================
// Log Conversion
// =============================================================================

func discoverCmd(g *globals) *cobra.Command {
	var root, output string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the transfer logs below the configured root directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root != "" {
				g.cfg.RootDir = root
			}
			if err := g.cfg.ValidateDiscovery(); err != nil {
				return err
			}

			files, err := logfile.Discover(g.cfg.RootDir, g.cfg.Protocols, g.cfg.PublicPrivate)
			if err != nil {
				return err
			}
			if err := logfile.WriteList(output, files); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d log files written to %s\n", len(files), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "root directory, overrides config root_dir")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file list to write (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func processCmd(g *globals) *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Convert one transfer log into a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.pipeline()
			if err != nil {
				return err
			}

			res, err := svc.ProcessFile(cmd.Context(), input, output)
			if err != nil {
				return err
			}
			if res.SourceErr != nil {
				log.Warn("log was not read to its end", "source", input, "error", res.SourceErr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d records from %d lines written to %s\n",
				res.Rows, res.Stats.Lines, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "compressed transfer log (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "store to write (required)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func processListCmd(g *globals) *cobra.Command {
	var list, outDir, summary string

	cmd := &cobra.Command{
		Use:   "process-list",
		Short: "Convert every log of a file list into its own store",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.pipeline()
			if err != nil {
				return err
			}

			logs, err := logfile.ReadList(list)
			if err != nil {
				return err
			}

			sum, err := svc.ProcessList(cmd.Context(), logs, outDir)
			if err != nil {
				return err
			}

			if summary != "" {
				if err := report.WriteObject(summary, sum); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d logs converted, %d failed, %d rows\n",
				sum.Succeeded, sum.Files, sum.Failed, sum.Rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&list, "list", "l", "", "file list from discover (required)")
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", "", "directory receiving one store per log (required)")
	cmd.Flags().StringVar(&summary, "summary", "", "write the run summary as JSON to this file")
	_ = cmd.MarkFlagRequired("list")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}

// pipeline builds the conversion service from the configuration.
func (g *globals) pipeline() (*pipeline.Service, error) {
	if err := g.requireFilter(); err != nil {
		return nil, err
	}

	filter, err := logfile.FilterFromConfig(g.cfg)
	if err != nil {
		return nil, err
	}

	mode, err := parquet.ParseMode(g.cfg.Storage.WriteStrategy)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		BatchSize: g.cfg.LogFileBatchSize,
		Workers:   g.cfg.Workers,
		Writer: parquet.Options{
			Mode:        mode,
			BatchSize:   g.cfg.LogFileBatchSize,
			Compression: parquet.ParseCompressionType(g.cfg.Storage.Compression),
		},
	}
	return pipeline.New(logfile.NewExtractor(filter), opts, g.metrics), nil
}

// =============================================================================
// Stores
// =============================================================================

func mergeCmd(g *globals) *cobra.Command {
	var manifest, output string

	cmd := &cobra.Command{
		Use:   "merge [store...]",
		Short: "Concatenate stores into one store",
		Long: `Concatenate stores into one store. Inputs are either given as
arguments or listed in a manifest, one path per line. Directory entries of a
manifest contribute their stores; other entries that are not stores are
ignored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := args
			if manifest != "" {
				resolved, err := merge.ResolveManifest(manifest)
				if err != nil {
					return err
				}
				inputs = append(inputs, resolved...)
			}

			m := merge.NewMerger(merge.Options{
				BatchSize:   g.cfg.ChunkSize,
				Compression: parquet.ParseCompressionType(g.cfg.Storage.Compression),
			})
			sum, err := m.Merge(cmd.Context(), inputs, output)
			if err != nil {
				return err
			}

			g.metrics.RowsWritten.Add(float64(sum.Rows))
			g.metrics.BatchesWritten.Add(float64(sum.Batches))

			fmt.Fprintf(cmd.OutOrStdout(), "%d rows from %d stores merged into %s\n",
				sum.Rows, sum.Inputs, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "file listing the stores to merge")
	cmd.Flags().StringVarP(&output, "output", "o", "", "merged store (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect store...",
		Short: "Print row count, row groups and columns of stores",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := gojson.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			for _, path := range args {
				info, err := parquet.Inspect(path)
				if err != nil {
					return err
				}
				if err := enc.Encode(info); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// =============================================================================
// Statistics
// =============================================================================

func analyzeCmd(g *globals) *cobra.Command {
	var (
		stores []string
		paths  report.Paths
		format string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Derive download statistics from stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			if paths.All != "" && len(stores) != 1 {
				return fmt.Errorf("--all needs exactly one --store")
			}

			f, err := g.format(format)
			if err != nil {
				return err
			}

			agg := aggregate.NewAggregator(aggregate.Options{
				BatchSize:    g.cfg.ChunkSize,
				TopK:         g.cfg.TopCounts,
				SkippedYears: g.cfg.SkippedYears,
			})

			result, err := agg.ScanAll(cmd.Context(), stores)
			if err != nil {
				return err
			}
			g.metrics.RowsScanned.Add(float64(result.TotalRecords() + result.SkippedRecords()))

			set := report.Set{Result: result, Aggregator: agg, Store: stores[0]}
			if err := report.WriteAll(cmd.Context(), set, paths, f); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d records of %d projects analyzed\n",
				result.TotalRecords(), len(result.ProjectCounts()))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&stores, "store", "s", nil, "store to analyze, repeatable (required)")
	cmd.Flags().StringVar(&paths.Projects, "projects", "", "project level download counts")
	cmd.Flags().StringVar(&paths.Files, "files", "", "file level download counts")
	cmd.Flags().StringVar(&paths.Yearly, "yearly", "", "project level yearly download counts")
	cmd.Flags().StringVar(&paths.Top, "top", "", "most downloaded projects")
	cmd.Flags().StringVar(&paths.Distribution, "distribution", "", "download count distribution")
	cmd.Flags().StringVar(&paths.All, "all", "", "every row of the store")
	cmd.Flags().StringVar(&format, "format", "", "json or jsonl, overrides config output.format")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

func fileCountsCmd(g *globals) *cobra.Command {
	var inputDir, manifest, grouped, summed, format string

	cmd := &cobra.Command{
		Use:   "file-counts",
		Short: "Count downloads per file and per project across many stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.format(format)
			if err != nil {
				return err
			}

			stores, err := collectStores(inputDir, manifest)
			if err != nil {
				return err
			}

			svc, err := query.New(g.cfg.Query)
			if err != nil {
				return err
			}
			defer svc.Close()

			result, err := svc.FileCounts(cmd.Context(), stores)
			if err != nil {
				return err
			}

			if err := report.WriteDocument(grouped, f, result.Files); err != nil {
				return err
			}
			if err := report.WriteDocument(summed, f, result.Projects); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d files of %d projects counted over %d stores\n",
				len(result.Files), len(result.Projects), len(stores))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputDir, "input-dir", "i", "", "directory of stores")
	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "file listing the stores")
	cmd.Flags().StringVar(&grouped, "output-grouped", "", "per file download counts (required)")
	cmd.Flags().StringVar(&summed, "output-summed", "", "per project download counts (required)")
	cmd.Flags().StringVar(&format, "format", "", "json or jsonl, overrides config output.format")
	_ = cmd.MarkFlagRequired("output-grouped")
	_ = cmd.MarkFlagRequired("output-summed")
	return cmd
}

func sqlCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sql query",
		Short: "Run an ad-hoc SQL query, stores are read with read_parquet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := query.New(g.cfg.Query)
			if err != nil {
				return err
			}
			defer svc.Close()

			rows, err := svc.ExecuteSQL(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := gojson.NewEncoder(cmd.OutOrStdout())
			for _, row := range rows {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// collectStores lists the stores of a directory and of a manifest.
func collectStores(dir, manifest string) ([]string, error) {
	if dir == "" && manifest == "" {
		return nil, fmt.Errorf("one of --input-dir or --manifest is required")
	}

	var stores []string
	if dir != "" {
		found, err := filepath.Glob(filepath.Join(dir, "*"+defaults.StoreExtension))
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		stores = append(stores, found...)
	}
	if manifest != "" {
		resolved, err := merge.ResolveManifest(manifest)
		if err != nil {
			return nil, err
		}
		stores = append(stores, resolved...)
	}
	return stores, nil
}

// format resolves the report format from a flag value or the configuration.
func (g *globals) format(flag string) (report.Format, error) {
	if flag == "" {
		flag = g.cfg.Output.Format
	}
	return report.ParseFormat(flag)
}
