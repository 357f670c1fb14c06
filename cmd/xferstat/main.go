// xferstat converts file transfer logs into columnar stores and derives
// download statistics from them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xtxerr/xferstat/internal/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/metrics"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("cli")

// globals holds the persistent flags and the state built from them.
type globals struct {
	configPath string
	logLevel   string
	logJSON    bool
	textfile   string

	cfg     *config.Config
	metrics *metrics.Metrics
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&globals{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status: 2 for bad
// configuration or arguments, 3 for store failures, 1 otherwise.
func exitCode(err error) int {
	switch {
	case xerrors.IsValidation(err):
		return 2
	case xerrors.IsStoreError(err):
		return 3
	default:
		return 1
	}
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "xferstat",
		Short:         "File transfer log statistics",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return g.exportMetrics()
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides config")
	root.PersistentFlags().BoolVar(&g.logJSON, "log-json", false, "force JSON logs")
	root.PersistentFlags().StringVar(&g.textfile, "metrics-textfile", "", "write run counters to this Prometheus textfile, overrides config")

	root.AddCommand(
		discoverCmd(g),
		processCmd(g),
		processListCmd(g),
		mergeCmd(g),
		analyzeCmd(g),
		fileCountsCmd(g),
		inspectCmd(),
		sqlCmd(g),
	)
	return root
}

// setup loads the configuration and initializes logging.
func (g *globals) setup(cmd *cobra.Command) error {
	if g.configPath != "" {
		cfg, err := config.Load(g.configPath)
		if err != nil {
			return err
		}
		g.cfg = cfg
	} else {
		g.cfg = config.DefaultConfig()
	}

	levelName := g.cfg.Logging.Level
	if g.logLevel != "" {
		levelName = g.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}

	jsonLogs := !term.IsTerminal(int(os.Stderr.Fd()))
	if g.cfg.Logging.JSON != nil {
		jsonLogs = *g.cfg.Logging.JSON
	}
	if g.logJSON {
		jsonLogs = true
	}
	logging.Init(level, jsonLogs)

	if g.textfile == "" {
		g.textfile = g.cfg.Metrics.Textfile
	}
	g.metrics = metrics.New()

	ctx := logging.ContextWithRunID(cmd.Context(), fmt.Sprintf("%d-%d", time.Now().Unix(), os.Getpid()))
	cmd.SetContext(ctx)

	logging.WithContext(ctx, log).Debug("starting", "command", cmd.Name(), "version", Version, "config", g.configPath)
	return nil
}

// requireFilter fails when no configuration with filter settings was given.
func (g *globals) requireFilter() error {
	if g.configPath == "" {
		return fmt.Errorf("--config is required for this command")
	}
	return nil
}

func (g *globals) exportMetrics() error {
	if g.textfile == "" || g.metrics == nil {
		return nil
	}
	if err := g.metrics.WriteTextfile(g.textfile); err != nil {
		return err
	}
	log.Debug("metrics written", "path", g.textfile)
	return nil
}
