package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saworbit/pathkeeper/internal/logging"
	"github.com/saworbit/pathkeeper/internal/metrics"
	"github.com/saworbit/pathkeeper/internal/platform"
	"github.com/saworbit/pathkeeper/internal/version"
	"github.com/saworbit/pathkeeper/pkg/cas"
	"github.com/saworbit/pathkeeper/pkg/config"
	"github.com/saworbit/pathkeeper/pkg/merkle"
	"github.com/saworbit/pathkeeper/pkg/recorder"
	"github.com/saworbit/pathkeeper/pkg/shortpath"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	_ = logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once the root pre-run has
// loaded the configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	expander *shortpath.Expander
}

func newRootCmd() *cobra.Command {
	a := &app{}

	var (
		configPath  string
		logLevel    string
		trace       bool
		metricsAddr string
	)

	root := &cobra.Command{
		Use:          "pathkeeper",
		Short:        "pathkeeper - canonical long paths and a flight recorder keyed by them",
		Version:      version.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if flags.Changed("trace") {
				cfg.Trace = trace
			}
			if flags.Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return a.setup(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a pathkeeper config file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&trace, "trace", false, "Log every expansion step at debug level")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	root.AddCommand(newExpandCmd(a), newRecordCmd(a), newExportCmd(a))
	return root
}

func (a *app) setup(ctx context.Context, cfg *config.Config) error {
	level := cfg.Log.Level
	if cfg.Trace && level != "debug" {
		level = "debug"
	}
	if err := logging.Init(level, cfg.Log.Development); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.L()

	opts := []shortpath.Option{shortpath.WithObserver(metrics.ExpandObserver{})}
	if cfg.Trace {
		opts = append(opts, shortpath.WithTracer(logging.NewTracer(a.logger)))
	}
	a.expander = shortpath.New(opts...)

	metrics.SetAgentInfo(version.Version, platform.ShortNames)
	metrics.SetUp(true)

	if cfg.Metrics.Addr != "" {
		if ctx == nil {
			ctx = context.Background()
		}
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, a.logger); err != nil {
				a.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

type expandResult struct {
	Input string `json:"input"`
	Path  string `json:"path"`
}

func newExpandCmd(a *app) *cobra.Command {
	var extended bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "expand <path>...",
		Short: "Print the canonical long form of each path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for _, arg := range args {
				expanded, err := a.expander.Expand(arg)
				if err != nil {
					return err
				}
				if extended {
					expanded = platform.ExtendedLengthPath(expanded)
				}
				if asJSON {
					if err := enc.Encode(expandResult{Input: arg, Path: expanded}); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintln(out, expanded)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&extended, "extended", false, `Print the \\?\ extended-length form on Windows`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per path")
	return cmd
}

func newRecordCmd(a *app) *cobra.Command {
	var stateDir string
	var watchDir string

	cmd := &cobra.Command{
		Use:   "record -- <command>",
		Short: "Record filesystem events into the Pebble journal, keyed by canonical path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				return fmt.Errorf("state-dir is required")
			}
			if watchDir == "" {
				watchDir = "."
			}
			return a.runRecord(cmd.Context(), stateDir, watchDir, args)
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory where Pebble state is stored")
	cmd.Flags().StringVar(&watchDir, "watch", ".", "Directory to watch for changes")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var stateDir string
	var outDir string
	var atTime string

	cmd := &cobra.Command{
		Use:   "export --out <dir> --time <timestamp>",
		Short: "Reconstruct files from CAS metadata at a given point in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				return fmt.Errorf("state-dir is required")
			}
			if outDir == "" {
				return fmt.Errorf("out directory is required")
			}
			return a.runExport(cmd, stateDir, outDir, atTime)
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory where Pebble state is stored")
	cmd.Flags().StringVar(&outDir, "out", "", "Destination directory for restored files")
	cmd.Flags().StringVar(&atTime, "time", "latest", "Timestamp or duration (e.g. 2s, 2025-01-02T15:04:05Z)")
	return cmd
}

func (a *app) runRecord(ctx context.Context, stateDir, watchDir string, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := a.logger.With(zap.String("component", "record"))

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	// The root must exist before the processor canonicalizes it.
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	db, err := pebble.Open(stateDir, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("open pebble: %w", err)
	}
	defer db.Close()

	store, err := cas.NewStore(db, a.cfg.Store.HashAlgo)
	if err != nil {
		return fmt.Errorf("init CAS: %w", err)
	}

	proc, err := recorder.NewProcessor(db, store, a.expander, watchDir, a.cfg.Recorder.PollInterval, a.logger)
	if err != nil {
		return fmt.Errorf("init processor: %w", err)
	}
	stopProcessor := proc.Start()
	logger.Info("recording", zap.String("root", proc.Root()), zap.Strings("command", args))

	if err := recorder.RecordSessionStart(db, time.Now()); err != nil {
		logger.Warn("failed to record session start", zap.Error(err))
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- recorder.Watch(watchCtx, watchDir, recorder.NewJournal(db), a.expander, a.logger)
	}()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Dir = watchDir

	runErr := cmd.Run()
	if runErr != nil {
		runErr = fmt.Errorf("run command: %w", runErr)
	}

	// Late events for files the command wrote just before exiting.
	time.Sleep(a.cfg.Recorder.DrainTimeout)
	cancelWatch()
	if err := <-watchErr; err != nil && runErr == nil {
		runErr = fmt.Errorf("watch %s: %w", watchDir, err)
	}

	stopProcessor()
	if n, err := proc.Drain(); err != nil {
		logger.Warn("final drain failed", zap.Error(err))
	} else if n > 0 {
		logger.Debug("final drain", zap.Int("entries", n))
	}

	if flushErr := db.Flush(); flushErr != nil && runErr == nil {
		runErr = flushErr
	}
	return runErr
}

func (a *app) runExport(cmd *cobra.Command, stateDir, outDir, atTime string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	db, err := pebble.Open(stateDir, &pebble.Options{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("open pebble: %w", err)
	}
	defer db.Close()

	store, err := cas.NewStore(db, a.cfg.Store.HashAlgo)
	if err != nil {
		return fmt.Errorf("init CAS: %w", err)
	}

	targetTime, err := parseTargetTime(atTime, recorder.LoadSessionStart(db))
	if err != nil {
		return err
	}

	records, err := recorder.LoadMetadataAt(db, targetTime, a.logger)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(records))
	for path := range records {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	cids := make([]string, 0, len(paths))
	for _, path := range paths {
		meta := records[path]
		data, err := store.Get(meta.CID)
		if err != nil {
			return fmt.Errorf("load CAS object %s: %w", meta.CID, err)
		}

		dest := filepath.Join(outDir, cleanPath(filepath.FromSlash(path)))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create parent for %s: %w", dest, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
		cids = append(cids, meta.CID)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "exported %d files to %s\n", len(cids), outDir)
	if len(cids) == 0 {
		return nil
	}
	root, err := merkle.Root(cids)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "merkle root: %s\n", root)
	return nil
}

func parseTargetTime(raw string, sessionStart time.Time) (time.Time, error) {
	if raw == "" || raw == "latest" {
		return time.Now(), nil
	}

	if dur, err := time.ParseDuration(raw); err == nil {
		if sessionStart.IsZero() {
			return time.Time{}, fmt.Errorf("session start unknown; cannot apply duration %s", raw)
		}
		return sessionStart.Add(dur), nil
	}

	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}

	return time.Time{}, fmt.Errorf("invalid time value %q", raw)
}

// cleanPath keeps a stored relative path inside the export directory. Only
// elements that are exactly ".." are dropped; names such as "..env" are kept.
func cleanPath(path string) string {
	clean := filepath.Clean(path)
	clean = strings.TrimPrefix(clean, filepath.VolumeName(clean))

	parts := strings.Split(filepath.ToSlash(clean), "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	if len(kept) == 0 {
		return "root"
	}
	return filepath.Join(kept...)
}
