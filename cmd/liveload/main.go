package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/logging"
	"github.com/pgbouncer-lab/liveload/internal/metrics"
	"github.com/pgbouncer-lab/liveload/internal/presenter/ws"
	"github.com/pgbouncer-lab/liveload/internal/probe"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

var version = "0.1.0"

// exitError carries the process exit status up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Anything cobra rejects before RunE is a usage problem.
	return exitConfig
}

// Flags shared by every subcommand.
type flags struct {
	configPath string
	logLevel   string
	headless   bool
	listen     string
	statsd     string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "liveload",
		Short: "Connection load simulator with a live status display",
		Long: `liveload opens many concurrent client connections against a PgBouncer
setup and shows, live, what state each of them is in.

Modes:
  cohort   launch fixed groups of clients once and hold them
  traffic  keep launching short-lived clients at random intervals
  pool     keep a fixed number of clients reconnecting forever

Without a subcommand the mode comes from the config file. "watch" shows
the live table of a run started elsewhere with --listen.

Examples:
  liveload cohort -c liveload.yaml
  liveload traffic -c cluster.yaml --listen 127.0.0.1:8080
  liveload pool -c pool.yaml --headless
  liveload watch ws://10.0.0.5:8080/ws`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMode(cmd, f, "")
		},
	}

	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Path to config file")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&f.headless, "headless", false, "Log status lines instead of drawing the live table")
	root.PersistentFlags().StringVar(&f.listen, "listen", "", "Serve snapshots over HTTP/WebSocket on this address")
	root.PersistentFlags().StringVar(&f.statsd, "statsd", "", "Send metrics to this statsd address")

	for _, mode := range []config.Mode{config.ModeCohort, config.ModeTraffic, config.ModePool} {
		root.AddCommand(&cobra.Command{
			Use:   string(mode),
			Short: modeHelp[mode],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMode(cmd, f, mode)
			},
		})
	}
	root.AddCommand(&cobra.Command{
		Use:   "watch <ws-url>",
		Short: "Show the live table of a run served with --listen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, f, args[0])
		},
	})
	return root
}

var modeHelp = map[config.Mode]string{
	config.ModeCohort:  "Launch the configured groups once and hold them",
	config.ModeTraffic: "Launch short-lived clients at random intervals",
	config.ModePool:    "Keep a fixed pool of reconnecting clients running",
}

// loadConfig reads the file and applies flag overrides.
func loadConfig(cmd *cobra.Command, f *flags, mode config.Mode) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if mode != "" {
		cfg.Mode = mode
	}
	pf := cmd.Flags()
	if pf.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if pf.Changed("headless") {
		cfg.Headless = f.headless
	}
	if pf.Changed("listen") {
		cfg.Server.Listen = f.listen
	}
	if pf.Changed("statsd") {
		cfg.Metrics.StatsdAddr = f.statsd
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMode(cmd *cobra.Command, f *flags, mode config.Mode) error {
	cfg, err := loadConfig(cmd, f, mode)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	closer, err := logging.Setup(cfg.Log.Level, !cfg.Headless, cfg.Log.File, os.Stderr)
	if err != nil {
		return &exitError{code: exitFailed, err: fmt.Errorf("open log file: %w", err)}
	}
	defer closer.Close()

	runID := uuid.NewString()
	log.Info().Str("run", runID).Str("mode", string(cfg.Mode)).Str("version", version).Msg("starting")

	var m metrics.Metrics = metrics.Noop{}
	if cfg.Metrics.StatsdAddr != "" {
		sd := metrics.NewStatsd(runID, cfg.Metrics.Prefix, cfg.Metrics.StatsdAddr)
		defer sd.Close()
		m = sd
	}

	err = run(cmd.Context(), cfg, deps{
		runID:     runID,
		connector: backend.Pgx{},
		prober:    probe.Admin{ExcludeAdmin: cfg.Probes.ExcludeAdmin},
		metrics:   m,
		presenter: buildPresenter,
	})
	if err != nil {
		log.Error().Err(err).Msg("run aborted")
		var ee *exitError
		if !errors.As(err, &ee) {
			err = &exitError{code: exitFailed, err: err}
		}
		return err
	}
	log.Info().Str("run", runID).Msg("stopped")
	return nil
}

// runWatch follows a remote run. Only the logging settings of the config
// apply.
func runWatch(cmd *cobra.Command, f *flags, url string) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = f.headless
	}
	// The local snapshot server makes no sense here.
	cfg.Server.Listen = ""

	closer, err := logging.Setup(cfg.Log.Level, !cfg.Headless, cfg.Log.File, os.Stderr)
	if err != nil {
		return &exitError{code: exitFailed, err: fmt.Errorf("open log file: %w", err)}
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pres, err := buildPresenter(cfg, cancel)
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	err = ws.Follow(ctx, url, pres)
	if cerr := pres.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	return nil
}
