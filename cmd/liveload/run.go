package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/driver"
	"github.com/pgbouncer-lab/liveload/internal/metrics"
	"github.com/pgbouncer-lab/liveload/internal/monitor"
	"github.com/pgbouncer-lab/liveload/internal/presenter"
	"github.com/pgbouncer-lab/liveload/internal/presenter/tui"
	"github.com/pgbouncer-lab/liveload/internal/presenter/ws"
	"github.com/pgbouncer-lab/liveload/internal/probe"
	"github.com/pgbouncer-lab/liveload/internal/registry"
)

const (
	shutdownTimeout = 5 * time.Second
	setupRetryDelay = 500 * time.Millisecond
	consoleInterval = time.Second
)

// deps are the collaborators run needs from the outside world.
type deps struct {
	runID     string
	connector backend.Connector
	prober    probe.Prober
	metrics   metrics.Metrics
	// presenter builds and starts the presenter. onQuit ends the run.
	presenter func(cfg *config.Config, onQuit func()) (presenter.Presenter, error)
}

// run drives one load run until ctx is canceled or the user quits. The
// order on the way out is: stop launching, cancel workers, render the
// final frame, close the presenter.
func run(ctx context.Context, cfg *config.Config, d deps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Mode == config.ModePool && cfg.Pool.Setup {
		target, _ := cfg.Target(cfg.Pool.Target)
		if err := backend.EnsureSchema(ctx, d.connector, target, setupRetryDelay); err != nil {
			return &exitError{code: exitFailed, err: err}
		}
	}

	opts := monitor.Options{
		Title:           cfg.Monitor.Title,
		RunID:           d.runID,
		Mode:            string(cfg.Mode),
		RefreshInterval: cfg.Monitor.RefreshInterval,
		ProbeInterval:   cfg.Monitor.ProbeInterval,
		ProbeTimeout:    cfg.Monitor.ProbeTimeout,
		Prober:          d.prober,
		ProbeTargets:    cfg.Probes.Targets,
		Limits:          cfg.Limits,
		Metrics:         d.metrics,
	}

	drv, err := newDriver(cfg, d, &opts)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	pres, err := d.presenter(cfg, cancel)
	if err != nil {
		return &exitError{code: exitFailed, err: fmt.Errorf("start presenter: %w", err)}
	}

	// The monitor outlives the run context so its final frame shows the
	// workers after shutdown.
	monCtx, stopMonitor := context.WithCancel(context.Background())
	mon := monitor.New(opts, pres)

	var monWG sync.WaitGroup
	monWG.Add(1)
	go func() {
		defer monWG.Done()
		mon.Run(monCtx)
	}()

	drv.Run(ctx)
	log.Info().Int("launched", drv.Launched()).Int("running", drv.Running()).Msg("shutting down")
	if !drv.Shutdown(shutdownTimeout) {
		log.Warn().Int("running", drv.Running()).Msg("abandoning workers")
	}

	stopMonitor()
	monWG.Wait()

	return pres.Close()
}

// newDriver builds the driver for cfg.Mode and points the monitor at the
// registry it writes.
func newDriver(cfg *config.Config, d deps, opts *monitor.Options) (*driver.Driver, error) {
	switch cfg.Mode {
	case config.ModeCohort:
		states := registry.NewStates()
		opts.States = states
		return driver.NewCohort(cfg, d.connector, states, d.metrics)
	case config.ModeTraffic:
		counters := registry.NewCounters(cfg.Traffic.Targets...)
		opts.Counters = counters
		return driver.NewTraffic(cfg, d.connector, counters, d.metrics)
	case config.ModePool:
		states := registry.NewStates()
		opts.States = states
		return driver.NewPool(cfg, d.connector, states, d.metrics)
	}
	return nil, fmt.Errorf("%w: unknown mode %q", config.ErrInvalid, cfg.Mode)
}

// buildPresenter starts the live table, or the console logger when
// headless, plus the snapshot server when a listen address is set.
func buildPresenter(cfg *config.Config, onQuit func()) (presenter.Presenter, error) {
	var ps []presenter.Presenter

	if cfg.Server.Listen != "" {
		srv := ws.NewServer(cfg.Server.Listen)
		if err := srv.Start(); err != nil {
			return nil, err
		}
		ps = append(ps, srv)
	}

	if cfg.Headless {
		ps = append(ps, presenter.NewConsole(consoleInterval))
	} else {
		t := tui.New(onQuit)
		t.Start()
		ps = append(ps, t)
	}

	return presenter.NewMulti(ps...), nil
}
