// Package monitor aggregates worker and probe state into snapshots at a
// fixed cadence and hands them to a renderer.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/metrics"
	"github.com/pgbouncer-lab/liveload/internal/probe"
	"github.com/pgbouncer-lab/liveload/internal/registry"
	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

// Renderer receives every snapshot. Render must not block for longer than
// one refresh interval.
type Renderer interface {
	Render(snapshot.Snapshot)
}

type Options struct {
	Title string
	RunID string
	Mode  string

	RefreshInterval time.Duration
	ProbeInterval   time.Duration
	ProbeTimeout    time.Duration

	// States and Counters are optional; whichever is set is read each cycle.
	States   *registry.States
	Counters *registry.Counters

	Prober       probe.Prober
	ProbeTargets []config.Target

	Limits  []config.Limit
	Metrics metrics.Metrics
}

type Monitor struct {
	opts     Options
	renderer Renderer
	board    *board
	self     *selfStats
	metrics  metrics.Metrics
	limits   []snapshot.Limit
	started  time.Time
}

func New(opts Options, renderer Renderer) *Monitor {
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	limits := make([]snapshot.Limit, 0, len(opts.Limits))
	for _, l := range opts.Limits {
		limits = append(limits, snapshot.Limit{Name: l.Name, Value: l.Value})
	}
	return &Monitor{
		opts:     opts,
		renderer: renderer,
		board:    newBoard(opts.ProbeTargets),
		self:     newSelfStats(),
		metrics:  m,
		limits:   limits,
		started:  time.Now(),
	}
}

// Run renders a snapshot every refresh interval and, when probe targets
// are configured, polls them on their own slower cadence. When ctx is
// done it stops probing, renders one final snapshot and returns.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if m.opts.Prober != nil && len(m.opts.ProbeTargets) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.probeLoop(ctx)
		}()
	}

	ticker := time.NewTicker(m.opts.RefreshInterval)
	defer ticker.Stop()

	log.Info().Dur("refresh", m.opts.RefreshInterval).Int("probe_targets", len(m.opts.ProbeTargets)).Msg("monitor started")
	m.render(false)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			m.render(true)
			log.Info().Msg("monitor stopped")
			return
		case <-ticker.C:
			m.render(false)
		}
	}
}

func (m *Monitor) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		m.probeOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	results := probe.Poll(ctx, m.opts.Prober, m.opts.ProbeTargets, m.opts.ProbeTimeout)
	if ctx.Err() != nil {
		// Failures caused by shutdown say nothing about the targets.
		return
	}
	for _, r := range results {
		if r.Err != nil {
			m.metrics.Increment("probe.failed")
			log.Debug().Err(r.Err).Str("target", r.Target.Name).Msg("probe failed")
			continue
		}
		m.metrics.Duration("probe.latency", r.Latency)
	}
	m.board.record(results)
}

func (m *Monitor) render(final bool) {
	snap := m.Build()
	snap.Final = final
	m.renderer.Render(snap)
}

// Build assembles a snapshot from the current registry and probe state.
func (m *Monitor) Build() snapshot.Snapshot {
	now := time.Now()
	snap := snapshot.Snapshot{
		TakenAt: now,
		Title:   m.opts.Title,
		RunID:   m.opts.RunID,
		Mode:    m.opts.Mode,
		Uptime:  now.Sub(m.started),
		Limits:  m.limits,
		Process: m.self.sample(now),
	}

	if m.opts.States != nil {
		snap.Workers = m.opts.States.Snapshot()
		snap.StateCounts = registry.CountByState(snap.Workers)
		for _, st := range lifecycle.All {
			m.metrics.Gauge("workers."+st.String(), snap.StateCounts[st])
		}
	}
	if m.opts.Counters != nil {
		snap.Targets = m.opts.Counters.Snapshot()
		m.metrics.Gauge("targets.active", snap.TotalActive())
		m.metrics.Gauge("targets.total", snap.TotalLaunched())
	}
	if len(m.opts.ProbeTargets) > 0 {
		snap.Instances, snap.InstancesOnline, snap.InstanceClients = m.board.snapshot()
		m.metrics.Gauge("instances.online", snap.InstancesOnline)
		m.metrics.Gauge("instances.clients", snap.InstanceClients)
	}
	m.metrics.Gauge("process.goroutines", snap.Process.Goroutines)
	return snap
}
