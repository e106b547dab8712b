package driver

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/metrics"
	"github.com/pgbouncer-lab/liveload/internal/registry"
	"github.com/pgbouncer-lab/liveload/internal/worker"
)

const trafficGroup = "traffic"

// NewTraffic launches one short-lived worker per interval against a random
// target until canceled. With MaxActivePerTarget set, a tick whose target
// is at its ceiling is skipped rather than queued.
func NewTraffic(cfg *config.Config, connector backend.Connector, counters *registry.Counters, m metrics.Metrics) (*Driver, error) {
	tc := cfg.Traffic
	targets := make([]config.Target, 0, len(tc.Targets))
	ceilings := make(map[string]*semaphore.Weighted)
	for _, name := range tc.Targets {
		t, ok := cfg.Target(name)
		if !ok {
			return nil, fmt.Errorf("traffic: unknown target %q", name)
		}
		targets = append(targets, t)
		if tc.MaxActivePerTarget > 0 {
			ceilings[t.Name] = semaphore.NewWeighted(int64(tc.MaxActivePerTarget))
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("traffic: no targets")
	}

	policy := worker.Policy{
		StartDelay: tc.StartDelay,
		Hold:       tc.Hold,
		OpInterval: tc.OpInterval,
		Workload:   config.WorkloadPing,
	}

	d := newDriver(string(config.ModeTraffic), connector, m)
	d.loop = func(ctx context.Context) {
		seq := 0
		for sleep(ctx, tc.Interval.Pick()) {
			t := targets[rand.IntN(len(targets))]

			var release func()
			if sem, ok := ceilings[t.Name]; ok {
				if !sem.TryAcquire(1) {
					d.metrics.Increment("driver.skipped")
					log.Debug().Str("target", t.Name).Msg("target at ceiling, tick skipped")
					continue
				}
				release = func() { sem.Release(1) }
			}

			seq++
			w := &worker.Worker{
				ID:        lifecycle.Identity{Group: trafficGroup, Target: t.Name, Index: seq},
				Target:    t,
				Policy:    policy,
				Connector: d.connector,
				Tracker:   counters,
				Metrics:   d.metrics,
			}
			if !d.launch(ctx, w, release) && release != nil {
				release()
			}
		}
	}
	return d, nil
}
