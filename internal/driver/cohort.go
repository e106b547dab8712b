package driver

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/metrics"
	"github.com/pgbouncer-lab/liveload/internal/registry"
	"github.com/pgbouncer-lab/liveload/internal/worker"
)

// NewCohort launches every configured group exactly once, one worker per
// stagger interval across all groups.
func NewCohort(cfg *config.Config, connector backend.Connector, states *registry.States, m metrics.Metrics) (*Driver, error) {
	type launchSpec struct {
		id     lifecycle.Identity
		target config.Target
	}
	var specs []launchSpec
	next := make(map[[2]string]int)
	for _, g := range cfg.Cohort.Groups {
		t, ok := cfg.Target(g.Target)
		if !ok {
			return nil, fmt.Errorf("cohort group %q: unknown target %q", g.Name, g.Target)
		}
		key := [2]string{g.Name, t.Name}
		for i := 0; i < g.Count; i++ {
			specs = append(specs, launchSpec{
				id:     lifecycle.Identity{Group: g.Name, Target: t.Name, Index: next[key]},
				target: t,
			})
			next[key]++
		}
	}

	policy := worker.Policy{
		Hold:           cfg.Cohort.Hold,
		OpInterval:     cfg.Cohort.OpInterval,
		ConfirmTimeout: cfg.Cohort.ConfirmTimeout,
		Workload:       config.WorkloadPing,
	}

	d := newDriver(string(config.ModeCohort), connector, m)
	d.loop = func(ctx context.Context) {
		lim := rate.NewLimiter(rate.Every(cfg.Cohort.Stagger), 1)
		for _, s := range specs {
			if err := lim.Wait(ctx); err != nil {
				return
			}
			d.launch(ctx, &worker.Worker{
				ID:        s.id,
				Target:    s.target,
				Policy:    policy,
				Connector: d.connector,
				Tracker:   states,
				Metrics:   d.metrics,
			}, nil)
		}
	}
	return d, nil
}
