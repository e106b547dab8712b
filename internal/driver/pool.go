package driver

import (
	"context"
	"fmt"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/metrics"
	"github.com/pgbouncer-lab/liveload/internal/registry"
	"github.com/pgbouncer-lab/liveload/internal/worker"
)

const poolGroup = "pool"

// NewPool launches a fixed set of persistent clients that reconnect after
// every session until shutdown.
func NewPool(cfg *config.Config, connector backend.Connector, states *registry.States, m metrics.Metrics) (*Driver, error) {
	pc := cfg.Pool
	t, ok := cfg.Target(pc.Target)
	if !ok {
		return nil, fmt.Errorf("pool: unknown target %q", pc.Target)
	}

	policy := worker.Policy{
		Hold:           pc.Session,
		OpInterval:     pc.OpInterval,
		Workload:       pc.Workload,
		Persistent:     true,
		ReconnectDelay: pc.ReconnectDelay,
		RetryDelay:     pc.RetryDelay,
	}

	d := newDriver(string(config.ModePool), connector, m)
	d.loop = func(ctx context.Context) {
		for i := 1; i <= pc.Clients; i++ {
			d.launch(ctx, &worker.Worker{
				ID:        lifecycle.Identity{Group: poolGroup, Target: t.Name, Index: i},
				Target:    t,
				Policy:    policy,
				Connector: d.connector,
				Tracker:   states,
				Metrics:   d.metrics,
			}, nil)
		}
	}
	return d, nil
}
