package presenter

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

// Console logs a one-line summary of each snapshot, at most once per
// interval. The final snapshot is always logged.
type Console struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewConsole(interval time.Duration) *Console {
	return &Console{interval: interval}
}

func (c *Console) Render(s snapshot.Snapshot) {
	c.mu.Lock()
	if !s.Final && s.TakenAt.Sub(c.last) < c.interval {
		c.mu.Unlock()
		return
	}
	c.last = s.TakenAt
	c.mu.Unlock()

	ev := log.Info()
	if s.Final {
		ev = ev.Bool("final", true)
	}
	ev = ev.Str("mode", s.Mode).Dur("uptime", s.Uptime.Round(time.Second))

	if s.StateCounts != nil {
		counts := zerolog.Dict()
		for _, st := range lifecycle.All {
			counts = counts.Int(st.String(), s.StateCounts[st])
		}
		ev = ev.Dict("workers", counts)
	}
	if s.Targets != nil {
		targets := zerolog.Dict()
		for _, t := range s.Targets {
			targets = targets.Dict(t.Target, zerolog.Dict().
				Int("active", t.Active).
				Int("total", t.Total).
				Int("rejected", t.Rejected).
				Int("errored", t.Errored))
		}
		ev = ev.Dict("targets", targets)
	}
	if s.Instances != nil {
		instances := zerolog.Dict()
		for _, in := range s.Instances {
			switch {
			case !in.Checked:
				instances = instances.Str(in.Name, "pending")
			case in.Online:
				instances = instances.Int(in.Name, in.Clients)
			default:
				instances = instances.Str(in.Name, "offline")
			}
		}
		ev = ev.Dict("instances", instances).Int("clients_total", s.InstanceClients)
	}
	ev.Msg("status")
}

func (c *Console) Close() error {
	return nil
}
