// Package snapshot defines the immutable value the monitor hands to
// presenters each cycle.
package snapshot

import (
	"time"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/registry"
)

// Snapshot is built fresh every cycle and never mutated afterwards.
// Presenters must treat every slice and map as read-only.
type Snapshot struct {
	TakenAt time.Time     `json:"taken_at"`
	Title   string        `json:"title"`
	RunID   string        `json:"run_id"`
	Mode    string        `json:"mode"`
	Uptime  time.Duration `json:"uptime"`
	Final   bool          `json:"final,omitempty"`

	Workers     []registry.Entry          `json:"workers,omitempty"`
	StateCounts map[lifecycle.State]int   `json:"state_counts,omitempty"`
	Targets     []registry.TargetCounters `json:"targets,omitempty"`

	Instances []Instance `json:"instances,omitempty"`
	// Online counts probed instances that answered this cycle; Clients sums
	// their client counts.
	InstancesOnline int `json:"instances_online"`
	InstanceClients int `json:"instance_clients"`

	Limits  []Limit `json:"limits,omitempty"`
	Process Process `json:"process"`
}

// Instance is the latest probe outcome for one admin target. Checked is
// false until the first probe of the target has finished.
type Instance struct {
	Name      string        `json:"name"`
	Addr      string        `json:"addr"`
	Checked   bool          `json:"checked"`
	Online    bool          `json:"online"`
	Clients   int           `json:"clients"`
	Failures  int           `json:"failures"`
	Err       string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

type Limit struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Process is the simulator's own resource usage.
type Process struct {
	Goroutines int     `json:"goroutines"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Count returns the number of workers in state s.
func (s Snapshot) Count(st lifecycle.State) int {
	return s.StateCounts[st]
}

// TotalActive sums Active across targets.
func (s Snapshot) TotalActive() int {
	n := 0
	for _, t := range s.Targets {
		n += t.Active
	}
	return n
}

// TotalLaunched sums Total across targets.
func (s Snapshot) TotalLaunched() int {
	n := 0
	for _, t := range s.Targets {
		n += t.Total
	}
	return n
}
