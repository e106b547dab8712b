package monitor

import (
	"sync"
	"time"

	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/probe"
	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

// instanceHealth tracks consecutive probe failures for one admin target.
// Online follows the latest result only; failures reset on the first
// success.
type instanceHealth struct {
	name      string
	addr      string
	checked   bool
	online    bool
	clients   int
	failures  int
	lastErr   string
	latency   time.Duration
	checkedAt time.Time
}

func (h *instanceHealth) recordSuccess(r probe.Result) {
	h.checked = true
	h.online = true
	h.clients = r.Clients
	h.failures = 0
	h.lastErr = ""
	h.latency = r.Latency
	h.checkedAt = r.CheckedAt
}

func (h *instanceHealth) recordFailure(r probe.Result) {
	h.checked = true
	h.online = false
	h.clients = 0
	h.failures++
	h.lastErr = r.Err.Error()
	h.latency = r.Latency
	h.checkedAt = r.CheckedAt
}

// board is written by the probe loop and read by the render loop.
type board struct {
	mu        sync.Mutex
	instances []*instanceHealth
	index     map[string]*instanceHealth
}

func newBoard(targets []config.Target) *board {
	b := &board{index: make(map[string]*instanceHealth, len(targets))}
	for _, t := range targets {
		h := &instanceHealth{name: t.Name, addr: t.Addr()}
		b.instances = append(b.instances, h)
		b.index[t.Name] = h
	}
	return b
}

func (b *board) record(results []probe.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range results {
		h, ok := b.index[r.Target.Name]
		if !ok {
			continue
		}
		if r.Online() {
			h.recordSuccess(r)
		} else {
			h.recordFailure(r)
		}
	}
}

// snapshot copies every instance in configuration order together with
// the number online and their summed clients.
func (b *board) snapshot() (out []snapshot.Instance, online, clients int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out = make([]snapshot.Instance, 0, len(b.instances))
	for _, h := range b.instances {
		out = append(out, snapshot.Instance{
			Name:      h.name,
			Addr:      h.addr,
			Checked:   h.checked,
			Online:    h.online,
			Clients:   h.clients,
			Failures:  h.failures,
			Err:       h.lastErr,
			Latency:   h.latency,
			CheckedAt: h.checkedAt,
		})
		if h.online {
			online++
			clients += h.clients
		}
	}
	return out, online, clients
}
