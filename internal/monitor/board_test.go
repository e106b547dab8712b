package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/probe"
)

func probeResult(name string, clients int, err error) []probe.Result {
	return []probe.Result{{
		Target:    config.Target{Name: name},
		Clients:   clients,
		Err:       err,
		Latency:   time.Millisecond,
		CheckedAt: time.Now(),
	}}
}

func TestBoardRecord(t *testing.T) {
	b := newBoard([]config.Target{{Name: "a", Host: "h", Port: 1}})
	fail := probeResult("a", 0, errors.New("down"))
	ok := probeResult("a", 7, nil)

	got, online, clients := b.snapshot()
	if got[0].Checked || got[0].Online || online != 0 || clients != 0 {
		t.Errorf("before any result: %+v", got[0])
	}

	b.record(fail)
	b.record(fail)
	got, online, _ = b.snapshot()
	if !got[0].Checked || got[0].Online || got[0].Failures != 2 || got[0].Err != "down" || online != 0 {
		t.Errorf("after two failures: %+v", got[0])
	}

	b.record(ok)
	got, online, clients = b.snapshot()
	if !got[0].Online || got[0].Failures != 0 || online != 1 || clients != 7 {
		t.Errorf("after success: %+v online %d clients %d", got[0], online, clients)
	}
	if got[0].Addr != "h:1" {
		t.Errorf("Addr = %q", got[0].Addr)
	}
}
