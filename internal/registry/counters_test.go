package registry

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
)

func portID(port string, idx int) lifecycle.Identity {
	return lifecycle.Identity{Group: "traffic", Target: port, Index: idx}
}

func TestCountersPreregistered(t *testing.T) {
	c := NewCounters("6432", "6433", "6434")
	snap := c.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d targets, want 3", len(snap))
	}
	for i, want := range []string{"6432", "6433", "6434"} {
		if snap[i].Target != want {
			t.Errorf("snap[%d].Target = %s, want %s", i, snap[i].Target, want)
		}
		if snap[i].Active != 0 || snap[i].Total != 0 {
			t.Errorf("snap[%d] = %+v, want zeros", i, snap[i])
		}
	}
}

func TestCountersBeginEnd(t *testing.T) {
	c := NewCounters("6432")
	a, b := portID("6432", 1), portID("6432", 2)

	_ = c.Begin(a, 0)
	_ = c.Begin(b, 0)
	if got := c.Active("6432"); got != 2 {
		t.Errorf("Active = %d, want 2", got)
	}

	c.End(a)
	c.End(a) // second End is a no-op
	snap := c.Snapshot()[0]
	if snap.Active != 1 || snap.Total != 2 {
		t.Errorf("after End: %+v, want active 1 total 2", snap)
	}
}

func TestCountersDuplicateBegin(t *testing.T) {
	c := NewCounters()
	key := portID("6432", 1)
	_ = c.Begin(key, 0)
	if err := c.Begin(key, 1); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("duplicate Begin err = %v, want ErrInvalidTransition", err)
	}
	if snap := c.Snapshot()[0]; snap.Total != 1 {
		t.Errorf("Total = %d after refused Begin, want 1", snap.Total)
	}
}

func TestCountersFailureTallies(t *testing.T) {
	c := NewCounters("6432")
	a, b := portID("6432", 1), portID("6432", 2)
	_ = c.Begin(a, 0)
	_ = c.Begin(b, 0)
	_ = c.Transition(a, lifecycle.Rejected, "refused")
	_ = c.Transition(b, lifecycle.Pending, "")
	_ = c.Transition(b, lifecycle.Errored, "timeout")

	snap := c.Snapshot()[0]
	if snap.Rejected != 1 || snap.Errored != 1 {
		t.Errorf("tallies = %+v, want 1 rejected 1 errored", snap)
	}

	if err := c.Transition(portID("6432", 99), lifecycle.Rejected, ""); !errors.Is(err, ErrUnknownIdentity) {
		t.Errorf("Transition for non-member err = %v, want ErrUnknownIdentity", err)
	}
}

func TestCountersSnapshotIdempotent(t *testing.T) {
	c := NewCounters("6432", "6433")
	_ = c.Begin(portID("6433", 1), 0)
	if !reflect.DeepEqual(c.Snapshot(), c.Snapshot()) {
		t.Error("repeated snapshots without writes differ")
	}
}

// TestCountersInvariantUnderConcurrency checks total >= active >= 0 on every
// snapshot while many goroutines begin and end sessions.
func TestCountersInvariantUnderConcurrency(t *testing.T) {
	ports := []string{"6432", "6433", "6434"}
	c := NewCounters(ports...)
	const perPort = 100

	var wg sync.WaitGroup
	for _, p := range ports {
		for i := 0; i < perPort; i++ {
			wg.Add(1)
			go func(key lifecycle.Identity) {
				defer wg.Done()
				_ = c.Begin(key, 0)
				_ = c.Transition(key, lifecycle.Pending, "")
				c.End(key)
			}(portID(p, i))
		}
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, tc := range c.Snapshot() {
				if tc.Active < 0 || tc.Total < tc.Active {
					t.Errorf("invariant broken: %+v", tc)
					return
				}
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-readerDone

	for _, tc := range c.Snapshot() {
		if tc.Active != 0 || tc.Total != perPort {
			t.Errorf("final %+v, want active 0 total %d", tc, perPort)
		}
	}
}
