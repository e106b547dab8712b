package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

type testRenderer struct {
	mu    sync.Mutex
	modes []string
}

func (r *testRenderer) Render(s snapshot.Snapshot) {
	r.mu.Lock()
	r.modes = append(r.modes, s.Mode)
	r.mu.Unlock()
}

func (r *testRenderer) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.modes...)
}

func TestFollowStreamsUntilCanceled(t *testing.T) {
	s := NewServer("")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	s.Render(snapshot.Snapshot{Mode: "pool"})

	r := &testRenderer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", r)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(r.seen()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no snapshot received")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.seen()[0]; got != "pool" {
		t.Errorf("first snapshot mode = %q, want pool", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow() = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestFollowCanceledWhileUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := Follow(ctx, "ws://127.0.0.1:1/ws", &testRenderer{}); err != nil {
		t.Errorf("Follow() = %v, want nil once ctx is done", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Follow took %s to notice cancellation", elapsed)
	}
}
