package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/presenter"
	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

type testSession struct{}

func (testSession) Run(context.Context, backend.Operation) error { return nil }
func (testSession) Close(context.Context) error                  { return nil }

type testConnector struct {
	fail  bool
	opens atomic.Int32
}

func (c *testConnector) Open(context.Context, config.Target) (backend.Session, error) {
	c.opens.Add(1)
	if c.fail {
		return nil, errors.New("connection refused")
	}
	return testSession{}, nil
}

type testPresenter struct {
	mu     sync.Mutex
	last   snapshot.Snapshot
	closes int
}

func (p *testPresenter) Render(s snapshot.Snapshot) {
	p.mu.Lock()
	p.last = s
	p.mu.Unlock()
}

func (p *testPresenter) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return nil
}

func (p *testPresenter) snapshot() (snapshot.Snapshot, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.closes
}

func cohortConfig(count int) *config.Config {
	cfg := config.Default()
	cfg.Targets = []config.Target{{Name: "a", Host: "localhost", Port: 6432}}
	cfg.Cohort.Groups = []config.CohortGroup{{Name: "g", Target: "a", Count: count}}
	cfg.Cohort.Stagger = time.Millisecond
	cfg.Monitor.RefreshInterval = 5 * time.Millisecond
	return cfg
}

func testDeps(c backend.Connector, p *testPresenter, onQuit *func()) deps {
	return deps{
		runID:     "test-run",
		connector: c,
		presenter: func(_ *config.Config, quit func()) (presenter.Presenter, error) {
			if onQuit != nil {
				*onQuit = quit
			}
			return p, nil
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunInterruptShutsDownCleanly(t *testing.T) {
	conn := &testConnector{}
	pres := &testPresenter{}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cohortConfig(3), testDeps(conn, pres, nil)) }()

	waitFor(t, func() bool {
		s, _ := pres.snapshot()
		return s.Count(lifecycle.Active) == 3
	})
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	last, closes := pres.snapshot()
	if closes != 1 {
		t.Errorf("presenter closed %d times, want 1", closes)
	}
	if !last.Final {
		t.Error("last rendered snapshot is not the final frame")
	}
	if got := last.Count(lifecycle.Closed); got != 3 {
		t.Errorf("final frame has %d closed workers, want 3", got)
	}
	if got := conn.opens.Load(); got != 3 {
		t.Errorf("opens = %d, want 3", got)
	}
}

func TestRunQuitKeyEndsRun(t *testing.T) {
	pres := &testPresenter{}
	var quit func()
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(context.Background(), cohortConfig(1), testDeps(&testConnector{}, pres, &quit))
	}()

	waitFor(t, func() bool {
		s, _ := pres.snapshot()
		return s.Count(lifecycle.Active) == 1
	})
	quit()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after quit")
	}
	if _, closes := pres.snapshot(); closes != 1 {
		t.Errorf("presenter closed %d times, want 1", closes)
	}
}

func TestRunSetupFailureAborts(t *testing.T) {
	cfg := cohortConfig(1)
	cfg.Mode = config.ModePool
	cfg.Pool.Target = "a"
	cfg.Pool.Setup = true

	pres := &testPresenter{}
	built := false
	d := testDeps(&testConnector{fail: true}, pres, nil)
	d.presenter = func(*config.Config, func()) (presenter.Presenter, error) {
		built = true
		return pres, nil
	}

	err := run(context.Background(), cfg, d)
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != exitFailed {
		t.Fatalf("run() = %v, want exit status %d", err, exitFailed)
	}
	if built {
		t.Error("presenter started although setup failed")
	}
}

func TestExecuteConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"cohort", "-c", "/nonexistent/liveload.yaml"}},
		{"no groups", []string{"cohort"}},
		{"unknown flag", []string{"--bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := execute(tt.args); got != exitConfig {
				t.Errorf("execute(%v) = %d, want %d", tt.args, got, exitConfig)
			}
		})
	}
}
