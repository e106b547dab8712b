package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pgbouncer-lab/liveload/internal/config"
)

// testProber answers from a table keyed by target name. Targets listed in
// hang block until released, ignoring ctx.
type testProber struct {
	mu      sync.Mutex
	clients map[string]int
	fail    map[string]error
	hang    map[string]chan struct{}
	calls   map[string]int
}

func (p *testProber) Probe(ctx context.Context, t config.Target) (int, error) {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[t.Name]++
	release := p.hang[t.Name]
	err := p.fail[t.Name]
	n := p.clients[t.Name]
	p.mu.Unlock()

	if release != nil {
		<-release
	}
	return n, err
}

func targets(names ...string) []config.Target {
	out := make([]config.Target, len(names))
	for i, n := range names {
		out[i] = config.Target{Name: n}
	}
	return out
}

func TestPollKeepsOrderAndIsolatesFailures(t *testing.T) {
	p := &testProber{
		clients: map[string]int{"a": 3, "c": 5},
		fail:    map[string]error{"b": errors.New("connection refused")},
	}

	res := Poll(context.Background(), p, targets("a", "b", "c"), time.Second)
	if len(res) != 3 {
		t.Fatalf("got %d results, want 3", len(res))
	}
	for i, name := range []string{"a", "b", "c"} {
		if res[i].Target.Name != name {
			t.Errorf("res[%d] = %s, want %s", i, res[i].Target.Name, name)
		}
	}
	if !res[0].Online() || res[0].Clients != 3 {
		t.Errorf("a = %+v, want online with 3", res[0])
	}
	if res[1].Online() || res[1].Clients != 0 {
		t.Errorf("b = %+v, want offline with 0", res[1])
	}
	if !res[2].Online() || res[2].Clients != 5 {
		t.Errorf("c = %+v, want online with 5", res[2])
	}
}

func TestPollBoundsHungTarget(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := &testProber{
		clients: map[string]int{"fast": 2},
		hang:    map[string]chan struct{}{"hung": release},
	}

	start := time.Now()
	res := Poll(context.Background(), p, targets("fast", "hung"), 50*time.Millisecond)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Poll took %s with a hung target", elapsed)
	}
	if !res[0].Online() || res[0].Clients != 2 {
		t.Errorf("fast = %+v, want online", res[0])
	}
	if res[1].Online() {
		t.Error("hung target reported online")
	}
	if !errors.Is(res[1].Err, context.DeadlineExceeded) {
		t.Errorf("hung err = %v, want deadline exceeded", res[1].Err)
	}
}

func TestPollNoTargets(t *testing.T) {
	if res := Poll(context.Background(), &testProber{}, nil, time.Second); len(res) != 0 {
		t.Errorf("Poll(nil) = %v", res)
	}
}

func TestCountClients(t *testing.T) {
	fields := []string{"type", "user", "database", "state"}
	rows := [][]any{
		{"C", "user1", "testdb", "active"},
		{"C", "user1", "testdb", "waiting"},
		{"C", "pgbouncer", "pgbouncer", "active"},
	}

	tests := []struct {
		name    string
		exclude bool
		want    int
	}{
		{"all rows", false, 3},
		{"exclude admin", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountClients(fields, rows, tt.exclude)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("CountClients = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountClientsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		rows   [][]any
	}{
		{"no database column", []string{"type", "user"}, [][]any{{"C", "u"}}},
		{"short row", []string{"type", "database"}, [][]any{{"C"}}},
		{"non-text database", []string{"database"}, [][]any{{42}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CountClients(tt.fields, tt.rows, true); !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestCountClientsEmptyListing(t *testing.T) {
	got, err := CountClients([]string{"database"}, nil, true)
	if err != nil || got != 0 {
		t.Errorf("CountClients(empty) = %d, %v", got, err)
	}
}
