// Package probe asks the pool layer's admin consoles how many clients they
// are serving.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pgbouncer-lab/liveload/internal/config"
)

var ErrMalformed = errors.New("malformed admin listing")

// Prober returns the number of client sessions a target reports.
type Prober interface {
	Probe(ctx context.Context, target config.Target) (int, error)
}

type Result struct {
	Target    config.Target
	Clients   int
	Err       error
	Latency   time.Duration
	CheckedAt time.Time
}

func (r Result) Online() bool {
	return r.Err == nil
}

// Poll probes every target concurrently. Each call is cut off after timeout
// even if the prober ignores its context, so one hung console cannot hold up
// the others. Results keep the order of targets.
func Poll(ctx context.Context, p Prober, targets []config.Target, timeout time.Duration) []Result {
	results := make([]Result, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			results[i] = probeOne(ctx, p, t, timeout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func probeOne(ctx context.Context, p Prober, target config.Target, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		clients int
		err     error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		n, err := p.Probe(ctx, target)
		done <- outcome{n, err}
	}()

	res := Result{Target: target}
	select {
	case o := <-done:
		res.Clients, res.Err = o.clients, o.err
	case <-ctx.Done():
		res.Err = fmt.Errorf("probe %s: %w", target.Name, ctx.Err())
	}
	res.Latency = time.Since(start)
	res.CheckedAt = time.Now()
	if res.Err != nil {
		res.Clients = 0
	}
	return res
}
