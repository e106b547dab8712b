// Package driver launches and supervises the worker population.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/metrics"
	"github.com/pgbouncer-lab/liveload/internal/worker"
)

// Driver runs one launch policy and owns every worker it starts. Workers
// run under a context owned by the driver, so stopping launches and
// canceling workers are separate steps.
type Driver struct {
	mode      string
	loop      func(ctx context.Context)
	connector backend.Connector
	metrics   metrics.Metrics

	base       context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	wg       sync.WaitGroup
	running  map[lifecycle.Identity]context.CancelFunc
	launched int
	stopped  bool
}

func newDriver(mode string, connector backend.Connector, m metrics.Metrics) *Driver {
	if m == nil {
		m = metrics.Noop{}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Driver{
		mode:       mode,
		connector:  connector,
		metrics:    m,
		base:       base,
		cancelBase: cancel,
		running:    make(map[lifecycle.Identity]context.CancelFunc),
	}
}

func (d *Driver) Mode() string {
	return d.mode
}

// Run executes the launch policy until ctx is canceled. Once it returns no
// further worker is started; workers already running keep going until
// Shutdown.
func (d *Driver) Run(ctx context.Context) error {
	log.Info().Str("mode", d.mode).Msg("driver started")
	d.loop(ctx)
	<-ctx.Done()

	d.mu.Lock()
	d.stopped = true
	launched := d.launched
	d.mu.Unlock()
	log.Info().Str("mode", d.mode).Int("launched", launched).Msg("driver stopped launching")
	return nil
}

// Shutdown stops launches, cancels every running worker and waits up to
// timeout for them to return. It reports whether all of them did.
func (d *Driver) Shutdown(timeout time.Duration) bool {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancelBase()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.Warn().Int("running", d.Running()).Msg("workers still running after shutdown timeout")
		return false
	}
}

// Launched is the number of workers started so far.
func (d *Driver) Launched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launched
}

// Running is the number of workers that have not returned yet.
func (d *Driver) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// launch starts w unless the driver stopped or ctx is done. done, if set,
// runs after the worker returns.
func (d *Driver) launch(ctx context.Context, w *worker.Worker, done func()) bool {
	d.mu.Lock()
	if d.stopped || ctx.Err() != nil {
		d.mu.Unlock()
		return false
	}
	wctx, cancel := context.WithCancel(d.base)
	d.running[w.ID] = cancel
	d.launched++
	d.wg.Add(1)
	running := len(d.running)
	d.mu.Unlock()

	d.metrics.Increment("driver.launched")
	d.metrics.Gauge("driver.running", running)

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.running, w.ID)
			d.mu.Unlock()
			cancel()
			if done != nil {
				done()
			}
		}()
		w.Run(wctx)
	}()
	return true
}

func sleep(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
