// Package worker runs one simulated client through its lifecycle.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/config"
	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/metrics"
)

const closeTimeout = 2 * time.Second

// Tracker receives every lifecycle change of a worker. Begin opens a
// session under the given generation; End is called once per begun
// session after its last transition.
type Tracker interface {
	Begin(id lifecycle.Identity, generation int) error
	Transition(id lifecycle.Identity, to lifecycle.State, reason string) error
	End(id lifecycle.Identity)
}

// Policy parameterises the session loop. A zero Hold keeps the session
// until the context is canceled.
type Policy struct {
	StartDelay     config.Range
	Hold           config.Range
	OpInterval     config.Range
	ConfirmTimeout time.Duration
	Workload       config.Workload

	// Persistent workers reconnect after each session: ReconnectDelay after
	// a session that connected, RetryDelay after one that did not.
	Persistent     bool
	ReconnectDelay config.Range
	RetryDelay     time.Duration
}

type Worker struct {
	ID        lifecycle.Identity
	Target    config.Target
	Policy    Policy
	Connector backend.Connector
	Tracker   Tracker
	Metrics   metrics.Metrics
}

// Run blocks until the worker is done: after one session for one-shot
// workers, or once ctx is canceled for persistent ones. The worker is
// registered before its start delay and waits it out in Connecting.
func (w *Worker) Run(ctx context.Context) {
	if w.Metrics == nil {
		w.Metrics = metrics.Noop{}
	}

	for gen := 0; ; gen++ {
		connected := w.session(ctx, gen)
		if !w.Policy.Persistent || ctx.Err() != nil {
			return
		}
		delay := w.Policy.RetryDelay
		if connected {
			delay = w.Policy.ReconnectDelay.Pick()
		}
		if !sleep(ctx, delay) {
			return
		}
	}
}

// session runs one connect, confirm, hold cycle and reports whether a
// session was opened.
func (w *Worker) session(ctx context.Context, gen int) bool {
	if err := w.Tracker.Begin(w.ID, gen); err != nil {
		log.Warn().Err(err).Str("worker", w.ID.String()).Msg("register session")
		return false
	}
	defer w.Tracker.End(w.ID)
	if gen == 0 && !sleep(ctx, w.Policy.StartDelay.Pick()) {
		return false
	}
	w.Metrics.Increment("worker.started")

	start := time.Now()
	sess, err := w.Connector.Open(ctx, w.Target)
	if err != nil {
		w.fail(ctx, lifecycle.Rejected, err)
		return false
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			log.Debug().Err(err).Str("worker", w.ID.String()).Msg("close session")
		}
	}()
	w.Metrics.Duration("worker.connect", time.Since(start))
	w.transition(lifecycle.Pending, "")

	if err := w.confirm(ctx, sess); err != nil {
		w.fail(ctx, lifecycle.Errored, err)
		return true
	}
	w.transition(lifecycle.Active, "")

	var deadline <-chan time.Time
	if !w.Policy.Hold.IsZero() {
		hold := time.NewTimer(w.Policy.Hold.Pick())
		defer hold.Stop()
		deadline = hold.C
	}

	for {
		wait := time.NewTimer(w.Policy.OpInterval.Pick())
		select {
		case <-ctx.Done():
			wait.Stop()
			return true
		case <-deadline:
			wait.Stop()
			w.Metrics.Increment("worker.closed")
			return true
		case <-wait.C:
		}

		opStart := time.Now()
		if err := sess.Run(ctx, w.nextOp()); err != nil {
			w.fail(ctx, lifecycle.Errored, err)
			return true
		}
		w.Metrics.Duration("worker.op", time.Since(opStart))
	}
}

func (w *Worker) confirm(ctx context.Context, sess backend.Session) error {
	if w.Policy.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Policy.ConfirmTimeout)
		defer cancel()
	}
	return sess.Run(ctx, backend.Ping())
}

func (w *Worker) nextOp() backend.Operation {
	if w.Policy.Workload == config.WorkloadMixed {
		return backend.RandomWorkload(w.ID.Index)
	}
	return backend.Ping()
}

func (w *Worker) transition(to lifecycle.State, reason string) {
	if err := w.Tracker.Transition(w.ID, to, reason); err != nil {
		log.Warn().Err(err).Str("worker", w.ID.String()).Msg("transition refused")
		return
	}
	log.Debug().Str("worker", w.ID.String()).Stringer("state", to).Msg("transition")
}

// fail records a terminal failure. Errors caused by shutdown are not
// failures: the worker keeps its last state.
func (w *Worker) fail(ctx context.Context, to lifecycle.State, err error) {
	if ctx.Err() != nil {
		return
	}
	reason := backend.Classify(err)
	w.Metrics.Increment("worker." + to.String())
	if err := w.Tracker.Transition(w.ID, to, reason); err != nil {
		log.Warn().Err(err).Str("worker", w.ID.String()).Msg("transition refused")
		return
	}
	log.Debug().Err(err).Str("worker", w.ID.String()).Stringer("state", to).Str("reason", reason).Msg("transition")
}

// sleep waits for d or until ctx is done and reports whether the wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
