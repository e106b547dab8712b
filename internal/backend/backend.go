// Package backend opens sessions against the pool layer and runs the
// simulated workload over them.
package backend

import (
	"context"

	"github.com/pgbouncer-lab/liveload/internal/config"
)

// Connector opens one session to a target. Implementations must honor the
// target's connect timeout as well as ctx.
type Connector interface {
	Open(ctx context.Context, target config.Target) (Session, error)
}

// Session is owned by exactly one worker and never shared.
type Session interface {
	Run(ctx context.Context, op Operation) error
	Close(ctx context.Context) error
}
