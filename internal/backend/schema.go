package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/pgbouncer-lab/liveload/internal/config"
)

const setupAttempts = 3

// EnsureSchema creates the workload table through target. It is the only
// call whose failure aborts a run.
func EnsureSchema(ctx context.Context, c Connector, target config.Target, delay time.Duration) error {
	err := retry.Do(
		func() error {
			sess, err := c.Open(ctx, target)
			if err != nil {
				return err
			}
			defer sess.Close(context.WithoutCancel(ctx))
			return sess.Run(ctx, Operation{Kind: KindSchema})
		},
		retry.Context(ctx),
		retry.Attempts(setupAttempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("target", target.Name).Msg("schema setup failed")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s on %s: %w", usageTable, target.Addr(), err)
	}
	log.Info().Str("target", target.Name).Msg("schema ready")
	return nil
}
