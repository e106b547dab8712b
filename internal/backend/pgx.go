package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pgbouncer-lab/liveload/internal/config"
)

// Pgx opens a plain pgx connection per session. No client-side pool is
// used: every worker must show up as its own client of the pool layer.
type Pgx struct{}

func (Pgx) Open(ctx context.Context, target config.Target) (Session, error) {
	cfg, err := pgx.ParseConfig(ConnString(target))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	cfg.ConnectTimeout = target.ConnectTimeout
	if !target.ExtendedProtocol {
		cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pgxSession{conn: conn}, nil
}

// ConnString renders a keyword/value connection string for target.
func ConnString(t config.Target) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable application_name=liveload",
		quote(t.Host), t.Port, quote(t.User), quote(t.Password), quote(t.Database),
	)
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

type pgxSession struct {
	conn *pgx.Conn
}

func (s *pgxSession) Run(ctx context.Context, op Operation) error {
	sql, args, err := op.SQL()
	if err != nil {
		return err
	}
	if op.Kind == KindSelect {
		var n int64
		return s.conn.QueryRow(ctx, sql, args...).Scan(&n)
	}
	_, err = s.conn.Exec(ctx, sql, args...)
	return err
}

func (s *pgxSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
