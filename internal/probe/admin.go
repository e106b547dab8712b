package probe

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pgbouncer-lab/liveload/internal/backend"
	"github.com/pgbouncer-lab/liveload/internal/config"
)

const adminDatabase = "pgbouncer"

// Admin runs SHOW CLIENTS against a PgBouncer admin console. With
// ExcludeAdmin set, rows attached to the admin database itself are not
// counted, which drops the probe's own connection.
type Admin struct {
	ExcludeAdmin bool
}

func (a Admin) Probe(ctx context.Context, target config.Target) (int, error) {
	cfg, err := pgx.ParseConfig(backend.ConnString(target))
	if err != nil {
		return 0, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	cfg.ConnectTimeout = target.ConnectTimeout
	// The admin console only speaks the simple query protocol.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	rows, err := conn.Query(ctx, "SHOW CLIENTS")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	fields := make([]string, 0, len(rows.FieldDescriptions()))
	for _, fd := range rows.FieldDescriptions() {
		fields = append(fields, fd.Name)
	}
	var listing [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return 0, err
		}
		listing = append(listing, vals)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return CountClients(fields, listing, a.ExcludeAdmin)
}

// CountClients counts SHOW CLIENTS rows. The listing must carry a database
// column; rows without a textual database value are malformed.
func CountClients(fields []string, rows [][]any, excludeAdmin bool) (int, error) {
	dbCol := -1
	for i, f := range fields {
		if f == "database" {
			dbCol = i
			break
		}
	}
	if dbCol < 0 {
		return 0, fmt.Errorf("%w: no database column", ErrMalformed)
	}

	n := 0
	for i, row := range rows {
		if dbCol >= len(row) {
			return 0, fmt.Errorf("%w: row %d has %d columns", ErrMalformed, i, len(row))
		}
		db, ok := row[dbCol].(string)
		if !ok {
			return 0, fmt.Errorf("%w: row %d database is %T", ErrMalformed, i, row[dbCol])
		}
		if excludeAdmin && db == adminDatabase {
			continue
		}
		n++
	}
	return n, nil
}
