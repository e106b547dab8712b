package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgbouncer-lab/liveload/internal/config"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"server too many", &pgconn.PgError{Code: "53300", Message: "sorry, too many clients already"}, ReasonTooManyConnections},
		{"bouncer max_client_conn", &pgconn.PgError{Code: "08P01", Message: "no more connections allowed (max_client_conn)"}, ReasonTooManyConnections},
		{"bouncer query_wait_timeout", &pgconn.PgError{Code: "08P01", Message: "query_wait_timeout"}, ReasonTimeout},
		{"auth", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, ReasonAuthFailed},
		{"statement canceled", &pgconn.PgError{Code: "57014", Message: "canceling statement"}, ReasonTimeout},
		{"other protocol", &pgconn.PgError{Code: "08P01", Message: "server conn crashed?"}, ReasonProtocol},
		{"other sqlstate", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, ReasonError},
		{"wrapped pg error", fmt.Errorf("run: %w", &pgconn.PgError{Code: "53300"}), ReasonTooManyConnections},
		{"canceled", fmt.Errorf("open: %w", context.Canceled), ReasonCanceled},
		{"deadline", context.DeadlineExceeded, ReasonTimeout},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ReasonRefused},
		{"plain", errors.New("boom"), ReasonError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestConnString(t *testing.T) {
	got := ConnString(config.Target{
		Host:     "localhost",
		Port:     6432,
		User:     "user1",
		Password: "it's secret",
		Database: "testdb",
	})
	want := `host='localhost' port=6432 user='user1' password='it\'s secret' dbname='testdb' sslmode=disable application_name=liveload`
	if got != want {
		t.Errorf("ConnString() =\n%s\nwant\n%s", got, want)
	}
}
