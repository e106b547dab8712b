package backend

import (
	"context"
	"errors"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Failure reasons shown next to rejected and errored workers.
const (
	ReasonTooManyConnections = "too_many_connections"
	ReasonAuthFailed         = "auth_failed"
	ReasonTimeout            = "timeout"
	ReasonRefused            = "refused"
	ReasonCanceled           = "canceled"
	ReasonProtocol           = "protocol"
	ReasonError              = "error"
)

// Classify reduces a session error to a short reason. PgBouncer reports its
// own limits as protocol violations, so the message is inspected too.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := strings.ToLower(pgErr.Message)
		switch {
		case pgErr.Code == "53300",
			strings.Contains(msg, "no more connections allowed"),
			strings.Contains(msg, "too many connections"):
			return ReasonTooManyConnections
		case pgErr.Code == "28P01", pgErr.Code == "28000":
			return ReasonAuthFailed
		case pgErr.Code == "57014",
			strings.Contains(msg, "query_wait_timeout"),
			strings.Contains(msg, "timeout"):
			return ReasonTimeout
		case pgErr.Code == "08P01":
			return ReasonProtocol
		}
		return ReasonError
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case pgconn.Timeout(err), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonRefused
	}
	return ReasonError
}
