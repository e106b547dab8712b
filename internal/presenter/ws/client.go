package ws

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// Renderer receives snapshots read from a remote run.
type Renderer interface {
	Render(snapshot.Snapshot)
}

// Follow streams snapshots from a remote /ws endpoint into r until ctx is
// done, reconnecting with exponential backoff when the connection drops.
func Follow(ctx context.Context, url string, r Renderer) error {
	err := retry.Do(
		func() error {
			err := followOnce(ctx, url, r)
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(reconnectBaseDelay),
		retry.MaxDelay(reconnectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("url", url).Msg("ws follow: reconnecting")
		}),
	)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func followOnce(ctx context.Context, url string, r Renderer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("url", url).Msg("ws follow: connected")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Unblocks ReadJSON on shutdown.
	stop := context.AfterFunc(connCtx, func() { conn.Close() })
	defer stop()
	go pingLoop(connCtx, conn)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Type == MsgSnapshot && msg.Payload != nil {
			r.Render(*msg.Payload)
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
