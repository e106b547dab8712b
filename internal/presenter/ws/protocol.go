package ws

import "github.com/pgbouncer-lab/liveload/internal/snapshot"

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
)

type Message struct {
	Type    MessageType        `json:"type"`
	Payload *snapshot.Snapshot `json:"payload"`
}
