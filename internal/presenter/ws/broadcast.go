package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

const clientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcaster keeps the latest encoded snapshot and pushes every new one
// to all connected clients. A client that cannot keep up is dropped.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[*client]bool
	latest  []byte
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]bool),
	}
}

// AddClient registers conn and sends it the latest snapshot, if any.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	if b.latest != nil {
		c.send <- b.latest
	}
	b.mu.Unlock()

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	b.removeLocked(c)
	b.mu.Unlock()
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Render encodes s, stores it as the latest snapshot and broadcasts it.
func (b *Broadcaster) Render(s snapshot.Snapshot) {
	data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: &s})
	if err != nil {
		log.Error().Err(err).Msg("encode snapshot")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = data
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("ws client too slow, disconnecting")
			b.removeLocked(c)
		}
	}
}

// Latest returns the most recent encoded snapshot, or nil before the first.
func (b *Broadcaster) Latest() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// CloseAll disconnects every client.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		b.removeLocked(c)
	}
}
