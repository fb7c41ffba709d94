package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/limitwatch/limitwatch/internal/monitor"
)

// Message types sent over /ws
const (
	MsgStatus     = "status"
	MsgTransition = "transition"
)

// WSMessage is the envelope for every websocket frame
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
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

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans monitor transitions out to websocket clients. A client's
// send channel is only written or closed while mu is held.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	closed  bool
	logger  *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients: make(map[*client]bool),
		logger:  logger,
	}
}

// AddClient registers conn and greets it with the current status. After
// the feed has ended the connection is closed straight away.
func (b *Broadcaster) AddClient(conn *websocket.Conn, status monitor.Status) *client {
	c := newClient(conn)

	greeting, err := json.Marshal(WSMessage{Type: MsgStatus, Payload: status})
	if err != nil {
		greeting = nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		c.close()
		return c
	}
	b.clients[c] = true
	if greeting != nil {
		c.send <- greeting // fresh buffer, cannot block
	}
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
}

// Run broadcasts transitions until the channel closes or ctx is done, then
// disconnects every client.
func (b *Broadcaster) Run(ctx context.Context, transitions <-chan monitor.Transition) {
	defer b.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			b.broadcast(WSMessage{Type: MsgTransition, Payload: t})
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast marshal error", "err", err)
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	if len(slow) == 0 {
		return
	}

	// Clients that can't keep up are disconnected
	b.mu.Lock()
	for _, c := range slow {
		b.logger.Warn("ws client too slow, disconnecting")
		b.removeLocked(c)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		b.removeLocked(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
