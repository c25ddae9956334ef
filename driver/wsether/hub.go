package wsether

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ystepanoff/mdrelay/internal/util"
)

var (
	errNotConnected = errors.New("wsether: not connected")
	errDisconnected = errors.New("wsether: connection to ether lost")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one radio attached to the hub.
type client struct {
	conn *websocket.Conn

	mu        sync.Mutex // serialises writes to conn
	frequency float64
}

func (c *client) send(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Hub relays every frame to all other clients tuned to the sender's
// frequency. Clients that have not tuned yet hear nothing.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	util.LogInfo("[Ether] radio connected from %s (%d on air)", r.RemoteAddr, n)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close()
		util.LogInfo("[Ether] radio %s left", r.RemoteAddr)
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.TextMessage:
			h.control(c, data)
		case websocket.BinaryMessage:
			h.broadcast(c, data)
		}
	}
}

// Clients returns the number of connected radios.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Tuned returns the number of radios listening on freq.
func (h *Hub) Tuned(freq float64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if c.tuned() == freq {
			n++
		}
	}
	return n
}

func (h *Hub) control(c *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		util.LogWarning("[Ether] bad control message: %v", err)
		return
	}
	switch msg.Type {
	case MsgTypeTune:
		c.mu.Lock()
		c.frequency = msg.Frequency
		c.mu.Unlock()
		util.LogDebug("[Ether] radio tuned to %.3f MHz", msg.Frequency)
	}
}

func (h *Hub) broadcast(from *client, frame []byte) {
	freq := from.tuned()
	if freq == 0 {
		return
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c != from && c.tuned() == freq {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.send(frame)
	}
}

func (c *client) tuned() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frequency
}
