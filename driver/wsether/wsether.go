// Package wsether emulates the air between relay processes on different
// hosts. A Hub plays the ether; each Driver is a radio that connects to it
// over a WebSocket. Binary messages carry on-air frames and text messages
// carry JSON control messages.
package wsether

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ystepanoff/mdrelay/internal/util"
	proto "github.com/ystepanoff/mdrelay/protocol"
	"github.com/ystepanoff/mdrelay/transport"
)

// MessageType identifies the kind of control message.
type MessageType string

const (
	MsgTypeTune MessageType = "tune"
)

// Message is the JSON structure of a control message.
type Message struct {
	Type      MessageType `json:"type"`
	Frequency float64     `json:"frequency,omitempty"`
}

const (
	DialTimeout = 5 * time.Second

	rxQueueSize = 64
)

// Driver implements transport.RadioDriver against a Hub.
type Driver struct {
	url    string
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}
}

// New returns a driver for the hub at url, e.g. ws://host:7373/ether.
// The connection is made by Init.
func New(url string) *Driver {
	return &Driver{url: url}
}

func (d *Driver) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to ether %s: %w", d.url, err)
	}
	d.conn = conn
	d.frames = make(chan []byte, rxQueueSize)
	d.done = make(chan struct{})
	go d.watch(conn, d.frames, d.done)
	return nil
}

// watch moves frames from the socket to the receive queue until the
// connection drops. Frames that find the queue full are lost, as they would
// be on air.
func (d *Driver) watch(conn *websocket.Conn, frames chan<- []byte, done chan<- struct{}) {
	defer close(done)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		select {
		case frames <- data:
		default:
			util.LogDebug("[Ether] receive queue full, frame lost")
		}
	}
}

func (d *Driver) Configure(cfg transport.RadioConfig) error {
	if !proto.ValidFrequency(cfg.Frequency) {
		return proto.ErrInvalidFrequency
	}
	if d.conn == nil {
		return errNotConnected
	}
	return d.conn.WriteJSON(Message{Type: MsgTypeTune, Frequency: cfg.Frequency})
}

func (d *Driver) Tx(frame []byte) error {
	if d.conn == nil {
		return errNotConnected
	}
	return d.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (d *Driver) Rx(timeout time.Duration) ([]byte, error) {
	if d.conn == nil {
		return nil, errNotConnected
	}
	select {
	case f := <-d.frames:
		return f, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-d.frames:
		return f, nil
	case <-d.done:
		return nil, errDisconnected
	case <-timer.C:
		return nil, proto.ErrTimeout
	}
}

func (d *Driver) Close() error {
	if d.conn == nil {
		return nil
	}
	d.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := d.conn.Close()
	d.conn = nil
	return err
}
