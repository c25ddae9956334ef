// Package relay runs one end of a command link: the sender frames serial
// input into commands and transmits them, the receiver writes commands
// heard on the radio to its serial output.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ystepanoff/mdrelay/internal/util"
	"github.com/ystepanoff/mdrelay/marcduino"
	proto "github.com/ystepanoff/mdrelay/protocol"
)

var (
	ErrFramingOverflow = errors.New("command exceeded maximum packet size")
	ErrSendFailure     = errors.New("command not acknowledged")
)

// Transport is what the controller needs from the radio link.
type Transport interface {
	SendReliable(to proto.Address, payload []byte) error
	Receive(timeout time.Duration) (proto.Address, []byte, error)
}

// Source yields at most one input byte per call and must return within a
// bounded time. ok is false when no byte was available.
type Source interface {
	Poll() (b byte, ok bool, err error)
}

// State of the sender state machine. A receiver is always Idle.
type State int

const (
	StateIdle State = iota
	StateFraming
	StateTransmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFraming:
		return "framing"
	case StateTransmitting:
		return "transmitting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Controller owns the framer and drives the transport for one role.
type Controller struct {
	cfg       Config
	transport Transport
	framer    *marcduino.Framer
	source    Source
	sink      io.Writer
	state     State
	stats     *Stats
}

// New binds a controller to its transport and I/O. A sender needs src, a
// receiver needs sink; the other may be nil.
func New(cfg Config, t Transport, src Source, sink io.Writer) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.New("relay: nil transport")
	}
	switch {
	case cfg.Role == RoleSender && src == nil:
		return nil, errors.New("relay: sender needs an input source")
	case cfg.Role == RoleReceiver && sink == nil:
		return nil, errors.New("relay: receiver needs an output sink")
	}

	return &Controller{
		cfg:       cfg,
		transport: t,
		framer:    marcduino.NewFramer(cfg.StartToken, cfg.EndToken, cfg.MaxPacket),
		source:    src,
		sink:      sink,
		stats:     &Stats{},
	}, nil
}

func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) State() State { return c.state }

func (c *Controller) Stats() *Stats { return c.stats }

// Run polls until ctx is cancelled or the I/O fails.
func (c *Controller) Run(ctx context.Context) error {
	util.LogInfo("[%s] relaying %d -> %d", c.tag(), c.cfg.Endpoint.Address, c.cfg.Endpoint.Peer)
	for {
		if err := c.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// PollOnce performs at most one unit of work: frame one input byte (and
// send the command it completes), or wait once for a datagram.
// Per-command failures are handled here; only I/O errors are returned.
func (c *Controller) PollOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.cfg.Role == RoleSender {
		return c.pollSender()
	}
	return c.pollReceiver()
}

func (c *Controller) pollSender() error {
	b, ok, err := c.source.Poll()
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if !ok {
		return nil
	}

	switch c.framer.Feed(b) {
	case marcduino.EventNone:
		if c.framer.InProgress() {
			c.state = StateFraming
		} else {
			c.state = StateIdle
		}
	case marcduino.EventOverflow:
		c.stats.Overflows.Add(1)
		c.state = StateIdle
		util.LogDebug("[Sender] %v, dropped", ErrFramingOverflow)
	case marcduino.EventPacketReady:
		c.stats.Framed.Add(1)
		c.transmit(c.framer.Packet())
	}
	return nil
}

func (c *Controller) transmit(packet []byte) {
	c.state = StateTransmitting
	defer func() { c.state = StateIdle }()

	if err := c.transport.SendReliable(c.cfg.Endpoint.Peer, packet); err != nil {
		c.stats.Failed.Add(1)
		c.framer.Reset()
		util.LogDebug("[Sender] %q: %v: %v", packet, ErrSendFailure, err)
		return
	}
	c.stats.Sent.Add(1)
	util.LogDebug("[Sender] %q delivered to %d", packet, c.cfg.Endpoint.Peer)
}

// pollReceiver writes commands from the configured peer to the sink and
// counts datagrams from any other node as ignored.
func (c *Controller) pollReceiver() error {
	from, payload, err := c.transport.Receive(c.cfg.PollTimeout)
	if errors.Is(err, proto.ErrTimeout) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}

	if from != c.cfg.Endpoint.Peer {
		c.stats.Ignored.Add(1)
		util.LogDebug("[Receiver] ignoring %q from unknown node %d", payload, from)
		return nil
	}

	if err := marcduino.WriteCommand(c.sink, payload, c.cfg.Terminator); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	c.stats.Received.Add(1)
	util.LogDebug("[Receiver] %q from %d", payload, from)
	return nil
}

func (c *Controller) tag() string {
	if c.cfg.Role == RoleSender {
		return "Sender"
	}
	return "Receiver"
}
