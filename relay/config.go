package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/ystepanoff/mdrelay/marcduino"
	proto "github.com/ystepanoff/mdrelay/protocol"
)

// Role fixes which direction a node relays in.
type Role int

const (
	// RoleSender reads commands from its serial input and transmits them.
	RoleSender Role = iota + 1
	// RoleReceiver writes commands heard on the radio to its serial output.
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Config is built once at startup and never changes afterwards.
type Config struct {
	Role     Role
	Endpoint proto.Endpoint

	// Serial framing on the sender's input
	StartToken byte
	EndToken   byte
	MaxPacket  int

	// Appended to every command the receiver writes out
	Terminator byte

	// How long one receiver poll waits for a datagram
	PollTimeout time.Duration
}

// DefaultConfig returns the settings for role with the stock addresses:
// the sender is node 2 and the receiver node 1.
func DefaultConfig(role Role) Config {
	ep := proto.Endpoint{Address: 2, Peer: 1, Key: proto.DefaultKey}
	if role == RoleReceiver {
		ep = ep.Mirror()
	}
	return Config{
		Role:        role,
		Endpoint:    ep,
		StartToken:  marcduino.DefaultStartToken,
		EndToken:    marcduino.DefaultEndToken,
		MaxPacket:   proto.MaxMessageLen,
		Terminator:  marcduino.DefaultTerminator,
		PollTimeout: 100 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.Role != RoleSender && c.Role != RoleReceiver {
		return fmt.Errorf("unknown role %v", c.Role)
	}
	if err := c.Endpoint.Validate(); err != nil {
		return err
	}
	if c.StartToken == c.EndToken {
		return errors.New("start and end tokens must differ")
	}
	if c.MaxPacket <= 0 || c.MaxPacket > proto.MaxMessageLen {
		return fmt.Errorf("%w: max packet %d (limit %d)", proto.ErrInvalidPayload, c.MaxPacket, proto.MaxMessageLen)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive, got %v", c.PollTimeout)
	}
	return nil
}
