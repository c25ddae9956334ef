// Package mdrelay relays Marcduino commands over an encrypted packet radio
// link. The subpackages hold the pieces; this package fixes the build-time
// settings and wires them together.
package mdrelay

import (
	"io"

	"github.com/ystepanoff/mdrelay/marcduino"
	proto "github.com/ystepanoff/mdrelay/protocol"
	"github.com/ystepanoff/mdrelay/relay"
	"github.com/ystepanoff/mdrelay/transport"
)

// The role is selected by build tag:
// - role_sender.go - default build
// - role_receiver.go - -tags receiver

// Re-exported types
type (
	Config      = relay.Config
	Controller  = relay.Controller
	RadioDriver = transport.RadioDriver
	Event       = marcduino.Event
)

// Error values exposed in the public API
var (
	ErrInvalidPayload  = proto.ErrInvalidPayload
	ErrTimeout         = proto.ErrTimeout
	ErrInvalidAddress  = proto.ErrInvalidAddress
	ErrRadioInit       = proto.ErrRadioInit
	ErrFramingOverflow = relay.ErrFramingOverflow
	ErrSendFailure     = relay.ErrSendFailure
)

// BuildConfig returns the relay configuration compiled into this binary.
func BuildConfig() Config {
	cfg := relay.DefaultConfig(Role)
	cfg.Endpoint = proto.Endpoint{Address: Address, Peer: Peer, Key: Key}
	return cfg
}

// BuildOptions returns the transport options compiled into this binary.
func BuildOptions() transport.Options {
	opts := transport.DefaultOptions()
	opts.Radio = Radio()
	return opts
}

// New returns a node with the build-time settings on driver.
func New(driver RadioDriver, src relay.Source, sink io.Writer) (*Node, error) {
	return NewNode(BuildConfig(), BuildOptions(), driver, src, sink)
}
