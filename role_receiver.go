//go:build receiver

// This file is built for the node wired to the Marcduino board's serial
// input. Build with -tags receiver.
package mdrelay

import (
	proto "github.com/ystepanoff/mdrelay/protocol"
	"github.com/ystepanoff/mdrelay/relay"
)

const (
	Role    = relay.RoleReceiver
	Address = proto.Address(1)
	Peer    = proto.Address(2)
)
