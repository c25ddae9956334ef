//go:build !receiver

// This file is built for the node wired to the controller's serial output
// (the default role).
package mdrelay

import (
	proto "github.com/ystepanoff/mdrelay/protocol"
	"github.com/ystepanoff/mdrelay/relay"
)

const (
	Role    = relay.RoleSender
	Address = proto.Address(2)
	Peer    = proto.Address(1)
)
