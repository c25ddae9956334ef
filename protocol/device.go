package protocol

import "fmt"

// Endpoint is one end of a link: who we are, who we talk to and the key we
// share. Both nodes of a link hold mirrored endpoints.
type Endpoint struct {
	Address Address
	Peer    Address
	Key     Key
}

func (e Endpoint) Validate() error {
	switch {
	case e.Address == BroadcastAddress:
		return fmt.Errorf("%w: local address %d is reserved", ErrInvalidAddress, e.Address)
	case e.Peer == BroadcastAddress:
		return fmt.Errorf("%w: peer address %d is reserved", ErrInvalidAddress, e.Peer)
	case e.Address == e.Peer:
		return fmt.Errorf("%w: local and peer address are both %d", ErrInvalidAddress, e.Address)
	}
	return nil
}

// Mirror returns the endpoint the peer must be configured with.
func (e Endpoint) Mirror() Endpoint {
	return Endpoint{Address: e.Peer, Peer: e.Address, Key: e.Key}
}

// ValidFrequency reports whether mhz is inside the tunable range.
func ValidFrequency(mhz float64) bool {
	return mhz >= MinFrequency && mhz <= MaxFrequency
}
