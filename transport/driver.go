package transport

import "time"

// RadioConfig carries the tunable radio settings shared by both ends of a link.
type RadioConfig struct {
	Frequency float64 // MHz
	TxPower   int8    // dBm
}

// RadioDriver is the interface that wraps the basic radio operations.
// Tx sends exactly one datagram; Rx returns exactly one datagram or
// protocol.ErrTimeout once timeout elapses.
type RadioDriver interface {
	Init() error
	Configure(cfg RadioConfig) error
	Tx(data []byte) error
	Rx(timeout time.Duration) ([]byte, error)
	Close() error
}
