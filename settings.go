package mdrelay

import (
	proto "github.com/ystepanoff/mdrelay/protocol"
	"github.com/ystepanoff/mdrelay/transport"
)

// Build-time settings. Both nodes of a link must agree on Frequency and Key.
const (
	Frequency = 915.0 // MHz
	TxPower   = proto.DefaultTxPower
	Debug     = true
)

// Key is the link's shared encryption key. Change it: the band is shared
// with other people and the key keeps their traffic out.
var Key = proto.Key{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

// Radio returns the radio settings both nodes tune to.
func Radio() transport.RadioConfig {
	return transport.RadioConfig{Frequency: Frequency, TxPower: TxPower}
}
