package protocol

// Generic radio & link constants (platform independent). All higher layers should depend on this file.
const (
	// Frame sizing
	// Layout:
	//   Length (1 byte) | To (1) | From (1) | ID (1) | Flags (1) | Sealed payload (28-88) | CRC32 (4) | Terminal (1)
	// Length counts everything after the length byte, i.e., total Frame size minus 1.
	// The sealed payload is nonce(12) | ciphertext | tag(16), see crypto.go.

	// Sizes of individual components
	LengthFieldSize = 1
	AddressingSize  = 4 // To, From, ID, Flags
	CRCSize         = 4 // CRC32, little-endian
	TerminalSize    = 1

	FrameHeaderSize = LengthFieldSize + AddressingSize // 5 bytes

	// Largest command the link carries; matches the RFM69 FIFO limit.
	MaxMessageLen = 60

	// Largest sealed payload accepted on air
	MaxSealedSize = MaxMessageLen + SealOverhead

	// Total maximum Frame length on air (including length, CRC, Terminal)
	MaxFrameSize = FrameHeaderSize + MaxSealedSize + CRCSize + TerminalSize

	// RF defaults
	DefaultFrequency = 915.0 // MHz, must match the peer
	MinFrequency     = 240.0
	MaxFrequency     = 960.0
	DefaultTxPower   = 13 // dBm

	// Flags
	FlagAck = 0x80

	// Reserved address: frames sent here reach every node, never acknowledged.
	BroadcastAddress Address = 0xFF

	// Reliable datagram defaults
	DefaultRetries    = 3
	DefaultAckTimeout = 200 // milliseconds

	// Terminal byte value appended to the end of every Frame
	FrameTerminal = 0x55
)
