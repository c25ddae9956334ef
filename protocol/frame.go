package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Frame represents a frame of data transferred over the radio link.
// Layout: Length(1) | To(1) | From(1) | ID(1) | Flags(1) | Payload | CRC32(4) | Terminal(1)
// Length counts everything AFTER the length byte (so full Frame minus 1).
// Payload is the sealed (encrypted) datagram body, never plaintext.

// Address identifies a node on the link.
type Address byte

type Frame struct {
	Length  byte
	To      Address
	From    Address
	ID      byte
	Flags   byte
	Payload []byte
	CRC     uint32 // decoded Frames only; ignored by encoder
}

// Header returns the addressing bytes, used as additional data when sealing.
func (f *Frame) Header() []byte {
	return []byte{byte(f.To), byte(f.From), f.ID, f.Flags}
}

func (f *Frame) IsAck() bool { return f.Flags&FlagAck != 0 }

// EncodeFrame serialises f into on-air bytes.
func EncodeFrame(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, ErrBadFrame
	}
	if len(f.Payload) > MaxSealedSize {
		return nil, ErrInvalidPayload
	}

	bodyLen := AddressingSize + len(f.Payload) + CRCSize + TerminalSize // bytes AFTER Length field
	totalLen := LengthFieldSize + bodyLen

	data := make([]byte, totalLen)
	data[0] = byte(bodyLen)
	data[1] = byte(f.To)
	data[2] = byte(f.From)
	data[3] = f.ID
	data[4] = f.Flags
	copy(data[FrameHeaderSize:], f.Payload)

	// CRC covers addressing and payload
	crcPos := FrameHeaderSize + len(f.Payload)
	crc := crc32.ChecksumIEEE(data[LengthFieldSize:crcPos])
	binary.LittleEndian.PutUint32(data[crcPos:crcPos+CRCSize], crc)

	data[totalLen-1] = FrameTerminal

	f.Length = byte(bodyLen)
	f.CRC = crc

	return data, nil
}

// DecodeFrame parses on-air bytes. Trailing bytes after the terminal are ignored.
func DecodeFrame(data []byte) (*Frame, error) {
	minLen := FrameHeaderSize + CRCSize + TerminalSize
	if len(data) < minLen {
		return nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrBadFrame, len(data), minLen)
	}

	bodyLen := int(data[0])
	if bodyLen+LengthFieldSize > len(data) || bodyLen+LengthFieldSize > MaxFrameSize {
		return nil, fmt.Errorf("%w: length byte %d", ErrBadFrame, bodyLen)
	}

	if data[LengthFieldSize+bodyLen-1] != FrameTerminal {
		return nil, fmt.Errorf("%w: missing terminal", ErrBadFrame)
	}

	payloadLen := bodyLen - AddressingSize - CRCSize - TerminalSize
	if payloadLen < 0 {
		return nil, fmt.Errorf("%w: length byte %d", ErrBadFrame, bodyLen)
	}

	crcPos := FrameHeaderSize + payloadLen
	recvCRC := binary.LittleEndian.Uint32(data[crcPos : crcPos+CRCSize])
	if calc := crc32.ChecksumIEEE(data[LengthFieldSize:crcPos]); calc != recvCRC {
		return nil, fmt.Errorf("%w: crc mismatch", ErrBadFrame)
	}

	f := &Frame{
		Length:  byte(bodyLen),
		To:      Address(data[1]),
		From:    Address(data[2]),
		ID:      data[3],
		Flags:   data[4],
		Payload: make([]byte, payloadLen),
		CRC:     recvCRC,
	}
	copy(f.Payload, data[FrameHeaderSize:crcPos])

	return f, nil
}
