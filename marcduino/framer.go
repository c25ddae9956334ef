// Package marcduino turns a serial byte stream into discrete Marcduino
// command packets and writes received packets back out in the form a
// Marcduino board expects.
package marcduino

import (
	"fmt"
	"io"
)

const (
	DefaultStartToken = '<'
	DefaultEndToken   = '>'

	// DefaultTerminator ends every command written to a Marcduino board.
	DefaultTerminator = '\r'
)

// Event is the outcome of feeding one byte to a Framer.
type Event int

const (
	EventNone Event = iota
	EventPacketReady
	EventOverflow
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventPacketReady:
		return "packet-ready"
	case EventOverflow:
		return "overflow"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Framer accumulates bytes between a start and an end token. It never holds
// more than max bytes: a frame that would grow past that is discarded.
type Framer struct {
	start, end byte
	max        int
	buf        []byte
	inProgress bool
	packet     []byte
}

func NewFramer(start, end byte, max int) *Framer {
	return &Framer{
		start: start,
		end:   end,
		max:   max,
		buf:   make([]byte, 0, max),
	}
}

// Feed consumes one input byte.
func (f *Framer) Feed(b byte) Event {
	if !f.inProgress {
		if b == f.start {
			f.inProgress = true
			f.buf = f.buf[:0]
		}
		return EventNone
	}

	switch {
	case b == f.end:
		f.packet = append(f.packet[:0], f.buf...)
		f.inProgress = false
		f.buf = f.buf[:0]
		return EventPacketReady
	case len(f.buf) >= f.max:
		f.Reset()
		return EventOverflow
	default:
		f.buf = append(f.buf, b)
		return EventNone
	}
}

// Packet returns a copy of the payload completed by the last
// EventPacketReady.
func (f *Framer) Packet() []byte {
	out := make([]byte, len(f.packet))
	copy(out, f.packet)
	return out
}

// Reset drops any partial frame and returns to idle.
func (f *Framer) Reset() {
	f.inProgress = false
	f.buf = f.buf[:0]
}

func (f *Framer) InProgress() bool { return f.inProgress }

// Len is the number of payload bytes buffered for the frame in progress.
func (f *Framer) Len() int { return len(f.buf) }

// WriteCommand emits payload followed by terminator in a single write so a
// command never reaches the board split across writes.
func WriteCommand(w io.Writer, payload []byte, terminator byte) error {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	out = append(out, terminator)
	_, err := w.Write(out)
	return err
}
