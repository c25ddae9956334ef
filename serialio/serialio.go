// Package serialio connects the relay to serial lines and byte streams.
// Every source returns from Poll within a bounded time so the relay loop
// keeps servicing the radio.
package serialio

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaud     = 9600
	DefaultPollWait = 10 * time.Millisecond

	streamChunkSize = 64
)

// Port is a serial line with a bounded read. go.bug.st/serial ports
// satisfy it; a timed-out Read returns 0 bytes and a nil error.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Open opens path at baud, 8N1, with reads bounded by readTimeout.
func Open(path string, baud int, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("serial %s: set read timeout: %w", path, err)
	}
	return p, nil
}

// PortSource reads one byte per Poll from a reader whose Read already
// returns within a bounded time, such as a Port.
type PortSource struct {
	r   io.Reader
	buf [1]byte
}

func NewPortSource(r io.Reader) *PortSource {
	return &PortSource{r: r}
}

func (s *PortSource) Poll() (byte, bool, error) {
	n, err := s.r.Read(s.buf[:])
	if n == 1 {
		return s.buf[0], true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

// StreamSource adapts a blocking reader (stdin, a pipe) into a Source.
// A background goroutine reads chunks; Poll waits at most wait for one.
// After the reader fails and the buffered bytes are drained, Poll returns
// the reader's error, io.EOF included.
type StreamSource struct {
	chunks  chan []byte
	wait    time.Duration
	pending []byte
	err     error
}

func NewStreamSource(r io.Reader, wait time.Duration) *StreamSource {
	s := &StreamSource{
		chunks: make(chan []byte, 4),
		wait:   wait,
	}
	go s.read(r)
	return s
}

// read feeds s.chunks until r fails. s.err is published by closing the
// channel.
func (s *StreamSource) read(r io.Reader) {
	defer close(s.chunks)
	for {
		buf := make([]byte, streamChunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			s.err = err
			return
		}
	}
}

func (s *StreamSource) Poll() (byte, bool, error) {
	if len(s.pending) == 0 {
		chunk, ok, err := s.next()
		if !ok {
			return 0, false, err
		}
		s.pending = chunk
	}
	b := s.pending[0]
	s.pending = s.pending[1:]
	return b, true, nil
}

func (s *StreamSource) next() ([]byte, bool, error) {
	select {
	case chunk, ok := <-s.chunks:
		if !ok {
			return nil, false, s.err
		}
		return chunk, true, nil
	default:
	}

	timer := time.NewTimer(s.wait)
	defer timer.Stop()
	select {
	case chunk, ok := <-s.chunks:
		if !ok {
			return nil, false, s.err
		}
		return chunk, true, nil
	case <-timer.C:
		return nil, false, nil
	}
}
