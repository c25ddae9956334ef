// Package serialmodem drives a packet radio modem attached to a serial
// line. Host and modem exchange records of the form
//
//	Kind (1) | Length (1) | Data (Length bytes)
//
// where Kind is 'D' for an on-air frame, 'F' to tune the radio and 'P' for
// a liveness ping the modem echoes back.
package serialmodem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ystepanoff/mdrelay/internal/util"
	proto "github.com/ystepanoff/mdrelay/protocol"
	"github.com/ystepanoff/mdrelay/serialio"
	"github.com/ystepanoff/mdrelay/transport"
)

const (
	KindData = 'D'
	KindTune = 'F'
	KindPing = 'P'

	recordHeaderSize = 2
	maxRecordData    = 255

	// PortReadTimeout bounds every read from the modem line.
	PortReadTimeout = 10 * time.Millisecond
	PingTimeout     = 500 * time.Millisecond
)

var errNotOpen = errors.New("serialmodem: port not open")

// Driver implements transport.RadioDriver on top of a serial modem.
type Driver struct {
	open func() (serialio.Port, error)
	port serialio.Port

	rx  []byte // bytes read from the line, not yet parsed
	buf [128]byte
}

// Open returns a driver for the modem on path. The port is opened by Init.
func Open(path string, baud int) *Driver {
	return &Driver{open: func() (serialio.Port, error) {
		return serialio.Open(path, baud, PortReadTimeout)
	}}
}

// NewWithPort returns a driver on an already open port.
func NewWithPort(p serialio.Port) *Driver {
	return &Driver{open: func() (serialio.Port, error) { return p, nil }}
}

// Init opens the line and checks that a modem answers on it.
func (d *Driver) Init() error {
	p, err := d.open()
	if err != nil {
		return err
	}
	if err := p.SetReadTimeout(PortReadTimeout); err != nil {
		p.Close()
		return fmt.Errorf("serialmodem: set read timeout: %w", err)
	}
	d.port = p
	d.rx = d.rx[:0]

	if err := d.writeRecord(KindPing, nil); err != nil {
		d.Close()
		return err
	}
	if _, err := d.readRecord(KindPing, PingTimeout); err != nil {
		d.Close()
		return fmt.Errorf("serialmodem: no answer to ping: %w", err)
	}
	util.LogDebug("[Modem] modem answered ping")
	return nil
}

// Configure tunes the modem. Frequency is sent in kHz.
func (d *Driver) Configure(cfg transport.RadioConfig) error {
	if !proto.ValidFrequency(cfg.Frequency) {
		return proto.ErrInvalidFrequency
	}
	var data [5]byte
	binary.BigEndian.PutUint32(data[:4], uint32(cfg.Frequency*1000+0.5))
	data[4] = byte(cfg.TxPower)
	return d.writeRecord(KindTune, data[:])
}

func (d *Driver) Tx(frame []byte) error {
	return d.writeRecord(KindData, frame)
}

func (d *Driver) Rx(timeout time.Duration) ([]byte, error) {
	return d.readRecord(KindData, timeout)
}

func (d *Driver) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

func (d *Driver) writeRecord(kind byte, data []byte) error {
	if d.port == nil {
		return errNotOpen
	}
	if len(data) > maxRecordData {
		return proto.ErrInvalidPayload
	}
	rec := make([]byte, 0, recordHeaderSize+len(data))
	rec = append(rec, kind, byte(len(data)))
	rec = append(rec, data...)
	if _, err := d.port.Write(rec); err != nil {
		return fmt.Errorf("serialmodem: write: %w", err)
	}
	return nil
}

// readRecord returns the data of the next record of the given kind. Records
// of other kinds are discarded. It gives up with protocol.ErrTimeout.
func (d *Driver) readRecord(kind byte, timeout time.Duration) ([]byte, error) {
	if d.port == nil {
		return nil, errNotOpen
	}
	deadline := time.Now().Add(timeout)
	for polled := false; ; polled = true {
		for {
			k, data, ok := d.nextRecord()
			if !ok {
				break
			}
			if k == kind {
				return data, nil
			}
		}

		if polled && !time.Now().Before(deadline) {
			return nil, proto.ErrTimeout
		}
		n, err := d.port.Read(d.buf[:])
		if err != nil {
			return nil, fmt.Errorf("serialmodem: read: %w", err)
		}
		d.rx = append(d.rx, d.buf[:n]...)
	}
}

// nextRecord parses one complete record off d.rx. Bytes that cannot start
// a record are skipped so the stream resynchronises after line noise.
func (d *Driver) nextRecord() (byte, []byte, bool) {
	for len(d.rx) > 0 && !knownKind(d.rx[0]) {
		d.rx = d.rx[1:]
	}
	if len(d.rx) < recordHeaderSize {
		return 0, nil, false
	}
	n := int(d.rx[1])
	if len(d.rx) < recordHeaderSize+n {
		return 0, nil, false
	}

	kind := d.rx[0]
	data := make([]byte, n)
	copy(data, d.rx[recordHeaderSize:recordHeaderSize+n])
	d.rx = d.rx[recordHeaderSize+n:]
	return kind, data, true
}

func knownKind(b byte) bool {
	return b == KindData || b == KindTune || b == KindPing
}
