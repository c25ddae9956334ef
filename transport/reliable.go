package transport

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ystepanoff/mdrelay/internal/util"
	proto "github.com/ystepanoff/mdrelay/protocol"
)

// Options tunes the retry policy and radio settings of a Reliable link.
type Options struct {
	Retries    int           // retransmissions after the first attempt
	AckTimeout time.Duration // wait for an ACK after each attempt
	Radio      RadioConfig
}

func DefaultOptions() Options {
	return Options{
		Retries:    proto.DefaultRetries,
		AckTimeout: proto.DefaultAckTimeout * time.Millisecond,
		Radio: RadioConfig{
			Frequency: proto.DefaultFrequency,
			TxPower:   proto.DefaultTxPower,
		},
	}
}

// maxPending caps the data frames queued during ACK waits. The oldest is
// dropped when a new one arrives at the cap.
const maxPending = 64

// seqSeed supplies the first sequence id of each new link, so a restarted
// sender does not repeat the id its peer saw last.
var seqSeed io.Reader = rand.Reader

// Datagram is a decrypted message addressed to this node.
type Datagram struct {
	From    proto.Address
	ID      byte
	Payload []byte
}

// Reliable provides addressed, acknowledged, retried and encrypted datagram
// delivery over a RadioDriver. It is not safe for concurrent use: one relay
// loop owns it, matching the half-duplex radio underneath.
type Reliable struct {
	address proto.Address
	driver  RadioDriver
	cipher  *proto.Cipher
	opts    Options
	seq     byte
	seen    *seenCache

	// data frames that arrived while waiting for an ACK
	pending []Datagram
}

func NewReliable(address proto.Address, key proto.Key, d RadioDriver, opts Options) (*Reliable, error) {
	if address == proto.BroadcastAddress {
		return nil, fmt.Errorf("%w: %d is reserved", proto.ErrInvalidAddress, address)
	}
	if opts.Retries < 0 || opts.AckTimeout <= 0 {
		return nil, fmt.Errorf("invalid retry policy: retries=%d timeout=%v", opts.Retries, opts.AckTimeout)
	}
	c, err := proto.NewCipher(key)
	if err != nil {
		return nil, err
	}
	var seed [1]byte
	if _, err := io.ReadFull(seqSeed, seed[:]); err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}
	return &Reliable{
		address: address,
		driver:  d,
		cipher:  c,
		opts:    opts,
		seq:     seed[0],
		seen:    newSeenCache(defaultSeenExpiry),
	}, nil
}

func (r *Reliable) Address() proto.Address { return r.address }

// Init brings the radio up. Any failure here is fatal for the relay.
func (r *Reliable) Init() error {
	if err := r.driver.Init(); err != nil {
		return fmt.Errorf("%w: %w", proto.ErrRadioInit, err)
	}
	if err := r.driver.Configure(r.opts.Radio); err != nil {
		return fmt.Errorf("%w: configure: %w", proto.ErrRadioInit, err)
	}
	return nil
}

func (r *Reliable) Close() error { return r.driver.Close() }

// SendReliable sends payload to the given node and waits for its ACK. The
// frame is transmitted up to Retries+1 times; protocol.ErrTimeout is
// returned once the budget is spent.
func (r *Reliable) SendReliable(to proto.Address, payload []byte) error {
	if len(payload) > proto.MaxMessageLen {
		return proto.ErrInvalidPayload
	}
	if to == r.address || to == proto.BroadcastAddress {
		return fmt.Errorf("%w: cannot send reliably to %d", proto.ErrInvalidAddress, to)
	}

	r.seq++
	seq := r.seq

	encoded, err := r.seal(&proto.Frame{To: to, From: r.address, ID: seq}, payload)
	if err != nil {
		return err
	}

	attempts := r.opts.Retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := r.driver.Tx(encoded); err != nil {
			return err
		}

		acked, err := r.waitAck(to, seq)
		if err != nil {
			return err
		}
		if acked {
			if attempt > 0 {
				util.LogDebug("[Transport] seq=%d to %d acked after %d retries", seq, to, attempt)
			}
			return nil
		}

		if attempt < attempts-1 {
			backoff := time.Duration(20+(attempt*10)) * time.Millisecond
			time.Sleep(backoff)
		}
	}

	return fmt.Errorf("send seq=%d to %d: no ack after %d attempts: %w", seq, to, attempts, proto.ErrTimeout)
}

// waitAck listens until the ACK for seq arrives or AckTimeout elapses.
// Data frames that arrive meanwhile are acknowledged and queued.
func (r *Reliable) waitAck(to proto.Address, seq byte) (bool, error) {
	deadline := time.Now().Add(r.opts.AckTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		data, err := r.driver.Rx(remaining)
		if errors.Is(err, proto.ErrTimeout) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		frame := r.accept(data)
		if frame == nil {
			continue
		}
		if frame.IsAck() {
			if frame.From == to && frame.ID == seq {
				return true, nil
			}
			continue
		}
		if dg, ok := r.deliver(frame); ok {
			r.queue(dg)
		}
	}
}

func (r *Reliable) queue(dg Datagram) {
	if len(r.pending) >= maxPending {
		util.LogDebug("[Transport] pending queue full, dropping seq=%d from %d", r.pending[0].ID, r.pending[0].From)
		r.pending = r.pending[1:]
	}
	r.pending = append(r.pending, dg)
}

// seal encrypts payload into f and returns the encoded frame.
func (r *Reliable) seal(f *proto.Frame, payload []byte) ([]byte, error) {
	sealed, err := r.cipher.Seal(f.Header(), payload)
	if err != nil {
		return nil, err
	}
	f.Payload = sealed
	return proto.EncodeFrame(f)
}
