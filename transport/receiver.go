package transport

import (
	"time"

	"github.com/ystepanoff/mdrelay/internal/util"
	proto "github.com/ystepanoff/mdrelay/protocol"
)

// Receive waits up to timeout for one datagram addressed to this node.
// protocol.ErrTimeout means nothing arrived; it is the normal outcome of an
// idle poll.
func (r *Reliable) Receive(timeout time.Duration) (proto.Address, []byte, error) {
	dg, err := r.ReceiveDatagram(timeout)
	if err != nil {
		return 0, nil, err
	}
	return dg.From, dg.Payload, nil
}

// ReceiveDatagram is Receive returning the sequence id as well.
func (r *Reliable) ReceiveDatagram(timeout time.Duration) (Datagram, error) {
	if dg, ok := r.popPending(); ok {
		return dg, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		data, err := r.driver.Rx(max(time.Until(deadline), 0))
		if err != nil {
			return Datagram{}, err
		}

		if frame := r.accept(data); frame != nil && !frame.IsAck() {
			if dg, ok := r.deliver(frame); ok {
				return dg, nil
			}
		}

		if time.Until(deadline) <= 0 {
			return Datagram{}, proto.ErrTimeout
		}
	}
}

func (r *Reliable) popPending() (Datagram, bool) {
	if len(r.pending) == 0 {
		return Datagram{}, false
	}
	dg := r.pending[0]
	r.pending = r.pending[1:]
	return dg, true
}

// accept decodes and authenticates raw bytes off the air. It returns nil for
// anything not meant for this node: corrupt frames, frames for other
// addresses and frames sealed with another key.
func (r *Reliable) accept(data []byte) *proto.Frame {
	frame, err := proto.DecodeFrame(data)
	if err != nil {
		util.LogDebug("[Transport] dropping frame: %v", err)
		return nil
	}
	if frame.To != r.address && frame.To != proto.BroadcastAddress {
		return nil
	}

	plain, err := r.cipher.Open(frame.Header(), frame.Payload)
	if err != nil {
		util.LogDebug("[Transport] dropping frame from %d: %v", frame.From, err)
		return nil
	}
	frame.Payload = plain
	return frame
}

// deliver acknowledges a data frame and reports whether it is new.
// Broadcasts are never acknowledged.
func (r *Reliable) deliver(frame *proto.Frame) (Datagram, bool) {
	if frame.To == r.address {
		if err := r.sendAck(frame.From, frame.ID); err != nil {
			util.LogWarning("[Transport] ACK to %d for seq=%d failed: %v", frame.From, frame.ID, err)
		}
	}

	if !r.seen.Add(frame.From, frame.ID) {
		util.LogDebug("[Transport] duplicate seq=%d from %d", frame.ID, frame.From)
		return Datagram{}, false
	}

	return Datagram{From: frame.From, ID: frame.ID, Payload: frame.Payload}, true
}

func (r *Reliable) sendAck(to proto.Address, seq byte) error {
	data, err := r.seal(&proto.Frame{To: to, From: r.address, ID: seq, Flags: proto.FlagAck}, nil)
	if err != nil {
		return err
	}
	if err := r.driver.Tx(data); err != nil {
		return err
	}
	util.LogDebug("[Transport] ACK sent to %d for seq=%d", to, seq)
	return nil
}
