package stub

import (
	"sync"
	"time"

	proto "github.com/ystepanoff/mdrelay/protocol"
	"github.com/ystepanoff/mdrelay/transport"
)

// Ether is a shared in-memory radio channel. Every frame transmitted by an
// attached driver is heard by every other driver tuned to the same
// frequency, like two radios sitting next to each other.
type Ether struct {
	mu     sync.Mutex
	nodes  []*Driver
	filter func(frame []byte) bool
}

func NewEther() *Ether { return &Ether{} }

// Attach returns a new driver listening on e.
func (e *Ether) Attach() *Driver {
	d := &Driver{ether: e}
	e.mu.Lock()
	e.nodes = append(e.nodes, d)
	e.mu.Unlock()
	return d
}

// SetFilter installs fn to decide which frames survive the air. Returning
// false drops the frame for every listener. Pass nil to stop dropping.
func (e *Ether) SetFilter(fn func(frame []byte) bool) {
	e.mu.Lock()
	e.filter = fn
	e.mu.Unlock()
}

func (e *Ether) broadcast(from *Driver, frame []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter != nil && !e.filter(frame) {
		return
	}
	for _, d := range e.nodes {
		if d == from {
			continue
		}
		d.deliver(from.frequency(), frame)
	}
}

// Driver implements a mock radio driver for host-side runs and tests.
type Driver struct {
	ether *Ether

	mu      sync.Mutex
	rxBuf   ringBuffer
	txBuf   ringBuffer
	cfg     transport.RadioConfig
	up      bool
	initErr error
}

// New returns a driver alone on its own ether. Frames it sends are logged
// but never heard.
func New() transport.RadioDriver { return NewEther().Attach() }

// FailInit makes the next Init return err, simulating missing hardware.
func (d *Driver) FailInit(err error) {
	d.mu.Lock()
	d.initErr = err
	d.mu.Unlock()
}

func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initErr != nil {
		return d.initErr
	}
	d.up = true
	return nil
}

func (d *Driver) Configure(cfg transport.RadioConfig) error {
	if !proto.ValidFrequency(cfg.Frequency) {
		return proto.ErrInvalidFrequency
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	d.up = false
	d.mu.Unlock()
	return nil
}

func (d *Driver) Tx(data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)

	d.mu.Lock()
	d.txBuf.push(frame)
	d.mu.Unlock()

	if d.ether != nil {
		d.ether.broadcast(d, frame)
	}
	return nil
}

func (d *Driver) Rx(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		frame, ok := d.rxBuf.pop()
		d.mu.Unlock()
		if ok {
			out := make([]byte, len(frame))
			copy(out, frame)
			return out, nil
		}

		if time.Now().After(deadline) {
			return nil, proto.ErrTimeout
		}
		time.Sleep(1 * time.Millisecond)
	}
}

func (d *Driver) frequency() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Frequency
}

// deliver queues a frame heard on freq if this driver is up and tuned to it.
func (d *Driver) deliver(freq float64, frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.up || d.cfg.Frequency != freq {
		return
	}
	d.rxBuf.push(frame)
}

func (d *Driver) InjectRx(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame := make([]byte, len(data))
	copy(frame, data)
	d.rxBuf.push(frame)
}

func (d *Driver) GetTxLog() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txBuf.snapshot()
}

const ringCapacity = 64

type ringBuffer struct {
	data       [ringCapacity][]byte
	head, tail int // head = next pop, tail = next push
	count      int
}

func (rb *ringBuffer) push(frame []byte) {
	if rb.count == ringCapacity {
		// Overwrite the oldest when buffer is full to keep memory bounded
		rb.data[rb.tail] = nil
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = frame
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) pop() ([]byte, bool) {
	if rb.count == 0 {
		return nil, false
	}
	frame := rb.data[rb.head]
	rb.data[rb.head] = nil
	rb.head = (rb.head + 1) % ringCapacity
	rb.count--
	return frame, true
}

func (rb *ringBuffer) snapshot() [][]byte {
	out := make([][]byte, rb.count)
	i := rb.head
	for c := 0; c < rb.count; c++ {
		p := rb.data[i]
		cp := make([]byte, len(p))
		copy(cp, p)
		out[c] = cp
		i = (i + 1) % ringCapacity
	}
	return out
}
