package relay

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	proto "github.com/ystepanoff/mdrelay/protocol"
)

// sliceSource hands out bytes one Poll at a time.
type sliceSource struct {
	data []byte
	pos  int
	err  error
}

func (s *sliceSource) Poll() (byte, bool, error) {
	if s.pos >= len(s.data) {
		return 0, false, s.err
	}
	b := s.data[s.pos]
	s.pos++
	return b, true, nil
}

func (s *sliceSource) drained() bool { return s.pos >= len(s.data) }

type sent struct {
	to      proto.Address
	payload string
}

// fakeTransport records sends and replays scripted receives.
type fakeTransport struct {
	sendErr  error
	onSend   func()
	sends    []sent
	inbound  []sent
	recvErr  error
	received int
}

func (f *fakeTransport) SendReliable(to proto.Address, payload []byte) error {
	if f.onSend != nil {
		f.onSend()
	}
	f.sends = append(f.sends, sent{to, string(payload)})
	return f.sendErr
}

func (f *fakeTransport) Receive(timeout time.Duration) (proto.Address, []byte, error) {
	if f.received < len(f.inbound) {
		in := f.inbound[f.received]
		f.received++
		return in.to, []byte(in.payload), nil
	}
	if f.recvErr != nil {
		return 0, nil, f.recvErr
	}
	return 0, nil, proto.ErrTimeout
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port gone") }

func pollAll(t *testing.T, c *Controller, src *sliceSource) {
	t.Helper()
	ctx := context.Background()
	for !src.drained() {
		if err := c.PollOnce(ctx); err != nil {
			t.Fatalf("PollOnce() error = %v", err)
		}
	}
}

func TestSenderStateMachine(t *testing.T) {
	src := &sliceSource{data: []byte("x<STOP>")}
	tr := &fakeTransport{}
	c, err := New(DefaultConfig(RoleSender), tr, src, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var during State
	tr.onSend = func() { during = c.State() }

	wantStates := []State{
		StateIdle,    // x
		StateFraming, // <
		StateFraming, // S
		StateFraming, // T
		StateFraming, // O
		StateFraming, // P
		StateIdle,    // >
	}
	for i, want := range wantStates {
		if err := c.PollOnce(context.Background()); err != nil {
			t.Fatalf("PollOnce() error = %v", err)
		}
		if c.State() != want {
			t.Errorf("byte %d: State() = %v, want %v", i, c.State(), want)
		}
	}

	if during != StateTransmitting {
		t.Errorf("state during send = %v, want %v", during, StateTransmitting)
	}
	if len(tr.sends) != 1 || tr.sends[0] != (sent{1, "STOP"}) {
		t.Errorf("sends = %+v, want [{1 STOP}]", tr.sends)
	}
	if c.Stats().Sent.Load() != 1 || c.Stats().Framed.Load() != 1 {
		t.Errorf("stats = %s", c.Stats())
	}
}

func TestSenderNoInputIsIdle(t *testing.T) {
	tr := &fakeTransport{}
	c, _ := New(DefaultConfig(RoleSender), tr, &sliceSource{}, nil)

	for i := 0; i < 3; i++ {
		if err := c.PollOnce(context.Background()); err != nil {
			t.Fatalf("PollOnce() error = %v", err)
		}
	}
	if c.State() != StateIdle || len(tr.sends) != 0 {
		t.Errorf("State() = %v, sends = %d", c.State(), len(tr.sends))
	}
}

func TestSenderSendFailure(t *testing.T) {
	src := &sliceSource{data: []byte("<OPEN><CLOSE>")}
	tr := &fakeTransport{sendErr: proto.ErrTimeout}
	c, _ := New(DefaultConfig(RoleSender), tr, src, nil)

	pollAll(t, c, src)

	if c.State() != StateIdle {
		t.Errorf("State() = %v, want %v", c.State(), StateIdle)
	}
	// No application-level retry: each command is attempted once.
	if len(tr.sends) != 2 || tr.sends[0].payload != "OPEN" || tr.sends[1].payload != "CLOSE" {
		t.Errorf("sends = %+v", tr.sends)
	}
	if c.Stats().Failed.Load() != 2 || c.Stats().Sent.Load() != 0 {
		t.Errorf("stats = %s", c.Stats())
	}
}

func TestSenderOverflow(t *testing.T) {
	data := append([]byte("<A"), bytes.Repeat([]byte{'x'}, 200)...)
	data = append(data, []byte("><OK>")...)
	src := &sliceSource{data: data}
	tr := &fakeTransport{}
	c, _ := New(DefaultConfig(RoleSender), tr, src, nil)

	pollAll(t, c, src)

	if got := c.Stats().Overflows.Load(); got != 1 {
		t.Errorf("overflows = %d, want 1", got)
	}
	if len(tr.sends) != 1 || tr.sends[0].payload != "OK" {
		t.Errorf("sends = %+v, want only OK", tr.sends)
	}
}

func TestSenderInputError(t *testing.T) {
	src := &sliceSource{err: errors.New("device unplugged")}
	c, _ := New(DefaultConfig(RoleSender), &fakeTransport{}, src, nil)

	if err := c.PollOnce(context.Background()); err == nil {
		t.Fatal("PollOnce() error = nil, want input error")
	}
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want input error")
	}
}

func TestReceiverWritesCommands(t *testing.T) {
	tr := &fakeTransport{inbound: []sent{{2, ":SE00"}, {2, "OPEN"}}}
	var out bytes.Buffer
	c, err := New(DefaultConfig(RoleReceiver), tr, nil, &out)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.PollOnce(context.Background()); err != nil {
			t.Fatalf("PollOnce() error = %v", err)
		}
	}

	if out.String() != ":SE00\rOPEN\r" {
		t.Errorf("output = %q, want %q", out.String(), ":SE00\rOPEN\r")
	}
	if c.Stats().Received.Load() != 2 {
		t.Errorf("stats = %s", c.Stats())
	}
}

func TestReceiverIgnoresUnknownNode(t *testing.T) {
	tr := &fakeTransport{inbound: []sent{{7, "OPEN"}}}
	var out bytes.Buffer
	c, _ := New(DefaultConfig(RoleReceiver), tr, nil, &out)

	if err := c.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing", out.String())
	}
	if c.Stats().Ignored.Load() != 1 {
		t.Errorf("stats = %s", c.Stats())
	}
}

func TestReceiverErrors(t *testing.T) {
	tr := &fakeTransport{recvErr: errors.New("radio gone")}
	var out bytes.Buffer
	c, _ := New(DefaultConfig(RoleReceiver), tr, nil, &out)
	if err := c.PollOnce(context.Background()); err == nil {
		t.Error("PollOnce() error = nil, want receive error")
	}

	tr = &fakeTransport{inbound: []sent{{2, "OPEN"}}}
	c, _ = New(DefaultConfig(RoleReceiver), tr, nil, failingWriter{})
	if err := c.PollOnce(context.Background()); err == nil {
		t.Error("PollOnce() error = nil, want write error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c, _ := New(DefaultConfig(RoleReceiver), &fakeTransport{}, nil, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestNewValidation(t *testing.T) {
	tr := &fakeTransport{}
	src := &sliceSource{}

	tests := []struct {
		name string
		cfg  func() Config
		src  Source
	}{
		{"sender without source", func() Config { return DefaultConfig(RoleSender) }, nil},
		{"receiver without sink", func() Config { return DefaultConfig(RoleReceiver) }, src},
		{"unknown role", func() Config { c := DefaultConfig(RoleSender); c.Role = 0; return c }, src},
		{"same addresses", func() Config { c := DefaultConfig(RoleSender); c.Endpoint.Peer = 2; return c }, src},
		{"same tokens", func() Config { c := DefaultConfig(RoleSender); c.EndToken = c.StartToken; return c }, src},
		{"packet too large", func() Config { c := DefaultConfig(RoleSender); c.MaxPacket = 61; return c }, src},
		{"zero poll timeout", func() Config { c := DefaultConfig(RoleSender); c.PollTimeout = 0; return c }, src},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg(), tr, tt.src, nil); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}

	if _, err := New(DefaultConfig(RoleSender), nil, src, nil); err == nil {
		t.Error("New() with nil transport: error = nil")
	}
}

func TestDefaultConfigMirrors(t *testing.T) {
	s := DefaultConfig(RoleSender)
	r := DefaultConfig(RoleReceiver)
	if s.Endpoint.Address != 2 || s.Endpoint.Peer != 1 {
		t.Errorf("sender endpoint = %+v", s.Endpoint)
	}
	if r.Endpoint != s.Endpoint.Mirror() {
		t.Errorf("receiver endpoint = %+v, want mirror of sender", r.Endpoint)
	}
	if RoleSender.String() != "sender" || RoleReceiver.String() != "receiver" {
		t.Errorf("role strings: %s %s", RoleSender, RoleReceiver)
	}
}
