package mdrelay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ystepanoff/mdrelay/driver/stub"
	"github.com/ystepanoff/mdrelay/relay"
	"github.com/ystepanoff/mdrelay/serialio"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// peerConfig returns the configuration of the node at the other end.
func peerConfig(cfg Config) Config {
	role := relay.RoleReceiver
	if cfg.Role == relay.RoleReceiver {
		role = relay.RoleSender
	}
	peer := relay.DefaultConfig(role)
	peer.Endpoint = cfg.Endpoint.Mirror()
	return peer
}

func TestBuildConfig(t *testing.T) {
	cfg := BuildConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("BuildConfig().Validate() error = %v", err)
	}
	if cfg.Role != Role || cfg.Endpoint.Address != Address || cfg.Endpoint.Peer != Peer {
		t.Errorf("BuildConfig() = %+v", cfg)
	}
	if cfg.Endpoint.Key != Key {
		t.Error("BuildConfig() does not carry the build-time key")
	}
	if opts := BuildOptions(); opts.Radio.Frequency != Frequency {
		t.Errorf("BuildOptions().Radio = %+v", opts.Radio)
	}
}

func TestNodesRelayCommands(t *testing.T) {
	ether := stub.NewEther()
	cfgs := map[relay.Role]Config{}
	cfgs[BuildConfig().Role] = BuildConfig()
	peer := peerConfig(BuildConfig())
	cfgs[peer.Role] = peer

	out := &lockedBuffer{}
	src := serialio.NewStreamSource(strings.NewReader("<:SE00><OPEN>"), 5*time.Millisecond)

	sender, err := NewNode(cfgs[relay.RoleSender], BuildOptions(), ether.Attach(), src, nil)
	if err != nil {
		t.Fatalf("NewNode(sender) error = %v", err)
	}
	receiver, err := NewNode(cfgs[relay.RoleReceiver], BuildOptions(), ether.Attach(), nil, out)
	if err != nil {
		t.Fatalf("NewNode(receiver) error = %v", err)
	}
	for _, n := range []*Node{sender, receiver} {
		if err := n.Init(); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		defer n.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Run(ctx)

	// The sender stops with io.EOF once its input is exhausted.
	if err := sender.Run(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("sender Run() error = %v, want end of input", err)
	}

	deadline := time.Now().Add(time.Second)
	for out.String() != ":SE00\rOPEN\r" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := out.String(); got != ":SE00\rOPEN\r" {
		t.Errorf("receiver output = %q, want %q", got, ":SE00\rOPEN\r")
	}
	if got := sender.Controller().Stats().Sent.Load(); got != 2 {
		t.Errorf("sent = %d, want 2", got)
	}
}

func TestNodeInitFailure(t *testing.T) {
	d := stub.NewEther().Attach()
	d.FailInit(errors.New("no radio"))

	n, err := New(d, serialio.NewPortSource(strings.NewReader("")), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := n.Init(); !errors.Is(err, ErrRadioInit) {
		t.Errorf("Init() error = %v, want ErrRadioInit", err)
	}
}

func TestNodeCloseReportsAllErrors(t *testing.T) {
	n, err := New(stub.NewEther().Attach(), serialio.NewPortSource(strings.NewReader("")), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	closed := 0
	n.CloseWith(closerFunc(func() error { closed++; return errors.New("port busy") }))
	n.CloseWith(closerFunc(func() error { closed++; return errors.New("led stuck") }))

	err = n.Close()
	if closed != 2 {
		t.Errorf("closed %d resources, want 2", closed)
	}
	if err == nil || !strings.Contains(err.Error(), "port busy") || !strings.Contains(err.Error(), "led stuck") {
		t.Errorf("Close() error = %v, want both failures", err)
	}
}
