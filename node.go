package mdrelay

import (
	"context"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/ystepanoff/mdrelay/relay"
	"github.com/ystepanoff/mdrelay/transport"
)

// Node is one end of the link: the reliable radio transport and the relay
// controller that drives it.
type Node struct {
	link    *transport.Reliable
	ctrl    *relay.Controller
	closers []io.Closer
}

// NewNode wires cfg to a radio driver. A sender reads commands from src, a
// receiver writes them to sink.
func NewNode(cfg relay.Config, opts transport.Options, driver transport.RadioDriver, src relay.Source, sink io.Writer) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	link, err := transport.NewReliable(cfg.Endpoint.Address, cfg.Endpoint.Key, driver, opts)
	if err != nil {
		return nil, err
	}
	ctrl, err := relay.New(cfg, link, src, sink)
	if err != nil {
		return nil, err
	}
	return &Node{link: link, ctrl: ctrl}, nil
}

// Init brings the radio up. An error here is fatal for the node.
func (n *Node) Init() error { return n.link.Init() }

// Run relays until ctx is cancelled or the serial side fails.
func (n *Node) Run(ctx context.Context) error { return n.ctrl.Run(ctx) }

func (n *Node) Controller() *relay.Controller { return n.ctrl }

// CloseWith registers c to be closed together with the node, e.g. the
// serial port feeding it.
func (n *Node) CloseWith(c io.Closer) { n.closers = append(n.closers, c) }

// Close shuts the radio and everything registered with CloseWith, and
// reports every failure.
func (n *Node) Close() error {
	var result *multierror.Error
	if err := n.link.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, c := range n.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
