package biditest

import (
	"context"
	"errors"
	"sync"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

// Responder is called for every command a double receives and returns the
// frames to deliver in reply, in order. It may return nil to leave the
// command unanswered.
type Responder func(cmd *protocol.CommandEnvelope) [][]byte

var (
	errClosed     = errors.New("biditest: connection closed")
	errBufferFull = errors.New("biditest: inbound buffer full")
)

// Conn is an in-memory connection. Frames returned by the Responder are
// delivered synchronously from Send, before Send returns.
type Conn struct {
	// ConnectErr and SendErr, when set, are returned by Connect and Send.
	ConnectErr error
	SendErr    error

	mu        sync.Mutex
	responder Responder
	url       string
	sent      [][]byte
	changed   chan struct{}
	messages  chan []byte
	closed    bool
}

// NewConn creates a Conn. responder may be nil.
func NewConn(responder Responder) *Conn {
	return &Conn{
		responder: responder,
		changed:   make(chan struct{}),
		messages:  make(chan []byte, 4096),
	}
}

// SetResponder replaces the responder.
func (c *Conn) SetResponder(r Responder) {
	c.mu.Lock()
	c.responder = r
	c.mu.Unlock()
}

// Connect records url.
func (c *Conn) Connect(_ context.Context, url string) error {
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.url = url
	return nil
}

// URL returns the url passed to Connect.
func (c *Conn) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Send records data and delivers the responder's frames.
func (c *Conn) Send(_ context.Context, data []byte) error {
	if c.SendErr != nil {
		return c.SendErr
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	close(c.changed)
	c.changed = make(chan struct{})
	responder := c.responder
	c.mu.Unlock()

	if responder == nil {
		return nil
	}
	cmd, err := protocol.ParseCommand(data)
	if err != nil {
		return err
	}
	for _, frame := range responder(cmd) {
		if err := c.Inject(frame); err != nil {
			return err
		}
	}
	return nil
}

// Inject delivers an inbound frame.
func (c *Conn) Inject(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	select {
	case c.messages <- frame:
		return nil
	default:
		return errBufferFull
	}
}

// Messages implements the connection contract.
func (c *Conn) Messages() <-chan []byte {
	return c.messages
}

// Close closes the inbound stream. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.messages)
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of every frame sent so far.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentCommands parses every frame sent so far.
func (c *Conn) SentCommands() ([]*protocol.CommandEnvelope, error) {
	var cmds []*protocol.CommandEnvelope
	for _, data := range c.Sent() {
		cmd, err := protocol.ParseCommand(data)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// WaitSent blocks until at least n frames have been sent and returns the
// n-th (1-based) parsed command.
func (c *Conn) WaitSent(ctx context.Context, n int) (*protocol.CommandEnvelope, error) {
	for {
		c.mu.Lock()
		if len(c.sent) >= n {
			data := c.sent[n-1]
			c.mu.Unlock()
			return protocol.ParseCommand(data)
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
