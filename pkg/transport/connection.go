package transport

import "context"

// Connection carries raw frames to and from the remote end. Transport owns
// exactly one Connection and is its only user.
//
// Implementations must deliver inbound frames on the Messages channel in
// arrival order and close the channel once the connection has ended, for
// whatever reason. Close must be idempotent.
type Connection interface {
	// Connect opens the connection to url.
	Connect(ctx context.Context, url string) error

	// Send writes one frame. It is safe for concurrent use.
	Send(ctx context.Context, data []byte) error

	// Messages returns the inbound frame stream.
	Messages() <-chan []byte

	// Close ends the connection.
	Close() error
}

// Direction is the direction of a frame relative to the client.
type Direction string

const (
	Outbound Direction = "out"
	Inbound  Direction = "in"
)

// FrameObserver sees every frame the transport sends or receives. It is
// called on the sending goroutine for outbound frames and on the receive
// goroutine for inbound frames, so it must not block.
type FrameObserver interface {
	ObserveFrame(dir Direction, data []byte)
}

// FrameObserverFunc adapts a function to FrameObserver.
type FrameObserverFunc func(dir Direction, data []byte)

// ObserveFrame calls f(dir, data).
func (f FrameObserverFunc) ObserveFrame(dir Direction, data []byte) {
	f(dir, data)
}
