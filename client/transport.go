package client

import "context"

// Transport opens one bidirectional message channel per session. Message
// boundaries are preserved: one Send is one Receive on the other side.
type Transport interface {
	Dial(ctx context.Context, sessionID string) (Conn, error)
}

// Conn is an open channel. Send may be called concurrently with Receive, but
// not with itself; the client serialises its sends.
type Conn interface {
	Send(data []byte) error
	// Receive blocks for the next message. It returns an error once the
	// channel is closed from either side.
	Receive() ([]byte, error)
	// Ready reports whether the channel is still usable.
	Ready() bool
	Close() error
}
