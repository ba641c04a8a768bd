// Package transport abstracts the bidirectional connection the engine
// speaks over. This interface isolates transport details from session
// logic; WebSocket and raw TCP implementations satisfy it.
package transport

import (
	"context"

	"github.com/roomsync/roomsync/pkg/envelope"
)

// Conn is one established connection carrying whole frames.
type Conn interface {
	// Read reads a single frame. Returns an error once the connection
	// is closed or broken.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer establishes connections to a fixed endpoint. The frame kind is
// decided by the codec in use and fixed for the connection's lifetime.
type Dialer interface {
	Dial(ctx context.Context, addr string, kind envelope.FrameKind) (Conn, error)
}
