// Package ws provides the WebSocket transport used for the chat session.
package ws

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"

	"github.com/roomsync/roomsync/internal/transport"
	"github.com/roomsync/roomsync/pkg/envelope"
)

// Dialer dials WebSocket endpoints. The zero value is ready to use.
type Dialer struct{}

// Dial implements transport.Dialer.
func (Dialer) Dial(ctx context.Context, addr string, kind envelope.FrameKind) (transport.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Conn{conn: conn, msgType: messageType(kind), remoteAddr: addr}, nil
}

// Conn adapts nhooyr.io/websocket to transport.Conn.
type Conn struct {
	conn       *websocket.Conn
	msgType    websocket.MessageType
	remoteAddr string
	closeOnce  sync.Once
}

// Read implements transport.Conn.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, c.msgType, data)
}

// Close implements transport.Conn. Closing twice is safe.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

func messageType(kind envelope.FrameKind) websocket.MessageType {
	if kind == envelope.FrameText {
		return websocket.MessageText
	}
	return websocket.MessageBinary
}
