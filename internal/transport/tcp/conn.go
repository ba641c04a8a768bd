// Package tcp provides a raw TCP transport with length-prefixed frames.
// It exists for deployments that expose the chat gateway without an HTTP
// front; only the binary codec is meaningful over it.
package tcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/roomsync/roomsync/internal/transport"
	"github.com/roomsync/roomsync/pkg/envelope"
)

// maxFrameSize bounds a single inbound frame.
const maxFrameSize = 1 << 20

// Dialer dials raw TCP endpoints. The zero value is ready to use.
type Dialer struct{}

// Dial implements transport.Dialer. The frame kind is ignored; every frame
// travels as a 4-byte big-endian length prefix followed by the record.
func (Dialer) Dial(ctx context.Context, addr string, _ envelope.FrameKind) (transport.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Conn{conn: conn}, nil
}

// Conn adapts net.Conn to transport.Conn with length-prefixed framing.
type Conn struct {
	conn      net.Conn
	readMu    sync.Mutex
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Read implements transport.Conn. It reads exactly one framed record.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)
	_, err := c.conn.Write(frame)
	return err
}

// Close implements transport.Conn. Closing twice is safe.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
	return nil
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
