// Package testserver runs an in-process WebSocket endpoint for tests. It
// records every frame clients send and lets tests push frames back,
// standing in for the chat gateway.
package testserver

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Frame is one client frame as it arrived.
type Frame struct {
	Op   ws.OpCode
	Data []byte
}

// Server is the in-process endpoint.
type Server struct {
	httpSrv *httptest.Server
	frames  chan Frame

	mu    sync.Mutex
	conns []net.Conn
}

// New starts the endpoint. Callers must Close it.
func New() *Server {
	s := &Server{frames: make(chan Frame, 64)}
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// address clients dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http")
}

// Frames exposes the inbound client frames in arrival order.
func (s *Server) Frames() <-chan Frame {
	return s.frames
}

// Broadcast pushes one frame to every connected client.
func (s *Server) Broadcast(op ws.OpCode, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		if err := wsutil.WriteServerMessage(conn, op, data); err != nil {
			return err
		}
	}
	return nil
}

// DropClients severs every client connection without a close handshake,
// simulating a transport failure.
func (s *Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

// Close shuts the endpoint down.
func (s *Server) Close() {
	s.DropClients()
	s.httpSrv.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	go func() {
		defer conn.Close()
		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			s.frames <- Frame{Op: op, Data: data}
		}
	}()
}
