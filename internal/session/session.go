// Package session owns the single transport connection: handshake,
// inbound dispatch and teardown. One Session instance covers one
// connection; reconnecting means building a fresh instance.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomsync/roomsync/internal/transport"
	"github.com/roomsync/roomsync/pkg/envelope"
)

// State is the connection lifecycle state. Closed is terminal for a
// Session instance.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns a short name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotOpen reports a send attempted while the connection is not open.
// There is no outbound queue across reconnects: replaying stale user
// actions after an unbounded gap is worse than surfacing the failure.
var ErrNotOpen = errors.New("connection not open")

// Handler receives every decoded inbound envelope, in transport delivery
// order, and routes by message type.
type Handler func(env *envelope.Envelope)

// Config carries everything a Session needs. UserID and Token come from
// the auth collaborator and are treated as opaque.
type Config struct {
	Addr   string
	UserID int64
	Token  string
	Dialer transport.Dialer
	Codec  envelope.Codec
	Logger zerolog.Logger

	// Handler receives inbound envelopes. Optional.
	Handler Handler

	// OnState observes lifecycle transitions. Optional, diagnostic only.
	OnState func(State)
}

// Session is one connection instance.
type Session struct {
	cfg Config

	mu    sync.Mutex
	state State
	conn  transport.Conn

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns an idle session. Call Open to connect.
func New(cfg Config) *Session {
	return &Session{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Open dials the endpoint, performs the AUTH handshake and starts the
// receive loop. Without a user id and token it settles into Closed without
// dialing; callers are expected not to open unauthenticated. Transport
// failures also surface as the Closed state; the returned error exists so
// the caller can show a banner, nothing more.
func (s *Session) Open(ctx context.Context) error {
	if s.cfg.UserID == 0 || s.cfg.Token == "" {
		s.cfg.Logger.Warn().Msg("open without credentials")
		s.abandon(nil)
		return nil
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("open from state %s", s.state)
	}
	s.mu.Unlock()
	s.setState(StateConnecting)

	conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.Addr, s.cfg.Codec.Frame())
	if err != nil {
		s.abandon(nil)
		return fmt.Errorf("open session: %w", err)
	}

	auth := &envelope.Envelope{
		Type:          envelope.TypeAuth,
		RoomID:        0,
		UserID:        s.cfg.UserID,
		Content:       []byte(s.cfg.Token),
		CorrelationID: envelope.NewCorrelationID(),
		CreatedAt:     time.Now(),
	}
	data, err := s.cfg.Codec.Encode(auth)
	if err != nil {
		s.abandon(conn)
		return fmt.Errorf("encode auth: %w", err)
	}
	if err := conn.Write(ctx, data); err != nil {
		s.abandon(conn)
		return fmt.Errorf("send auth: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateOpen)
	s.cfg.Logger.Info().Str("addr", s.cfg.Addr).Msg("session open")

	s.wg.Add(1)
	go s.receiveLoop(conn)
	return nil
}

// Send transmits one envelope. It only works while the session is open;
// otherwise it returns ErrNotOpen and the caller keeps the message visible
// as pending or failed. A missing correlation id is stamped here so every
// outbound envelope carries a fresh one.
func (s *Session) Send(ctx context.Context, env *envelope.Envelope) error {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		return ErrNotOpen
	}

	if env.CorrelationID == "" {
		env.CorrelationID = envelope.NewCorrelationID()
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now()
	}

	data, err := s.cfg.Codec.Encode(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := conn.Write(ctx, data); err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	return nil
}

// Close releases the transport and waits for the receive loop to stop.
// Closing twice is safe.
func (s *Session) Close() {
	s.shutdown()
	s.wg.Wait()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// abandon tears the session down before the receive loop ever started.
func (s *Session) abandon(conn transport.Conn) {
	s.closeOnce.Do(func() {
		if conn != nil {
			_ = conn.Close()
		}
		close(s.done)
	})
	s.setState(StateClosed)
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		close(s.done)
	})
	s.setState(StateClosed)
}

func (s *Session) receiveLoop(conn transport.Conn) {
	defer s.wg.Done()

	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			select {
			case <-s.done:
				// Expected: the read was interrupted by Close.
			default:
				s.cfg.Logger.Error().Err(err).Msg("transport read failed")
			}
			s.shutdown()
			return
		}

		env, err := s.cfg.Codec.Decode(data)
		if err != nil {
			// One bad frame must never terminate the session.
			s.cfg.Logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping frame")
			continue
		}
		if env.Type == envelope.TypeUnknown {
			s.cfg.Logger.Warn().Msg("dropping envelope of unknown type")
			continue
		}
		if s.cfg.Handler != nil {
			s.cfg.Handler(env)
		}
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	if s.cfg.OnState != nil {
		s.cfg.OnState(next)
	}
}
