package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/roomsync/roomsync/internal/session"
	"github.com/roomsync/roomsync/internal/testserver"
	wstransport "github.com/roomsync/roomsync/internal/transport/ws"
	"github.com/roomsync/roomsync/pkg/envelope"
)

func newSession(t *testing.T, srv *testserver.Server, handler session.Handler, onState func(session.State)) *session.Session {
	t.Helper()
	return session.New(session.Config{
		Addr:    srv.URL(),
		UserID:  7,
		Token:   "tok-123",
		Dialer:  wstransport.Dialer{},
		Codec:   envelope.NewJSONCodec(),
		Logger:  zerolog.Nop(),
		Handler: handler,
		OnState: onState,
	})
}

func readFrame(t *testing.T, srv *testserver.Server) testserver.Frame {
	t.Helper()
	select {
	case frame := <-srv.Frames():
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a client frame")
		return testserver.Frame{}
	}
}

func TestOpen_SendsAuthFirst(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	s := newSession(t, srv, nil, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if got := s.State(); got != session.StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	frame := readFrame(t, srv)
	env, err := envelope.NewJSONCodec().Decode(frame.Data)
	if err != nil {
		t.Fatalf("decode auth frame: %v", err)
	}
	if env.Type != envelope.TypeAuth {
		t.Errorf("first envelope = %v, want AUTH", env.Type)
	}
	if env.RoomID != 0 {
		t.Errorf("AUTH RoomID = %d, want 0", env.RoomID)
	}
	if string(env.Content) != "tok-123" {
		t.Errorf("AUTH content = %q, want the token", env.Content)
	}
	if env.CorrelationID == "" {
		t.Error("AUTH envelope must carry a correlation id")
	}
}

func TestOpen_WithoutCredentialsSettlesClosed(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	s := session.New(session.Config{
		Addr:   srv.URL(),
		UserID: 7,
		Dialer: wstransport.Dialer{},
		Codec:  envelope.NewJSONCodec(),
		Logger: zerolog.Nop(),
	})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v, want silent close", err)
	}
	if got := s.State(); got != session.StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestOpen_DialFailureSurfacesClosed(t *testing.T) {
	states := make(chan session.State, 8)
	s := session.New(session.Config{
		Addr:    "ws://127.0.0.1:1/nope",
		UserID:  7,
		Token:   "tok",
		Dialer:  wstransport.Dialer{},
		Codec:   envelope.NewJSONCodec(),
		Logger:  zerolog.Nop(),
		OnState: func(st session.State) { states <- st },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Open(ctx); err == nil {
		t.Fatal("Open() succeeded against a dead endpoint")
	}
	if got := s.State(); got != session.StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	if first := <-states; first != session.StateConnecting {
		t.Errorf("first transition = %v, want connecting", first)
	}
}

func TestSend_WhileNotOpen(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	s := newSession(t, srv, nil, nil)
	err := s.Send(context.Background(), &envelope.Envelope{Type: envelope.TypeMessage})
	if !errors.Is(err, session.ErrNotOpen) {
		t.Fatalf("Send() before open: error = %v, want ErrNotOpen", err)
	}

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.Close()

	err = s.Send(context.Background(), &envelope.Envelope{Type: envelope.TypeMessage})
	if !errors.Is(err, session.ErrNotOpen) {
		t.Fatalf("Send() after close: error = %v, want ErrNotOpen", err)
	}
}

func TestReceive_MalformedFrameDoesNotTerminate(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	received := make(chan *envelope.Envelope, 4)
	s := newSession(t, srv, func(env *envelope.Envelope) { received <- env }, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	readFrame(t, srv) // drain AUTH

	if err := srv.Broadcast(ws.OpText, []byte("{{{not json")); err != nil {
		t.Fatalf("broadcast garbage: %v", err)
	}
	valid, _ := envelope.NewJSONCodec().Encode(&envelope.Envelope{
		ID:            42,
		Type:          envelope.TypeMessage,
		RoomID:        3,
		UserID:        9,
		Content:       []byte("still here"),
		CorrelationID: "c1",
	})
	if err := srv.Broadcast(ws.OpText, valid); err != nil {
		t.Fatalf("broadcast valid: %v", err)
	}

	select {
	case env := <-received:
		if string(env.Content) != "still here" {
			t.Errorf("Content = %q, want the frame after the bad one", env.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid envelope never arrived; bad frame killed the session")
	}
	if got := s.State(); got != session.StateOpen {
		t.Errorf("State() = %v, want still open after malformed frame", got)
	}
}

func TestReceive_TransportDropTransitionsToClosed(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	states := make(chan session.State, 8)
	s := newSession(t, srv, nil, func(st session.State) { states <- st })
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	readFrame(t, srv)

	srv.DropClients()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-states:
			if st == session.StateClosed {
				return
			}
		case <-deadline:
			t.Fatal("session never transitioned to closed after transport drop")
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	s := newSession(t, srv, nil, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	s.Close()
	s.Close()

	if got := s.State(); got != session.StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}
