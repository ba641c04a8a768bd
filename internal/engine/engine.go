// Package engine ties the session, subscription manager, message store and
// lifecycle controller together into the client-side chat engine.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomsync/roomsync/internal/lifecycle"
	"github.com/roomsync/roomsync/internal/rooms"
	"github.com/roomsync/roomsync/internal/session"
	"github.com/roomsync/roomsync/internal/store"
	"github.com/roomsync/roomsync/internal/transport"
	"github.com/roomsync/roomsync/pkg/envelope"
)

// ErrNoActiveRoom reports a send without a selected room.
var ErrNoActiveRoom = errors.New("no active room")

// HistoryFetcher loads a room's message history. The api package provides
// the real implementation.
type HistoryFetcher interface {
	History(ctx context.Context, roomID int64) ([]store.ChatMessage, error)
}

// Config assembles an Engine. UserID and Token come from the auth
// collaborator; the engine performs no validation of their contents.
type Config struct {
	Addr   string
	UserID int64
	Token  string
	Dialer transport.Dialer
	Codec  envelope.Codec

	// History is optional; without it room switches skip the history load.
	History HistoryFetcher

	Logger zerolog.Logger

	// CountdownInterval shortens the termination countdown in tests.
	// Zero means one second.
	CountdownInterval time.Duration

	// OnBanner surfaces user-visible connectivity and fetch failures.
	OnBanner func(msg string)
	// OnUpdate fires after every change to the message sequence.
	OnUpdate func()
	// OnCountdown reports the remaining seconds of a termination countdown.
	OnCountdown func(remaining int)
	// OnRedirect fires when the countdown expires and the user must
	// re-authenticate.
	OnRedirect func()
}

// Engine is the client-side chat synchronization engine. One Engine spans
// reconnects; each (re)connect builds a fresh session instance.
type Engine struct {
	cfg   Config
	store *store.Store
	rooms *rooms.Manager
	life  *lifecycle.Controller

	mu   sync.Mutex
	sess *session.Session

	closing  atomic.Bool
	fetchGen atomic.Uint64
}

// New assembles an engine. Call Connect to go online.
func New(cfg Config) *Engine {
	e := &Engine{
		cfg:   cfg,
		store: store.New(),
	}
	e.rooms = rooms.NewManager(cfg.UserID, e, cfg.Logger)
	e.life = lifecycle.New(lifecycle.Config{
		Interval: cfg.CountdownInterval,
		OnTick:   cfg.OnCountdown,
		OnExpire: cfg.OnRedirect,
		Logger:   cfg.Logger,
	})
	return e
}

// Connect opens a fresh session. Reconnection after a close is this same
// call again: a closed session stays closed until the caller explicitly
// asks for a new one. Connecting while already open is a no-op.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.sess != nil && e.sess.State() != session.StateClosed {
		e.mu.Unlock()
		return nil
	}
	sess := session.New(session.Config{
		Addr:    e.cfg.Addr,
		UserID:  e.cfg.UserID,
		Token:   e.cfg.Token,
		Dialer:  e.cfg.Dialer,
		Codec:   e.cfg.Codec,
		Logger:  e.cfg.Logger,
		Handler: e.handleEnvelope,
		OnState: e.handleState,
	})
	e.sess = sess
	e.closing.Store(false)
	e.mu.Unlock()

	if err := sess.Open(ctx); err != nil {
		e.banner("connection failed: " + err.Error())
		return err
	}
	return nil
}

// Disconnect closes the current session, if any.
func (e *Engine) Disconnect() {
	e.closing.Store(true)
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// Shutdown tears the engine down: the session closes and any countdown in
// progress is cancelled so no late redirect fires.
func (e *Engine) Shutdown() {
	e.Disconnect()
	e.life.Stop()
}

// Send implements rooms.ControlSender against the current session.
func (e *Engine) Send(ctx context.Context, env *envelope.Envelope) error {
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil {
		return session.ErrNotOpen
	}
	return sess.Send(ctx, env)
}

// SelectRoom switches the active room: leave old, clear the sequence,
// fetch history, join new. Selecting the already-active room is a no-op.
// The history fetch runs concurrently with the JOIN; its result is
// discarded when the user has already moved on to another room.
func (e *Engine) SelectRoom(ctx context.Context, room *rooms.Room) {
	if active := e.rooms.Active(); room != nil && active != nil && room.ID == active.ID {
		return
	}

	gen := e.fetchGen.Add(1)
	e.store.Clear()
	e.rooms.Select(ctx, room)
	e.update()

	if room == nil || e.cfg.History == nil {
		return
	}
	go func() {
		msgs, err := e.cfg.History.History(ctx, room.ID)
		if err != nil {
			// Selection still completes; live traffic keeps flowing
			// even when history is unavailable.
			e.banner("failed to load history: " + err.Error())
			return
		}
		if e.fetchGen.Load() != gen {
			return
		}
		if active := e.rooms.Active(); active == nil || active.ID != room.ID {
			return
		}
		e.store.Load(msgs)
		e.update()
	}()
}

// SendMessage adds an optimistic pending entry and sends the envelope.
// When the connection is not open the entry flips to failed and stays
// visible; a typed message never silently vanishes.
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	room := e.rooms.Active()
	if room == nil {
		return ErrNoActiveRoom
	}

	now := time.Now()
	corr := envelope.NewCorrelationID()
	e.store.Add(store.ChatMessage{
		ID:            store.UnconfirmedID,
		UserID:        e.cfg.UserID,
		RoomID:        room.ID,
		Content:       text,
		CreatedAt:     now,
		CorrelationID: corr,
		Status:        store.StatusPending,
		FromSelf:      true,
	})
	e.update()

	err := e.Send(ctx, &envelope.Envelope{
		Type:          envelope.TypeMessage,
		RoomID:        room.ID,
		UserID:        e.cfg.UserID,
		Content:       []byte(text),
		CorrelationID: corr,
		CreatedAt:     now,
	})
	if err != nil {
		e.store.MarkFailed(corr)
		e.banner("not connected: message not delivered")
		e.update()
		return err
	}
	return nil
}

// Messages returns a copy of the active room's sequence.
func (e *Engine) Messages() []store.ChatMessage {
	return e.store.Messages()
}

// ActiveRoom returns the currently-selected room, or nil.
func (e *Engine) ActiveRoom() *rooms.Room {
	return e.rooms.Active()
}

// State reports the current connection state.
func (e *Engine) State() session.State {
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil {
		return session.StateIdle
	}
	return sess.State()
}

// Terminating reports whether a server-initiated termination countdown is
// in progress.
func (e *Engine) Terminating() bool {
	return e.life.Terminating()
}

func (e *Engine) handleEnvelope(env *envelope.Envelope) {
	switch env.Type {
	case envelope.TypeMessage:
		active := e.rooms.Active()
		if active == nil || env.RoomID != active.ID {
			return
		}
		e.store.Apply(env, e.cfg.UserID)
		e.update()
	case envelope.TypeClose:
		e.life.Begin()
	default:
		// JOIN/LEAVE/AUTH echoes carry no client-side state.
	}
}

func (e *Engine) handleState(st session.State) {
	switch st {
	case session.StateOpen:
		// The first JOIN after a (re)connect uses the active room, if any.
		e.rooms.Resubscribe(context.Background())
	case session.StateClosed:
		if !e.closing.Load() && !e.life.Terminating() {
			e.banner("connection closed")
		}
	}
}

func (e *Engine) banner(msg string) {
	e.cfg.Logger.Warn().Msg(msg)
	if e.cfg.OnBanner != nil {
		e.cfg.OnBanner(msg)
	}
}

func (e *Engine) update() {
	if e.cfg.OnUpdate != nil {
		e.cfg.OnUpdate()
	}
}
