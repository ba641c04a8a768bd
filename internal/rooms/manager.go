// Package rooms tracks the active room and emits the JOIN/LEAVE control
// envelopes that keep the server's subscription in step with it.
package rooms

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomsync/roomsync/pkg/envelope"
)

// Room is one chat room. The engine never mutates it; the directory
// collaborator owns creation and naming.
type Room struct {
	ID   int64  `json:"ID"`
	Name string `json:"Name"`
}

// ControlSender sends control envelopes over the live session.
type ControlSender interface {
	Send(ctx context.Context, env *envelope.Envelope) error
}

// Manager translates "active room changed" into at most one LEAVE and at
// most one JOIN per switch.
type Manager struct {
	userID int64
	sender ControlSender
	log    zerolog.Logger

	mu     sync.Mutex
	active *Room
}

// NewManager returns a manager with no active room.
func NewManager(userID int64, sender ControlSender, log zerolog.Logger) *Manager {
	return &Manager{
		userID: userID,
		sender: sender,
		log:    log,
	}
}

// Active returns the currently-active room, or nil.
func (m *Manager) Active() *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Select makes room the active room, leaving the previous one first. A nil
// room leaves the previous room and clears the selection. Send failures
// while the connection is not open are logged, never fatal; the join
// intent is replayed by Resubscribe once the connection opens.
func (m *Manager) Select(ctx context.Context, room *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if err := m.send(ctx, envelope.TypeLeave, m.active.ID); err != nil {
			m.log.Warn().Err(err).Int64("room_id", m.active.ID).Msg("leave not delivered")
		}
	}

	m.active = room
	if room == nil {
		return
	}

	if err := m.send(ctx, envelope.TypeJoin, room.ID); err != nil {
		m.log.Warn().Err(err).Int64("room_id", room.ID).Msg("join not delivered")
	}
}

// Resubscribe re-issues JOIN for the active room, if any. The engine calls
// it when a (re)connected session reaches the open state.
func (m *Manager) Resubscribe(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return
	}
	if err := m.send(ctx, envelope.TypeJoin, m.active.ID); err != nil {
		m.log.Warn().Err(err).Int64("room_id", m.active.ID).Msg("rejoin not delivered")
	}
}

func (m *Manager) send(ctx context.Context, t envelope.MsgType, roomID int64) error {
	return m.sender.Send(ctx, &envelope.Envelope{
		Type:          t,
		RoomID:        roomID,
		UserID:        m.userID,
		CorrelationID: envelope.NewCorrelationID(),
		CreatedAt:     time.Now(),
	})
}
