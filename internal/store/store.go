// Package store holds the ordered per-room message sequence and reconciles
// optimistically-sent entries with their server-confirmed copies.
package store

import (
	"sync"
	"time"

	"github.com/roomsync/roomsync/pkg/envelope"
)

// Status tracks an entry's delivery state.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// UnconfirmedID marks an entry that has no server identifier yet.
const UnconfirmedID int64 = -1

// ChatMessage is the display and storage model for one message.
type ChatMessage struct {
	ID            int64
	UserID        int64
	RoomID        int64
	Content       string
	CreatedAt     time.Time
	CorrelationID string
	Status        Status
	FromSelf      bool
}

// Confirmed reports whether the entry carries a real server id.
func (m ChatMessage) Confirmed() bool {
	return m.ID != UnconfirmedID && m.Status == StatusSent
}

// Store owns the active room's ordered sequence. All mutations go through
// Load, Add, Confirm and Clear; readers get copies.
type Store struct {
	mu   sync.RWMutex
	msgs []ChatMessage
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Load replaces the sequence wholesale. Callers use it once per room
// switch, after Clear and before any Add.
func (s *Store) Load(msgs []ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs[:0:0], msgs...)
}

// Add appends one entry, typically a pending optimistic entry.
func (s *Store) Add(m ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

// Confirm replaces the first entry with a matching correlation id in place,
// preserving its position. When no entry matches it appends at the tail:
// that covers messages from other users, which never had a pending entry,
// and a confirmation racing ahead of the local append. Confirming the same
// correlation id twice is safe.
func (s *Store) Confirm(m ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].CorrelationID == m.CorrelationID {
			s.msgs[i] = m
			return
		}
	}
	s.msgs = append(s.msgs, m)
}

// Clear empties the sequence.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

// MarkFailed flips the entry with the given correlation id to failed so a
// rejected send stays visible instead of silently vanishing. It reports
// whether an entry was found.
func (s *Store) MarkFailed(correlationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].CorrelationID == correlationID {
			s.msgs[i].Status = StatusFailed
			return true
		}
	}
	return false
}

// Messages returns a copy of the current sequence.
func (s *Store) Messages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChatMessage(nil), s.msgs...)
}

// Len returns the sequence length.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Apply folds one inbound MESSAGE envelope into the sequence. An envelope
// from the local user is a confirmation of a prior send and is matched by
// correlation id; anything from another user is appended fresh and never
// matched against local pending entries.
func (s *Store) Apply(env *envelope.Envelope, selfID int64) {
	m := fromEnvelope(env, selfID)
	if m.FromSelf {
		s.Confirm(m)
		return
	}
	s.Add(m)
}

func fromEnvelope(env *envelope.Envelope, selfID int64) ChatMessage {
	corr := env.CorrelationID
	if corr == "" {
		// Needed only for local key-ing, never sent over the wire.
		corr = envelope.NewCorrelationID()
	}
	id := env.ID
	if id == 0 {
		id = UnconfirmedID
	}
	return ChatMessage{
		ID:            id,
		UserID:        env.UserID,
		RoomID:        env.RoomID,
		Content:       string(env.Content),
		CreatedAt:     env.CreatedAt,
		CorrelationID: corr,
		Status:        StatusSent,
		FromSelf:      env.UserID == selfID,
	}
}
