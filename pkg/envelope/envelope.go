// Package envelope defines the event exchanged over the chat connection and
// the codecs that put it on the wire.
package envelope

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MsgType discriminates envelope kinds on the wire.
type MsgType int

const (
	TypeUnknown MsgType = iota
	TypeAuth
	TypeJoin
	TypeLeave
	TypeMessage
	TypeClose
)

// String returns the wire form of the message type.
func (t MsgType) String() string {
	switch t {
	case TypeAuth:
		return "AUTH"
	case TypeJoin:
		return "JOIN"
	case TypeLeave:
		return "LEAVE"
	case TypeMessage:
		return "MESSAGE"
	case TypeClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ParseMsgType maps a wire string to a MsgType. Unrecognized strings map to
// TypeUnknown rather than an error so one odd frame cannot take the
// connection down; the dispatcher drops unknown types.
func ParseMsgType(s string) MsgType {
	switch strings.ToUpper(s) {
	case "AUTH":
		return TypeAuth
	case "JOIN":
		return TypeJoin
	case "LEAVE":
		return TypeLeave
	case "MESSAGE":
		return TypeMessage
	case "CLOSE", "CLOSING":
		return TypeClose
	default:
		return TypeUnknown
	}
}

// UnconfirmedID is the server id placeholder carried by envelopes that have
// not been confirmed yet.
const UnconfirmedID int64 = -1

// Envelope is one structured event exchanged over the persistent connection.
//
// Every envelope the client emits carries a freshly generated CorrelationID;
// the server echoes it back on the confirmation so the client can match
// without relying on arrival order. RoomID 0 is reserved for control
// envelopes not bound to a room.
type Envelope struct {
	ID            int64
	Type          MsgType
	RoomID        int64
	UserID        int64
	Content       []byte
	CorrelationID string
	CreatedAt     time.Time
}

// NewCorrelationID returns a fresh opaque correlation id.
func NewCorrelationID() string {
	return uuid.NewString()
}
