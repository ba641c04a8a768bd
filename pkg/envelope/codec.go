package envelope

import "errors"

// ErrMalformedFrame reports a frame that could not be decoded. Callers log
// and discard the frame; a bad frame must never terminate the session.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameKind selects the transport framing a codec expects.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// Codec serializes envelopes to transport frames and back. Implementations
// are interchangeable; no other component branches on the wire shape.
type Codec interface {
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte) (*Envelope, error)

	// Frame reports the framing this codec's output requires.
	Frame() FrameKind
}
