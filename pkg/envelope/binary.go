package envelope

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the compact binary record. Ordering is fixed; numeric
// ids go out as varints, content as raw bytes with no base64 overhead.
const (
	fieldID            protowire.Number = 1
	fieldMsgType       protowire.Number = 2
	fieldRoomID        protowire.Number = 3
	fieldUserID        protowire.Number = 4
	fieldContent       protowire.Number = 5
	fieldCorrelationID protowire.Number = 6
	fieldCreatedAt     protowire.Number = 7
)

// BinaryCodec encodes envelopes as compact protobuf wire records without a
// generated message type.
type BinaryCodec struct{}

// NewBinaryCodec returns the binary codec.
func NewBinaryCodec() BinaryCodec {
	return BinaryCodec{}
}

// Encode implements Codec.
func (BinaryCodec) Encode(env *Envelope) ([]byte, error) {
	var buf []byte
	if env.ID > 0 {
		buf = protowire.AppendTag(buf, fieldID, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(env.ID))
	}
	buf = protowire.AppendTag(buf, fieldMsgType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(env.Type))
	buf = protowire.AppendTag(buf, fieldRoomID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(env.RoomID))
	buf = protowire.AppendTag(buf, fieldUserID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(env.UserID))
	if len(env.Content) > 0 {
		buf = protowire.AppendTag(buf, fieldContent, protowire.BytesType)
		buf = protowire.AppendBytes(buf, env.Content)
	}
	if env.CorrelationID != "" {
		buf = protowire.AppendTag(buf, fieldCorrelationID, protowire.BytesType)
		buf = protowire.AppendBytes(buf, []byte(env.CorrelationID))
	}
	if !env.CreatedAt.IsZero() {
		buf = protowire.AppendTag(buf, fieldCreatedAt, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(env.CreatedAt.UnixMilli()))
	}
	return buf, nil
}

// Decode implements Codec. Unknown fields are skipped so the record can
// grow without breaking older clients.
func (BinaryCodec) Decode(data []byte) (*Envelope, error) {
	env := &Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType && num == fieldID:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			env.ID = int64(v)
			data = data[n:]
		case typ == protowire.VarintType && num == fieldMsgType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			env.Type = msgTypeFromWire(v)
			data = data[n:]
		case typ == protowire.VarintType && num == fieldRoomID:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			env.RoomID = int64(v)
			data = data[n:]
		case typ == protowire.VarintType && num == fieldUserID:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			env.UserID = int64(v)
			data = data[n:]
		case typ == protowire.BytesType && num == fieldContent:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			env.Content = append([]byte(nil), v...)
			data = data[n:]
		case typ == protowire.BytesType && num == fieldCorrelationID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			env.CorrelationID = string(v)
			data = data[n:]
		case typ == protowire.VarintType && num == fieldCreatedAt:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			env.CreatedAt = time.UnixMilli(int64(v))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return env, nil
}

// Frame implements Codec.
func (BinaryCodec) Frame() FrameKind {
	return FrameBinary
}

// msgTypeFromWire maps a wire enum value to a MsgType. Out-of-range values
// map to TypeUnknown so the dispatcher can drop the envelope.
func msgTypeFromWire(v uint64) MsgType {
	if t := MsgType(v); t >= TypeAuth && t <= TypeClose {
		return t
	}
	return TypeUnknown
}
