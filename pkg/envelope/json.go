package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// jsonFrame is the fixed wire shape of the text codec. Outbound content
// travels in Message; inbound frames may carry either Message or Content,
// depending on which side of the backend produced them.
type jsonFrame struct {
	ID        int64  `json:"ID,omitempty"`
	MsgType   string `json:"MsgType"`
	RoomID    int64  `json:"RoomID"`
	UserID    int64  `json:"UserID"`
	Message   string `json:"Message,omitempty"`
	Content   string `json:"Content,omitempty"`
	TempID    string `json:"TempID"`
	CreatedAt int64  `json:"CreatedAt,omitempty"`
}

// JSONCodec encodes envelopes as UTF-8 JSON text frames.
type JSONCodec struct{}

// NewJSONCodec returns the text codec.
func NewJSONCodec() JSONCodec {
	return JSONCodec{}
}

// Encode implements Codec.
func (JSONCodec) Encode(env *Envelope) ([]byte, error) {
	frame := jsonFrame{
		ID:      env.ID,
		MsgType: env.Type.String(),
		RoomID:  env.RoomID,
		UserID:  env.UserID,
		Message: string(env.Content),
		TempID:  env.CorrelationID,
	}
	if !env.CreatedAt.IsZero() {
		frame.CreatedAt = env.CreatedAt.UnixMilli()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte) (*Envelope, error) {
	var frame jsonFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	content := frame.Message
	if content == "" {
		content = frame.Content
	}

	env := &Envelope{
		ID:            frame.ID,
		Type:          ParseMsgType(frame.MsgType),
		RoomID:        frame.RoomID,
		UserID:        frame.UserID,
		Content:       []byte(content),
		CorrelationID: frame.TempID,
	}
	if frame.CreatedAt != 0 {
		env.CreatedAt = time.UnixMilli(frame.CreatedAt)
	}
	return env, nil
}

// Frame implements Codec.
func (JSONCodec) Frame() FrameKind {
	return FrameText
}
