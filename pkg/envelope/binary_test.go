package envelope_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/roomsync/roomsync/pkg/envelope"
)

func TestBinaryCodec_RoundTrip(t *testing.T) {
	codec := envelope.NewBinaryCodec()
	createdAt := time.UnixMilli(1700000000000)

	tests := []struct {
		name string
		env  envelope.Envelope
	}{
		{
			name: "confirmed message with raw byte content",
			env: envelope.Envelope{
				ID:            42,
				Type:          envelope.TypeMessage,
				RoomID:        3,
				UserID:        7,
				Content:       []byte{0x00, 0xff, 0x10, 0x7f},
				CorrelationID: "c1",
				CreatedAt:     createdAt,
			},
		},
		{
			name: "leave control without content",
			env: envelope.Envelope{
				Type:          envelope.TypeLeave,
				RoomID:        3,
				UserID:        7,
				CorrelationID: "c2",
				CreatedAt:     createdAt,
			},
		},
		{
			name: "close from server",
			env: envelope.Envelope{
				Type:      envelope.TypeClose,
				CreatedAt: createdAt,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Encode(&tt.env)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.ID != tt.env.ID || got.Type != tt.env.Type ||
				got.RoomID != tt.env.RoomID || got.UserID != tt.env.UserID ||
				!bytes.Equal(got.Content, tt.env.Content) ||
				got.CorrelationID != tt.env.CorrelationID ||
				!got.CreatedAt.Equal(tt.env.CreatedAt) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.env)
			}
		})
	}
}

func TestBinaryCodec_ContentHasNoEncodingOverhead(t *testing.T) {
	codec := envelope.NewBinaryCodec()
	content := []byte{0xde, 0xad, 0xbe, 0xef}
	data, err := codec.Encode(&envelope.Envelope{
		Type:    envelope.TypeMessage,
		RoomID:  1,
		UserID:  2,
		Content: content,
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Contains(data, content) {
		t.Error("content bytes should appear verbatim in the frame")
	}
}

func TestBinaryCodec_DecodeMalformed(t *testing.T) {
	codec := envelope.NewBinaryCodec()

	valid, err := codec.Encode(&envelope.Envelope{
		Type:          envelope.TypeMessage,
		RoomID:        1,
		UserID:        2,
		Content:       []byte("hello"),
		CorrelationID: "c1",
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated", data: valid[:len(valid)-3]},
		{name: "garbage tag", data: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Decode(tt.data); !errors.Is(err, envelope.ErrMalformedFrame) {
				t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestBinaryCodec_SkipsUnknownFields(t *testing.T) {
	codec := envelope.NewBinaryCodec()
	data, err := codec.Encode(&envelope.Envelope{
		Type:          envelope.TypeMessage,
		RoomID:        3,
		UserID:        7,
		Content:       []byte("hi"),
		CorrelationID: "c1",
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// A future field this codec version does not know about.
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future"))

	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.RoomID != 3 || string(got.Content) != "hi" || got.CorrelationID != "c1" {
		t.Errorf("known fields lost around unknown field: %+v", got)
	}
}

func TestBinaryCodec_UnknownEnumValue(t *testing.T) {
	codec := envelope.NewBinaryCodec()

	var data []byte
	data = protowire.AppendTag(data, 2, protowire.VarintType)
	data = protowire.AppendVarint(data, 250)

	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Type != envelope.TypeUnknown {
		t.Errorf("Type = %v, want TypeUnknown", got.Type)
	}
}
