// Package config loads engine configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/roomsync/roomsync/internal/transport"
	"github.com/roomsync/roomsync/internal/transport/tcp"
	"github.com/roomsync/roomsync/internal/transport/ws"
	"github.com/roomsync/roomsync/pkg/envelope"
)

// Config carries everything needed to assemble the engine. The endpoint
// and codec are fixed at configuration time; nothing switches wire shape
// at runtime.
type Config struct {
	SocketURL  string `env:"ROOMSYNC_SOCKET_URL" envDefault:"ws://localhost:8000/ws"`
	APIBaseURL string `env:"ROOMSYNC_API_URL" envDefault:"http://localhost:8000/api"`
	Codec      string `env:"ROOMSYNC_CODEC" envDefault:"json"`
	Transport  string `env:"ROOMSYNC_TRANSPORT" envDefault:"ws"`
	Username   string `env:"ROOMSYNC_USERNAME"`
	UserID     int64  `env:"ROOMSYNC_USER_ID"`
	Token      string `env:"ROOMSYNC_TOKEN"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// BuildCodec resolves the configured codec name.
func (c Config) BuildCodec() (envelope.Codec, error) {
	switch c.Codec {
	case "json":
		return envelope.NewJSONCodec(), nil
	case "binary":
		return envelope.NewBinaryCodec(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", c.Codec)
	}
}

// BuildDialer resolves the configured transport name.
func (c Config) BuildDialer() (transport.Dialer, error) {
	switch c.Transport {
	case "ws":
		return ws.Dialer{}, nil
	case "tcp":
		return tcp.Dialer{}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}
