package session

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/telemetry"
	"github.com/petabridge/TurboMqtt-sub000/internal/transport"
)

// Config parameterizes a Supervisor. It is assembled by the root package's
// functional options from user-facing client configuration.
type Config struct {
	ServerURL    string
	Dialer       transport.ContextDialer
	TLSConfig    *tls.Config
	ClientID     string
	CleanSession bool
	Username     string
	HasUsername  bool
	Password     string
	HasPassword  bool
	Will         *packet.Will
	KeepAlive    time.Duration

	MaxFrameSize      int
	MaxIncomingPacket int
	MaxOutgoingPacket int

	PublishRetryInterval time.Duration
	MaxPublishRetries    int

	DedupCapacity int
	DedupTTL      time.Duration

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	ConnectTimeout time.Duration
	AckTimeout     time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = 64 * 1024
	}
	if c.PublishRetryInterval <= 0 {
		c.PublishRetryInterval = 5 * time.Second
	}
	if c.MaxPublishRetries <= 0 {
		c.MaxPublishRetries = 3
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = time.Minute
	}
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = 1024
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
