package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Session   SessionConfig
	Broker    BrokerConfig
	Identity  IdentityConfig
	Log       LogConfig
	// Rooms is the process-wide room directory, in declaration order.
	// sv_roomIds reports rooms in exactly this order.
	Rooms []string `mapstructure:"rooms"`
}

type ServerConfig struct {
	Address         string
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type ConnectionLimitConfig struct {
	MaxPerIP int    `mapstructure:"maxPerIP"`
	Mode     string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	// ReadLimit caps a single inbound frame, in bytes.
	ReadLimit int64 `mapstructure:"readLimit"`
}

type SessionConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
	PingInterval     time.Duration `mapstructure:"pingInterval"`
	// PongGrace is how long a connection may stay silent before it is
	// presumed dead. Must be at least one ping interval.
	PongGrace time.Duration `mapstructure:"pongGrace"`
}

type BrokerConfig struct {
	HistoryLimit int             `mapstructure:"historyLimit"`
	RateLimit    RateLimitConfig `mapstructure:"rateLimit"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Messages int           `mapstructure:"messages"`
	Window   time.Duration `mapstructure:"window"`
}

type IdentityConfig struct {
	// TripcodeSecret keys name tripcode derivation. Set it via
	// PICTOCHAT_IDENTITY_TRIPCODESECRET; all codes change with it.
	TripcodeSecret string `mapstructure:"tripcodeSecret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}
