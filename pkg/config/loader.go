package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.connectionLimit.maxPerIP", 8)
	v.SetDefault("server.connectionLimit.mode", "reject")
	v.SetDefault("transport.readLimit", 524288)
	v.SetDefault("session.handshakeTimeout", "15s")
	v.SetDefault("session.pingInterval", "30s")
	v.SetDefault("session.pongGrace", "60s")
	v.SetDefault("broker.historyLimit", 50)
	v.SetDefault("broker.rateLimit.enabled", false)
	v.SetDefault("broker.rateLimit.messages", 30)
	v.SetDefault("broker.rateLimit.window", "10s")
	v.SetDefault("identity.tripcodeSecret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("rooms", []string{"room_a", "room_b", "room_c", "room_d"})

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("PICTOCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Rooms) == 0 {
		return fmt.Errorf("config: at least one room must be declared")
	}
	seen := make(map[string]struct{}, len(cfg.Rooms))
	for _, id := range cfg.Rooms {
		if id == "" {
			return fmt.Errorf("config: empty room id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: duplicate room id %q", id)
		}
		seen[id] = struct{}{}
	}
	if cfg.Session.PongGrace < cfg.Session.PingInterval {
		return fmt.Errorf("config: session.pongGrace must be at least one ping interval")
	}
	if cfg.Broker.HistoryLimit <= 0 {
		return fmt.Errorf("config: broker.historyLimit must be positive")
	}
	if cfg.Transport.ReadLimit <= 0 {
		return fmt.Errorf("config: transport.readLimit must be positive")
	}
	return nil
}
