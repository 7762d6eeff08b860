// Package config loads tcpfetch's runtime tunables from flags, an
// optional config file, and TCPFETCH_-prefixed environment variables via
// viper, the way the example pack's agent binaries load theirs.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the engine exposes. Fields map onto flags of
// the same name with dashes in place of camelCase, and onto
// TCPFETCH_<FIELD> environment variables.
type Config struct {
	// Interface overrides automatic default-route interface discovery.
	Interface string `mapstructure:"interface"`

	// HandshakeTimeout bounds the whole three-way handshake, across all
	// retries.
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout"`

	// StallTimeout is how long the IP receiver will wait for any
	// matching datagram before giving up on the connection.
	StallTimeout time.Duration `mapstructure:"stall-timeout"`

	// RetransmitThreshold is how long an unacknowledged segment sits
	// before the TCP engine resends it.
	RetransmitThreshold time.Duration `mapstructure:"retransmit-threshold"`

	// FragmentMTU is the payload size, in bytes, of each IPv4 fragment
	// this stack emits. Must be a multiple of 8.
	FragmentMTU int `mapstructure:"fragment-mtu"`

	// MaxCongestionWindow caps how many unacknowledged segments the
	// engine will keep in flight at once.
	MaxCongestionWindow int `mapstructure:"max-congestion-window"`

	// LogLevel is the logrus level name: "debug", "info", "warn", "error".
	LogLevel string `mapstructure:"log-level"`
}

// Defaults returns a Config populated with the values the rest of the
// engine was written assuming (pkg/tcp's handshake/retransmit constants,
// pkg/ip's fragment MTU, pkg/tcp's congestion ceiling).
func Defaults() *Config {
	return &Config{
		HandshakeTimeout:    9 * time.Second,
		StallTimeout:        180 * time.Second,
		RetransmitThreshold: 60 * time.Second,
		FragmentMTU:         800,
		MaxCongestionWindow: 1000,
		LogLevel:            "info",
	}
}

// Load builds a Config from viper's layered sources: flags already bound
// to v (highest precedence), TCPFETCH_-prefixed environment variables,
// an optional config file at configPath, then Defaults.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	d := Defaults()
	v.SetDefault("interface", d.Interface)
	v.SetDefault("handshake-timeout", d.HandshakeTimeout)
	v.SetDefault("stall-timeout", d.StallTimeout)
	v.SetDefault("retransmit-threshold", d.RetransmitThreshold)
	v.SetDefault("fragment-mtu", d.FragmentMTU)
	v.SetDefault("max-congestion-window", d.MaxCongestionWindow)
	v.SetDefault("log-level", d.LogLevel)

	v.SetEnvPrefix("TCPFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
