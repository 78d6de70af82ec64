package session

import (
	"log/slog"

	"github.com/mirada-dev/mirada/internal/metrics"
	"github.com/mirada-dev/mirada/pkg/protocol"
)

// Config holds per-session tunables.
type Config struct {
	// SendQueueSize is the outbound packet queue depth. Send blocks once
	// the queue is full, providing natural backpressure.
	// Default: 128.
	SendQueueSize int

	// Compressor transforms outbound packets. Default: no compression,
	// matching the reference sender.
	Compressor protocol.Compressor

	// Logger receives session diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives instrumentation. May be nil.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SendQueueSize: 128,
		Compressor:    protocol.NoCompression{},
		Logger:        slog.Default(),
	}
}

// withDefaults fills any zero fields in place and returns the config.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 128
	}
	if c.Compressor == nil {
		c.Compressor = protocol.NoCompression{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
