package client

import (
	"log/slog"
	"time"

	"github.com/mirada-dev/mirada/internal/metrics"
	"github.com/mirada-dev/mirada/pkg/session"
)

// Version is the client version reported in the capability record.
const Version = "0.9.0"

// Config holds everything the connection state machine needs. The zero
// value is not usable; start from DefaultConfig.
type Config struct {
	// ServerURI is the ws:// or wss:// endpoint to connect to.
	ServerURI string

	// Username and Password feed challenge authentication. An empty
	// password makes any server challenge fatal.
	Username string
	Password string

	// SessionName is a human-readable label sent in the capability record.
	SessionName string

	// MinServerVersion is the lowest server version accepted during hello
	// validation. Default: "4.0".
	MinServerVersion string

	// Encrypt enables packet encryption: the client generates its own IV
	// and key salt, advertises them in the capability record, and expects
	// the server to do the same for the opposite direction.
	Encrypt bool

	// EncryptionKey is the shared secret keys are derived from. Falls
	// back to Password when empty.
	EncryptionKey string

	// AllowInsecureXOR permits the xor salt digest over a transport
	// without TLS. The digest leaks password material to anyone who can
	// read the connection, so this is off by default.
	AllowInsecureXOR bool

	// HelloTimeout bounds the capability exchange. Default: 20s.
	HelloTimeout time.Duration

	// PingInterval is the keepalive send period. Default: 5s.
	PingInterval time.Duration

	// PingGrace is how long after a ping the connection is flagged as
	// unresponsive (cosmetic, non-fatal). Default: 4s.
	PingGrace time.Duration

	// PingTimeout is how long after a ping a missing echo tears the
	// connection down. Default: 60s.
	PingTimeout time.Duration

	// ReconnectAttempts bounds consecutive reconnection attempts; zero
	// disables reconnection. The counter resets only on reaching
	// Established. Default: 10.
	ReconnectAttempts int

	// ReconnectDelay is the fixed wait between attempts. Default: 2s.
	ReconnectDelay time.Duration

	// Session overrides the per-session tunables (queue depth,
	// compressor). May be nil.
	Session *session.Config

	// Logger receives client diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives instrumentation. May be nil.
	Metrics *metrics.Metrics

	// NewConn builds the protocol session for one connection attempt.
	// Defaults to a WebSocket-backed session; tests substitute fakes.
	NewConn func() session.Conn
}

// DefaultConfig returns a Config with every tunable at its default.
func DefaultConfig() *Config {
	return &Config{
		MinServerVersion:  "4.0",
		HelloTimeout:      20 * time.Second,
		PingInterval:      5 * time.Second,
		PingGrace:         4 * time.Second,
		PingTimeout:       60 * time.Second,
		ReconnectAttempts: 10,
		ReconnectDelay:    2 * time.Second,
		Logger:            slog.Default(),
	}
}

// withDefaults fills any zero fields in place and returns the config.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	if c.MinServerVersion == "" {
		c.MinServerVersion = "4.0"
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = 20 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 5 * time.Second
	}
	if c.PingGrace <= 0 {
		c.PingGrace = 4 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 60 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewConn == nil {
		c.NewConn = func() session.Conn {
			sessCfg := c.Session
			if sessCfg == nil {
				sessCfg = session.DefaultConfig()
				sessCfg.Logger = c.Logger
				sessCfg.Metrics = c.Metrics
			}
			return session.New(&session.WebSocketTransport{}, sessCfg)
		}
	}
	return c
}

// secret returns the encryption secret, falling back to the password.
func (c *Config) secret() string {
	if c.EncryptionKey != "" {
		return c.EncryptionKey
	}
	return c.Password
}
