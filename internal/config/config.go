package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mirada-dev/mirada/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "mirada.json"

	// DefaultMinServerVersion is the lowest server version accepted
	// during hello validation.
	DefaultMinServerVersion = "4.0"

	// DefaultMetricsAddr is the default metrics listen address.
	DefaultMetricsAddr = ":9090"

	// DefaultPingInterval is the default keepalive send period.
	DefaultPingInterval = "5s"

	// DefaultPingGrace is the default unresponsive-flag delay.
	DefaultPingGrace = "4s"

	// DefaultPingTimeout is the default keepalive teardown delay.
	DefaultPingTimeout = "60s"

	// DefaultReconnectAttempts bounds consecutive reconnection attempts.
	DefaultReconnectAttempts = 10

	// DefaultReconnectDelay is the default wait between attempts.
	DefaultReconnectDelay = "2s"

	// DefaultPaintStaleness is the default wedged-decode threshold.
	DefaultPaintStaleness = "5s"
)

// Config represents the complete mirada.json configuration.
type Config struct {
	// Connection contains the server endpoint and credentials.
	Connection ConnectionConfig `json:"connection,omitempty"`

	// Encryption contains packet encryption settings.
	Encryption EncryptionConfig `json:"encryption,omitempty"`

	// Keepalive contains ping scheduling settings.
	Keepalive KeepaliveConfig `json:"keepalive,omitempty"`

	// Reconnect contains automatic reconnection settings.
	Reconnect ReconnectConfig `json:"reconnect,omitempty"`

	// Paint contains paint pipeline settings.
	Paint PaintConfig `json:"paint,omitempty"`

	// Metrics contains the Prometheus endpoint settings.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ConnectionConfig contains the server endpoint and credentials.
type ConnectionConfig struct {
	// URI is the ws:// or wss:// endpoint to connect to.
	URI string `json:"uri,omitempty"`

	// Username is sent in the capability record and used during
	// challenge authentication.
	Username string `json:"username,omitempty"`

	// Password answers server challenges. Leaving it empty makes any
	// challenge fatal.
	Password string `json:"password,omitempty"`

	// SessionName is a human-readable label sent in the capability record.
	SessionName string `json:"sessionName,omitempty"`

	// MinServerVersion is the lowest server version accepted.
	MinServerVersion string `json:"minServerVersion,omitempty"`

	// HelloTimeout bounds the capability exchange (e.g. "20s").
	HelloTimeout string `json:"helloTimeout,omitempty"`
}

// EncryptionConfig contains packet encryption settings.
type EncryptionConfig struct {
	// Enabled turns on AES encryption of the packet stream.
	Enabled bool `json:"enabled,omitempty"`

	// Key is the shared secret keys are derived from. Falls back to the
	// connection password when empty.
	Key string `json:"key,omitempty"`

	// AllowInsecureXOR permits the xor salt digest over a transport
	// without TLS.
	AllowInsecureXOR bool `json:"allowInsecureXor,omitempty"`
}

// KeepaliveConfig contains ping scheduling settings. Durations are
// strings in time.ParseDuration syntax.
type KeepaliveConfig struct {
	// Interval is the keepalive send period.
	Interval string `json:"interval,omitempty"`

	// Grace is how long after a ping the connection is flagged as
	// unresponsive.
	Grace string `json:"grace,omitempty"`

	// Timeout is how long after a ping a missing echo tears the
	// connection down.
	Timeout string `json:"timeout,omitempty"`
}

// ReconnectConfig contains automatic reconnection settings.
type ReconnectConfig struct {
	// Attempts bounds consecutive reconnection attempts. Zero disables
	// reconnection; set "attempts": -1 explicitly for the default.
	Attempts int `json:"attempts,omitempty"`

	// Delay is the wait between attempts.
	Delay string `json:"delay,omitempty"`
}

// PaintConfig contains paint pipeline settings.
type PaintConfig struct {
	// Staleness is the wedged-decode threshold.
	Staleness string `json:"staleness,omitempty"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	// Enabled turns on the /metrics HTTP endpoint.
	Enabled bool `json:"enabled,omitempty"`

	// Addr is the listen address for the metrics server.
	Addr string `json:"addr,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Connection: ConnectionConfig{
			MinServerVersion: DefaultMinServerVersion,
			HelloTimeout:     "20s",
		},
		Keepalive: KeepaliveConfig{
			Interval: DefaultPingInterval,
			Grace:    DefaultPingGrace,
			Timeout:  DefaultPingTimeout,
		},
		Reconnect: ReconnectConfig{
			Attempts: DefaultReconnectAttempts,
			Delay:    DefaultReconnectDelay,
		},
		Paint: PaintConfig{
			Staleness: DefaultPaintStaleness,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for mirada.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No " + ConfigFileName + " found at " + path).
				WithSuggestion("Create " + ConfigFileName + " or pass the server address on the command line")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Connection.MinServerVersion == "" {
		c.Connection.MinServerVersion = DefaultMinServerVersion
	}
	if c.Connection.HelloTimeout == "" {
		c.Connection.HelloTimeout = "20s"
	}
	if c.Keepalive.Interval == "" {
		c.Keepalive.Interval = DefaultPingInterval
	}
	if c.Keepalive.Grace == "" {
		c.Keepalive.Grace = DefaultPingGrace
	}
	if c.Keepalive.Timeout == "" {
		c.Keepalive.Timeout = DefaultPingTimeout
	}
	if c.Reconnect.Delay == "" {
		c.Reconnect.Delay = DefaultReconnectDelay
	}
	if c.Paint.Staleness == "" {
		c.Paint.Staleness = DefaultPaintStaleness
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	// A negative attempt count means "use the default"; json omitempty
	// cannot tell an explicit zero from an absent field, so zero keeps
	// its disable meaning only when written explicitly.
	if c.Reconnect.Attempts < 0 {
		c.Reconnect.Attempts = DefaultReconnectAttempts
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Connection.URI != "" {
		if !strings.HasPrefix(c.Connection.URI, "ws://") && !strings.HasPrefix(c.Connection.URI, "wss://") {
			return errors.New("E122").
				WithDetail("connection.uri must start with ws:// or wss://, got " + c.Connection.URI)
		}
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"connection.helloTimeout", c.Connection.HelloTimeout},
		{"keepalive.interval", c.Keepalive.Interval},
		{"keepalive.grace", c.Keepalive.Grace},
		{"keepalive.timeout", c.Keepalive.Timeout},
		{"reconnect.delay", c.Reconnect.Delay},
		{"paint.staleness", c.Paint.Staleness},
	} {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return errors.New("E122").
				WithDetail(d.name + " is not a valid duration: " + d.value).
				WithSuggestion(`Use time.ParseDuration syntax, e.g. "5s" or "1m30s"`)
		}
		if parsed <= 0 {
			return errors.New("E122").
				WithDetail(d.name + " must be positive, got " + d.value)
		}
	}
	if c.Encryption.Enabled && c.Encryption.Key == "" && c.Connection.Password == "" {
		return errors.New("E121").
			WithDetail("encryption.enabled is set but neither encryption.key nor connection.password is").
			WithSuggestion("Set encryption.key, or a connection.password to derive keys from")
	}
	return nil
}

// Duration parses one of the config's duration strings. Call only
// after Validate has accepted the config.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
