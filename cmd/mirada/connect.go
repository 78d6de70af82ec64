package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mirada-dev/mirada/internal/config"
	merrors "github.com/mirada-dev/mirada/internal/errors"
	"github.com/mirada-dev/mirada/internal/metrics"
	"github.com/mirada-dev/mirada/pkg/client"
	"github.com/mirada-dev/mirada/pkg/paint"
	"github.com/mirada-dev/mirada/pkg/protocol"
)

func connectCmd() *cobra.Command {
	var (
		configPath  string
		server      string
		username    string
		sessionName string
		encrypt     bool
		insecureXOR bool
		serveStats  bool
		statsAddr   string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "connect [server]",
		Short: "Connect to a display server",
		Long: `Connect to a display server and stay attached until the session
ends or the connection is torn down.

The server address comes from the command line or from mirada.json.
Credentials come from mirada.json or from the MIRADA_PASSWORD and
MIRADA_ENCRYPTION_KEY environment variables; they are never taken as
flags so they stay out of the process list.

Examples:
  mirada connect wss://example.com:14500/
  mirada connect --config=session.json
  mirada connect ws://localhost:14500/ --metrics`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				server = args[0]
			}
			return runConnect(connectOptions{
				configPath:  configPath,
				server:      server,
				username:    username,
				sessionName: sessionName,
				encrypt:     encrypt,
				insecureXOR: insecureXOR,
				serveStats:  serveStats,
				statsAddr:   statsAddr,
				verbose:     verbose,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a mirada.json (default ./mirada.json when present)")
	cmd.Flags().StringVarP(&server, "server", "s", "", "Server address (ws:// or wss://)")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username for challenge authentication")
	cmd.Flags().StringVar(&sessionName, "session-name", "", "Session label sent to the server")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt the packet stream")
	cmd.Flags().BoolVar(&insecureXOR, "allow-insecure-xor", false, "Permit the xor salt digest without TLS")
	cmd.Flags().BoolVar(&serveStats, "metrics", false, "Serve Prometheus metrics")
	cmd.Flags().StringVar(&statsAddr, "metrics-addr", "", "Metrics listen address (default from mirada.json)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	return cmd
}

type connectOptions struct {
	configPath  string
	server      string
	username    string
	sessionName string
	encrypt     bool
	insecureXOR bool
	serveStats  bool
	statsAddr   string
	verbose     bool
}

func runConnect(opts connectOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	// Command-line overrides.
	if opts.server != "" {
		cfg.Connection.URI = opts.server
	}
	if opts.username != "" {
		cfg.Connection.Username = opts.username
	}
	if opts.sessionName != "" {
		cfg.Connection.SessionName = opts.sessionName
	}
	if opts.encrypt {
		cfg.Encryption.Enabled = true
	}
	if opts.insecureXOR {
		cfg.Encryption.AllowInsecureXOR = true
	}
	if opts.serveStats {
		cfg.Metrics.Enabled = true
	}
	if opts.statsAddr != "" {
		cfg.Metrics.Addr = opts.statsAddr
	}
	if pw := os.Getenv("MIRADA_PASSWORD"); pw != "" {
		cfg.Connection.Password = pw
	}
	if key := os.Getenv("MIRADA_ENCRYPTION_KEY"); key != "" {
		cfg.Encryption.Key = key
	}

	if cfg.Connection.URI == "" {
		return merrors.New("E140").
			WithDetail("No server address given").
			WithSuggestion("Pass one on the command line or set connection.uri in mirada.json")
	}
	if !strings.HasPrefix(cfg.Connection.URI, "ws://") && !strings.HasPrefix(cfg.Connection.URI, "wss://") {
		return merrors.New("E140").
			WithDetail("Got " + cfg.Connection.URI)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("", nil)
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr, nil, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		info("Metrics on %s/metrics", cfg.Metrics.Addr)
	}

	c := client.New(clientConfig(cfg, logger, m), client.Events{
		OnStateChange: func(from, to client.State) {
			logger.Info("connection state", "from", from, "to", to)
		},
		OnResponsive: func(responsive bool) {
			if responsive {
				info("Server is responsive again")
			} else {
				warn("Server is not responding to pings")
			}
		},
		OnEvent: func(p protocol.Packet) {
			logger.Debug("server event", "type", p.Type())
		},
	})

	pipe := paint.NewPipeline(&paint.Config{
		Ack: func(ds *protocol.DamageSequence) {
			if err := c.Send(ds.Packet()); err != nil {
				logger.Debug("ack dropped", "seq", ds.Sequence, "error", err)
			}
		},
		Staleness: config.Duration(cfg.Paint.Staleness),
		Logger:    logger,
		Metrics:   m,
	})
	c.SetWindowHandler(pipe)

	printBanner()
	info("Connecting to %s", cfg.Connection.URI)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		info("Shutting down...")
		c.Close()
	}()

	if err := c.Connect(context.Background()); err != nil {
		return err
	}

	<-c.Done()
	return c.Err()
}

// loadConfig resolves the configuration file. An explicit --config path
// must exist; the implicit ./mirada.json may be absent.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load(".")
	if err != nil {
		var me *merrors.MiradaError
		if stderrors.As(err, &me) && me.Code == "E141" {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// clientConfig maps the file configuration onto the client's tunables.
func clientConfig(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *client.Config {
	return &client.Config{
		ServerURI:         cfg.Connection.URI,
		Username:          cfg.Connection.Username,
		Password:          cfg.Connection.Password,
		SessionName:       cfg.Connection.SessionName,
		MinServerVersion:  cfg.Connection.MinServerVersion,
		HelloTimeout:      config.Duration(cfg.Connection.HelloTimeout),
		Encrypt:           cfg.Encryption.Enabled,
		EncryptionKey:     cfg.Encryption.Key,
		AllowInsecureXOR:  cfg.Encryption.AllowInsecureXOR,
		PingInterval:      config.Duration(cfg.Keepalive.Interval),
		PingGrace:         config.Duration(cfg.Keepalive.Grace),
		PingTimeout:       config.Duration(cfg.Keepalive.Timeout),
		ReconnectAttempts: cfg.Reconnect.Attempts,
		ReconnectDelay:    config.Duration(cfg.Reconnect.Delay),
		Logger:            logger,
		Metrics:           m,
	}
}
