package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	merrors "github.com/mirada-dev/mirada/internal/errors"
	"github.com/mirada-dev/mirada/internal/metrics"
	"github.com/mirada-dev/mirada/pkg/protocol"
	"github.com/mirada-dev/mirada/pkg/session"
)

// ErrClosed is returned by operations on a terminally closed client.
var ErrClosed = errors.New("client: closed")

// WindowHandler receives window lifecycle and paint traffic once the
// connection is Established. Reset is called on every teardown so no
// window state survives into the next connection attempt.
type WindowHandler interface {
	NewWindow(w *protocol.NewWindow)
	LostWindow(wid int64)
	UpdateMetadata(m *protocol.WindowMetadata)
	MoveResize(m *protocol.WindowMoveResize)
	Draw(d *protocol.Draw)
	Eos(wid int64)
	Reset()
}

// Events are optional observer callbacks. All fire on internal
// goroutines and must not block.
type Events struct {
	// OnStateChange fires on every lifecycle transition.
	OnStateChange func(from, to State)

	// OnResponsive fires when the server health flag flips. false is
	// cosmetic: the connection is still up, just slow to echo pings.
	OnResponsive func(responsive bool)

	// OnEvent receives server packets outside the window/paint path:
	// startup-complete, bell, setting-change, clipboard-token and the
	// like.
	OnEvent func(p protocol.Packet)
}

// Client drives one logical server connection through its lifecycle,
// including reconnection across physical connections.
type Client struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	uuid    string
	events  Events
	windows WindowHandler

	mu            sync.Mutex
	state         State
	conn          session.Conn
	epoch         int
	attempts      int
	secure        bool
	cipherInCaps  protocol.CipherCaps
	serverVersion string
	lastPingSent  int64
	lastEcho      int64
	latency       int64
	unresponsive  bool

	helloTimer     *time.Timer
	pingTimer      *time.Timer
	graceTimer     *time.Timer
	timeoutTimer   *time.Timer
	reconnectTimer *time.Timer

	closeErr error
	done     chan struct{}
}

// New creates a client. cfg may be partially filled; zero fields take
// defaults.
func New(cfg *Config, events Events) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		uuid:    newUUID(),
		events:  events,
		state:   StateIdle,
		latency: -1,
		done:    make(chan struct{}),
	}
}

// SetWindowHandler registers the window traffic sink. Must be called
// before Connect.
func (c *Client) SetWindowHandler(h WindowHandler) {
	c.mu.Lock()
	c.windows = h
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerVersion returns the validated server version, or "" before
// Established.
func (c *Client) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// Latency returns the last measured round-trip time in milliseconds, or
// -1 when unmeasured.
func (c *Client) Latency() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// Done is closed when the client reaches its terminal state.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error, or nil after a clean Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Connect starts the first connection attempt. A dial failure is
// returned directly when reconnection is disabled, otherwise it counts
// as the first failed attempt and retries are scheduled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return errors.New("client: already connecting")
	}
	c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		if c.cfg.ReconnectAttempts > 0 {
			c.scheduleReconnect("initial connection failed", err)
			return nil
		}
		c.closeWithError(merrors.FromError(err, "E001"))
		return err
	}
	return nil
}

// Close terminates the client and releases the connection. Safe to call
// more than once.
func (c *Client) Close() error {
	c.closeWithError(nil)
	return nil
}

// setStateLocked transitions the lifecycle state and notifies observers.
// Caller holds c.mu.
func (c *Client) setStateLocked(next State) {
	if c.state == next {
		return
	}
	prev := c.state
	c.state = next
	c.logger.Info("connection state", "from", prev.String(), "to", next.String())
	c.metrics.SetConnectionState(int(next))
	if c.events.OnStateChange != nil {
		go c.events.OnStateChange(prev, next)
	}
}

// connect runs one physical connection attempt up to the hello send.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.setStateLocked(StateConnecting)
	c.epoch++
	epoch := c.epoch
	c.secure = strings.HasPrefix(c.cfg.ServerURI, "wss://")
	conn := c.cfg.NewConn()
	c.conn = conn
	c.lastPingSent = 0
	c.lastEcho = 0
	c.unresponsive = false
	c.mu.Unlock()

	conn.SetPacketHandler(func(p protocol.Packet) { c.onPacket(epoch, p) })
	conn.SetErrorHandler(func(err error) { c.onProtocolFault(epoch, err) })
	conn.SetCloseHandler(func(reason string) { c.onTransportClose(epoch, reason) })

	if err := conn.Open(ctx, c.cfg.ServerURI); err != nil {
		return err
	}

	if c.cfg.Encrypt {
		cc, err := newOutboundCipherCaps()
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.cipherInCaps = cc
		c.mu.Unlock()
	}

	// The hello itself travels in the clear; everything the server sends
	// after reading it is encrypted with our advertised parameters.
	if err := conn.Send(protocol.Packet{protocol.TagHello, c.helloCaps()}); err != nil {
		return err
	}
	if c.cfg.Encrypt {
		if err := conn.SetCipherIn(c.cipherInCaps, c.cfg.secret()); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.state != StateConnecting {
		return nil
	}
	c.setStateLocked(StateWaitingHello)
	c.helloTimer = time.AfterFunc(c.cfg.HelloTimeout, func() {
		if !c.epochAlive(epoch) {
			return
		}
		c.failConnection("hello timeout", merrors.New("E084"))
	})
	return nil
}

// epochAlive reports whether a timer or callback armed under the given
// epoch still belongs to the current connection attempt.
func (c *Client) epochAlive(epoch int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch && c.state != StateClosed
}

// onPacket routes one inbound packet according to the current state.
func (c *Client) onPacket(epoch int, p protocol.Packet) {
	if !c.epochAlive(epoch) {
		return
	}

	switch p.Type() {
	case protocol.TagChallenge:
		c.handleChallenge(epoch, p)
	case protocol.TagHello:
		c.handleServerHello(epoch, p)
	case protocol.TagPing:
		c.handlePing(p)
	case protocol.TagPingEcho:
		c.handlePingEcho(p)
	case protocol.TagDisconnect:
		c.handleDisconnect(p)
	case protocol.TagConnectionLost:
		c.failConnection("server reported connection lost", merrors.New("E002"))
	case protocol.TagDraw, protocol.TagEos,
		protocol.TagNewWindow, protocol.TagNewOverrideRedirect,
		protocol.TagLostWindow, protocol.TagWindowMetadata,
		protocol.TagWindowMoveResize, protocol.TagWindowResized:
		c.handleWindowPacket(p)
	case protocol.TagStartupComplete, protocol.TagBell,
		protocol.TagSettingChange, protocol.TagClipboardToken,
		protocol.TagNotifyShow, protocol.TagNotifyClose,
		protocol.TagRaiseWindow:
		if c.events.OnEvent != nil {
			c.events.OnEvent(p)
		}
	default:
		c.logger.Debug("ignoring unknown packet", "type", p.Type())
	}
}

// handleChallenge answers an authentication challenge by re-sending the
// capability record augmented with the digest response.
func (c *Client) handleChallenge(epoch int, p protocol.Packet) {
	c.mu.Lock()
	if c.state != StateWaitingHello {
		c.mu.Unlock()
		c.logger.Warn("challenge in unexpected state", "state", c.state.String())
		return
	}
	conn := c.conn
	secure := c.secure
	c.setStateLocked(StateAuthenticating)
	c.mu.Unlock()

	ch, err := protocol.ParseChallenge(p)
	if err != nil {
		c.closeWithError(merrors.FromError(err, "E061"))
		return
	}
	if c.cfg.Password == "" {
		c.closeWithError(merrors.New("E085"))
		return
	}
	// The xor response is the password itself under a known mask; never
	// send it where a listener can read it.
	if ch.Digest == "xor" && !secure && !c.cfg.AllowInsecureXOR {
		c.closeWithError(merrors.New("E083").
			WithDetail("server requested the xor response digest over an insecure transport"))
		return
	}

	clientSalt, err := newClientSalt()
	if err != nil {
		c.closeWithError(merrors.FromError(err, "E081"))
		return
	}
	mixed, err := mixSalts(ch.SaltDigest, ch.ServerSalt, clientSalt, secure, c.cfg.AllowInsecureXOR)
	if err != nil {
		c.closeWithError(err)
		return
	}
	response, err := Gendigest(ch.Digest, []byte(c.cfg.Password), mixed)
	if err != nil {
		c.closeWithError(err)
		return
	}

	caps := c.helloCaps()
	caps["challenge_response"] = response
	caps["challenge_client_salt"] = clientSalt
	c.logger.Debug("answering challenge", "digest", ch.Digest, "salt_digest", ch.SaltDigest)
	if err := conn.Send(protocol.Packet{protocol.TagHello, caps}); err != nil {
		c.failConnection("challenge response send failed", err)
	}
}

// handleServerHello validates the server's capability record and moves
// to Established.
func (c *Client) handleServerHello(epoch int, p protocol.Packet) {
	c.mu.Lock()
	if c.state != StateWaitingHello && c.state != StateAuthenticating {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	h, err := protocol.ParseHello(p)
	if err != nil {
		c.closeWithError(merrors.FromError(err, "E061"))
		return
	}

	version, err := checkServerVersion(h.Caps, c.cfg.MinServerVersion)
	if err != nil {
		// Version failures are terminal: a retry cannot change them.
		c.closeWithError(err)
		return
	}

	if !capBool(h.Caps, "windows", true) {
		c.logger.Warn("server does not forward windows; expecting no paint traffic")
	}

	if serverCipher, ok := parseServerCipher(h.Caps); ok {
		if err := conn.SetCipherOut(serverCipher, c.cfg.secret()); err != nil {
			c.closeWithError(merrors.FromError(err, "E040"))
			return
		}
	} else if c.cfg.Encrypt {
		c.closeWithError(merrors.Newf(merrors.CategoryHandshake,
			"encryption requested but the server did not negotiate a cipher"))
		return
	}

	c.mu.Lock()
	if c.epoch != epoch || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	if c.helloTimer != nil {
		c.helloTimer.Stop()
	}
	c.serverVersion = version
	c.attempts = 0
	c.setStateLocked(StateEstablished)
	c.schedulePingLocked(epoch)
	c.mu.Unlock()

	c.logger.Info("connected", "server_version", version, "encrypted", c.cfg.Encrypt)
}

// handleDisconnect processes a server-initiated disconnect. The server
// said goodbye deliberately, so no reconnect is attempted.
func (c *Client) handleDisconnect(p protocol.Packet) {
	d, err := protocol.ParseDisconnect(p)
	if err != nil {
		c.closeWithError(merrors.FromError(err, "E061"))
		return
	}
	c.logger.Info("server disconnected", "reason", d.Reason, "info", strings.Join(d.Info, "; "))
	c.closeWithError(merrors.Newf(merrors.CategoryTransport, "server disconnected: %s", d.Reason))
}

// handleWindowPacket routes window and paint traffic. Only valid once
// Established.
func (c *Client) handleWindowPacket(p protocol.Packet) {
	c.mu.Lock()
	established := c.state == StateEstablished
	windows := c.windows
	c.mu.Unlock()
	if !established {
		c.logger.Warn("window packet before established", "type", p.Type())
		return
	}
	if windows == nil {
		return
	}

	switch p.Type() {
	case protocol.TagDraw:
		d, err := protocol.ParseDraw(p)
		if err != nil {
			c.dropPacket(p, err)
			return
		}
		windows.Draw(d)
	case protocol.TagEos:
		e, err := protocol.ParseEos(p)
		if err != nil {
			c.dropPacket(p, err)
			return
		}
		windows.Eos(e.WID)
	case protocol.TagNewWindow, protocol.TagNewOverrideRedirect:
		w, err := protocol.ParseNewWindow(p)
		if err != nil {
			c.dropPacket(p, err)
			return
		}
		windows.NewWindow(w)
	case protocol.TagLostWindow:
		l, err := protocol.ParseLostWindow(p)
		if err != nil {
			c.dropPacket(p, err)
			return
		}
		windows.LostWindow(l.WID)
	case protocol.TagWindowMetadata:
		m, err := protocol.ParseWindowMetadata(p)
		if err != nil {
			c.dropPacket(p, err)
			return
		}
		windows.UpdateMetadata(m)
	case protocol.TagWindowMoveResize, protocol.TagWindowResized:
		m, err := protocol.ParseWindowMoveResize(p)
		if err != nil {
			c.dropPacket(p, err)
			return
		}
		windows.MoveResize(m)
	}
}

// dropPacket logs a packet that parsed as a list but failed field
// validation. Scoped to the one packet; the connection stays up.
func (c *Client) dropPacket(p protocol.Packet, err error) {
	c.metrics.RecordPacketError()
	c.logger.Warn("dropping malformed packet", "type", p.Type(), "error", err)
}

// Send queues a packet on the current connection.
func (c *Client) Send(p protocol.Packet) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.state == StateClosed
	c.mu.Unlock()
	if closed || conn == nil {
		return ErrClosed
	}
	return conn.Send(p)
}

// onProtocolFault handles a fatal fault from the session layer (framing,
// cipher or decompression). The stream cannot be resynchronized, so the
// connection fails; the reconnect policy decides what happens next.
func (c *Client) onProtocolFault(epoch int, err error) {
	if !c.epochAlive(epoch) {
		return
	}
	c.failConnection("protocol fault", err)
}

// onTransportClose handles the transport dropping underneath us.
func (c *Client) onTransportClose(epoch int, reason string) {
	if !c.epochAlive(epoch) {
		return
	}
	c.failConnection(reason, merrors.New("E002"))
}
