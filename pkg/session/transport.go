package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TransportEvents are the callbacks a transport raises into the session.
// All callbacks are invoked from the transport's read goroutine.
type TransportEvents struct {
	// OnData delivers one chunk of received bytes. Chunk boundaries carry
	// no meaning; the frame codec reassembles across them.
	OnData func([]byte)

	// OnError reports a transport fault. OnClose always follows.
	OnError func(error)

	// OnClose reports that the transport is gone, with a reason string.
	OnClose func(reason string)
}

// Transport is a reliable, ordered, binary-capable byte stream. The
// session requires nothing else of it.
type Transport interface {
	// Open connects to the endpoint and starts delivering events.
	Open(ctx context.Context, uri string, ev TransportEvents) error

	// Send writes bytes to the peer. Safe for use from one goroutine at a
	// time (the session's write loop).
	Send(data []byte) error

	// Close tears the connection down. OnClose fires if the transport was
	// open.
	Close() error
}

// ErrTransportClosed is returned by Send after the transport closed.
var ErrTransportClosed = errors.New("session: transport closed")

// wsWriteTimeout bounds a single websocket write.
const wsWriteTimeout = 10 * time.Second

// WebSocketTransport binds the session to a WebSocket endpoint using
// binary messages. The zero value is ready to use.
type WebSocketTransport struct {
	// Dialer overrides the websocket dialer, e.g. for TLS configuration.
	Dialer *websocket.Dialer

	// Header is sent with the upgrade request.
	Header http.Header

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Open implements Transport.
func (t *WebSocketTransport) Open(ctx context.Context, uri string, ev TransportEvents) error {
	dialer := t.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			Subprotocols:     []string{"binary"},
		}
	}

	conn, resp, err := dialer.DialContext(ctx, uri, t.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("session: websocket dial %s: %w (http %d)", uri, err, resp.StatusCode)
		}
		return fmt.Errorf("session: websocket dial %s: %w", uri, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.mu.Unlock()

	go t.readPump(conn, ev)
	return nil
}

// readPump delivers received messages until the connection dies.
func (t *WebSocketTransport) readPump(conn *websocket.Conn, ev TransportEvents) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			reason := "connection closed"
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				reason = err.Error()
				if ev.OnError != nil {
					ev.OnError(err)
				}
			}
			if ev.OnClose != nil {
				ev.OnClose(reason)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if ev.OnData != nil {
			ev.OnData(data)
		}
	}
}

// Send implements Transport.
func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()

	if conn == nil || closed {
		return ErrTransportClosed
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("session: websocket write: %w", err)
	}
	return nil
}

// Close implements Transport.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.closed = true
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}
