package client

import (
	"context"
	"time"

	merrors "github.com/mirada-dev/mirada/internal/errors"
)

// failConnection handles an eligible connection failure: reconnect while
// the attempt budget lasts, terminal close otherwise.
func (c *Client) failConnection(reason string, cause error) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Warn("connection failed", "reason", reason, "error", cause)
	if c.cfg.ReconnectAttempts <= 0 {
		c.closeWithError(cause)
		return
	}
	c.scheduleReconnect(reason, cause)
}

// scheduleReconnect tears the current connection down and arms the next
// attempt after the fixed delay.
func (c *Client) scheduleReconnect(reason string, cause error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts > c.cfg.ReconnectAttempts {
		attempts := c.attempts - 1
		c.mu.Unlock()
		c.closeWithError(merrors.New("E086").
			WithDetailf("gave up after %d attempts (last failure: %s)", attempts, reason).
			Wrap(cause))
		return
	}

	c.teardownLocked()
	c.setStateLocked(StateReconnecting)
	c.metrics.RecordReconnect()
	attempt := c.attempts
	epoch := c.epoch
	c.logger.Info("reconnecting", "attempt", attempt, "max", c.cfg.ReconnectAttempts, "delay", c.cfg.ReconnectDelay)

	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		if c.epoch != epoch || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		if err := c.connect(context.Background()); err != nil {
			c.scheduleReconnect("reconnect failed", err)
		}
	})
	c.mu.Unlock()
}

// teardownLocked releases all per-connection state: timers, the session,
// and every window. Bumping the epoch orphans any timer already fired
// but not yet run. Caller holds c.mu.
func (c *Client) teardownLocked() {
	c.epoch++
	for _, t := range []*time.Timer{c.helloTimer, c.pingTimer, c.graceTimer, c.timeoutTimer, c.reconnectTimer} {
		if t != nil {
			t.Stop()
		}
	}
	c.helloTimer, c.pingTimer, c.graceTimer, c.timeoutTimer, c.reconnectTimer = nil, nil, nil, nil, nil

	if c.conn != nil {
		conn := c.conn
		c.conn = nil
		// Close outside the lock: the session may be delivering a packet
		// that wants c.mu.
		go conn.Close()
	}
	if c.windows != nil {
		windows := c.windows
		go windows.Reset()
	}
	c.unresponsive = false
	c.latency = -1
	c.serverVersion = ""
}

// closeWithError moves to the terminal Closed state. err is nil for a
// deliberate user close.
func (c *Client) closeWithError(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.closeErr = err
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("connection closed", "error", err)
	} else {
		c.logger.Info("connection closed")
	}
	close(c.done)
}
