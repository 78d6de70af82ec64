package client

import (
	"os"
	"strconv"
	"strings"
	"time"

	merrors "github.com/mirada-dev/mirada/internal/errors"
	"github.com/mirada-dev/mirada/pkg/protocol"
)

// schedulePingLocked arms the next keepalive ping. Caller holds c.mu.
func (c *Client) schedulePingLocked(epoch int) {
	c.pingTimer = time.AfterFunc(c.cfg.PingInterval, func() {
		c.sendPing(epoch)
	})
}

// sendPing sends one keepalive ping and arms the two response timers:
// the short grace timer flips the cosmetic health flag, the long timeout
// timer fails the connection.
func (c *Client) sendPing(epoch int) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != StateEstablished {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	now := time.Now().UnixMilli()
	c.lastPingSent = now

	c.graceTimer = time.AfterFunc(c.cfg.PingGrace, func() {
		c.mu.Lock()
		if c.epoch != epoch || c.state != StateEstablished || c.lastEcho >= now {
			c.mu.Unlock()
			return
		}
		c.unresponsive = true
		c.mu.Unlock()
		c.logger.Warn("server not responding to pings", "since_ms", time.Now().UnixMilli()-now)
		if c.events.OnResponsive != nil {
			c.events.OnResponsive(false)
		}
	})
	c.timeoutTimer = time.AfterFunc(c.cfg.PingTimeout, func() {
		c.mu.Lock()
		if c.epoch != epoch || c.state != StateEstablished || c.lastEcho >= now {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.failConnection("server ping timeout", merrors.New("E003"))
	})
	c.schedulePingLocked(epoch)
	c.mu.Unlock()

	if err := conn.Send(protocol.NewPing(now)); err != nil {
		c.logger.Debug("ping send failed", "error", err)
	}
}

// handlePingEcho records the round trip and clears the health flag.
func (c *Client) handlePingEcho(p protocol.Packet) {
	e, err := protocol.ParsePingEcho(p)
	if err != nil {
		c.dropPacket(p, err)
		return
	}

	c.mu.Lock()
	c.lastEcho = e.Time
	c.latency = time.Now().UnixMilli() - e.Time
	if c.latency < 0 {
		c.latency = 0
	}
	wasUnresponsive := c.unresponsive
	c.unresponsive = false
	latency := c.latency
	c.mu.Unlock()

	c.metrics.SetServerLatency(latency)
	if wasUnresponsive && c.events.OnResponsive != nil {
		c.events.OnResponsive(true)
	}
}

// handlePing answers the server's own keepalive immediately, echoing its
// timestamp with local load figures.
func (c *Client) handlePing(p protocol.Packet) {
	ping, err := protocol.ParsePing(p)
	if err != nil {
		c.dropPacket(p, err)
		return
	}

	c.mu.Lock()
	conn := c.conn
	latency := c.latency
	c.mu.Unlock()
	if conn == nil {
		return
	}

	l1, l5, l15 := loadAverages()
	echo := protocol.PingEcho{
		Time:    ping.Time,
		Load1:   l1,
		Load5:   l5,
		Load15:  l15,
		Latency: latency,
	}
	if err := conn.Send(echo.Packet()); err != nil {
		c.logger.Debug("ping echo send failed", "error", err)
	}
}

// loadAverages reads the host load averages in thousandths. Zeros when
// the platform does not expose them.
func loadAverages() (int64, int64, int64) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	out := [3]int64{}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return 0, 0, 0
		}
		out[i] = int64(f * 1000)
	}
	return out[0], out[1], out[2]
}
