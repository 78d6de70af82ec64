package session

import (
	"context"

	"github.com/mirada-dev/mirada/pkg/protocol"
)

// Actor runs a Session behind a typed command channel on its own
// goroutine. No shared mutable state crosses the boundary except via the
// command messages, mirroring a worker/background deployment; the surface
// is identical to the in-process Session.
type Actor struct {
	inner *Session
	cmds  chan command
	done  chan struct{}
}

// command is the closed set of messages the actor loop understands.
type command interface{ isCommand() }

type cmdOpen struct {
	ctx   context.Context
	uri   string
	reply chan error
}

type cmdSend struct {
	packet protocol.Packet
	reply  chan error
}

type cmdSetCipher struct {
	inbound bool
	caps    protocol.CipherCaps
	secret  string
	reply   chan error
}

type cmdSetHandler struct {
	handler Handler
	reply   chan struct{}
}

type cmdSetErrorHandler struct {
	handler func(error)
	reply   chan struct{}
}

type cmdSetCloseHandler struct {
	handler func(string)
	reply   chan struct{}
}

type cmdClose struct {
	reply chan error
}

func (cmdOpen) isCommand()            {}
func (cmdSend) isCommand()            {}
func (cmdSetCipher) isCommand()       {}
func (cmdSetHandler) isCommand()      {}
func (cmdSetErrorHandler) isCommand() {}
func (cmdSetCloseHandler) isCommand() {}
func (cmdClose) isCommand()           {}

// NewActor wraps a transport in a session driven by a command loop.
func NewActor(t Transport, cfg *Config) *Actor {
	a := &Actor{
		inner: New(t, cfg),
		cmds:  make(chan command, 16),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// run executes commands sequentially until Close.
func (a *Actor) run() {
	for cmd := range a.cmds {
		switch c := cmd.(type) {
		case cmdOpen:
			c.reply <- a.inner.Open(c.ctx, c.uri)
		case cmdSend:
			c.reply <- a.inner.Send(c.packet)
		case cmdSetCipher:
			if c.inbound {
				c.reply <- a.inner.SetCipherIn(c.caps, c.secret)
			} else {
				c.reply <- a.inner.SetCipherOut(c.caps, c.secret)
			}
		case cmdSetHandler:
			a.inner.SetPacketHandler(c.handler)
			close(c.reply)
		case cmdSetErrorHandler:
			a.inner.SetErrorHandler(c.handler)
			close(c.reply)
		case cmdSetCloseHandler:
			a.inner.SetCloseHandler(c.handler)
			close(c.reply)
		case cmdClose:
			c.reply <- a.inner.Close()
			close(a.done)
			return
		}
	}
}

// submit sends a command unless the actor already shut down.
func (a *Actor) submit(cmd command) bool {
	select {
	case <-a.done:
		return false
	case a.cmds <- cmd:
		return true
	}
}

// Open implements Conn.
func (a *Actor) Open(ctx context.Context, uri string) error {
	reply := make(chan error, 1)
	if !a.submit(cmdOpen{ctx: ctx, uri: uri, reply: reply}) {
		return ErrSessionClosed
	}
	return <-reply
}

// Send implements Conn.
func (a *Actor) Send(p protocol.Packet) error {
	reply := make(chan error, 1)
	if !a.submit(cmdSend{packet: p, reply: reply}) {
		return ErrSessionClosed
	}
	return <-reply
}

// SetPacketHandler implements Conn.
func (a *Actor) SetPacketHandler(h Handler) {
	reply := make(chan struct{})
	if a.submit(cmdSetHandler{handler: h, reply: reply}) {
		<-reply
	}
}

// SetErrorHandler implements Conn.
func (a *Actor) SetErrorHandler(h func(error)) {
	reply := make(chan struct{})
	if a.submit(cmdSetErrorHandler{handler: h, reply: reply}) {
		<-reply
	}
}

// SetCloseHandler implements Conn.
func (a *Actor) SetCloseHandler(h func(reason string)) {
	reply := make(chan struct{})
	if a.submit(cmdSetCloseHandler{handler: h, reply: reply}) {
		<-reply
	}
}

// SetCipherIn implements Conn.
func (a *Actor) SetCipherIn(caps protocol.CipherCaps, secret string) error {
	reply := make(chan error, 1)
	if !a.submit(cmdSetCipher{inbound: true, caps: caps, secret: secret, reply: reply}) {
		return ErrSessionClosed
	}
	return <-reply
}

// SetCipherOut implements Conn.
func (a *Actor) SetCipherOut(caps protocol.CipherCaps, secret string) error {
	reply := make(chan error, 1)
	if !a.submit(cmdSetCipher{inbound: false, caps: caps, secret: secret, reply: reply}) {
		return ErrSessionClosed
	}
	return <-reply
}

// Close implements Conn.
func (a *Actor) Close() error {
	reply := make(chan error, 1)
	if !a.submit(cmdClose{reply: reply}) {
		return nil
	}
	return <-reply
}

// compile-time interface checks
var (
	_ Conn = (*Session)(nil)
	_ Conn = (*Actor)(nil)
)
