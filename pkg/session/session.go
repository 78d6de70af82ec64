package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mirada-dev/mirada/pkg/protocol"
)

// Session errors.
var (
	ErrSessionClosed   = errors.New("session: closed")
	ErrAlreadyOpen     = errors.New("session: already open")
	ErrPlaintextFrame  = errors.New("session: unencrypted frame on an encrypted connection")
	ErrRawWithoutSlot  = errors.New("session: raw subpacket index beyond packet length")
)

// Handler receives every decoded inbound packet. It runs on the session's
// receive goroutine; long work must be handed off.
type Handler func(protocol.Packet)

// Conn is the caller-facing session surface. Both the in-process Session
// and the Actor message-passing facade satisfy it; callers must not need
// to know which they hold.
type Conn interface {
	Open(ctx context.Context, uri string) error
	Send(p protocol.Packet) error
	SetPacketHandler(h Handler)
	SetErrorHandler(h func(error))
	SetCloseHandler(h func(reason string))
	SetCipherIn(caps protocol.CipherCaps, secret string) error
	SetCipherOut(caps protocol.CipherCaps, secret string) error
	Close() error
}

// Session is the protocol session: receive accumulator, raw-subpacket
// side table, send queue, and the glue between frame codec, compression,
// cipher and serializer.
type Session struct {
	cfg    *Config
	logger *slog.Logger

	transport Transport
	reader    *protocol.FrameReader

	mu        sync.Mutex
	cipherIn  *protocol.CipherState
	cipherOut *protocol.CipherState
	raw       map[int][]byte
	handler   Handler
	onError   func(error)
	onClose   func(string)

	sendCh chan protocol.Packet
	done   chan struct{}
	opened atomic.Bool
	closed atomic.Bool
}

// New creates a session over the given transport. cfg may be nil for
// defaults.
func New(t Transport, cfg *Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:       cfg,
		logger:    cfg.Logger,
		transport: t,
		raw:       make(map[int][]byte),
		sendCh:    make(chan protocol.Packet, cfg.SendQueueSize),
		done:      make(chan struct{}),
	}
	s.reader = protocol.NewFrameReader(s.inBlockSize)
	return s
}

// inBlockSize reports the negotiated inbound cipher block size for the
// frame reader.
func (s *Session) inBlockSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cipherIn == nil {
		return 0
	}
	return s.cipherIn.BlockSize()
}

// SetPacketHandler registers the inbound packet handler.
func (s *Session) SetPacketHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// SetErrorHandler registers the fatal-error handler. Fatal errors (frame,
// cipher or decompression faults) close the session after the handler
// runs.
func (s *Session) SetErrorHandler(h func(error)) {
	s.mu.Lock()
	s.onError = h
	s.mu.Unlock()
}

// SetCloseHandler registers the transport-close handler.
func (s *Session) SetCloseHandler(h func(reason string)) {
	s.mu.Lock()
	s.onClose = h
	s.mu.Unlock()
}

// SetCipherIn arms decryption for inbound frames. Set once during
// capability negotiation; never renegotiated mid-connection.
func (s *Session) SetCipherIn(caps protocol.CipherCaps, secret string) error {
	state, err := protocol.NewCipherState(caps, secret, false)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cipherIn = state
	s.mu.Unlock()
	return nil
}

// SetCipherOut arms encryption for outbound frames.
func (s *Session) SetCipherOut(caps protocol.CipherCaps, secret string) error {
	state, err := protocol.NewCipherState(caps, secret, true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cipherOut = state
	s.mu.Unlock()
	return nil
}

// Open connects the transport and starts the send loop.
func (s *Session) Open(ctx context.Context, uri string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.opened.CompareAndSwap(false, true) {
		return ErrAlreadyOpen
	}

	ev := TransportEvents{
		OnData: s.onData,
		OnError: func(err error) {
			s.logger.Debug("transport error", "error", err)
		},
		OnClose: func(reason string) {
			s.mu.Lock()
			h := s.onClose
			s.mu.Unlock()
			if h != nil {
				h(reason)
			}
		},
	}
	if err := s.transport.Open(ctx, uri, ev); err != nil {
		s.opened.Store(false)
		return err
	}

	go s.writeLoop()
	return nil
}

// Send queues a packet for transmission and returns immediately. Packets
// are written in FIFO order by the session's write loop.
func (s *Session) Send(p protocol.Packet) error {
	if err := p.Validate(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.sendCh <- p:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Close tears down the session and its transport. Safe to call more than
// once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	return s.transport.Close()
}

// fatal reports an unrecoverable protocol fault and closes the session.
func (s *Session) fatal(err error) {
	s.logger.Error("fatal protocol error", "error", err)
	s.mu.Lock()
	h := s.onError
	s.mu.Unlock()
	if h != nil {
		h(err)
	}
	_ = s.Close()
}

// writeLoop drains the send queue onto the transport, preserving FIFO
// order. It owns the outbound cipher state: CBC chaining requires writes
// to happen in queue order.
func (s *Session) writeLoop() {
	for {
		select {
		case p := <-s.sendCh:
			if err := s.writePacket(p); err != nil {
				s.fatal(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// writePacket encodes, compresses, encrypts and frames one packet.
func (s *Session) writePacket(p protocol.Packet) error {
	payload, err := protocol.Encode(p)
	if err != nil {
		return fmt.Errorf("session: encode %q: %w", p.Type(), err)
	}

	level, payload, err := s.cfg.Compressor.Compress(payload)
	if err != nil {
		return fmt.Errorf("session: compress %q: %w", p.Type(), err)
	}

	var flags protocol.ProtoFlags
	declared := len(payload)

	s.mu.Lock()
	cout := s.cipherOut
	s.mu.Unlock()
	if cout != nil {
		padded := protocol.Pad(payload, cout.BlockSize())
		payload, err = cout.Update(padded)
		if err != nil {
			return fmt.Errorf("session: encrypt %q: %w", p.Type(), err)
		}
		flags |= protocol.FlagCipher
	}

	frame := append(protocol.PackHeader(flags, level, 0, declared), payload...)
	if err := s.transport.Send(frame); err != nil {
		return err
	}

	s.cfg.Metrics.RecordPacketOut(p.Type())
	s.cfg.Metrics.RecordBytesOut(len(frame))
	return nil
}

// onData feeds received bytes through the frame codec and processes every
// completed frame. Runs on the transport's read goroutine.
func (s *Session) onData(data []byte) {
	s.cfg.Metrics.RecordBytesIn(len(data))

	frames, err := s.reader.Feed(data)
	if err != nil {
		s.fatal(err)
		return
	}
	for i := range frames {
		s.cfg.Metrics.RecordFrame()
		if err := s.processFrame(&frames[i]); err != nil {
			s.fatal(err)
			return
		}
	}
}

// processFrame undoes cipher and compression, then either stores a raw
// subpacket or decodes and dispatches the primary packet.
func (s *Session) processFrame(f *protocol.Frame) error {
	data := f.Payload
	hdr := f.Header

	s.mu.Lock()
	cin := s.cipherIn
	s.mu.Unlock()

	if hdr.Flags.Has(protocol.FlagCipher) {
		if cin == nil {
			return protocol.ErrCipherMissing
		}
		plain, err := cin.Update(data)
		if err != nil {
			return err
		}
		if data, err = protocol.Unpad(plain, hdr.Size); err != nil {
			return err
		}
	} else if cin != nil {
		// Once encryption is negotiated every frame must carry it.
		return ErrPlaintextFrame
	}

	if hdr.Level != 0 {
		var err error
		if data, err = protocol.Decompress(hdr.Level, data); err != nil {
			return err
		}
	}

	if hdr.Index > 0 {
		s.storeRaw(hdr.Index, data)
		return nil
	}
	s.dispatchPrimary(data)
	return nil
}

// storeRaw records an out-of-band binary payload until its primary packet
// arrives.
func (s *Session) storeRaw(index int, data []byte) {
	s.mu.Lock()
	s.raw[index] = data
	s.mu.Unlock()
}

// dispatchPrimary decodes the primary packet, splices buffered raw
// subpackets into their positions, clears the table and hands the packet
// to the registered handler. A malformed payload drops only that packet:
// framing already guarantees the byte stream is still synchronized.
func (s *Session) dispatchPrimary(data []byte) {
	// The table never outlives one assembly cycle, even when decoding
	// fails; a peer that never completes a cycle cannot grow it past
	// MaxRawIndex entries.
	s.mu.Lock()
	raw := s.raw
	s.raw = make(map[int][]byte)
	handler := s.handler
	s.mu.Unlock()

	value, err := protocol.Decode(data)
	if err != nil {
		s.cfg.Metrics.RecordPacketError()
		s.logger.Warn("dropping malformed packet", "error", err, "bytes", len(data))
		return
	}
	list, ok := value.([]any)
	if !ok {
		s.cfg.Metrics.RecordPacketError()
		s.logger.Warn("dropping non-list packet", "type", fmt.Sprintf("%T", value))
		return
	}
	packet := protocol.Packet(list)

	for index, payload := range raw {
		if index >= len(packet) {
			s.cfg.Metrics.RecordPacketError()
			s.logger.Warn("dropping raw subpacket", "index", index, "fields", len(packet), "error", ErrRawWithoutSlot)
			continue
		}
		packet[index] = payload
	}

	if err := packet.Validate(); err != nil {
		s.cfg.Metrics.RecordPacketError()
		s.logger.Warn("dropping malformed packet", "error", err)
		return
	}

	s.cfg.Metrics.RecordPacketIn(packet.Type())
	if handler != nil {
		handler(packet)
	}
}
