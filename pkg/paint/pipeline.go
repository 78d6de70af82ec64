package paint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirada-dev/mirada/internal/metrics"
	"github.com/mirada-dev/mirada/pkg/protocol"
	"github.com/mirada-dev/mirada/pkg/window"
)

// defaultStaleness is how long an in-flight decode may run before the
// queue treats it as abandoned and lets the next paint proceed.
const defaultStaleness = 5 * time.Second

// Config wires the pipeline to its collaborators.
type Config struct {
	// Registry resolves window ids to surfaces.
	Registry *window.Registry

	// Ack receives one damage-sequence acknowledgement per processed
	// draw, successful or not. Required.
	Ack func(*protocol.DamageSequence)

	// Redraw is called when the visible surface should be repainted now
	// rather than batched (flush 0 or a decode error). May be nil.
	Redraw func(wid int64)

	// Staleness overrides the wedged-decode threshold.
	Staleness time.Duration

	// StreamDecoders maps video codings to decoder factories. Codings
	// without a factory fail their draws with an acknowledged error.
	StreamDecoders map[string]StreamDecoderFactory

	// Logger receives paint diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives decode instrumentation. May be nil.
	Metrics *metrics.Metrics
}

// Pipeline owns the per-window paint queues.
type Pipeline struct {
	cfg      *Config
	registry *window.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	mu     sync.Mutex
	queues map[int64]*winQueue
}

// winQueue is one window's paint state: FIFO pending draws, the
// in-flight marker, and the persistent stream decoder.
type winQueue struct {
	wid int64

	mu            sync.Mutex
	pending       []*protocol.Draw
	inFlight      bool
	inFlightSince time.Time
	gen           uint64
	stream        StreamDecoder
	streamCoding  string
}

// NewPipeline creates a pipeline over the given window registry.
func NewPipeline(cfg *Config) *Pipeline {
	if cfg.Registry == nil {
		cfg.Registry = window.NewRegistry(cfg.Logger)
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = defaultStaleness
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("mirada/paint"),
		queues:   make(map[int64]*winQueue),
	}
}

// Registry returns the window registry the pipeline draws into.
func (p *Pipeline) Registry() *window.Registry {
	return p.registry
}

// queue returns the window's paint queue, creating it on first use.
func (p *Pipeline) queue(wid int64) *winQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[wid]
	if !ok {
		q = &winQueue{wid: wid}
		p.queues[wid] = q
	}
	return q
}

// Draw enqueues one paint request. Returns immediately: decode and
// acknowledgement happen on the window's decode goroutine.
func (p *Pipeline) Draw(d *protocol.Draw) {
	q := p.queue(d.WID)
	q.mu.Lock()
	q.pending = append(q.pending, d)
	p.pumpLocked(q)
	q.mu.Unlock()
}

// pumpLocked starts the next decode if the window has none in flight,
// or if the one in flight has been wedged past the staleness threshold.
// Caller holds q.mu.
func (p *Pipeline) pumpLocked(q *winQueue) {
	if len(q.pending) == 0 {
		return
	}
	if q.inFlight {
		if time.Since(q.inFlightSince) < p.cfg.Staleness {
			return
		}
		p.logger.Warn("abandoning wedged decode", "wid", q.wid, "stalled", time.Since(q.inFlightSince))
	}
	d := q.pending[0]
	q.pending = q.pending[1:]
	q.inFlight = true
	q.inFlightSince = time.Now()
	q.gen++
	gen := q.gen
	go p.process(q, d, gen)
}

// process decodes and applies one draw, acknowledges it, and pumps the
// next. Runs on its own goroutine; only one per window except when a
// wedged decode was abandoned.
func (p *Pipeline) process(q *winQueue, d *protocol.Draw, gen uint64) {
	_, span := p.tracer.Start(context.Background(), "paint.decode",
		trace.WithAttributes(
			attribute.String("paint.coding", d.Coding),
			attribute.Int64("paint.wid", d.WID),
			attribute.Int64("paint.sequence", d.Sequence),
			attribute.Int("paint.bytes", len(d.Data)),
		))
	start := time.Now()
	err := p.apply(q, d)
	elapsed := time.Since(start)

	p.metrics.RecordDecode(d.Coding, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	ack := &protocol.DamageSequence{
		Sequence:     d.Sequence,
		WID:          d.WID,
		Width:        d.Width,
		Height:       d.Height,
		DecodeTimeMS: elapsed.Milliseconds(),
	}
	if err != nil {
		ack.DecodeTimeMS = -1
		ack.Message = err.Error()
		p.logger.Warn("paint failed", "wid", d.WID, "coding", d.Coding, "seq", d.Sequence, "error", err)
	}
	p.cfg.Ack(ack)

	// flush 0 means no more draws are coming for this batch; an error
	// leaves the surface in a state worth showing immediately too.
	if p.cfg.Redraw != nil && (err != nil || d.IntOption("flush", 0) == 0) {
		p.cfg.Redraw(d.WID)
	}

	q.mu.Lock()
	if q.gen == gen {
		q.inFlight = false
	}
	p.pumpLocked(q)
	q.mu.Unlock()
}

// apply dispatches one draw by coding to the matching decode path.
func (p *Pipeline) apply(q *winQueue, d *protocol.Draw) error {
	win, ok := p.registry.Get(d.WID)
	if !ok {
		return fmt.Errorf("paint: unknown window %d", d.WID)
	}
	surface := win.Surface()

	switch {
	case isRGBCoding(d.Coding):
		return blitRGB(surface, d)

	case isStillCoding(d.Coding):
		img, err := decodeStill(d.Coding, d.Data)
		if err != nil {
			return fmt.Errorf("paint: decode %s: %w", d.Coding, err)
		}
		surface.DrawImage(d.X, d.Y, img)
		return nil

	case d.Coding == "scroll":
		ops, err := parseScrolls(d.Options)
		if err != nil {
			return err
		}
		return applyScrolls(surface, ops)

	default:
		return p.applyStream(q, surface, d)
	}
}

// applyStream feeds one frame to the window's persistent stream
// decoder. Frame counter 0 (re)initializes the decoder; any other
// counter requires one to exist.
func (p *Pipeline) applyStream(q *winQueue, surface *window.Surface, d *protocol.Draw) error {
	frame := d.IntOption("frame", -1)

	q.mu.Lock()
	stream := q.stream
	streamCoding := q.streamCoding
	q.mu.Unlock()

	if frame == 0 || stream == nil || streamCoding != d.Coding {
		if frame != 0 {
			return fmt.Errorf("paint: %s frame %d for window %d without an initialized decoder", d.Coding, frame, d.WID)
		}
		factory, ok := p.cfg.StreamDecoders[d.Coding]
		if !ok {
			return fmt.Errorf("paint: no decoder for coding %q", d.Coding)
		}
		next, err := factory(d.Coding, d.Width, d.Height)
		if err != nil {
			return fmt.Errorf("paint: init %s decoder: %w", d.Coding, err)
		}
		if stream != nil {
			stream.Close()
		}
		stream = next
		q.mu.Lock()
		q.stream = next
		q.streamCoding = d.Coding
		q.mu.Unlock()
	}

	img, err := stream.DecodeFrame(d.Data, d.Options)
	if err != nil {
		return fmt.Errorf("paint: decode %s frame: %w", d.Coding, err)
	}
	surface.DrawImage(d.X, d.Y, img)
	return nil
}

// Eos terminates the window's in-flight stream decoder. Queued and
// in-flight still paints are unaffected.
func (p *Pipeline) Eos(wid int64) {
	q := p.queue(wid)
	q.mu.Lock()
	stream := q.stream
	q.stream = nil
	q.streamCoding = ""
	q.mu.Unlock()
	if stream != nil {
		stream.Close()
		p.logger.Debug("stream decoder closed", "wid", wid)
	}
}

// NewWindow registers an announced window.
func (p *Pipeline) NewWindow(w *protocol.NewWindow) {
	p.registry.Add(w)
}

// LostWindow drops a window and its paint state.
func (p *Pipeline) LostWindow(wid int64) {
	p.Eos(wid)
	p.mu.Lock()
	delete(p.queues, wid)
	p.mu.Unlock()
	p.registry.Remove(wid)
}

// UpdateMetadata applies a metadata update.
func (p *Pipeline) UpdateMetadata(m *protocol.WindowMetadata) {
	if w, ok := p.registry.Get(m.WID); ok {
		w.MergeMetadata(m.Metadata)
	}
}

// MoveResize applies a geometry update.
func (p *Pipeline) MoveResize(m *protocol.WindowMoveResize) {
	if w, ok := p.registry.Get(m.WID); ok {
		w.MoveResize(m.X, m.Y, m.Width, m.Height)
	}
}

// Reset tears down all paint state: every queue, every stream decoder,
// every window. Called between connections.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	queues := p.queues
	p.queues = make(map[int64]*winQueue)
	p.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		stream := q.stream
		q.stream = nil
		q.pending = nil
		q.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
	}
	p.registry.Reset()
}
