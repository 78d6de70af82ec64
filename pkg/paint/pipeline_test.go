package paint

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/mirada-dev/mirada/pkg/protocol"
	"github.com/mirada-dev/mirada/pkg/window"
)

// testPipeline builds a pipeline with one announced 64x64 window and an
// ack channel.
func testPipeline(t *testing.T, mod func(*Config)) (*Pipeline, chan *protocol.DamageSequence) {
	t.Helper()
	acks := make(chan *protocol.DamageSequence, 32)
	cfg := &Config{
		Registry: window.NewRegistry(nil),
		Ack:      func(a *protocol.DamageSequence) { acks <- a },
	}
	if mod != nil {
		mod(cfg)
	}
	p := NewPipeline(cfg)
	p.NewWindow(&protocol.NewWindow{WID: 1, Width: 64, Height: 64})
	return p, acks
}

func waitAck(t *testing.T, acks chan *protocol.DamageSequence) *protocol.DamageSequence {
	t.Helper()
	select {
	case a := <-acks:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for damage-sequence ack")
		return nil
	}
}

func rgbDraw(wid, seq int64, w, h int) *protocol.Draw {
	return &protocol.Draw{
		WID: wid, X: 0, Y: 0, Width: w, Height: h,
		Coding:   "rgb24",
		Data:     bytes.Repeat([]byte{0x7F}, w*h*3),
		Sequence: seq,
		Options:  map[string]any{"flush": int64(1)},
	}
}

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Draws for one window are acknowledged strictly in arrival order.
func TestAckOrderingFIFO(t *testing.T) {
	p, acks := testPipeline(t, nil)

	for _, seq := range []int64{5, 6, 7} {
		p.Draw(rgbDraw(1, seq, 8, 8))
	}

	for _, want := range []int64{5, 6, 7} {
		a := waitAck(t, acks)
		if a.Sequence != want {
			t.Fatalf("ack sequence = %d, want %d", a.Sequence, want)
		}
		if a.DecodeTimeMS < 0 {
			t.Errorf("seq %d acknowledged as failed: %q", a.Sequence, a.Message)
		}
		if a.WID != 1 || a.Width != 8 || a.Height != 8 {
			t.Errorf("ack = %+v", a)
		}
	}
}

func TestRGBDrawPaintsSurface(t *testing.T) {
	p, acks := testPipeline(t, nil)

	d := rgbDraw(1, 1, 4, 4)
	d.X, d.Y = 10, 12
	p.Draw(d)
	waitAck(t, acks)

	w, _ := p.Registry().Get(1)
	if got := w.Surface().At(10, 12); got != [4]byte{0x7F, 0x7F, 0x7F, 0xFF} {
		t.Errorf("pixel = %v", got)
	}
}

func TestStillImageDraw(t *testing.T) {
	p, acks := testPipeline(t, nil)

	p.Draw(&protocol.Draw{
		WID: 1, X: 2, Y: 3, Width: 4, Height: 4,
		Coding:   "png",
		Data:     pngBytes(t, 4, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255}),
		Sequence: 9,
		Options:  map[string]any{"flush": int64(1)},
	})
	a := waitAck(t, acks)
	if a.DecodeTimeMS < 0 {
		t.Fatalf("png decode failed: %s", a.Message)
	}

	w, _ := p.Registry().Get(1)
	if got := w.Surface().At(2, 3); got != [4]byte{200, 100, 50, 255} {
		t.Errorf("pixel = %v", got)
	}
}

// A failed decode is acknowledged with -1 and an error message, and
// forces a redraw.
func TestDecodeFailureAck(t *testing.T) {
	redraws := make(chan int64, 4)
	p, acks := testPipeline(t, func(cfg *Config) {
		cfg.Redraw = func(wid int64) { redraws <- wid }
	})

	p.Draw(&protocol.Draw{
		WID: 1, Width: 4, Height: 4,
		Coding:   "png",
		Data:     []byte("definitely not a png"),
		Sequence: 3,
		Options:  map[string]any{"flush": int64(7)},
	})

	a := waitAck(t, acks)
	if a.DecodeTimeMS != -1 {
		t.Errorf("DecodeTimeMS = %d, want -1", a.DecodeTimeMS)
	}
	if a.Message == "" {
		t.Error("failure ack carries no message")
	}
	select {
	case wid := <-redraws:
		if wid != 1 {
			t.Errorf("redraw wid = %d", wid)
		}
	case <-time.After(time.Second):
		t.Error("decode error did not force a redraw")
	}
}

func TestUnknownWindowAck(t *testing.T) {
	p, acks := testPipeline(t, nil)
	p.Draw(rgbDraw(42, 1, 4, 4))
	a := waitAck(t, acks)
	if a.DecodeTimeMS != -1 || a.WID != 42 {
		t.Errorf("ack = %+v", a)
	}
}

// flush 0 forces an immediate redraw; nonzero flush batches.
func TestFlushSemantics(t *testing.T) {
	redraws := make(chan int64, 4)
	p, acks := testPipeline(t, func(cfg *Config) {
		cfg.Redraw = func(wid int64) { redraws <- wid }
	})

	d := rgbDraw(1, 1, 4, 4)
	d.Options = map[string]any{"flush": int64(2)}
	p.Draw(d)
	waitAck(t, acks)
	select {
	case <-redraws:
		t.Error("redraw fired with flush > 0")
	case <-time.After(50 * time.Millisecond):
	}

	d2 := rgbDraw(1, 2, 4, 4)
	d2.Options = map[string]any{"flush": int64(0)}
	p.Draw(d2)
	waitAck(t, acks)
	select {
	case <-redraws:
	case <-time.After(time.Second):
		t.Error("flush 0 did not force a redraw")
	}
}

// Scroll draws blit the window's own previous frame without decoding
// any payload.
func TestScrollDraw(t *testing.T) {
	p, acks := testPipeline(t, nil)

	// Paint a marker, then scroll it right and down by (2, 1).
	d := rgbDraw(1, 1, 1, 1)
	d.X, d.Y = 4, 4
	d.Data = []byte{0xEE, 0x00, 0x00}
	p.Draw(d)
	waitAck(t, acks)

	p.Draw(&protocol.Draw{
		WID: 1, Width: 64, Height: 64,
		Coding:   "scroll",
		Sequence: 2,
		Options: map[string]any{
			"flush":   int64(1),
			"scrolls": []any{[]any{int64(0), int64(0), int64(16), int64(16), int64(2), int64(1)}},
		},
	})
	a := waitAck(t, acks)
	if a.DecodeTimeMS < 0 {
		t.Fatalf("scroll failed: %s", a.Message)
	}

	w, _ := p.Registry().Get(1)
	if got := w.Surface().At(6, 5); got[0] != 0xEE {
		t.Errorf("scrolled pixel = %v", got)
	}
}

// A scroll draw as it arrives off the serializer carries the operation
// list in the data slot, not in the options.
func TestScrollDrawFromWire(t *testing.T) {
	p, acks := testPipeline(t, nil)

	d := rgbDraw(1, 1, 1, 1)
	d.X, d.Y = 4, 4
	d.Data = []byte{0xEE, 0x00, 0x00}
	p.Draw(d)
	waitAck(t, acks)

	wire := protocol.Packet{
		[]byte("draw"), int64(1), int64(0), int64(0), int64(64), int64(64),
		[]byte("scroll"),
		[]any{[]any{int64(0), int64(0), int64(16), int64(16), int64(2), int64(1)}},
		int64(2), int64(0), map[string]any{"flush": int64(1)},
	}
	parsed, err := protocol.ParseDraw(wire)
	if err != nil {
		t.Fatalf("ParseDraw() error = %v", err)
	}
	p.Draw(parsed)
	a := waitAck(t, acks)
	if a.DecodeTimeMS < 0 {
		t.Fatalf("scroll failed: %s", a.Message)
	}

	w, _ := p.Registry().Get(1)
	if got := w.Surface().At(6, 5); got[0] != 0xEE {
		t.Errorf("scrolled pixel = %v", got)
	}
}

// fakeStream is a controllable stream decoder.
type fakeStream struct {
	mu     sync.Mutex
	frames int
	closed bool
	block  chan struct{}
	fail   error
}

func (f *fakeStream) DecodeFrame(_ []byte, _ map[string]any) (image.Image, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.frames++
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (f *fakeStream) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// streamFactory records every decoder it creates.
type streamFactory struct {
	mu      sync.Mutex
	created []*fakeStream
	next    func() *fakeStream
}

func (s *streamFactory) factory(_ string, _, _ int) (StreamDecoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d *fakeStream
	if s.next != nil {
		d = s.next()
	} else {
		d = &fakeStream{}
	}
	s.created = append(s.created, d)
	return d, nil
}

func (s *streamFactory) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

func (s *streamFactory) decoder(t *testing.T, i int) *fakeStream {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.created) {
		t.Fatalf("decoder %d not created yet (have %d)", i, len(s.created))
	}
	return s.created[i]
}

func videoDraw(seq, frame int64) *protocol.Draw {
	return &protocol.Draw{
		WID: 1, Width: 4, Height: 4,
		Coding:   "vp9",
		Data:     []byte{0x01, 0x02},
		Sequence: seq,
		Options:  map[string]any{"flush": int64(1), "frame": frame},
	}
}

func TestStreamDecoderLifecycle(t *testing.T) {
	sf := &streamFactory{}
	p, acks := testPipeline(t, func(cfg *Config) {
		cfg.StreamDecoders = map[string]StreamDecoderFactory{"vp9": sf.factory}
	})

	// Frame 0 initializes; frame 1 reuses the same decoder.
	p.Draw(videoDraw(1, 0))
	waitAck(t, acks)
	p.Draw(videoDraw(2, 1))
	waitAck(t, acks)
	if sf.count() != 1 {
		t.Fatalf("decoders created = %d, want 1", sf.count())
	}

	// Frame 0 again resets: old decoder closed, new one created.
	p.Draw(videoDraw(3, 0))
	waitAck(t, acks)
	if sf.count() != 2 {
		t.Fatalf("decoders created = %d, want 2", sf.count())
	}
	if !sf.decoder(t, 0).isClosed() {
		t.Error("reset did not close the previous decoder")
	}

	// eos terminates the stream.
	p.Eos(1)
	if !sf.decoder(t, 1).isClosed() {
		t.Error("eos did not close the decoder")
	}

	// The next non-zero frame has no decoder: acknowledged as failed.
	p.Draw(videoDraw(4, 7))
	a := waitAck(t, acks)
	if a.DecodeTimeMS != -1 {
		t.Errorf("frame without decoder succeeded: %+v", a)
	}
}

func TestStreamUnknownCoding(t *testing.T) {
	p, acks := testPipeline(t, nil)
	p.Draw(videoDraw(1, 0))
	a := waitAck(t, acks)
	if a.DecodeTimeMS != -1 || a.Message == "" {
		t.Errorf("unknown coding not acknowledged as failed: %+v", a)
	}
}

// A decode wedged past the staleness threshold no longer blocks the
// queue: the next paint proceeds.
func TestStalenessOverride(t *testing.T) {
	blocked := &fakeStream{block: make(chan struct{})}
	sf := &streamFactory{next: func() *fakeStream {
		s := blocked
		blocked = &fakeStream{}
		return s
	}}
	p, acks := testPipeline(t, func(cfg *Config) {
		cfg.Staleness = 20 * time.Millisecond
		cfg.StreamDecoders = map[string]StreamDecoderFactory{"vp9": sf.factory}
	})
	wedged := blocked

	p.Draw(videoDraw(1, 0)) // blocks forever inside DecodeFrame
	time.Sleep(40 * time.Millisecond)

	p.Draw(rgbDraw(1, 2, 4, 4)) // must proceed despite the wedge
	a := waitAck(t, acks)
	if a.Sequence != 2 {
		t.Fatalf("ack sequence = %d, want the override paint (2)", a.Sequence)
	}

	// Unwedge so the goroutine exits; its late ack still arrives.
	close(wedged.block)
	late := waitAck(t, acks)
	if late.Sequence != 1 {
		t.Errorf("late ack sequence = %d, want 1", late.Sequence)
	}
}

// Decodes for different windows run independently.
func TestCrossWindowConcurrency(t *testing.T) {
	blockA := make(chan struct{})
	first := true
	sf := &streamFactory{next: func() *fakeStream {
		if first {
			first = false
			return &fakeStream{block: blockA}
		}
		return &fakeStream{}
	}}
	p, acks := testPipeline(t, func(cfg *Config) {
		cfg.StreamDecoders = map[string]StreamDecoderFactory{"vp9": sf.factory}
	})
	p.NewWindow(&protocol.NewWindow{WID: 2, Width: 64, Height: 64})

	// Window 1 wedges on a video frame; window 2 paints regardless.
	p.Draw(videoDraw(1, 0))
	p.Draw(rgbDraw(2, 10, 4, 4))

	a := waitAck(t, acks)
	if a.WID != 2 || a.Sequence != 10 {
		t.Fatalf("ack = %+v, want window 2 seq 10", a)
	}
	close(blockA)
	waitAck(t, acks)
}

func TestLostWindowDropsState(t *testing.T) {
	sf := &streamFactory{}
	p, acks := testPipeline(t, func(cfg *Config) {
		cfg.StreamDecoders = map[string]StreamDecoderFactory{"vp9": sf.factory}
	})

	p.Draw(videoDraw(1, 0))
	waitAck(t, acks)

	p.LostWindow(1)
	if !sf.decoder(t, 0).isClosed() {
		t.Error("lost-window did not close the stream decoder")
	}
	if _, ok := p.Registry().Get(1); ok {
		t.Error("window still registered")
	}
}

func TestInlineCompressedPixels(t *testing.T) {
	p, acks := testPipeline(t, nil)

	raw := bytes.Repeat([]byte{0x55}, 4*4*3)
	level, compressed, err := (protocol.ZlibCompressor{Level: 5}).Compress(raw)
	if err != nil {
		t.Fatal(err)
	}
	if level == 0 {
		t.Fatal("zlib compressor reported level 0")
	}

	p.Draw(&protocol.Draw{
		WID: 1, Width: 4, Height: 4,
		Coding:   "rgb24",
		Data:     compressed,
		Sequence: 1,
		Options:  map[string]any{"flush": int64(1), "zlib": int64(5)},
	})
	a := waitAck(t, acks)
	if a.DecodeTimeMS < 0 {
		t.Fatalf("inline zlib decode failed: %s", a.Message)
	}

	w, _ := p.Registry().Get(1)
	if got := w.Surface().At(0, 0); got != [4]byte{0x55, 0x55, 0x55, 0xFF} {
		t.Errorf("pixel = %v", got)
	}
}
