package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseDraw(t *testing.T) {
	// Fields as they come off the serializer: int64 and []byte.
	p := Packet{
		[]byte("draw"), int64(3), int64(10), int64(20), int64(640), int64(480),
		[]byte("rgb32"), []byte{1, 2, 3, 4}, int64(77), int64(2560),
		map[string]any{"flush": int64(0), "frame": int64(5)},
	}

	d, err := ParseDraw(p)
	if err != nil {
		t.Fatalf("ParseDraw() error = %v", err)
	}
	if d.WID != 3 || d.X != 10 || d.Y != 20 || d.Width != 640 || d.Height != 480 {
		t.Errorf("geometry = (%d, %d, %d, %d, %d)", d.WID, d.X, d.Y, d.Width, d.Height)
	}
	if d.Coding != "rgb32" {
		t.Errorf("coding = %q, want rgb32", d.Coding)
	}
	if !bytes.Equal(d.Data, []byte{1, 2, 3, 4}) {
		t.Errorf("data = %v", d.Data)
	}
	if d.Sequence != 77 || d.Rowstride != 2560 {
		t.Errorf("seq = %d, rowstride = %d", d.Sequence, d.Rowstride)
	}
	if got := d.IntOption("flush", -1); got != 0 {
		t.Errorf("flush option = %d, want 0", got)
	}
	if got := d.IntOption("frame", -1); got != 5 {
		t.Errorf("frame option = %d, want 5", got)
	}
	if got := d.IntOption("absent", 9); got != 9 {
		t.Errorf("absent option = %d, want default 9", got)
	}
}

func TestParseDrawScrollList(t *testing.T) {
	// Scroll draws carry the operation list in the data slot.
	p := Packet{
		[]byte("draw"), int64(1), int64(0), int64(0), int64(100), int64(50),
		[]byte("scroll"),
		[]any{[]any{int64(0), int64(0), int64(100), int64(50), int64(0), int64(20)}},
		int64(7), int64(0), map[string]any{},
	}

	d, err := ParseDraw(p)
	if err != nil {
		t.Fatalf("ParseDraw() error = %v", err)
	}
	if d.Coding != "scroll" {
		t.Errorf("coding = %q", d.Coding)
	}
	if len(d.Data) != 0 {
		t.Errorf("data = %v, want empty", d.Data)
	}
	ops, ok := d.Options["scrolls"].([]any)
	if !ok || len(ops) != 1 {
		t.Fatalf("scrolls option = %#v", d.Options["scrolls"])
	}
	rec, ok := ops[0].([]any)
	if !ok || len(rec) != 6 || rec[5] != int64(20) {
		t.Errorf("scroll record = %#v", ops[0])
	}
}

func TestParseDrawListPayloadNonScroll(t *testing.T) {
	// A list in the data slot is only meaningful for scroll draws.
	p := Packet{
		[]byte("draw"), int64(1), int64(0), int64(0), int64(4), int64(4),
		[]byte("rgb24"), []any{int64(1)}, int64(7), int64(12),
	}
	if _, err := ParseDraw(p); !errors.Is(err, ErrFieldType) {
		t.Errorf("ParseDraw(list rgb) error = %v, want %v", err, ErrFieldType)
	}
}

func TestParseDrawShort(t *testing.T) {
	p := Packet{[]byte("draw"), int64(1)}
	if _, err := ParseDraw(p); !errors.Is(err, ErrShortPacket) {
		t.Errorf("ParseDraw(short) error = %v, want %v", err, ErrShortPacket)
	}
}

func TestParseChallengeDefaults(t *testing.T) {
	p := Packet{[]byte("challenge"), []byte("s4ltS4lt")}
	c, err := ParseChallenge(p)
	if err != nil {
		t.Fatalf("ParseChallenge() error = %v", err)
	}
	if !bytes.Equal(c.ServerSalt, []byte("s4ltS4lt")) {
		t.Errorf("salt = %q", c.ServerSalt)
	}
	if c.Digest != "hmac" || c.SaltDigest != "xor" {
		t.Errorf("defaults = (%q, %q), want (hmac, xor)", c.Digest, c.SaltDigest)
	}
}

func TestParseChallengeFull(t *testing.T) {
	p := Packet{
		[]byte("challenge"), []byte("serversalt"), map[string]any{},
		[]byte("hmac+sha256"), []byte("hmac+sha1"), []byte("token"),
	}
	c, err := ParseChallenge(p)
	if err != nil {
		t.Fatalf("ParseChallenge() error = %v", err)
	}
	if c.Digest != "hmac+sha256" || c.SaltDigest != "hmac+sha1" || c.Prompt != "token" {
		t.Errorf("parsed = %+v", c)
	}
}

func TestPingEchoRoundTrip(t *testing.T) {
	e := &PingEcho{Time: 123456, Load1: 100, Load5: 200, Load15: 300, Latency: 12}
	parsed, err := ParsePingEcho(e.Packet())
	if err != nil {
		t.Fatalf("ParsePingEcho() error = %v", err)
	}
	if *parsed != *e {
		t.Errorf("round trip = %+v, want %+v", parsed, e)
	}
}

func TestParsePingEchoShortForms(t *testing.T) {
	// Old peers send just the echoed timestamp.
	parsed, err := ParsePingEcho(Packet{[]byte("ping_echo"), int64(42)})
	if err != nil {
		t.Fatalf("ParsePingEcho() error = %v", err)
	}
	if parsed.Time != 42 || parsed.Latency != -1 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestDamageSequencePacket(t *testing.T) {
	a := &DamageSequence{Sequence: 9, WID: 2, Width: 100, Height: 50, DecodeTimeMS: 7, Message: ""}
	p := a.Packet()
	if p.Type() != TagDamageSequence {
		t.Errorf("tag = %q", p.Type())
	}
	if len(p) != 7 {
		t.Errorf("field count = %d, want 7", len(p))
	}
}

func TestParseNewWindow(t *testing.T) {
	p := Packet{
		[]byte("new-window"), int64(7), int64(0), int64(0), int64(800), int64(600),
		map[string]any{"title": []byte("xterm")},
	}
	w, err := ParseNewWindow(p)
	if err != nil {
		t.Fatalf("ParseNewWindow() error = %v", err)
	}
	if w.WID != 7 || w.Width != 800 || w.Height != 600 || w.OverrideRedirect {
		t.Errorf("parsed = %+v", w)
	}

	p[0] = []byte("new-override-redirect")
	w, err = ParseNewWindow(p)
	if err != nil {
		t.Fatalf("ParseNewWindow() error = %v", err)
	}
	if !w.OverrideRedirect {
		t.Error("override-redirect flag not set")
	}
}

func TestParseWindowResized(t *testing.T) {
	p := Packet{[]byte("window-resized"), int64(4), int64(300), int64(200)}
	m, err := ParseWindowMoveResize(p)
	if err != nil {
		t.Fatalf("ParseWindowMoveResize() error = %v", err)
	}
	if m.WID != 4 || m.Width != 300 || m.Height != 200 || m.X != -1 {
		t.Errorf("parsed = %+v", m)
	}
}

func TestParseDisconnect(t *testing.T) {
	p := Packet{[]byte("disconnect"), []byte("server shutdown"), []byte("bye")}
	d, err := ParseDisconnect(p)
	if err != nil {
		t.Fatalf("ParseDisconnect() error = %v", err)
	}
	if d.Reason != "server shutdown" || len(d.Info) != 1 {
		t.Errorf("parsed = %+v", d)
	}
}

func TestPacketTypeMalformed(t *testing.T) {
	if got := (Packet{}).Type(); got != "" {
		t.Errorf("empty packet type = %q", got)
	}
	if got := (Packet{int64(1)}).Type(); got != "" {
		t.Errorf("non-string tag type = %q", got)
	}
	if err := (Packet{int64(1)}).Validate(); !errors.Is(err, ErrBadPacketTag) {
		t.Errorf("Validate() error = %v, want %v", err, ErrBadPacketTag)
	}
}
