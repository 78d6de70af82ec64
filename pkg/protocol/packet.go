package protocol

import (
	"errors"
	"fmt"
)

// Packet is an ordered sequence whose first element is the packet-type tag.
// The remaining elements are positional, type-specific fields; the typed
// Parse* helpers below validate field count and types once at the
// serializer boundary so the rest of the client never touches raw
// positions.
type Packet []any

// Packet type tags. Stable strings shared with the peer; adding a tag
// never touches the framing, compression or cipher layers.
const (
	TagHello            = "hello"
	TagChallenge        = "challenge"
	TagPing             = "ping"
	TagPingEcho         = "ping_echo"
	TagDraw             = "draw"
	TagEos              = "eos"
	TagDamageSequence   = "damage-sequence"
	TagNewWindow        = "new-window"
	TagNewOverrideRedirect = "new-override-redirect"
	TagLostWindow       = "lost-window"
	TagWindowMetadata   = "window-metadata"
	TagWindowMoveResize = "window-move-resize"
	TagWindowResized    = "window-resized"
	TagRaiseWindow      = "raise-window"
	TagStartupComplete  = "startup-complete"
	TagSettingChange    = "setting-change"
	TagBell             = "bell"
	TagNotifyShow       = "notify_show"
	TagNotifyClose      = "notify_close"
	TagClipboardToken   = "clipboard-token"
	TagDisconnect       = "disconnect"
	TagConnectionLost   = "connection-lost"
)

// Packet shape errors.
var (
	ErrEmptyPacket  = errors.New("protocol: empty packet")
	ErrBadPacketTag = errors.New("protocol: packet tag is not a string")
	ErrShortPacket  = errors.New("protocol: packet has too few fields")
	ErrFieldType    = errors.New("protocol: packet field has wrong type")
)

// Type returns the packet-type tag, or "" if the packet is malformed.
func (p Packet) Type() string {
	if len(p) == 0 {
		return ""
	}
	s, err := asString(p[0])
	if err != nil {
		return ""
	}
	return s
}

// Validate checks the minimal shape shared by all packets.
func (p Packet) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPacket
	}
	if _, err := asString(p[0]); err != nil {
		return ErrBadPacketTag
	}
	return nil
}

// field accessors: the serializer yields int64 for integers and []byte for
// strings, but hand-built packets (tests, local dispatch) may carry native
// Go types, so each coercion accepts both.

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %T is not an integer", ErrFieldType, v)
	}
}

func asInt(v any) (int, error) {
	n, err := asInt64(v)
	return int(n), err
}

func asString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("%w: %T is not a string", ErrFieldType, v)
	}
}

func asBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("%w: %T is not a byte string", ErrFieldType, v)
	}
}

func asMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a map", ErrFieldType, v)
	}
	return m, nil
}

func asList(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a list", ErrFieldType, v)
	}
	return l, nil
}

func (p Packet) need(n int) error {
	if len(p) < n {
		return fmt.Errorf("%w: %q has %d fields, need %d", ErrShortPacket, p.Type(), len(p), n)
	}
	return nil
}

// Hello carries the capability record. Unknown keys from the peer are kept
// but ignored: the record is an open, versioned extension point.
type Hello struct {
	Caps map[string]any
}

// ParseHello decodes ["hello", caps].
func ParseHello(p Packet) (*Hello, error) {
	if err := p.need(2); err != nil {
		return nil, err
	}
	caps, err := asMap(p[1])
	if err != nil {
		return nil, err
	}
	return &Hello{Caps: caps}, nil
}

// Packet builds the wire form.
func (h *Hello) Packet() Packet {
	return Packet{TagHello, h.Caps}
}

// Challenge is the authentication challenge:
// ["challenge", server_salt, caps, digest, salt_digest, prompt].
// Older peers omit trailing fields; salt_digest defaults to "xor" and the
// prompt to "password".
type Challenge struct {
	ServerSalt []byte
	Caps       map[string]any
	Digest     string
	SaltDigest string
	Prompt     string
}

// ParseChallenge decodes a challenge packet.
func ParseChallenge(p Packet) (*Challenge, error) {
	if err := p.need(2); err != nil {
		return nil, err
	}
	c := &Challenge{
		Caps:       map[string]any{},
		Digest:     "hmac",
		SaltDigest: "xor",
		Prompt:     "password",
	}
	var err error
	if c.ServerSalt, err = asBytes(p[1]); err != nil {
		return nil, err
	}
	if len(p) > 2 {
		if c.Caps, err = asMap(p[2]); err != nil {
			return nil, err
		}
	}
	if len(p) > 3 {
		if c.Digest, err = asString(p[3]); err != nil {
			return nil, err
		}
	}
	if len(p) > 4 {
		if c.SaltDigest, err = asString(p[4]); err != nil {
			return nil, err
		}
	}
	if len(p) > 5 {
		if c.Prompt, err = asString(p[5]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Ping carries the sender's epoch-millisecond timestamp:
// ["ping", time, <ignored>, sid?].
type Ping struct {
	Time int64
	SID  string
}

// ParsePing decodes a ping packet.
func ParsePing(p Packet) (*Ping, error) {
	if err := p.need(2); err != nil {
		return nil, err
	}
	t, err := asInt64(p[1])
	if err != nil {
		return nil, err
	}
	ping := &Ping{Time: t}
	if len(p) > 3 {
		// Optional server id, used when proxied.
		if sid, err := asString(p[3]); err == nil {
			ping.SID = sid
		}
	}
	return ping, nil
}

// NewPing builds an outbound ping.
func NewPing(timeMS int64) Packet {
	return Packet{TagPing, timeMS}
}

// PingEcho answers a ping:
// ["ping_echo", echoed_time, load1, load5, load15, latency].
// Load figures are thousandths; -1 latency means unmeasured.
type PingEcho struct {
	Time    int64
	Load1   int64
	Load5   int64
	Load15  int64
	Latency int64
}

// ParsePingEcho decodes a ping_echo packet.
func ParsePingEcho(p Packet) (*PingEcho, error) {
	if err := p.need(2); err != nil {
		return nil, err
	}
	e := &PingEcho{Latency: -1}
	var err error
	if e.Time, err = asInt64(p[1]); err != nil {
		return nil, err
	}
	for i, dst := range []*int64{&e.Load1, &e.Load5, &e.Load15, &e.Latency} {
		if len(p) > 2+i {
			if v, err := asInt64(p[2+i]); err == nil {
				*dst = v
			}
		}
	}
	return e, nil
}

// Packet builds the wire form.
func (e *PingEcho) Packet() Packet {
	return Packet{TagPingEcho, e.Time, e.Load1, e.Load5, e.Load15, e.Latency}
}

// Draw is one window update:
// ["draw", wid, x, y, w, h, coding, data, packet_sequence, rowstride, options].
//
// For the "scroll" coding the data slot carries the operation list
// instead of pixel bytes; ParseDraw moves it into Options["scrolls"] so
// the paint layer has one place to look.
type Draw struct {
	WID       int64
	X, Y      int
	Width     int
	Height    int
	Coding    string
	Data      []byte
	Sequence  int64
	Rowstride int
	Options   map[string]any
}

// ParseDraw decodes a draw packet.
func ParseDraw(p Packet) (*Draw, error) {
	if err := p.need(10); err != nil {
		return nil, err
	}
	d := &Draw{Options: map[string]any{}}
	var err error
	if d.WID, err = asInt64(p[1]); err != nil {
		return nil, err
	}
	if d.X, err = asInt(p[2]); err != nil {
		return nil, err
	}
	if d.Y, err = asInt(p[3]); err != nil {
		return nil, err
	}
	if d.Width, err = asInt(p[4]); err != nil {
		return nil, err
	}
	if d.Height, err = asInt(p[5]); err != nil {
		return nil, err
	}
	if d.Coding, err = asString(p[6]); err != nil {
		return nil, err
	}
	var scrolls []any
	if list, ok := p[7].([]any); ok && d.Coding == "scroll" {
		scrolls = list
	} else if d.Data, err = asBytes(p[7]); err != nil {
		return nil, err
	}
	if d.Sequence, err = asInt64(p[8]); err != nil {
		return nil, err
	}
	if d.Rowstride, err = asInt(p[9]); err != nil {
		return nil, err
	}
	if len(p) > 10 {
		if d.Options, err = asMap(p[10]); err != nil {
			return nil, err
		}
	}
	if scrolls != nil {
		d.Options["scrolls"] = scrolls
	}
	return d, nil
}

// IntOption returns an integer draw option, or def when absent.
func (d *Draw) IntOption(key string, def int64) int64 {
	v, ok := d.Options[key]
	if !ok {
		return def
	}
	n, err := asInt64(v)
	if err != nil {
		return def
	}
	return n
}

// Eos terminates any in-flight streaming decoder for a window:
// ["eos", wid].
type Eos struct {
	WID int64
}

// ParseEos decodes an eos packet.
func ParseEos(p Packet) (*Eos, error) {
	if err := p.need(2); err != nil {
		return nil, err
	}
	wid, err := asInt64(p[1])
	if err != nil {
		return nil, err
	}
	return &Eos{WID: wid}, nil
}

// DamageSequence acknowledges one applied draw packet:
// ["damage-sequence", seq, wid, w, h, decode_time, message].
// DecodeTimeMS is -1 when the decode failed.
type DamageSequence struct {
	Sequence     int64
	WID          int64
	Width        int
	Height       int
	DecodeTimeMS int64
	Message      string
}

// Packet builds the wire form.
func (a *DamageSequence) Packet() Packet {
	return Packet{TagDamageSequence, a.Sequence, a.WID, a.Width, a.Height, a.DecodeTimeMS, a.Message}
}

// NewWindow announces a server-side window:
// ["new-window", wid, x, y, w, h, metadata, client_properties?].
type NewWindow struct {
	WID              int64
	X, Y             int
	Width, Height    int
	Metadata         map[string]any
	OverrideRedirect bool
}

// ParseNewWindow decodes new-window and new-override-redirect packets.
func ParseNewWindow(p Packet) (*NewWindow, error) {
	if err := p.need(6); err != nil {
		return nil, err
	}
	w := &NewWindow{
		Metadata:         map[string]any{},
		OverrideRedirect: p.Type() == TagNewOverrideRedirect,
	}
	var err error
	if w.WID, err = asInt64(p[1]); err != nil {
		return nil, err
	}
	if w.X, err = asInt(p[2]); err != nil {
		return nil, err
	}
	if w.Y, err = asInt(p[3]); err != nil {
		return nil, err
	}
	if w.Width, err = asInt(p[4]); err != nil {
		return nil, err
	}
	if w.Height, err = asInt(p[5]); err != nil {
		return nil, err
	}
	if len(p) > 6 {
		if w.Metadata, err = asMap(p[6]); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// LostWindow removes a window: ["lost-window", wid].
type LostWindow struct {
	WID int64
}

// ParseLostWindow decodes a lost-window packet.
func ParseLostWindow(p Packet) (*LostWindow, error) {
	if err := p.need(2); err != nil {
		return nil, err
	}
	wid, err := asInt64(p[1])
	if err != nil {
		return nil, err
	}
	return &LostWindow{WID: wid}, nil
}

// WindowMetadata updates part of a window's metadata:
// ["window-metadata", wid, metadata].
type WindowMetadata struct {
	WID      int64
	Metadata map[string]any
}

// ParseWindowMetadata decodes a window-metadata packet.
func ParseWindowMetadata(p Packet) (*WindowMetadata, error) {
	if err := p.need(3); err != nil {
		return nil, err
	}
	wid, err := asInt64(p[1])
	if err != nil {
		return nil, err
	}
	md, err := asMap(p[2])
	if err != nil {
		return nil, err
	}
	return &WindowMetadata{WID: wid, Metadata: md}, nil
}

// WindowMoveResize repositions a window:
// ["window-move-resize", wid, x, y, w, h].
type WindowMoveResize struct {
	WID           int64
	X, Y          int
	Width, Height int
}

// ParseWindowMoveResize decodes window-move-resize; window-resized shares
// the shape minus the position.
func ParseWindowMoveResize(p Packet) (*WindowMoveResize, error) {
	if p.Type() == TagWindowResized {
		if err := p.need(4); err != nil {
			return nil, err
		}
		wid, err := asInt64(p[1])
		if err != nil {
			return nil, err
		}
		w, err := asInt(p[2])
		if err != nil {
			return nil, err
		}
		h, err := asInt(p[3])
		if err != nil {
			return nil, err
		}
		return &WindowMoveResize{WID: wid, X: -1, Y: -1, Width: w, Height: h}, nil
	}

	if err := p.need(6); err != nil {
		return nil, err
	}
	m := &WindowMoveResize{}
	var err error
	if m.WID, err = asInt64(p[1]); err != nil {
		return nil, err
	}
	if m.X, err = asInt(p[2]); err != nil {
		return nil, err
	}
	if m.Y, err = asInt(p[3]); err != nil {
		return nil, err
	}
	if m.Width, err = asInt(p[4]); err != nil {
		return nil, err
	}
	if m.Height, err = asInt(p[5]); err != nil {
		return nil, err
	}
	return m, nil
}

// Disconnect carries the peer's reason for closing:
// ["disconnect", reason, info…].
type Disconnect struct {
	Reason string
	Info   []string
}

// ParseDisconnect decodes a disconnect packet.
func ParseDisconnect(p Packet) (*Disconnect, error) {
	if err := p.need(2); err != nil {
		return nil, err
	}
	reason, err := asString(p[1])
	if err != nil {
		return nil, err
	}
	d := &Disconnect{Reason: reason}
	for _, v := range p[2:] {
		if s, err := asString(v); err == nil {
			d.Info = append(d.Info, s)
		}
	}
	return d, nil
}

// ClipboardToken announces clipboard ownership for a selection:
// ["clipboard-token", selection, …]. The OS integration lives behind the
// clipboard collaborator; the core only routes the token.
type ClipboardToken struct {
	Selection string
	Fields    []any
}

// ParseClipboardToken decodes a clipboard-token packet.
func ParseClipboardToken(p Packet) (*ClipboardToken, error) {
	if err := p.need(2); err != nil {
		return nil, err
	}
	sel, err := asString(p[1])
	if err != nil {
		return nil, err
	}
	return &ClipboardToken{Selection: sel, Fields: p[2:]}, nil
}
