package protocol

import (
	"errors"
	"fmt"
)

// Frame constants.
const (
	// HeaderSize is the size of the frame header in bytes.
	HeaderSize = 8

	// Magic is the first byte of every frame header.
	Magic = byte('P')

	// MaxRawIndex bounds the raw subpacket index; index 0 is the primary
	// packet, 1..MaxRawIndex-1 are auxiliary binary slots.
	MaxRawIndex = 20
)

// ProtoFlags are the per-frame protocol flags (header byte 1).
type ProtoFlags uint8

const (
	FlagSerializer ProtoFlags = 0x01 // reserved serializer variant, must be clear
	FlagCipher     ProtoFlags = 0x02 // payload is encrypted
	FlagFlush      ProtoFlags = 0x08 // peer hint: more frames follow immediately
	FlagNoHeader   ProtoFlags = 0x40 // send-side only, never valid on receive
)

// Has returns true if the flags contain the specified flag.
func (pf ProtoFlags) Has(flag ProtoFlags) bool {
	return pf&flag != 0
}

// Compression level byte bits (header byte 2). The low nibble carries the
// zlib level used by the sender; a zero byte means uncompressed.
const (
	ZlibLevelMask byte = 0x0F
	LZ4Flag       byte = 0x10
	LZOFlag       byte = 0x20 // unsupported, fatal on receive
	BrotliFlag    byte = 0x40 // decode only
)

// Frame errors. All of these are fatal to the connection: they indicate a
// peer speaking a different protocol, not transient loss.
var (
	ErrBadMagic       = errors.New("protocol: bad frame magic")
	ErrLZOUnsupported = errors.New("protocol: peer sent lzo-compressed frame")
	ErrSerializerFlag = errors.New("protocol: peer requested an unsupported serializer")
	ErrIndexTooLarge  = errors.New("protocol: raw subpacket index out of range")
	ErrFrameTooLarge  = errors.New("protocol: frame payload exceeds maximum size")
	ErrCipherMissing  = errors.New("protocol: encrypted frame before cipher negotiation")
)

// Header is the decoded 8-byte frame header.
type Header struct {
	Flags ProtoFlags
	Level byte // compression level byte
	Index int  // raw subpacket index, 0 = primary packet
	Size  int  // declared payload size, before cipher padding
}

// PackHeader encodes a frame header into wire format.
func PackHeader(flags ProtoFlags, level byte, index, size int) []byte {
	return []byte{
		Magic,
		byte(flags),
		level,
		byte(index),
		byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size),
	}
}

// Frame is one complete unit off the wire: its header plus the payload of
// the declared (possibly cipher-padded) length.
type Frame struct {
	Header  Header
	Payload []byte
}

// BlockSizeFunc reports the negotiated inbound cipher block size, or zero
// when no cipher is active. The frame reader consults it when an encrypted
// frame header arrives, because the on-wire payload length is the declared
// size rounded up to a block multiple.
type BlockSizeFunc func() int

// FrameReader slices a byte stream into frames. It tolerates input split at
// any byte boundary, including mid-header, and never emits partial frames.
//
// FrameReader is not safe for concurrent use; the session feeds it from a
// single goroutine.
type FrameReader struct {
	blockSize BlockSizeFunc

	header  [HeaderSize]byte
	headerN int

	cur     Header
	payload []byte
	want    int
	inBody  bool
}

// NewFrameReader creates a frame reader. blockSize may be nil when
// encryption will never be negotiated.
func NewFrameReader(blockSize BlockSizeFunc) *FrameReader {
	return &FrameReader{blockSize: blockSize}
}

// Feed appends data to the accumulator and returns all frames completed by
// it, in arrival order. Any returned error is fatal: the reader is left in
// an undefined state and the connection must be closed.
func (r *FrameReader) Feed(data []byte) ([]Frame, error) {
	var frames []Frame

	for len(data) > 0 {
		if !r.inBody {
			n := copy(r.header[r.headerN:], data)
			r.headerN += n
			data = data[n:]
			if r.headerN < HeaderSize {
				return frames, nil
			}
			if err := r.parseHeader(); err != nil {
				return frames, err
			}
		}

		take := min(r.want-len(r.payload), len(data))
		r.payload = append(r.payload, data[:take]...)
		data = data[take:]

		if len(r.payload) == r.want {
			frames = append(frames, Frame{Header: r.cur, Payload: r.payload})
			r.payload = nil
			r.headerN = 0
			r.inBody = false
		}
	}

	return frames, nil
}

// parseHeader validates the accumulated header and arms payload collection.
func (r *FrameReader) parseHeader() error {
	h := r.header

	if h[0] != Magic {
		return fmt.Errorf("%w: 0x%02x", ErrBadMagic, h[0])
	}

	flags := ProtoFlags(h[1])
	level := h[2]
	index := int(h[3])
	size := int(h[4])<<24 | int(h[5])<<16 | int(h[6])<<8 | int(h[7])

	if flags.Has(FlagSerializer) {
		return ErrSerializerFlag
	}
	if level&LZOFlag != 0 {
		return ErrLZOUnsupported
	}
	if index >= MaxRawIndex {
		return fmt.Errorf("%w: %d", ErrIndexTooLarge, index)
	}
	if size > MaxPacketSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	want := size
	if flags.Has(FlagCipher) {
		var bs int
		if r.blockSize != nil {
			bs = r.blockSize()
		}
		if bs <= 0 {
			return ErrCipherMissing
		}
		// The sender always pads, a full block when already aligned.
		want = PaddedSize(size, bs)
	}

	r.cur = Header{Flags: flags, Level: level, Index: index, Size: size}
	r.want = want
	r.payload = make([]byte, 0, want)
	r.inBody = true
	return nil
}
