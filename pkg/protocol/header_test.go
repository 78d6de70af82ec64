package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func buildFrame(flags ProtoFlags, level byte, index int, payload []byte) []byte {
	return append(PackHeader(flags, level, index, len(payload)), payload...)
}

func TestFrameReaderWholeBuffer(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xAB}, 1024),
	}

	var stream []byte
	for i, p := range payloads {
		stream = append(stream, buildFrame(0, 0, i%3, p)...)
	}

	r := NewFrameReader(nil)
	frames, err := r.Feed(stream)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != len(payloads) {
		t.Fatalf("Feed() produced %d frames, want %d", len(frames), len(payloads))
	}
	for i, f := range frames {
		if !bytes.Equal(f.Payload, payloads[i]) {
			t.Errorf("frame %d payload = %q, want %q", i, f.Payload, payloads[i])
		}
		if f.Header.Index != i%3 {
			t.Errorf("frame %d index = %d, want %d", i, f.Header.Index, i%3)
		}
	}
}

// Fragmentation property: any chunking of the input yields the same frame
// sequence as feeding the whole buffer at once.
func TestFrameReaderFragmentation(t *testing.T) {
	payloads := [][]byte{
		[]byte("first"),
		bytes.Repeat([]byte{0x42}, 300),
		[]byte("x"),
		{},
	}
	var stream []byte
	for _, p := range payloads {
		stream = append(stream, buildFrame(0, 0, 0, p)...)
	}

	for _, chunkSize := range []int{1, 2, 3, 5, 7, 8, 9, 64, 257} {
		t.Run("", func(t *testing.T) {
			r := NewFrameReader(nil)
			var frames []Frame
			for off := 0; off < len(stream); off += chunkSize {
				end := min(off+chunkSize, len(stream))
				got, err := r.Feed(stream[off:end])
				if err != nil {
					t.Fatalf("chunk %d: Feed() error = %v", chunkSize, err)
				}
				frames = append(frames, got...)
			}
			if len(frames) != len(payloads) {
				t.Fatalf("chunk %d: got %d frames, want %d", chunkSize, len(frames), len(payloads))
			}
			for i, f := range frames {
				if !bytes.Equal(f.Payload, payloads[i]) {
					t.Errorf("chunk %d: frame %d payload mismatch", chunkSize, i)
				}
			}
		})
	}
}

func TestFrameReaderFatalHeaders(t *testing.T) {
	tests := []struct {
		name    string
		header  []byte
		wantErr error
	}{
		{
			name:    "bad_magic",
			header:  []byte{'Q', 0, 0, 0, 0, 0, 0, 1},
			wantErr: ErrBadMagic,
		},
		{
			name:    "lzo_flag",
			header:  PackHeader(0, LZOFlag, 0, 4),
			wantErr: ErrLZOUnsupported,
		},
		{
			name:    "serializer_flag",
			header:  PackHeader(FlagSerializer, 0, 0, 4),
			wantErr: ErrSerializerFlag,
		},
		{
			name:    "index_too_large",
			header:  PackHeader(0, 0, MaxRawIndex, 4),
			wantErr: ErrIndexTooLarge,
		},
		{
			name:    "oversized_payload",
			header:  PackHeader(0, 0, 0, MaxPacketSize+1),
			wantErr: ErrFrameTooLarge,
		},
		{
			name:    "encrypted_without_cipher",
			header:  PackHeader(FlagCipher, 0, 0, 16),
			wantErr: ErrCipherMissing,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewFrameReader(nil)
			_, err := r.Feed(tc.header)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Feed() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestFrameReaderCipherPadding(t *testing.T) {
	const blockSize = 16

	// Declared size 20 rounds up to 32 on the wire.
	payload := bytes.Repeat([]byte{0x01}, 32)
	frame := append(PackHeader(FlagCipher, 0, 0, 20), payload...)

	r := NewFrameReader(func() int { return blockSize })

	frames, err := r.Feed(frame[:len(frame)-1])
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("frame emitted before padded payload complete")
	}

	frames, err = r.Feed(frame[len(frame)-1:])
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if got := frames[0].Header.Size; got != 20 {
		t.Errorf("declared size = %d, want 20", got)
	}
	if got := len(frames[0].Payload); got != 32 {
		t.Errorf("padded payload = %d bytes, want 32", got)
	}

	// An aligned declared size still gains one full pad block.
	frames, err = r.Feed(append(PackHeader(FlagCipher, 0, 0, blockSize), bytes.Repeat([]byte{2}, 2*blockSize)...))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 1 || len(frames[0].Payload) != 2*blockSize {
		t.Fatalf("aligned frame missing its pad block: %+v", frames)
	}
}
