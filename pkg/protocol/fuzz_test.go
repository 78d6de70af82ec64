package protocol

import (
	"testing"
)

// FuzzDecode tests that decoding arbitrary bytes doesn't panic.
func FuzzDecode(f *testing.F) {
	// Seed with valid bencode values
	seeds := []any{
		int64(0),
		int64(-42),
		[]byte("hello"),
		[]any{int64(1), []byte("two"), []any{}},
		map[string]any{"version": []byte("5.0"), "windows": int64(1)},
		Packet{TagPing, int64(1700000000000)},
	}
	for _, v := range seeds {
		if data, err := Encode(v); err == nil {
			f.Add(data)
		}
	}
	f.Add([]byte("i42e"))
	f.Add([]byte("4:spam"))
	f.Add([]byte("li1ei2ee"))
	f.Add([]byte("d3:key5:valuee"))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Should not panic
		v, err := Decode(data)
		if err != nil {
			return
		}
		// Anything that decodes must re-encode.
		if _, err := Encode(v); err != nil {
			t.Errorf("Encode(Decode(%q)) error = %v", data, err)
		}
	})
}

// FuzzFrameReader tests that feeding arbitrary bytes doesn't panic.
func FuzzFrameReader(f *testing.F) {
	// Seed with valid frames
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	f.Add(append(PackHeader(0, 0, 0, len(payload)), payload...))
	f.Add(append(PackHeader(FlagFlush, 5, 1, len(payload)), payload...))
	f.Add(PackHeader(0, 0, 0, 0))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Should not panic, with or without an inbound cipher
		r := NewFrameReader(nil)
		_, _ = r.Feed(data)

		r = NewFrameReader(func() int { return 16 })
		_, _ = r.Feed(data)
	})
}
