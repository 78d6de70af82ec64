package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/pierrec/lz4/v4"
)

// Compression errors.
var (
	ErrDecompressTooLarge = errors.New("protocol: decompressed payload exceeds maximum size")
	ErrLZ4Truncated       = errors.New("protocol: lz4 block shorter than its length prefix")
	ErrLZ4BadSize         = errors.New("protocol: lz4 block declares invalid decoded size")
)

// Decompress undoes the compression selected by the frame's level byte.
// A zero level byte returns the input unchanged.
func Decompress(level byte, data []byte) ([]byte, error) {
	switch {
	case level&LZOFlag != 0:
		// The frame reader rejects lzo before the payload is read; this
		// guards direct callers.
		return nil, ErrLZOUnsupported
	case level&LZ4Flag != 0:
		return lz4Decompress(data)
	case level&BrotliFlag != 0:
		return brotliDecompress(data)
	case level&ZlibLevelMask != 0:
		return zlibDecompress(data)
	default:
		return data, nil
	}
}

// lz4Decompress decodes one lz4 block prefixed with its little-endian
// decoded size. A non-positive prefix equal to the negated compressed
// length is an empty end-of-block marker from the peer's framing layer,
// not an error.
func lz4Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrLZ4Truncated
	}
	size := int32(binary.LittleEndian.Uint32(data[:4]))
	block := data[4:]

	if size <= 0 {
		if int(size) == -len(block) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %d", ErrLZ4BadSize, size)
	}
	if int(size) > MaxDecompressedSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDecompressTooLarge, size)
	}

	out := make([]byte, size)
	n, err := lz4.UncompressBlock(block, out)
	if err != nil {
		return nil, fmt.Errorf("protocol: lz4 decode: %w", err)
	}
	return out[:n], nil
}

func zlibDecompress(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("protocol: zlib decode: %w", err)
	}
	defer zr.Close()
	return readCapped(zr)
}

func brotliDecompress(data []byte) ([]byte, error) {
	br := brotli.NewReader(bytes.NewReader(data))
	out, err := readCapped(br)
	if err != nil {
		return nil, fmt.Errorf("protocol: brotli decode: %w", err)
	}
	return out, nil
}

// readCapped drains r, failing once the output grows past
// MaxDecompressedSize.
func readCapped(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxDecompressedSize+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecompressedSize {
		return nil, ErrDecompressTooLarge
	}
	return out, nil
}

// Compressor chooses how outbound packets are compressed. The session owns
// one and applies it to every encoded packet before encryption.
type Compressor interface {
	// Compress returns the level byte to place in the frame header and the
	// (possibly transformed) payload.
	Compress(data []byte) (byte, []byte, error)
}

// NoCompression sends every packet uncompressed. It is the default: the
// reference sender leaves compression to the transport, and the interface
// stays pluggable for peers that benefit from it.
type NoCompression struct{}

// Compress implements Compressor.
func (NoCompression) Compress(data []byte) (byte, []byte, error) {
	return 0, data, nil
}

// ZlibCompressor compresses outbound packets with zlib at a fixed level
// (1..9).
type ZlibCompressor struct {
	Level int
}

// Compress implements Compressor.
func (c ZlibCompressor) Compress(data []byte) (byte, []byte, error) {
	level := c.Level
	if level < 1 || level > 9 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return 0, nil, fmt.Errorf("protocol: zlib encode: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return 0, nil, fmt.Errorf("protocol: zlib encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, nil, fmt.Errorf("protocol: zlib encode: %w", err)
	}
	return byte(level) & ZlibLevelMask, buf.Bytes(), nil
}

// LZ4Compressor compresses outbound packets as a single lz4 block with the
// little-endian decoded-size prefix the peer expects.
type LZ4Compressor struct{}

// Compress implements Compressor.
func (LZ4Compressor) Compress(data []byte) (byte, []byte, error) {
	buf := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(data)))

	var c lz4.Compressor
	n, err := c.CompressBlock(data, buf[4:])
	if err != nil {
		return 0, nil, fmt.Errorf("protocol: lz4 encode: %w", err)
	}
	if n == 0 {
		// Incompressible input; fall back to sending it as-is.
		return 0, data, nil
	}
	return LZ4Flag, buf[:4+n], nil
}
