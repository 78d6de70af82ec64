package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// The wire serializer is classic bencode: the byte grammar is an external
// contract shared with non-migrated peers, so it is reproduced exactly:
//
//	integer     i<decimal>e
//	byte string <length>:<bytes>
//	list        l<values…>e
//	dictionary  d<key><value>…e   (keys are byte strings, unique)
//
// Decoded values use a closed set of Go types: int64, []byte, []any and
// map[string]any. Encode additionally accepts string, bool and the other
// integer widths for convenience.

// Serialization errors. A malformed payload drops only the offending
// packet; framing keeps the byte stream synchronized.
var (
	ErrBencodeTruncated = errors.New("protocol: bencode value truncated")
	ErrBencodeSyntax    = errors.New("protocol: bencode syntax error")
	ErrBencodeTrailing  = errors.New("protocol: trailing bytes after bencode value")
	ErrBencodeDepth     = errors.New("protocol: bencode nesting too deep")
	ErrBencodeType      = errors.New("protocol: unencodable value type")
	ErrBencodeDupKey    = errors.New("protocol: duplicate dictionary key")
)

// Encode serializes a value into bencode bytes.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any, depth int) error {
	if depth > MaxNestingDepth {
		return ErrBencodeDepth
	}

	switch x := v.(type) {
	case nil:
		// The peer has no null; encode as the empty string.
		buf.WriteString("0:")
	case int64:
		encodeInt(buf, x)
	case int:
		encodeInt(buf, int64(x))
	case int32:
		encodeInt(buf, int64(x))
	case int16:
		encodeInt(buf, int64(x))
	case int8:
		encodeInt(buf, int64(x))
	case uint8:
		encodeInt(buf, int64(x))
	case uint16:
		encodeInt(buf, int64(x))
	case uint32:
		encodeInt(buf, int64(x))
	case uint64:
		encodeInt(buf, int64(x))
	case uint:
		encodeInt(buf, int64(x))
	case bool:
		if x {
			encodeInt(buf, 1)
		} else {
			encodeInt(buf, 0)
		}
	case string:
		encodeBytes(buf, []byte(x))
	case []byte:
		encodeBytes(buf, x)
	case []any:
		buf.WriteByte('l')
		for _, item := range x {
			if err := encodeValue(buf, item, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('e')
	case Packet:
		return encodeValue(buf, []any(x), depth)
	case []string:
		buf.WriteByte('l')
		for _, item := range x {
			encodeBytes(buf, []byte(item))
		}
		buf.WriteByte('e')
	case map[string]any:
		buf.WriteByte('d')
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		// Sorted keys keep the encoding deterministic for tests and
		// digest computation.
		sort.Strings(keys)
		for _, k := range keys {
			encodeBytes(buf, []byte(k))
			if err := encodeValue(buf, x[k], depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('e')
	default:
		return fmt.Errorf("%w: %T", ErrBencodeType, v)
	}
	return nil
}

func encodeInt(buf *bytes.Buffer, v int64) {
	buf.WriteByte('i')
	buf.WriteString(strconv.FormatInt(v, 10))
	buf.WriteByte('e')
}

func encodeBytes(buf *bytes.Buffer, b []byte) {
	buf.WriteString(strconv.Itoa(len(b)))
	buf.WriteByte(':')
	buf.Write(b)
}

// Decode deserializes one bencode value and requires it to span the whole
// input.
func Decode(data []byte) (any, error) {
	v, rest, err := decodeValue(data, 0)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBencodeTrailing, len(rest))
	}
	return v, nil
}

func decodeValue(data []byte, depth int) (any, []byte, error) {
	if depth > MaxNestingDepth {
		return nil, nil, ErrBencodeDepth
	}
	if len(data) == 0 {
		return nil, nil, ErrBencodeTruncated
	}

	switch c := data[0]; {
	case c == 'i':
		return decodeInt(data)
	case c >= '0' && c <= '9':
		return decodeBytesValue(data)
	case c == 'l':
		return decodeList(data, depth)
	case c == 'd':
		return decodeDict(data, depth)
	default:
		return nil, nil, fmt.Errorf("%w: unexpected byte 0x%02x", ErrBencodeSyntax, c)
	}
}

func decodeInt(data []byte) (any, []byte, error) {
	end := bytes.IndexByte(data, 'e')
	if end < 0 {
		return nil, nil, ErrBencodeTruncated
	}
	v, err := strconv.ParseInt(string(data[1:end]), 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad integer %q", ErrBencodeSyntax, data[1:end])
	}
	return v, data[end+1:], nil
}

func decodeBytesValue(data []byte) (any, []byte, error) {
	colon := bytes.IndexByte(data, ':')
	if colon < 0 {
		return nil, nil, ErrBencodeTruncated
	}
	length, err := strconv.Atoi(string(data[:colon]))
	if err != nil || length < 0 {
		return nil, nil, fmt.Errorf("%w: bad string length %q", ErrBencodeSyntax, data[:colon])
	}
	if length > MaxPacketSize {
		return nil, nil, fmt.Errorf("%w: string of %d bytes", ErrFrameTooLarge, length)
	}
	rest := data[colon+1:]
	if len(rest) < length {
		return nil, nil, ErrBencodeTruncated
	}
	out := make([]byte, length)
	copy(out, rest[:length])
	return out, rest[length:], nil
}

func decodeList(data []byte, depth int) (any, []byte, error) {
	rest := data[1:]
	list := []any{}
	for {
		if len(rest) == 0 {
			return nil, nil, ErrBencodeTruncated
		}
		if rest[0] == 'e' {
			return list, rest[1:], nil
		}
		if len(list) >= MaxCollectionCount {
			return nil, nil, fmt.Errorf("%w: list too long", ErrBencodeSyntax)
		}
		var (
			v   any
			err error
		)
		v, rest, err = decodeValue(rest, depth+1)
		if err != nil {
			return nil, nil, err
		}
		list = append(list, v)
	}
}

func decodeDict(data []byte, depth int) (any, []byte, error) {
	rest := data[1:]
	dict := map[string]any{}
	for {
		if len(rest) == 0 {
			return nil, nil, ErrBencodeTruncated
		}
		if rest[0] == 'e' {
			return dict, rest[1:], nil
		}
		if len(dict) >= MaxCollectionCount {
			return nil, nil, fmt.Errorf("%w: dictionary too large", ErrBencodeSyntax)
		}
		rawKey, afterKey, err := decodeBytesValue(rest)
		if err != nil {
			return nil, nil, err
		}
		key := string(rawKey.([]byte))
		if _, dup := dict[key]; dup {
			return nil, nil, fmt.Errorf("%w: %q", ErrBencodeDupKey, key)
		}
		var v any
		v, rest, err = decodeValue(afterKey, depth+1)
		if err != nil {
			return nil, nil, err
		}
		dict[key] = v
	}
}
