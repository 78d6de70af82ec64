// Package protocol implements the binary wire protocol spoken by a Mirada
// display server.
//
// The protocol moves self-describing packets (bencoded lists whose first
// element is a string tag) inside fixed-header frames, with optional
// per-frame compression and symmetric encryption applied on both
// directions.
//
// # Wire Format
//
// Every frame starts with an 8-byte header:
//
//	┌───────┬─────────────┬───────────────┬─────────┬──────────────────────┐
//	│ Magic │ Proto Flags │ Compr. Level  │ Index   │ Payload Size         │
//	│ 'P'   │ (1 byte)    │ (1 byte)      │ (1 byte)│ (4 bytes, big-endian)│
//	└───────┴─────────────┴───────────────┴─────────┴──────────────────────┘
//
// Proto flags select per-frame processing: FlagCipher marks an encrypted
// payload whose on-wire size is rounded up to the cipher block size. The
// compression level byte selects zlib (low nibble), lz4 (0x10) or brotli
// (0x40); the lzo bit (0x20) is a protocol violation and closes the
// connection.
//
// The index byte implements raw subpackets: a frame with index 0 carries a
// bencoded packet, a frame with index 1-19 carries an opaque binary blob
// that is spliced into position <index> of the next index-0 packet. This
// keeps large pixel buffers out of the serializer.
//
// # Layers
//
// The package is organised as independent strategies glued together by the
// session layer:
//
//   - FrameReader: incremental header/payload accumulation (header.go)
//   - Compress/Decompress: per-packet compression strategies (compress.go)
//   - CipherState: AES-CBC with PBKDF2 key stretching (cipher.go)
//   - Encode/Decode: bencode value serialization (bencode.go)
//   - Packet: typed views over positional packet fields (packet.go)
//
// None of these block on I/O; all state is per-connection and injected at
// construction so concurrent sessions never share mutable state.
package protocol
