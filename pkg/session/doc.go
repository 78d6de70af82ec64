// Package session glues the protocol layers (frame codec, compression,
// cipher, serializer) into one bidirectional packet session over a
// byte-stream transport.
//
// A Session owns the receive accumulator, the raw-subpacket side table and
// the send queue. Inbound bytes are sliced into frames, decrypted and
// decompressed as flagged, decoded, reassembled with any pending raw
// subpackets and dispatched to the registered packet handler. Outbound
// packets are queued by Send and written in FIFO order by the session's
// own write loop, so callers never block on the transport.
//
// The Actor wrapper runs a Session behind a command channel with an
// identical interface, for deployments that want the whole
// receive/decode/dispatch loop isolated on its own goroutine. Callers
// cannot tell the two apart; both satisfy Conn.
package session
