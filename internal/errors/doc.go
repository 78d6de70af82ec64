// Package errors provides structured, actionable error messages for Mirada.
//
// Every failure the client surfaces to a user carries a stable code, a
// category, and enough context to act on it:
//   - transport: connection establishment and loss
//   - frame: wire framing violations (bad magic, oversized payloads)
//   - cipher: encryption negotiation and key material mismatches
//   - serialization: packets that could not be decoded
//   - handshake: capability exchange, authentication, version checks
//   - paint: pixel decode and window update failures
//   - config: malformed or incomplete configuration
//   - cli: command-line usage errors
//
// # Error Codes
//
// Each error has a unique code (e.g., "E061") that maps to a short
// message, a detailed explanation, and a documentation URL.
//
// # Usage
//
//	err := errors.New("E083").
//	    WithSuggestion("Connect over wss:// or set encryption.allow-insecure-xor")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E083: Refusing xor digest over insecure transport
//	//
//	//   The xor salt digest exposes password material to anyone who can
//	//   read the connection, so it is only allowed over TLS.
//	//
//	//   Hint: Connect over wss:// or set encryption.allow-insecure-xor
//	//
//	//   Learn more: https://mirada.dev/docs/errors/E083
package errors
