// Package client implements the connection state machine: connect,
// capability exchange, challenge authentication, keepalive pings and
// bounded reconnection.
//
// The lifecycle is a linear handshake followed by a steady state:
//
//	Idle → Connecting → WaitingHello → [Authenticating] → Established
//	                                                          │
//	                       Reconnecting ←─────────────────────┤
//	                            │                             │
//	                            └────────→ Closed ←───────────┘
//
// Established is the only state in which window and paint traffic flows.
// Any transport loss or keepalive timeout moves to Reconnecting while
// the attempt budget lasts, and to Closed once it is exhausted. Closed
// is terminal.
//
// All timers are guarded by a connection epoch: timers armed by one
// connection attempt are ignored once a newer attempt has started, so a
// stale callback can never touch a newer session's state.
package client
