// Package window tracks the server's windows and their pixel surfaces.
//
// A Window is the client-side mirror of one server window: geometry,
// metadata and an RGBA surface holding the last painted frame. The
// Registry owns the id-to-window table; the paint pipeline looks windows
// up by id and draws into their surfaces.
//
// Scroll paints read from the surface's own previous contents, so the
// surface is retained across frames rather than repainted from scratch.
package window
