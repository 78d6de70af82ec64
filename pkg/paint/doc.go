// Package paint applies draw packets to window surfaces and emits
// damage-sequence acknowledgements.
//
// Each window owns a strict FIFO queue of paint requests with at most
// one decode in flight at a time; a decode stuck past the staleness
// threshold is treated as abandoned so the queue never wedges. Decodes
// for different windows run concurrently.
//
// Supported paths:
//   - rgb24/rgb32: raw pixel blits, optionally with an inline
//     zlib or lz4 compressed pixel buffer
//   - png/jpeg/webp: still-image decode, blitted once decoded
//   - video codings: a persistent streaming decoder per window, keyed
//     by the "frame" counter in the draw options (0 resets the decoder)
//   - scroll: blits of the window's own previous frame, no payload
//     decode
//
// Every processed draw, successful or not, is acknowledged with its
// sequence number and decode time (-1 plus an error message on
// failure). The receive path never waits on a decode: acknowledgements
// fire from the decode goroutine.
package paint
