package paint

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/webp"

	"github.com/mirada-dev/mirada/pkg/protocol"
	"github.com/mirada-dev/mirada/pkg/window"
)

// StreamDecoder is one persistent video decode session for one window.
// Implementations are not required to be safe for concurrent use: the
// pipeline serializes calls per window.
type StreamDecoder interface {
	// DecodeFrame decodes the next compressed frame into an image.
	DecodeFrame(data []byte, options map[string]any) (image.Image, error)

	// Close releases the decoder. Called on eos, on a frame counter
	// reset, and on teardown.
	Close()
}

// StreamDecoderFactory creates a decoder for one window-sized stream.
type StreamDecoderFactory func(coding string, width, height int) (StreamDecoder, error)

// pixelPayload undoes the optional inline compression of a raw rgb
// buffer. The draw options say which codec was applied; absent both
// markers the payload is already raw.
func pixelPayload(d *protocol.Draw) ([]byte, error) {
	switch {
	case d.IntOption("zlib", 0) > 0:
		return protocol.Decompress(byte(d.IntOption("zlib", 0))&protocol.ZlibLevelMask, d.Data)
	case d.IntOption("lz4", 0) > 0:
		return protocol.Decompress(protocol.LZ4Flag, d.Data)
	default:
		return d.Data, nil
	}
}

// blitRGB applies an rgb24 or rgb32 draw to the surface.
func blitRGB(s *window.Surface, d *protocol.Draw) error {
	pixels, err := pixelPayload(d)
	if err != nil {
		return err
	}
	depth := 3
	if d.Coding == "rgb32" {
		depth = 4
	}
	return s.DrawRGB(d.X, d.Y, d.Width, d.Height, pixels, d.Rowstride, depth)
}

// decodeStill decodes a still-image payload.
func decodeStill(coding string, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch coding {
	case "png":
		return png.Decode(r)
	case "jpeg", "jpg":
		return jpeg.Decode(r)
	case "webp":
		return webp.Decode(r)
	default:
		return nil, fmt.Errorf("paint: no still decoder for %q", coding)
	}
}

// scrollOp is one region blit of the window's previous frame.
type scrollOp struct {
	X, Y, W, H, DX, DY int
}

// parseScrolls extracts the scroll instruction list from the draw
// options: a list of [x, y, w, h, dx, dy] records.
func parseScrolls(options map[string]any) ([]scrollOp, error) {
	raw, ok := options["scrolls"].([]any)
	if !ok {
		return nil, fmt.Errorf("paint: scroll draw without scrolls option")
	}
	ops := make([]scrollOp, 0, len(raw))
	for _, item := range raw {
		fields, ok := item.([]any)
		if !ok || len(fields) < 6 {
			return nil, fmt.Errorf("paint: malformed scroll record %v", item)
		}
		var vals [6]int
		for i := 0; i < 6; i++ {
			switch n := fields[i].(type) {
			case int64:
				vals[i] = int(n)
			case int:
				vals[i] = n
			default:
				return nil, fmt.Errorf("paint: scroll field %d is %T", i, fields[i])
			}
		}
		ops = append(ops, scrollOp{vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]})
	}
	return ops, nil
}

// applyScrolls blits each region of the surface's previous contents.
func applyScrolls(s *window.Surface, ops []scrollOp) error {
	for _, op := range ops {
		if err := s.Scroll(op.X, op.Y, op.W, op.H, op.DX, op.DY); err != nil {
			return err
		}
	}
	return nil
}

// isStillCoding reports whether the coding is a one-shot image format.
func isStillCoding(coding string) bool {
	switch coding {
	case "png", "jpeg", "jpg", "webp":
		return true
	default:
		return false
	}
}

// isRGBCoding reports whether the coding is a raw pixel blit.
func isRGBCoding(coding string) bool {
	return coding == "rgb24" || coding == "rgb32"
}
