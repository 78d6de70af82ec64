package window

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
)

// Surface is a window's backing pixel buffer. All drawing operations
// clip to the surface bounds; painting outside them is not an error.
type Surface struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewSurface allocates a width x height surface, initially opaque black.
func NewSurface(width, height int) *Surface {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xFF
	}
	return &Surface{img: img}
}

// Bounds returns the surface rectangle.
func (s *Surface) Bounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img.Bounds()
}

// Resize reallocates the buffer, preserving the overlapping region.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if s.img.Rect.Dx() == width && s.img.Rect.Dy() == height {
		return
	}
	next := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(next.Pix); i += 4 {
		next.Pix[i] = 0xFF
	}
	draw.Draw(next, next.Bounds(), s.img, image.Point{}, draw.Src)
	s.img = next
}

// DrawRGB blits raw pixel rows at (x, y). bytesPerPixel is 3 for rgb24
// (alpha forced opaque) or 4 for rgb32. rowstride is the source row
// length in bytes; zero means tightly packed.
func (s *Surface) DrawRGB(x, y, width, height int, pixels []byte, rowstride, bytesPerPixel int) error {
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return fmt.Errorf("window: unsupported pixel depth %d", bytesPerPixel)
	}
	if rowstride <= 0 {
		rowstride = width * bytesPerPixel
	}
	if rowstride < width*bytesPerPixel {
		return fmt.Errorf("window: rowstride %d too small for %d pixels", rowstride, width)
	}
	if need := rowstride * height; len(pixels) < need {
		return fmt.Errorf("window: pixel buffer %d bytes, need %d", len(pixels), need)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bounds := s.img.Rect
	for row := 0; row < height; row++ {
		dy := y + row
		if dy < bounds.Min.Y || dy >= bounds.Max.Y {
			continue
		}
		src := pixels[row*rowstride:]
		for col := 0; col < width; col++ {
			dx := x + col
			if dx < bounds.Min.X || dx >= bounds.Max.X {
				continue
			}
			p := src[col*bytesPerPixel:]
			off := s.img.PixOffset(dx, dy)
			s.img.Pix[off+0] = p[0]
			s.img.Pix[off+1] = p[1]
			s.img.Pix[off+2] = p[2]
			if bytesPerPixel == 4 {
				s.img.Pix[off+3] = p[3]
			} else {
				s.img.Pix[off+3] = 0xFF
			}
		}
	}
	return nil
}

// DrawImage blits a decoded image at (x, y).
func (s *Surface) DrawImage(x, y int, src image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := src.Bounds()
	dst := image.Rect(x, y, x+r.Dx(), y+r.Dy())
	draw.Draw(s.img, dst, src, r.Min, draw.Src)
}

// Scroll copies the (sx, sy, sw, sh) region of the surface's previous
// contents to (sx+dx, sy+dy). Overlapping moves are safe: the source is
// snapshotted into a temporary buffer first.
func (s *Surface) Scroll(sx, sy, sw, sh, dx, dy int) error {
	if sw <= 0 || sh <= 0 {
		return fmt.Errorf("window: scroll region %dx%d", sw, sh)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := image.Rect(sx, sy, sx+sw, sy+sh).Intersect(s.img.Rect)
	if src.Empty() {
		return nil
	}
	tmp := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	draw.Draw(tmp, tmp.Bounds(), s.img, src.Min, draw.Src)

	dst := image.Rect(src.Min.X+dx, src.Min.Y+dy, src.Max.X+dx, src.Max.Y+dy)
	draw.Draw(s.img, dst, tmp, image.Point{}, draw.Src)
	return nil
}

// Snapshot returns a copy of the current contents.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// At returns the pixel at (x, y) as RGBA bytes. Test helper.
func (s *Surface) At(x, y int) [4]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := s.img.PixOffset(x, y)
	return [4]byte{s.img.Pix[off], s.img.Pix[off+1], s.img.Pix[off+2], s.img.Pix[off+3]}
}
