package window

import (
	"testing"

	"github.com/mirada-dev/mirada/pkg/protocol"
)

func announce(wid int64, w, h int) *protocol.NewWindow {
	return &protocol.NewWindow{
		WID: wid, X: 10, Y: 20, Width: w, Height: h,
		Metadata: map[string]any{"title": []byte("xterm")},
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(nil)

	w := r.Add(announce(1, 640, 480))
	if w.ID != 1 {
		t.Errorf("ID = %d", w.ID)
	}
	if w.Title() != "xterm" {
		t.Errorf("Title() = %q", w.Title())
	}
	if got := w.Surface().Bounds(); got.Dx() != 640 || got.Dy() != 480 {
		t.Errorf("surface bounds = %v", got)
	}

	r.Add(announce(3, 100, 100))
	r.Add(announce(2, 100, 100))
	if r.Count() != 3 {
		t.Errorf("Count() = %d", r.Count())
	}
	ids := r.IDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("IDs() = %v", ids)
	}

	r.Remove(2)
	if _, ok := r.Get(2); ok {
		t.Error("removed window still present")
	}
	r.Remove(99) // unknown id is fine

	r.Reset()
	if r.Count() != 0 {
		t.Errorf("Count() after Reset = %d", r.Count())
	}
}

func TestWindowMetadataMerge(t *testing.T) {
	r := NewRegistry(nil)
	w := r.Add(announce(1, 64, 64))

	w.MergeMetadata(map[string]any{"title": []byte("vim"), "iconic": true})
	if w.Title() != "vim" {
		t.Errorf("Title() = %q", w.Title())
	}
	md := w.Metadata()
	if md["iconic"] != true {
		t.Errorf("metadata = %v", md)
	}
}

func TestWindowMoveResize(t *testing.T) {
	r := NewRegistry(nil)
	w := r.Add(announce(1, 64, 64))

	w.MoveResize(5, 6, 128, 96)
	x, y, width, height := w.Geometry()
	if x != 5 || y != 6 || width != 128 || height != 96 {
		t.Errorf("geometry = %d,%d %dx%d", x, y, width, height)
	}
	if got := w.Surface().Bounds(); got.Dx() != 128 || got.Dy() != 96 {
		t.Errorf("surface bounds = %v", got)
	}

	// Pure resize keeps the position.
	w.MoveResize(-1, -1, 256, 128)
	x, y, _, _ = w.Geometry()
	if x != 5 || y != 6 {
		t.Errorf("position moved on resize: %d,%d", x, y)
	}
}

func TestRegistryReplaceExistingID(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(announce(1, 64, 64))
	w2 := r.Add(announce(1, 32, 32))

	got, ok := r.Get(1)
	if !ok || got != w2 {
		t.Error("announcement did not replace existing window")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d", r.Count())
	}
}
