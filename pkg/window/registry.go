package window

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/mirada-dev/mirada/pkg/protocol"
)

// Window mirrors one server-side window.
type Window struct {
	ID int64

	mu               sync.Mutex
	x, y             int
	width, height    int
	metadata         map[string]any
	overrideRedirect bool
	surface          *Surface
}

// Surface returns the window's pixel buffer.
func (w *Window) Surface() *Surface {
	return w.surface
}

// Geometry returns the current position and size.
func (w *Window) Geometry() (x, y, width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.x, w.y, w.width, w.height
}

// OverrideRedirect reports whether the window bypasses normal window
// management (menus, tooltips).
func (w *Window) OverrideRedirect() bool {
	return w.overrideRedirect
}

// Title returns the window title from metadata, or "".
func (w *Window) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch v := w.metadata["title"].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Metadata returns a shallow copy of the metadata map.
func (w *Window) Metadata() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]any, len(w.metadata))
	for k, v := range w.metadata {
		out[k] = v
	}
	return out
}

// MergeMetadata applies a partial metadata update.
func (w *Window) MergeMetadata(md map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, v := range md {
		w.metadata[k] = v
	}
}

// MoveResize applies a geometry update. x and y of -1 keep the current
// position (pure resize). The surface is reallocated when the size
// changes, preserving overlapping content.
func (w *Window) MoveResize(x, y, width, height int) {
	w.mu.Lock()
	if x >= 0 {
		w.x = x
	}
	if y >= 0 {
		w.y = y
	}
	resize := width != w.width || height != w.height
	w.width, w.height = width, height
	w.mu.Unlock()
	if resize {
		w.surface.Resize(width, height)
	}
}

// Registry is the id-to-window table.
type Registry struct {
	mu      sync.Mutex
	windows map[int64]*Window
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		windows: make(map[int64]*Window),
		logger:  logger,
	}
}

// Add creates a window from its announcement packet. Announcing an
// existing id replaces the old window.
func (r *Registry) Add(nw *protocol.NewWindow) *Window {
	md := nw.Metadata
	if md == nil {
		md = map[string]any{}
	}
	w := &Window{
		ID:               nw.WID,
		x:                nw.X,
		y:                nw.Y,
		width:            nw.Width,
		height:           nw.Height,
		metadata:         md,
		overrideRedirect: nw.OverrideRedirect,
		surface:          NewSurface(nw.Width, nw.Height),
	}

	r.mu.Lock()
	if _, exists := r.windows[nw.WID]; exists {
		r.logger.Warn("replacing existing window", "wid", nw.WID)
	}
	r.windows[nw.WID] = w
	r.mu.Unlock()

	r.logger.Debug("new window", "wid", nw.WID, "size", nw.Width*nw.Height, "override_redirect", nw.OverrideRedirect)
	return w
}

// Get looks a window up by id.
func (r *Registry) Get(wid int64) (*Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[wid]
	return w, ok
}

// Remove drops a window. Unknown ids are ignored.
func (r *Registry) Remove(wid int64) {
	r.mu.Lock()
	delete(r.windows, wid)
	r.mu.Unlock()
}

// Reset drops every window. Called on disconnect and reconnect so no
// stale surface survives into the next session.
func (r *Registry) Reset() {
	r.mu.Lock()
	n := len(r.windows)
	r.windows = make(map[int64]*Window)
	r.mu.Unlock()
	if n > 0 {
		r.logger.Debug("registry reset", "windows", n)
	}
}

// Count returns the number of tracked windows.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// IDs returns the tracked window ids in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.windows))
	for id := range r.windows {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
