// Package viewport coordinates rendering sessions: navigation, tool
// routing, view-state save/restore, and annotation sync.
package viewport

import (
	"sync"

	"dicom-viewer/internal/annotation"
)

// Tool names understood by the viewer. The drawing tools match the
// annotation package's drawing-tool set; the rest are navigation tools
// and never arm the annotation sync engine.
const (
	ToolWindowLevel = "windowlevel"
	ToolZoom        = "zoom"
	ToolPan         = "pan"

	ToolRectangle = "rectangle"
	ToolEllipse   = "ellipse"
	ToolLength    = "length"
	ToolAngle     = "angle"
	ToolArrow     = "arrow"
	ToolFreehand  = "freehand"
)

// PointerButton identifies which pointer button triggered an event.
type PointerButton int

const (
	ButtonPrimary PointerButton = iota
	ButtonSecondary
	ButtonTertiary
)

// ToolBinding maps pointer buttons to tools for one rendering session
// and tracks the active (primary-button) tool.
type ToolBinding struct {
	mu       sync.Mutex
	bindings map[PointerButton]string
	active   string
	released bool
}

// NewToolBinding creates the default binding: window/level on the
// primary button, pan on secondary, zoom on tertiary.
func NewToolBinding() *ToolBinding {
	return &ToolBinding{
		bindings: map[PointerButton]string{
			ButtonPrimary:   ToolWindowLevel,
			ButtonSecondary: ToolPan,
			ButtonTertiary:  ToolZoom,
		},
		active: ToolWindowLevel,
	}
}

// SetActive activates a tool on the primary button.
func (tb *ToolBinding) SetActive(name string) {
	tb.mu.Lock()
	if !tb.released {
		tb.active = name
		tb.bindings[ButtonPrimary] = name
	}
	tb.mu.Unlock()
}

// Active returns the active primary tool.
func (tb *ToolBinding) Active() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.active
}

// ToolFor returns the tool bound to a pointer button.
func (tb *ToolBinding) ToolFor(button PointerButton) string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.bindings[button]
}

// ActiveIsDrawing reports whether the active tool creates annotations.
func (tb *ToolBinding) ActiveIsDrawing() bool {
	return annotation.IsDrawingTool(tb.Active())
}

// Release detaches the binding on session teardown; later SetActive
// calls are ignored.
func (tb *ToolBinding) Release() {
	tb.mu.Lock()
	tb.released = true
	tb.bindings = map[PointerButton]string{}
	tb.mu.Unlock()
}
