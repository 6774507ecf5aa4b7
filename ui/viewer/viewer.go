// Package viewer provides the viewport display widget and the
// thumbnail strip.
package viewer

import (
	"image"
	"math"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/google/uuid"

	"dicom-viewer/internal/annotation"
	"dicom-viewer/internal/viewport"
	"dicom-viewer/pkg/geometry"
)

// frameInterval paces the frame clock while a pointer release settles.
const frameInterval = 16 * time.Millisecond

// Widget displays the active viewport of the orchestrator's rendering
// session and translates pointer input into tool actions. Drawing tools
// insert annotation records into the store on release; the sync engine
// picks them up by diffing.
type Widget struct {
	widget.BaseWidget
	orch  *viewport.Orchestrator
	store *annotation.MemStore

	raster *fynecanvas.Raster

	mu       sync.Mutex
	dragTool string
	start    geometry.Point2D
	last     geometry.Point2D
	path     []geometry.Point2D
	lastW    int
	lastH    int

	// OnChanged is called after any interaction that alters what the
	// status bar shows (zoom, navigation, annotations).
	OnChanged func()
}

// New creates the viewport widget.
func New(orch *viewport.Orchestrator, store *annotation.MemStore) *Widget {
	w := &Widget{
		orch:  orch,
		store: store,
	}
	w.raster = fynecanvas.NewRaster(w.draw)
	w.ExtendBaseWidget(w)
	return w
}

// CreateRenderer implements fyne.Widget.
func (w *Widget) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(w.raster)
}

// MinSize implements fyne.Widget.
func (w *Widget) MinSize() fyne.Size {
	return fyne.NewSize(256, 256)
}

// draw is the raster generator: it resizes the session's viewports when
// the display area changed and returns the active viewport's output.
func (w *Widget) draw(width, height int) image.Image {
	w.mu.Lock()
	resized := width != w.lastW || height != w.lastH
	w.lastW, w.lastH = width, height
	w.mu.Unlock()

	if resized {
		w.orch.Resize(width, height)
	}

	vp := w.orch.ActiveViewport()
	if vp == nil {
		return image.NewRGBA(image.Rect(0, 0, width, height))
	}
	out := vp.Output()
	if out == nil {
		return image.NewRGBA(image.Rect(0, 0, width, height))
	}

	// Composite annotation overlays onto a copy so the rendered output
	// stays pristine for the next frame.
	recs := w.store.All("")
	if len(recs) == 0 {
		return out
	}
	composite := image.NewRGBA(out.Bounds())
	copy(composite.Pix, out.Pix)
	drawOverlays(composite, vp, recs, w.orch.CurrentRef())
	return composite
}

// Scrolled navigates through the image stack, radiology-viewer style.
func (w *Widget) Scrolled(ev *fyne.ScrollEvent) {
	if ev.Scrolled.DY < 0 {
		w.orch.Next()
	} else if ev.Scrolled.DY > 0 {
		w.orch.Previous()
	}
	w.Refresh()
	w.changed()
}

// MouseDown begins a tool interaction on the pressed button.
func (w *Widget) MouseDown(ev *desktop.MouseEvent) {
	tool := w.orch.PointerDown(mapButton(ev.Button))

	pt := w.imagePoint(ev.Position)
	w.mu.Lock()
	w.dragTool = tool
	w.start = pt
	w.last = pt
	w.path = []geometry.Point2D{pt}
	w.mu.Unlock()
}

// MouseUp completes the interaction: drawing tools commit their record
// to the store, then the release is forwarded to the orchestrator off
// the event thread because it blocks for frame ticks.
func (w *Widget) MouseUp(ev *desktop.MouseEvent) {
	end := w.imagePoint(ev.Position)

	w.mu.Lock()
	tool := w.dragTool
	start := w.start
	path := w.path
	w.dragTool = ""
	w.path = nil
	w.mu.Unlock()

	if annotation.IsDrawingTool(tool) {
		w.store.Add(annotation.Record{
			ID:       uuid.NewString(),
			Tool:     tool,
			Geometry: buildGeometry(tool, start, end, path),
		})
	}

	// The release blocks on frame ticks, and ticks only happen when
	// something renders. Keep the frame clock running until the release
	// settles so it never waits on a later unrelated interaction.
	go func() {
		done := make(chan struct{})
		go func() {
			w.orch.PointerUp()
			close(done)
		}()
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				w.Refresh()
				w.changed()
				return
			case <-ticker.C:
				if sess := w.orch.Session(); sess != nil {
					sess.Engine().RenderAll()
				}
			}
		}
	}()
	w.Refresh()
}

// MouseIn implements desktop.Hoverable (required with Mouseable on some
// drivers); nothing to do.
func (w *Widget) MouseIn(*desktop.MouseEvent)    {}
func (w *Widget) MouseMoved(*desktop.MouseEvent) {}
func (w *Widget) MouseOut()                      {}

// Dragged applies the drag behavior of the tool that started the
// interaction.
func (w *Widget) Dragged(ev *fyne.DragEvent) {
	pt := w.imagePoint(ev.Position)

	w.mu.Lock()
	tool := w.dragTool
	if tool == "" {
		// Drag events can arrive without a preceding MouseDown on
		// touch drivers; treat it as the active tool.
		tool = w.orch.ActiveTool()
		w.dragTool = tool
		w.start = pt
	}
	w.last = pt
	if annotation.IsDrawingTool(tool) {
		w.path = append(w.path, pt)
	}
	w.mu.Unlock()

	vp := w.orch.ActiveViewport()
	if vp == nil {
		return
	}

	dx := float64(ev.Dragged.DX)
	dy := float64(ev.Dragged.DY)

	switch tool {
	case viewport.ToolWindowLevel:
		// Horizontal drag adjusts width, vertical adjusts center.
		vp.AdjustWindow(dx*2, -dy*2)
	case viewport.ToolPan:
		vp.AdjustPan(dx, dy)
	case viewport.ToolZoom:
		vp.AdjustZoom(math.Pow(1.01, -dy))
	}

	if sess := w.orch.Session(); sess != nil {
		sess.Engine().RenderAll()
	}
	w.Refresh()
	w.changed()
}

// DragEnd implements fyne.Draggable; completion is handled in MouseUp.
func (w *Widget) DragEnd() {}

// imagePoint converts a widget position to image coordinates through
// the active viewport's zoom and pan.
func (w *Widget) imagePoint(pos fyne.Position) geometry.Point2D {
	vp := w.orch.ActiveViewport()
	if vp == nil {
		return geometry.NewPoint2D(float64(pos.X), float64(pos.Y))
	}
	x, y := vp.ScreenToImage(float64(pos.X), float64(pos.Y))
	return geometry.NewPoint2D(x, y)
}

func (w *Widget) changed() {
	if w.OnChanged != nil {
		w.OnChanged()
	}
}

func mapButton(b desktop.MouseButton) viewport.PointerButton {
	switch b {
	case desktop.MouseButtonSecondary:
		return viewport.ButtonSecondary
	case desktop.MouseButtonTertiary:
		return viewport.ButtonTertiary
	default:
		return viewport.ButtonPrimary
	}
}

// buildGeometry turns a completed drag into the tool's geometry payload.
func buildGeometry(tool string, start, end geometry.Point2D, path []geometry.Point2D) annotation.Geometry {
	switch tool {
	case viewport.ToolEllipse:
		return annotation.Ellipse{Bounds: geometry.FromCorners(start, end)}
	case viewport.ToolLength:
		return annotation.Length{From: start, To: end}
	case viewport.ToolAngle:
		// The apex is the midpoint of the traced path.
		apex := start
		if len(path) > 0 {
			apex = path[len(path)/2]
		}
		return annotation.Angle{Apex: apex, A: start, B: end}
	case viewport.ToolArrow:
		return annotation.Arrow{Tail: start, Tip: end}
	case viewport.ToolFreehand:
		return annotation.Freehand{Points: append(path, end)}
	default:
		return annotation.Rectangle{Bounds: geometry.FromCorners(start, end)}
	}
}
