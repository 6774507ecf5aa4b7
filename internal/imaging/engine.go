package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"

	"dicom-viewer/internal/viewstate"
)

const (
	// maxViewports bounds the slot count of one engine; rendering
	// contexts are a limited resource.
	maxViewports = 16

	minZoom = 0.01
	maxZoom = 16.0
)

// ErrEngineDestroyed is returned by operations on a torn-down engine.
var ErrEngineDestroyed = errors.New("imaging: rendering engine destroyed")

// Engine is a software rendering engine owning a grid of viewport
// slots. One engine backs one rendering session; thumbnails share a
// separate engine through the resource pool.
type Engine struct {
	mu        sync.Mutex
	rows      int
	cols      int
	viewports []*Viewport
	destroyed bool
	done      chan struct{}

	tickMu  sync.Mutex
	frame   uint64
	waiters []*frameWaiter
}

type frameWaiter struct {
	target uint64
	ch     chan struct{}
}

// NewEngine creates an engine with rows x cols viewport slots.
func NewEngine(rows, cols int) (*Engine, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("imaging: invalid layout %dx%d", rows, cols)
	}
	if rows*cols > maxViewports {
		return nil, fmt.Errorf("imaging: layout %dx%d exceeds %d viewport slots", rows, cols, maxViewports)
	}

	e := &Engine{
		rows: rows,
		cols: cols,
		done: make(chan struct{}),
	}
	for i := 0; i < rows*cols; i++ {
		e.viewports = append(e.viewports, newViewport())
	}
	return e, nil
}

// Layout returns the engine's grid dimensions.
func (e *Engine) Layout() (rows, cols int) {
	return e.rows, e.cols
}

// Viewport returns the slot at the given index, or nil when out of range.
func (e *Engine) Viewport(i int) *Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.viewports) {
		return nil
	}
	return e.viewports[i]
}

// ViewportCount returns the number of slots.
func (e *Engine) ViewportCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.viewports)
}

// RenderAll renders every slot and advances the frame clock by one tick.
func (e *Engine) RenderAll() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	viewports := e.viewports
	e.mu.Unlock()

	for _, vp := range viewports {
		vp.Render()
	}
	e.Tick()
}

// Tick advances the frame clock and wakes waiters whose target frame
// has been reached.
func (e *Engine) Tick() {
	e.tickMu.Lock()
	e.frame++
	remaining := e.waiters[:0]
	for _, w := range e.waiters {
		if w.target <= e.frame {
			close(w.ch)
		} else {
			remaining = append(remaining, w)
		}
	}
	e.waiters = remaining
	e.tickMu.Unlock()
}

// WaitFrames blocks until n more frame ticks have occurred, the context
// is cancelled, or the engine is destroyed.
func (e *Engine) WaitFrames(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	e.tickMu.Lock()
	w := &frameWaiter{target: e.frame + uint64(n), ch: make(chan struct{})}
	e.waiters = append(e.waiters, w)
	e.tickMu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineDestroyed
	}
}

// Destroy tears down the engine and releases its slots. Idempotent.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.viewports = nil
	close(e.done)
	e.mu.Unlock()
}

// Destroyed reports whether Destroy has been called.
func (e *Engine) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// Viewport is one logical display slot within an engine. It holds the
// current frame and the live view state; Render produces the displayed
// pixels from both.
type Viewport struct {
	mu     sync.Mutex
	frame  *Frame
	state  viewstate.State
	width  int
	height int
	out    *image.RGBA
}

func newViewport() *Viewport {
	return &Viewport{width: 512, height: 512}
}

// SetFrame replaces the displayed frame. The view state is left
// untouched; the caller decides whether to restore or reset it.
func (v *Viewport) SetFrame(f *Frame) {
	v.mu.Lock()
	v.frame = f
	v.mu.Unlock()
}

// Frame returns the currently displayed frame, or nil.
func (v *Viewport) Frame() *Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

// ApplyState replaces the live view state.
func (v *Viewport) ApplyState(s viewstate.State) {
	v.mu.Lock()
	v.state = clampState(s)
	v.mu.Unlock()
}

// State returns the live view state as currently rendered. Callers
// snapshot this immediately before navigating away so in-progress
// adjustments are not lost.
func (v *Viewport) State() viewstate.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetSize resizes the slot's output surface. Resizing does not touch
// the view state; a layout change must not look like navigation.
func (v *Viewport) SetSize(w, h int) {
	v.mu.Lock()
	if w > 0 && h > 0 {
		v.width = w
		v.height = h
	}
	v.mu.Unlock()
}

// Size returns the output surface dimensions.
func (v *Viewport) Size() (w, h int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height
}

// AdjustWindow offsets window width and center by the given deltas.
func (v *Viewport) AdjustWindow(dWidth, dCenter float64) {
	v.mu.Lock()
	v.state.WindowWidth += dWidth
	if v.state.WindowWidth < 1 {
		v.state.WindowWidth = 1
	}
	v.state.WindowCenter += dCenter
	v.mu.Unlock()
}

// AdjustZoom multiplies the zoom scale by the given factor.
func (v *Viewport) AdjustZoom(factor float64) {
	v.mu.Lock()
	scale := v.state.ZoomScale
	if scale <= 0 {
		scale = v.fitScaleLocked()
	}
	v.state.ZoomScale = clampZoom(scale * factor)
	v.mu.Unlock()
}

// AdjustPan offsets the pan by the given screen-space deltas.
func (v *Viewport) AdjustPan(dx, dy float64) {
	v.mu.Lock()
	v.state.PanX += dx
	v.state.PanY += dy
	v.mu.Unlock()
}

// ToggleInvert flips the inversion flag.
func (v *Viewport) ToggleInvert() {
	v.mu.Lock()
	v.state.Inverted = !v.state.Inverted
	v.mu.Unlock()
}

// ToggleFlip flips the horizontal mirror flag.
func (v *Viewport) ToggleFlip() {
	v.mu.Lock()
	v.state.FlippedHorizontal = !v.state.FlippedHorizontal
	v.mu.Unlock()
}

// ZoomPercent returns the display zoom as a whole percentage, clamped
// to [1, 1600]. A zero zoom scale means fit-to-viewport and reports
// the effective fitted scale.
func (v *Viewport) ZoomPercent() int {
	v.mu.Lock()
	scale := v.state.ZoomScale
	if scale <= 0 {
		scale = v.fitScaleLocked()
	}
	v.mu.Unlock()

	pct := int(math.Round(scale * 100))
	if pct < 1 {
		pct = 1
	}
	if pct > 1600 {
		pct = 1600
	}
	return pct
}

// fitScaleLocked computes the scale that fits the frame inside the
// viewport. Caller holds v.mu.
func (v *Viewport) fitScaleLocked() float64 {
	if v.frame == nil || !v.frame.Valid() {
		return 1
	}
	sx := float64(v.width) / float64(v.frame.Width)
	sy := float64(v.height) / float64(v.frame.Height)
	if sy < sx {
		return sy
	}
	return sx
}

// Render produces the displayed pixels: window/level mapping, optional
// inversion and horizontal flip, then zoom/pan resampling onto the
// output surface.
func (v *Viewport) Render() *image.RGBA {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	// Black background with opaque alpha
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255
	}

	f := v.frame
	if f == nil || !f.Valid() {
		v.out = out
		return out
	}

	width := v.state.WindowWidth
	if width < 1 {
		width = 1
	}
	low := v.state.WindowCenter - width/2

	// Map modality values through the window to 8-bit luminance,
	// applying inversion and horizontal flip while building the source.
	src := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		row := y * f.Width
		for x := 0; x < f.Width; x++ {
			lum := (f.Pixels[row+x] - low) / width * 255
			if lum < 0 {
				lum = 0
			} else if lum > 255 {
				lum = 255
			}
			g := uint8(lum)
			if v.state.Inverted {
				g = 255 - g
			}
			dx := x
			if v.state.FlippedHorizontal {
				dx = f.Width - 1 - x
			}
			src.SetRGBA(dx, y, color.RGBA{g, g, g, 255})
		}
	}

	scale := v.state.ZoomScale
	if scale <= 0 {
		scale = v.fitScaleLocked()
	}
	scale = clampZoom(scale)

	dw := int(float64(f.Width) * scale)
	dh := int(float64(f.Height) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	x0 := (v.width-dw)/2 + int(v.state.PanX)
	y0 := (v.height-dh)/2 + int(v.state.PanY)
	dr := image.Rect(x0, y0, x0+dw, y0+dh)

	xdraw.ApproxBiLinear.Scale(out, dr, src, src.Bounds(), xdraw.Src, nil)

	v.out = out
	return out
}

// ScreenToImage converts output-surface coordinates to image
// coordinates under the current zoom and pan. The horizontal flip is
// not undone: annotations live in displayed orientation.
func (v *Viewport) ScreenToImage(x, y float64) (imgX, imgY float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.frame == nil || !v.frame.Valid() {
		return x, y
	}

	scale := v.state.ZoomScale
	if scale <= 0 {
		scale = v.fitScaleLocked()
	}
	scale = clampZoom(scale)

	dw := float64(v.frame.Width) * scale
	dh := float64(v.frame.Height) * scale
	x0 := (float64(v.width)-dw)/2 + v.state.PanX
	y0 := (float64(v.height)-dh)/2 + v.state.PanY

	return (x - x0) / scale, (y - y0) / scale
}

// ImageToScreen is the inverse of ScreenToImage, used to place
// annotation overlays on the output surface.
func (v *Viewport) ImageToScreen(imgX, imgY float64) (x, y float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.frame == nil || !v.frame.Valid() {
		return imgX, imgY
	}

	scale := v.state.ZoomScale
	if scale <= 0 {
		scale = v.fitScaleLocked()
	}
	scale = clampZoom(scale)

	dw := float64(v.frame.Width) * scale
	dh := float64(v.frame.Height) * scale
	x0 := (float64(v.width)-dw)/2 + v.state.PanX
	y0 := (float64(v.height)-dh)/2 + v.state.PanY

	return imgX*scale + x0, imgY*scale + y0
}

// Output returns the most recently rendered pixels, or nil before the
// first Render.
func (v *Viewport) Output() *image.RGBA {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.out
}

func clampZoom(z float64) float64 {
	if z < minZoom {
		return minZoom
	}
	if z > maxZoom {
		return maxZoom
	}
	return z
}

func clampState(s viewstate.State) viewstate.State {
	if s.WindowWidth < 1 {
		s.WindowWidth = 1
	}
	if s.ZoomScale != 0 {
		s.ZoomScale = clampZoom(s.ZoomScale)
	}
	return s
}
