package viewport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dicom-viewer/internal/annotation"
	"dicom-viewer/internal/imaging"
	"dicom-viewer/internal/loader"
	"dicom-viewer/internal/metadata"
	"dicom-viewer/internal/viewstate"
)

// ErrSessionUnusable marks a session whose rendering engine could not
// be created. The session offers Retry, which rebuilds from scratch
// rather than patching partial state.
var ErrSessionUnusable = errors.New("viewport: rendering session unusable")

// EngineFactory creates a rendering engine for a layout. Injected so
// tests can fail creation deterministically.
type EngineFactory func(rows, cols int) (*imaging.Engine, error)

// Orchestrator is the top-level coordinator. It owns exactly one active
// rendering session at a time, routes navigation and tool commands to
// it, and wires the loader, metadata registry, view-state cache, and
// annotation sync engine together per session.
type Orchestrator struct {
	loader   *loader.BulkLoader
	registry *metadata.Registry
	store    annotation.Store
	save     annotation.SaveFunc
	factory  EngineFactory

	mu         sync.Mutex
	seriesKey  string
	handles    []loader.Handle
	session    *Session
	rows       int
	cols       int
	activeSlot int
	lastErr    error
}

// New creates an orchestrator. A nil factory uses the software engine.
func New(bl *loader.BulkLoader, registry *metadata.Registry, store annotation.Store, save annotation.SaveFunc, factory EngineFactory) *Orchestrator {
	if factory == nil {
		factory = imaging.NewEngine
	}
	return &Orchestrator{
		loader:   bl,
		registry: registry,
		store:    store,
		save:     save,
		factory:  factory,
		rows:     1,
		cols:     1,
	}
}

// LoadSeries bulk-loads a series and mounts it in a fresh session with
// the current layout. An empty result is "no viewable images", not an
// error.
func (o *Orchestrator) LoadSeries(ctx context.Context, seriesKey string, refs []imaging.ImageRef, onProgress func(int)) error {
	handles, err := o.loader.LoadSeries(ctx, seriesKey, refs, onProgress)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.seriesKey = seriesKey
	o.handles = handles
	return o.rebuildLocked(o.rows, o.cols, 0)
}

// SetLayout tears down the current session and mounts a new one with a
// rows x cols viewport grid.
func (o *Orchestrator) SetLayout(rows, cols int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rebuildLocked(rows, cols, 0)
}

// SetActiveCell switches the highlighted cell in a grid. Switching
// cells is a session switch: the old session is torn down and a new one
// attached, scoped caches included.
func (o *Orchestrator) SetActiveCell(slot int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if slot < 0 || slot >= o.rows*o.cols {
		return fmt.Errorf("viewport: cell %d out of range for %dx%d", slot, o.rows, o.cols)
	}
	return o.rebuildLocked(o.rows, o.cols, slot)
}

// Retry rebuilds the session after an engine-creation failure. The
// previous state is discarded wholesale.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rebuildLocked(o.rows, o.cols, o.activeSlot)
}

// rebuildLocked replaces the active session: teardown, engine
// construction, re-attachment of per-session caches, slot population.
// Caller holds o.mu.
func (o *Orchestrator) rebuildLocked(rows, cols, activeSlot int) error {
	if o.session != nil {
		o.session.destroy()
		o.session = nil
	}

	engine, err := o.factory(rows, cols)
	if err != nil {
		o.lastErr = fmt.Errorf("%w: %v", ErrSessionUnusable, err)
		o.rows, o.cols, o.activeSlot = rows, cols, activeSlot
		return o.lastErr
	}

	sess := newSession(engine, o.handles, o.store, o.save, o.frameOfReferenceLocked(), rows, cols, activeSlot)

	// Populate the grid: slot i shows image i where available.
	count := engine.ViewportCount()
	for i := 0; i < count && i < len(o.handles); i++ {
		vp := engine.Viewport(i)
		vp.SetFrame(o.handles[i].Frame)
		vp.ApplyState(o.initialStateLocked(sess, i))
	}
	if activeSlot < len(o.handles) {
		sess.current = activeSlot
	}
	engine.RenderAll()

	o.session = sess
	o.rows, o.cols, o.activeSlot = rows, cols, activeSlot
	o.lastErr = nil
	return nil
}

// frameOfReferenceLocked picks the session's frame of reference from
// the series metadata, falling back to the series key. Caller holds
// o.mu.
func (o *Orchestrator) frameOfReferenceLocked() string {
	for _, h := range o.handles {
		if rec, ok := o.registry.Get(h.Ref); ok && rec.FrameOfReferenceUID != "" {
			return rec.FrameOfReferenceUID
		}
	}
	return o.seriesKey
}

// initialStateLocked builds the first-visit state for an image index,
// including the photometric inversion policy. Caller holds o.mu.
func (o *Orchestrator) initialStateLocked(sess *Session, index int) viewstate.State {
	h := o.handles[index]
	st := imaging.DefaultState(h.Frame)
	if rec, ok := o.registry.Get(h.Ref); ok && rec.Photometric == imaging.PhotometricMonochrome1 && !sess.invertOverride[index] {
		st.Inverted = true
	}
	return st
}

// NavigateTo displays the image at index in the active slot. Out-of-
// range targets and the current index are no-ops, not errors: fast key
// repeat races the UI past the ends of the stack. Navigations are
// serialized per session.
func (o *Orchestrator) NavigateTo(index int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.session
	if sess == nil {
		return
	}
	if index < 0 || index >= len(o.handles) || index == sess.current {
		return
	}
	vp := sess.ActiveViewport()
	if vp == nil {
		return
	}

	// Snapshot the live render parameters of the outgoing image before
	// anything else, so in-progress adjustments are not lost.
	if sess.current >= 0 {
		sess.states.Save(sess.current, vp.State())
	}

	h := o.handles[index]
	vp.SetFrame(h.Frame)

	st, ok := sess.states.Restore(index)
	if !ok {
		st = imaging.DefaultState(h.Frame)
	}

	// Re-check the image-specific inversion policy: MONOCHROME1 images
	// render inverted regardless of prior state unless the user
	// explicitly overrode inversion for this index.
	if rec, found := o.registry.Get(h.Ref); found && rec.Photometric == imaging.PhotometricMonochrome1 && !sess.invertOverride[index] {
		st.Inverted = true
	}

	vp.ApplyState(st)
	sess.current = index
	sess.engine.RenderAll()
}

// Next advances to the next image in the series.
func (o *Orchestrator) Next() {
	o.NavigateTo(o.CurrentIndex() + 1)
}

// Previous steps back to the previous image.
func (o *Orchestrator) Previous() {
	o.NavigateTo(o.CurrentIndex() - 1)
}

// CurrentIndex returns the image index in the active slot, -1 when
// nothing is displayed.
func (o *Orchestrator) CurrentIndex() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return -1
	}
	return o.session.current
}

// CurrentRef returns the reference of the displayed image, or "" when
// nothing is displayed.
func (o *Orchestrator) CurrentRef() imaging.ImageRef {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return ""
	}
	return o.session.currentRef()
}

// ImageCount returns the number of viewable images in the series.
func (o *Orchestrator) ImageCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles)
}

// Session returns the active session, or nil before the first mount.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// ActiveViewport returns the viewport of the highlighted cell, or nil.
func (o *Orchestrator) ActiveViewport() *imaging.Viewport {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	return o.session.ActiveViewport()
}

// SetActiveTool activates a tool in the current session.
func (o *Orchestrator) SetActiveTool(name string) {
	if sess := o.Session(); sess != nil {
		sess.tools.SetActive(name)
	}
}

// ActiveTool returns the current session's active tool name.
func (o *Orchestrator) ActiveTool() string {
	if sess := o.Session(); sess != nil {
		return sess.tools.Active()
	}
	return ""
}

// PointerDown routes a pointer press: it arms the annotation sync
// engine when the active tool draws, and returns the tool bound to the
// pressed button so the caller can apply drag behavior.
func (o *Orchestrator) PointerDown(button PointerButton) string {
	sess := o.Session()
	if sess == nil {
		return ""
	}
	tool := sess.tools.ToolFor(button)
	if button == ButtonPrimary {
		sess.annots.PointerDown(sess.tools.Active())
	}
	return tool
}

// PointerUp completes a pointer interaction. When the annotation engine
// is armed this blocks for two frame ticks before diffing, so UI
// callers run it off the event thread. Session teardown cancels it
// cleanly.
func (o *Orchestrator) PointerUp() {
	sess := o.Session()
	if sess == nil {
		return
	}
	sess.annots.PointerUp(sess.ctx)
}

// ToggleInvert flips inversion on the displayed image and records the
// override so the photometric policy stops forcing it for this index.
func (o *Orchestrator) ToggleInvert() {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess := o.session
	if sess == nil || sess.current < 0 {
		return
	}
	if vp := sess.ActiveViewport(); vp != nil {
		vp.ToggleInvert()
		sess.invertOverride[sess.current] = true
		sess.engine.RenderAll()
	}
}

// ToggleFlip mirrors the displayed image horizontally.
func (o *Orchestrator) ToggleFlip() {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess := o.session
	if sess == nil {
		return
	}
	if vp := sess.ActiveViewport(); vp != nil {
		vp.ToggleFlip()
		sess.engine.RenderAll()
	}
}

// ClearAnnotations wipes the annotation store, bypassing the diff
// engine and resetting its snapshot.
func (o *Orchestrator) ClearAnnotations() {
	if sess := o.Session(); sess != nil {
		sess.annots.ClearAll()
	}
}

// Resize re-lays-out the active session's viewports for a new display
// area and re-renders. View state is untouched: a layout change must
// not look like navigation to the view-state cache.
func (o *Orchestrator) Resize(width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess := o.session
	if sess == nil || width <= 0 || height <= 0 {
		return
	}

	cellW := width / o.cols
	cellH := height / o.rows
	count := sess.engine.ViewportCount()
	for i := 0; i < count; i++ {
		sess.engine.Viewport(i).SetSize(cellW, cellH)
	}
	sess.engine.RenderAll()
}

// AnnotationCount returns how many annotations were persisted in the
// current session, for status display.
func (o *Orchestrator) AnnotationCount() int {
	if sess := o.Session(); sess != nil {
		return sess.annots.SavedCount()
	}
	return 0
}

// LastError returns the most recent session-level or persistence
// error, or nil.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	sessionErr := o.lastErr
	sess := o.session
	o.mu.Unlock()

	if sessionErr != nil {
		return sessionErr
	}
	if sess != nil {
		return sess.annots.LastError()
	}
	return nil
}

// Close tears down the active session and its resources.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		o.session.destroy()
		o.session = nil
	}
}
