package annotation

import (
	"context"
	"log"
	"sync"

	"dicom-viewer/internal/imaging"
)

// Drawing tool names. Navigation tools (window/level, zoom, pan) never
// arm the sync engine.
var drawingTools = map[string]bool{
	"rectangle": true,
	"ellipse":   true,
	"length":    true,
	"angle":     true,
	"arrow":     true,
	"freehand":  true,
}

// IsDrawingTool reports whether the named tool creates annotations.
func IsDrawingTool(name string) bool {
	return drawingTools[name]
}

// FrameClock provides rendering-frame ticks. The sync engine waits two
// ticks after pointer-up so the drawing tool can finalize its internal
// state before the diff runs.
type FrameClock interface {
	WaitFrames(ctx context.Context, n int) error
}

// SaveFunc persists one completed annotation. Failures are reported but
// never roll back the local annotation.
type SaveFunc func(ctx context.Context, rec Record) error

type engineState int

const (
	stateIdle engineState = iota
	stateArmed
)

// SyncEngine infers "a new annotation was just completed" from raw
// pointer-down/pointer-up sequences plus before/after snapshots of the
// annotation store, and forwards each completed annotation to the
// persistence hook exactly once.
//
// State machine: Idle, then pointer-down with a drawing tool active
// snapshots the store and arms; pointer-up waits two frame ticks, diffs
// against the snapshot, forwards anything new, and returns to Idle.
type SyncEngine struct {
	store               Store
	save                SaveFunc
	clock               FrameClock
	frameOfReferenceUID string

	// currentRef supplies the displayed image at forward time so the
	// persistence hook can associate the annotation without re-querying
	// the UI.
	currentRef func() imaging.ImageRef

	mu        sync.Mutex
	state     engineState
	prior     map[string]struct{}
	forwarded map[string]struct{}
	saved     int
	lastErr   error
}

// NewSyncEngine creates a sync engine scoped to one rendering session.
func NewSyncEngine(store Store, save SaveFunc, clock FrameClock, frameOfReferenceUID string, currentRef func() imaging.ImageRef) *SyncEngine {
	return &SyncEngine{
		store:               store,
		save:                save,
		clock:               clock,
		frameOfReferenceUID: frameOfReferenceUID,
		currentRef:          currentRef,
		prior:               make(map[string]struct{}),
		forwarded:           make(map[string]struct{}),
	}
}

// PointerDown arms the engine when an annotation-drawing tool is
// active, snapshotting the annotation set as it exists before the draw.
func (e *SyncEngine) PointerDown(activeTool string) {
	if !IsDrawingTool(activeTool) {
		return
	}

	snapshot := make(map[string]struct{})
	for id := range e.store.All(e.frameOfReferenceUID) {
		snapshot[id] = struct{}{}
	}

	e.mu.Lock()
	e.prior = snapshot
	e.state = stateArmed
	e.mu.Unlock()
}

// PointerUp completes an armed draw: it waits two frame ticks, diffs
// the store against the pointer-down snapshot, and forwards every
// annotation present now but absent before. It returns to Idle whether
// or not anything new was found. Blocking; callers on a UI thread run
// it in a goroutine. Cancelling ctx (session teardown) abandons the
// diff cleanly.
func (e *SyncEngine) PointerUp(ctx context.Context) {
	e.mu.Lock()
	if e.state != stateArmed {
		e.mu.Unlock()
		return
	}
	e.state = stateIdle
	prior := e.prior
	e.mu.Unlock()

	if err := e.clock.WaitFrames(ctx, 2); err != nil {
		return
	}

	current := e.store.All(e.frameOfReferenceUID)

	e.mu.Lock()
	fresh := make([]Record, 0, 1)
	for id, rec := range current {
		if _, existed := prior[id]; existed {
			continue
		}
		if _, done := e.forwarded[id]; done {
			continue
		}
		e.forwarded[id] = struct{}{}
		fresh = append(fresh, rec)
	}
	e.mu.Unlock()

	for _, rec := range fresh {
		rec.ImageRef = e.currentRef()
		rec.FrameOfReferenceUID = e.frameOfReferenceUID

		if err := e.save(ctx, rec); err != nil {
			// Non-fatal: the annotation stays visible locally; a higher
			// layer may retry the save.
			log.Printf("annotation: saving %s (%s) failed: %v", rec.ID, rec.Tool, err)
			e.mu.Lock()
			e.lastErr = err
			e.mu.Unlock()
			continue
		}
		e.mu.Lock()
		e.saved++
		e.mu.Unlock()
	}
}

// ClearAll empties the annotation store and resets the pointer-down
// snapshot, so a draw made after a clear is still detected as new.
func (e *SyncEngine) ClearAll() {
	e.store.RemoveAll()

	e.mu.Lock()
	e.prior = make(map[string]struct{})
	e.state = stateIdle
	e.mu.Unlock()
}

// SavedCount returns how many annotations were successfully persisted.
func (e *SyncEngine) SavedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saved
}

// LastError returns the most recent persistence failure, or nil.
func (e *SyncEngine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}
