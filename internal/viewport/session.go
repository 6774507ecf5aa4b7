package viewport

import (
	"context"

	"github.com/google/uuid"

	"dicom-viewer/internal/annotation"
	"dicom-viewer/internal/imaging"
	"dicom-viewer/internal/loader"
	"dicom-viewer/internal/viewstate"
)

// Session is one active viewing context: a rendering engine with 1..N
// viewport slots, a tool binding, a view-state cache, and an annotation
// sync engine, all scoped together. Destroying the session cancels its
// in-flight work and releases every resource unconditionally.
type Session struct {
	ID   string
	Rows int
	Cols int

	engine *imaging.Engine
	states *viewstate.Cache
	annots *annotation.SyncEngine
	tools  *ToolBinding

	handles    []loader.Handle
	activeSlot int
	current    int

	// invertOverride records indices where the user explicitly toggled
	// inversion; the photometric inversion policy yields to these.
	invertOverride map[int]bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(engine *imaging.Engine, handles []loader.Handle, store annotation.Store, save annotation.SaveFunc, frameOfRef string, rows, cols, activeSlot int) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:             uuid.NewString(),
		Rows:           rows,
		Cols:           cols,
		engine:         engine,
		states:         viewstate.NewCache(),
		tools:          NewToolBinding(),
		handles:        handles,
		activeSlot:     activeSlot,
		current:        -1,
		invertOverride: make(map[int]bool),
		ctx:            ctx,
		cancel:         cancel,
	}
	s.annots = annotation.NewSyncEngine(store, save, engine, frameOfRef, s.currentRef)
	return s
}

// currentRef returns the image displayed in the active slot, for the
// annotation engine to attach at forward time.
func (s *Session) currentRef() imaging.ImageRef {
	if s.current < 0 || s.current >= len(s.handles) {
		return ""
	}
	return s.handles[s.current].Ref
}

// ActiveViewport returns the highlighted slot's viewport.
func (s *Session) ActiveViewport() *imaging.Viewport {
	return s.engine.Viewport(s.activeSlot)
}

// Engine returns the session's rendering engine.
func (s *Session) Engine() *imaging.Engine {
	return s.engine
}

// Tools returns the session's tool binding.
func (s *Session) Tools() *ToolBinding {
	return s.tools
}

// Context returns the session lifecycle context, cancelled on teardown.
func (s *Session) Context() context.Context {
	return s.ctx
}

// destroy cancels in-flight per-session work and tears down the
// rendering engine and tool bindings. Safe to call more than once.
func (s *Session) destroy() {
	s.cancel()
	s.tools.Release()
	s.engine.Destroy()
	s.states.Clear()
}
