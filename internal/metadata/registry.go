// Package metadata provides the per-image metadata registry and the
// bounded-concurrency preloader that populates it before first render.
package metadata

import (
	"context"
	"sync"

	"dicom-viewer/internal/imaging"
)

// Record holds the out-of-band metadata registered for one image.
type Record struct {
	Ref     imaging.ImageRef
	Rows    int
	Columns int

	// FrameCount defaults to 1 when the source omits it.
	FrameCount int

	// Photometric defaults to the MONOCHROME2 sentinel when absent.
	Photometric string

	// Acquisition window, zero when undeclared.
	WindowCenter float64
	WindowWidth  float64

	// FrameOfReferenceUID groups images and annotations that share a
	// spatial coordinate system.
	FrameOfReferenceUID string

	RescaleSlope     float64
	RescaleIntercept float64
}

// CriticalValid reports whether the record carries the fields rendering
// cannot proceed without. Defaultable fields are not checked here.
func (r Record) CriticalValid() bool {
	return r.Rows > 0 && r.Columns > 0
}

// Source fetches metadata for one image from wherever it lives
// (DICOM headers, a PACS metadata endpoint). Fetch failures are
// isolated per image by the preloader.
type Source interface {
	Fetch(ctx context.Context, ref imaging.ImageRef) (Record, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, ref imaging.ImageRef) (Record, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, ref imaging.ImageRef) (Record, error) {
	return f(ctx, ref)
}

// Registry is the in-memory metadata store keyed by image reference.
// Safe for concurrent readers and writers.
type Registry struct {
	mu      sync.RWMutex
	records map[imaging.ImageRef]Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[imaging.ImageRef]Record)}
}

// Get returns the record for an image, with ok=false when never
// registered.
func (r *Registry) Get(ref imaging.ImageRef) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[ref]
	return rec, ok
}

// Register stores a record, overwriting any previous one for the ref.
func (r *Registry) Register(ref imaging.ImageRef, rec Record) {
	r.mu.Lock()
	r.records[ref] = rec
	r.mu.Unlock()
}

// Has reports whether a record exists for the ref.
func (r *Registry) Has(ref imaging.ImageRef) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[ref]
	return ok
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
