// Package annotation defines user-drawn measurement annotations and the
// sync engine that detects newly completed annotations and forwards
// them to a persistence hook.
package annotation

import (
	"sync"

	"dicom-viewer/internal/imaging"
	"dicom-viewer/pkg/geometry"
)

// Kind identifies the shape of an annotation's geometry.
type Kind int

const (
	KindRectangle Kind = iota
	KindEllipse
	KindLength
	KindAngle
	KindArrow
	KindFreehand
)

func (k Kind) String() string {
	switch k {
	case KindRectangle:
		return "rectangle"
	case KindEllipse:
		return "ellipse"
	case KindLength:
		return "length"
	case KindAngle:
		return "angle"
	case KindArrow:
		return "arrow"
	case KindFreehand:
		return "freehand"
	default:
		return "unknown"
	}
}

// Geometry is the shape payload of an annotation. Each kind carries its
// own variant rather than one record with many optional fields.
type Geometry interface {
	Kind() Kind
}

// Rectangle is an axis-aligned box in image coordinates.
type Rectangle struct {
	Bounds geometry.Rect
}

// Kind implements Geometry.
func (Rectangle) Kind() Kind { return KindRectangle }

// Ellipse is inscribed in its bounding box, in image coordinates.
type Ellipse struct {
	Bounds geometry.Rect
}

// Kind implements Geometry.
func (Ellipse) Kind() Kind { return KindEllipse }

// Length is a two-point distance measurement.
type Length struct {
	From geometry.Point2D
	To   geometry.Point2D
}

// Kind implements Geometry.
func (Length) Kind() Kind { return KindLength }

// Millimeters returns the measured distance given a pixel spacing.
func (l Length) Millimeters(pixelSpacing float64) float64 {
	return l.From.Distance(l.To) * pixelSpacing
}

// Angle is a three-point angle measurement with the apex in the middle.
type Angle struct {
	Apex geometry.Point2D
	A    geometry.Point2D
	B    geometry.Point2D
}

// Kind implements Geometry.
func (Angle) Kind() Kind { return KindAngle }

// Degrees returns the angle at the apex.
func (a Angle) Degrees() float64 {
	return geometry.AngleDegrees(a.Apex, a.A, a.B)
}

// Arrow is a directed marker pointing at a finding.
type Arrow struct {
	Tail geometry.Point2D
	Tip  geometry.Point2D
}

// Kind implements Geometry.
func (Arrow) Kind() Kind { return KindArrow }

// Freehand is an open polyline traced by the user.
type Freehand struct {
	Points []geometry.Point2D
}

// Kind implements Geometry.
func (Freehand) Kind() Kind { return KindFreehand }

// Record is one annotation: a shared envelope around a kind-specific
// geometry payload.
type Record struct {
	ID                  string
	Tool                string
	ImageRef            imaging.ImageRef
	FrameOfReferenceUID string
	Geometry            Geometry
}

// Store is the external annotation store: the tool layer inserts
// records the instant the user finishes drawing, and the sync engine
// discovers them by diffing.
type Store interface {
	// All returns the annotations for a frame of reference, keyed by ID.
	All(frameOfReferenceUID string) map[string]Record

	// RemoveAll clears the store.
	RemoveAll()
}

// MemStore is the in-process Store implementation mutated by the UI
// drawing tools.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

// Add inserts or replaces a record.
func (s *MemStore) Add(rec Record) {
	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
}

// All implements Store. An empty frameOfReferenceUID matches every
// record.
func (s *MemStore) All(frameOfReferenceUID string) map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for id, rec := range s.records {
		if frameOfReferenceUID != "" && rec.FrameOfReferenceUID != "" && rec.FrameOfReferenceUID != frameOfReferenceUID {
			continue
		}
		out[id] = rec
	}
	return out
}

// RemoveAll implements Store.
func (s *MemStore) RemoveAll() {
	s.mu.Lock()
	s.records = make(map[string]Record)
	s.mu.Unlock()
}

// Count returns the number of stored records.
func (s *MemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
