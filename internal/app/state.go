// Package app provides application lifecycle management and events.
package app

import (
	"sync"

	"dicom-viewer/internal/imaging"
)

// State holds the application state shared between the core and the UI
// shell: the open study, loaded series, and load progress.
type State struct {
	mu sync.RWMutex

	// Study
	StudyPath string

	// Series currently loaded, in display order
	SeriesKey string
	ImageRefs []imaging.ImageRef

	// Load progress, 0-100
	LoadProgress int

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different application events.
type EventType int

const (
	EventSeriesOpened EventType = iota
	EventLoadProgress
	EventLoadComplete
	EventNavigated
	EventLayoutChanged
	EventToolChanged
	EventAnnotationSaved
	EventAnnotationSaveFailed
	EventSessionError
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates a new application state.
func NewState() *State {
	return &State{
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetSeries records the open series and announces it.
func (s *State) SetSeries(studyPath, seriesKey string, refs []imaging.ImageRef) {
	s.mu.Lock()
	s.StudyPath = studyPath
	s.SeriesKey = seriesKey
	s.ImageRefs = refs
	s.LoadProgress = 0
	s.mu.Unlock()

	s.Emit(EventSeriesOpened, seriesKey)
}

// SetProgress records load progress and announces it.
func (s *State) SetProgress(percent int) {
	s.mu.Lock()
	s.LoadProgress = percent
	s.mu.Unlock()

	s.Emit(EventLoadProgress, percent)
	if percent >= 100 {
		s.Emit(EventLoadComplete, nil)
	}
}

// Progress returns the last reported load progress.
func (s *State) Progress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LoadProgress
}

// Series returns the open series key and refs.
func (s *State) Series() (string, []imaging.ImageRef) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SeriesKey, s.ImageRefs
}
