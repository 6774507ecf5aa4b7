// Package viewstate stores per-image visual adjustment parameters so
// that revisiting an image restores exactly how it looked on departure.
package viewstate

import "sync"

// State holds the visual parameters applied to one displayed image.
type State struct {
	WindowWidth       float64
	WindowCenter      float64
	Inverted          bool
	FlippedHorizontal bool
	ZoomScale         float64
	PanX              float64
	PanY              float64
}

// Cache maps image index to the latest State for that index. One Cache
// exists per rendering session and is discarded with it; states are
// never shared across sessions.
type Cache struct {
	mu     sync.Mutex
	states map[int]State
}

// NewCache creates an empty view-state cache.
func NewCache() *Cache {
	return &Cache{states: make(map[int]State)}
}

// Save stores the state for an image index, overwriting any previous
// state. There is no history, only the latest state per index.
func (c *Cache) Save(index int, s State) {
	c.mu.Lock()
	c.states[index] = s
	c.mu.Unlock()
}

// Restore returns the saved state for an index. The second return is
// false for an index never visited; the caller applies defaults (for
// example auto window/level from image statistics) in that case.
func (c *Cache) Restore(index int) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[index]
	return s, ok
}

// Len returns the number of indices with a saved state.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}

// Clear discards all saved states.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.states = make(map[int]State)
	c.mu.Unlock()
}
