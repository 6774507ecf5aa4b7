package viewstate

import "testing"

func TestCacheSaveRestore(t *testing.T) {
	c := NewCache()

	st := State{
		WindowWidth:       400,
		WindowCenter:      40,
		Inverted:          true,
		FlippedHorizontal: true,
		ZoomScale:         1.5,
		PanX:              -12.5,
		PanY:              30,
	}
	c.Save(3, st)

	got, ok := c.Restore(3)
	if !ok {
		t.Fatal("expected a cached state for index 3")
	}
	if got != st {
		t.Errorf("restored state %+v, want %+v", got, st)
	}
}

func TestCacheRestoreAbsent(t *testing.T) {
	c := NewCache()
	if _, ok := c.Restore(7); ok {
		t.Error("expected no state for an unvisited index")
	}
}

func TestCacheOverwrite(t *testing.T) {
	c := NewCache()
	c.Save(0, State{WindowWidth: 100})
	c.Save(0, State{WindowWidth: 250})

	got, _ := c.Restore(0)
	if got.WindowWidth != 250 {
		t.Errorf("WindowWidth = %g, want 250", got.WindowWidth)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache()
	c.Save(0, State{})
	c.Save(1, State{})
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
	if _, ok := c.Restore(0); ok {
		t.Error("expected no state after Clear")
	}
}
