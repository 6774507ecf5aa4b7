package geometry

import (
	"math"
	"testing"
)

func TestFromCornersNormalizes(t *testing.T) {
	r := FromCorners(NewPoint2D(10, 20), NewPoint2D(4, 6))
	want := NewRect(4, 6, 6, 14)
	if r != want {
		t.Errorf("FromCorners = %+v, want %+v", r, want)
	}
}

func TestRectContains(t *testing.T) {
	r := NewRect(0, 0, 10, 10)
	if !r.Contains(NewPoint2D(5, 5)) {
		t.Error("center point should be contained")
	}
	if r.Contains(NewPoint2D(11, 5)) {
		t.Error("outside point should not be contained")
	}
}

func TestDistance(t *testing.T) {
	d := NewPoint2D(0, 0).Distance(NewPoint2D(3, 4))
	if d != 5 {
		t.Errorf("Distance = %g, want 5", d)
	}
}

func TestAngleDegrees(t *testing.T) {
	apex := NewPoint2D(0, 0)
	got := AngleDegrees(apex, NewPoint2D(1, 0), NewPoint2D(0, 1))
	if math.Abs(got-90) > 1e-9 {
		t.Errorf("AngleDegrees = %g, want 90", got)
	}

	// Degenerate ray yields zero.
	if got := AngleDegrees(apex, apex, NewPoint2D(1, 1)); got != 0 {
		t.Errorf("AngleDegrees with zero-length ray = %g, want 0", got)
	}
}
