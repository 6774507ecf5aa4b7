package viewer

import (
	"context"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"

	"dicom-viewer/internal/annotation"
	"dicom-viewer/internal/imaging"
	"dicom-viewer/internal/loader"
	"dicom-viewer/internal/metadata"
	"dicom-viewer/internal/viewport"
)

func testOrchestrator(t *testing.T) (*viewport.Orchestrator, *annotation.MemStore) {
	t.Helper()

	decoder := imaging.DecoderFunc(func(ctx context.Context, ref imaging.ImageRef) (*imaging.Frame, error) {
		px := make([]float64, 16)
		for i := range px {
			px[i] = float64(i * 16)
		}
		return &imaging.Frame{Ref: ref, Width: 4, Height: 4, Pixels: px}, nil
	})
	bl := loader.New(decoder, nil, loader.Options{BatchSize: 4, BatchDelay: time.Millisecond})
	store := annotation.NewMemStore()
	save := func(ctx context.Context, rec annotation.Record) error { return nil }
	orch := viewport.New(bl, metadata.NewRegistry(), store, save, nil)

	refs := []imaging.ImageRef{"img-00", "img-01"}
	if err := orch.LoadSeries(context.Background(), "s1", refs, nil); err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	t.Cleanup(orch.Close)
	return orch, store
}

func mouseEvent(x, y float32, button desktop.MouseButton) *desktop.MouseEvent {
	return &desktop.MouseEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)},
		Button:       button,
	}
}

func TestMouseReleaseForwardsWithoutFurtherInteraction(t *testing.T) {
	test.NewApp()
	orch, store := testOrchestrator(t)
	w := New(orch, store)

	changed := make(chan struct{}, 1)
	w.OnChanged = func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	orch.SetActiveTool(viewport.ToolRectangle)
	w.MouseDown(mouseEvent(10, 10, desktop.MouseButtonPrimary))
	w.MouseUp(mouseEvent(40, 30, desktop.MouseButtonPrimary))

	// The forward must complete on its own, with no drags, navigations,
	// or other renders after the release.
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("pointer release never settled on its own")
	}

	if n := orch.AnnotationCount(); n != 1 {
		t.Fatalf("forwarded %d annotations, want 1", n)
	}
	for _, rec := range store.All("") {
		if rec.ImageRef != "img-00" {
			t.Errorf("record attached to %q, want img-00", rec.ImageRef)
		}
		if rec.Tool != viewport.ToolRectangle {
			t.Errorf("record tool = %q, want %q", rec.Tool, viewport.ToolRectangle)
		}
	}
}

func TestMouseReleaseNavigationToolDoesNotAnnotate(t *testing.T) {
	test.NewApp()
	orch, store := testOrchestrator(t)
	w := New(orch, store)

	changed := make(chan struct{}, 1)
	w.OnChanged = func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	orch.SetActiveTool(viewport.ToolPan)
	w.MouseDown(mouseEvent(10, 10, desktop.MouseButtonPrimary))
	w.MouseUp(mouseEvent(40, 30, desktop.MouseButtonPrimary))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("pointer release never settled")
	}

	if n := len(store.All("")); n != 0 {
		t.Errorf("pan release created %d records, want 0", n)
	}
}
