package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dicom-viewer/internal/imaging"
)

func testRefs(n int) []imaging.ImageRef {
	out := make([]imaging.ImageRef, n)
	for i := range out {
		out[i] = imaging.ImageRef(fmt.Sprintf("img-%03d", i))
	}
	return out
}

func testFrame(ref imaging.ImageRef) *imaging.Frame {
	return &imaging.Frame{
		Ref:    ref,
		Width:  2,
		Height: 2,
		Pixels: []float64{0, 50, 100, 150},
	}
}

// countingDecoder decodes instantly and records call counts and peak
// concurrency.
type countingDecoder struct {
	decodes  atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex

	fail  func(ref imaging.ImageRef) bool
	delay time.Duration
}

func (d *countingDecoder) Decode(ctx context.Context, ref imaging.ImageRef) (*imaging.Frame, error) {
	d.decodes.Add(1)
	n := d.inflight.Add(1)
	d.mu.Lock()
	if n > d.peak.Load() {
		d.peak.Store(n)
	}
	d.mu.Unlock()
	defer d.inflight.Add(-1)

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.fail != nil && d.fail(ref) {
		return nil, errors.New("decode failed")
	}
	return testFrame(ref), nil
}

func TestLoadSeriesPreservesOrder(t *testing.T) {
	d := &countingDecoder{}
	l := New(d, nil, Options{BatchSize: 3, BatchDelay: time.Millisecond})

	refs := testRefs(25)
	handles, err := l.LoadSeries(context.Background(), "s1", refs, nil)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(handles) != 25 {
		t.Fatalf("got %d handles, want 25", len(handles))
	}
	for i, h := range handles {
		if h.Ref != refs[i] {
			t.Fatalf("handle %d is %s, want %s", i, h.Ref, refs[i])
		}
	}
}

func TestLoadSeriesBatchConcurrency(t *testing.T) {
	d := &countingDecoder{delay: 5 * time.Millisecond}
	l := New(d, nil, Options{BatchSize: 4, BatchDelay: time.Millisecond})

	if _, err := l.LoadSeries(context.Background(), "s1", testRefs(20), nil); err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if d.peak.Load() > 4 {
		t.Errorf("peak concurrent decodes = %d, want <= batch size 4", d.peak.Load())
	}
}

// waveDecoder counts decode waves: a wave starts when a decode begins
// with nothing in flight. Batches are separated by a wait, so 25 refs
// at batch size 10 produce exactly 3 waves.
type waveDecoder struct {
	mu     sync.Mutex
	active int
	waves  int
}

func (d *waveDecoder) Decode(ctx context.Context, ref imaging.ImageRef) (*imaging.Frame, error) {
	d.mu.Lock()
	if d.active == 0 {
		d.waves++
	}
	d.active++
	d.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	d.mu.Lock()
	d.active--
	d.mu.Unlock()
	return testFrame(ref), nil
}

func TestLoadSeriesBatchCount(t *testing.T) {
	d := &waveDecoder{}
	l := New(d, nil, Options{BatchSize: 10, BatchDelay: time.Millisecond})

	handles, err := l.LoadSeries(context.Background(), "s1", testRefs(25), nil)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(handles) != 25 {
		t.Fatalf("got %d handles, want 25", len(handles))
	}
	if d.waves != 3 {
		t.Errorf("decode ran in %d batches, want 3 for 25 refs at batch size 10", d.waves)
	}
}

func TestLoadSeriesProgress(t *testing.T) {
	d := &countingDecoder{}
	l := New(d, nil, Options{BatchSize: 5, BatchDelay: time.Millisecond})

	var mu sync.Mutex
	var reports []int
	_, err := l.LoadSeries(context.Background(), "s1", testRefs(10), func(pct int) {
		mu.Lock()
		reports = append(reports, pct)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}

	if len(reports) != 10 {
		t.Fatalf("got %d progress reports, want 10", len(reports))
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] < reports[i-1] {
			t.Fatalf("progress went backwards: %v", reports)
		}
	}
	if reports[len(reports)-1] != 100 {
		t.Errorf("final progress = %d, want 100", reports[len(reports)-1])
	}
}

func TestLoadSeriesSkipsFailures(t *testing.T) {
	refs := testRefs(10)
	d := &countingDecoder{fail: func(ref imaging.ImageRef) bool { return ref == refs[4] }}
	l := New(d, nil, Options{BatchSize: 3, BatchDelay: time.Millisecond})

	var reports []int
	var mu sync.Mutex
	handles, err := l.LoadSeries(context.Background(), "s1", refs, func(pct int) {
		mu.Lock()
		reports = append(reports, pct)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(handles) != 9 {
		t.Fatalf("got %d handles, want 9 with one failure excluded", len(handles))
	}
	for _, h := range handles {
		if h.Ref == refs[4] {
			t.Error("failed image leaked into the handles")
		}
	}
	// Failures still count toward completion.
	if last := reports[len(reports)-1]; last != 100 {
		t.Errorf("final progress = %d, want 100 even with failures", last)
	}
}

func TestLoadSeriesAllFail(t *testing.T) {
	d := &countingDecoder{fail: func(imaging.ImageRef) bool { return true }}
	l := New(d, nil, Options{BatchSize: 3, BatchDelay: time.Millisecond})

	handles, err := l.LoadSeries(context.Background(), "s1", testRefs(6), nil)
	if err != nil {
		t.Fatalf("LoadSeries should not fail outright: %v", err)
	}
	if len(handles) != 0 {
		t.Errorf("got %d handles, want 0", len(handles))
	}
}

func TestLoadSeriesEmpty(t *testing.T) {
	d := &countingDecoder{}
	l := New(d, nil, Options{})

	var pcts []int
	handles, err := l.LoadSeries(context.Background(), "s1", nil, func(pct int) {
		pcts = append(pcts, pct)
	})
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(handles) != 0 {
		t.Errorf("got %d handles for an empty series, want 0", len(handles))
	}
	if len(pcts) != 1 || pcts[0] != 100 {
		t.Errorf("empty series progress = %v, want [100]", pcts)
	}
	if d.decodes.Load() != 0 {
		t.Errorf("empty series decoded %d images", d.decodes.Load())
	}
}

func TestLoadSeriesCacheHit(t *testing.T) {
	d := &countingDecoder{}
	l := New(d, nil, Options{BatchSize: 5, BatchDelay: time.Millisecond})

	refs := testRefs(8)
	if _, err := l.LoadSeries(context.Background(), "s1", refs, nil); err != nil {
		t.Fatalf("first load: %v", err)
	}
	first := d.decodes.Load()

	var pcts []int
	handles, err := l.LoadSeries(context.Background(), "s1", refs, func(pct int) {
		pcts = append(pcts, pct)
	})
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if d.decodes.Load() != first {
		t.Errorf("cache hit still decoded %d more images", d.decodes.Load()-first)
	}
	if len(handles) != 8 {
		t.Errorf("got %d handles from cache, want 8", len(handles))
	}
	if len(pcts) != 1 || pcts[0] != 100 {
		t.Errorf("cache hit progress = %v, want [100]", pcts)
	}
}

func TestLoadSeriesInflightDedup(t *testing.T) {
	d := &countingDecoder{delay: 10 * time.Millisecond}
	l := New(d, nil, Options{BatchSize: 4, BatchDelay: time.Millisecond})

	refs := testRefs(8)
	const callers = 5
	var wg sync.WaitGroup
	results := make([][]Handle, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := l.LoadSeries(context.Background(), "s1", refs, nil)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = h
		}(i)
	}
	wg.Wait()

	if d.decodes.Load() != int32(len(refs)) {
		t.Errorf("decoded %d images for %d concurrent callers, want %d", d.decodes.Load(), callers, len(refs))
	}
	for i, h := range results {
		if len(h) != len(refs) {
			t.Errorf("caller %d got %d handles, want %d", i, len(h), len(refs))
		}
	}
}

func TestLoadSeriesCancellation(t *testing.T) {
	d := &countingDecoder{delay: 20 * time.Millisecond}
	l := New(d, nil, Options{BatchSize: 2, BatchDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := l.LoadSeries(ctx, "s1", testRefs(20), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("LoadSeries error = %v, want context.Canceled", err)
	}
	if l.Cached("s1") {
		t.Error("cancelled load must not populate the cache")
	}
}

func TestLoadThumbnail(t *testing.T) {
	d := &countingDecoder{}
	l := New(d, nil, Options{})

	h, err := l.LoadThumbnail(context.Background(), "img-000")
	if err != nil {
		t.Fatalf("LoadThumbnail: %v", err)
	}
	if h.Ref != "img-000" || h.Frame == nil {
		t.Errorf("unexpected handle %+v", h)
	}
}

func TestLoadThumbnailTimeout(t *testing.T) {
	d := &countingDecoder{delay: time.Second}
	l := New(d, nil, Options{ThumbnailTimeout: 10 * time.Millisecond})

	if _, err := l.LoadThumbnail(context.Background(), "img-000"); err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestClearSeries(t *testing.T) {
	d := &countingDecoder{}
	l := New(d, nil, Options{BatchSize: 4, BatchDelay: time.Millisecond})

	if _, err := l.LoadSeries(context.Background(), "s1", testRefs(4), nil); err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if !l.Cached("s1") {
		t.Fatal("expected a cached series")
	}
	l.ClearSeries("s1")
	if l.Cached("s1") {
		t.Error("series still cached after ClearSeries")
	}
}
