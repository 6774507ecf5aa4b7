package metadata

import (
	"context"
	"log"
	"sync"

	"dicom-viewer/internal/imaging"
)

// DefaultPreloadConcurrency is the maximum number of metadata fetches
// in flight at once.
const DefaultPreloadConcurrency = 10

// Preloader fetches and registers metadata for a set of images before
// their first decode, with bounded concurrency. Individual failures are
// isolated: a missing or invalid record means that image is skipped and
// will simply fail to decode later, which the bulk loader tolerates.
type Preloader struct {
	registry    *Registry
	source      Source
	concurrency int
}

// NewPreloader creates a preloader over the given registry and source.
// concurrency <= 0 selects the default.
func NewPreloader(registry *Registry, source Source, concurrency int) *Preloader {
	if concurrency <= 0 {
		concurrency = DefaultPreloadConcurrency
	}
	return &Preloader{
		registry:    registry,
		source:      source,
		concurrency: concurrency,
	}
}

// Preload fetches metadata for every ref not already registered.
// It never returns per-image errors; it returns early only when the
// context is cancelled. Preloading the same ref twice is harmless.
func (p *Preloader) Preload(ctx context.Context, refs []imaging.ImageRef) error {
	// Buffered channel as a slot semaphore: excess requests block on a
	// send until a slot frees, no polling involved.
	slots := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for _, ref := range refs {
		if p.registry.Has(ref) {
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}

		wg.Add(1)
		go func(ref imaging.ImageRef) {
			defer wg.Done()
			defer func() { <-slots }()
			p.preloadOne(ctx, ref)
		}(ref)
	}

	wg.Wait()
	return ctx.Err()
}

// preloadOne fetches, defaults, validates, and registers one record.
func (p *Preloader) preloadOne(ctx context.Context, ref imaging.ImageRef) {
	rec, err := p.source.Fetch(ctx, ref)
	if err != nil {
		log.Printf("metadata: fetch %s failed: %v", ref, err)
		return
	}
	rec.Ref = ref

	rec = applyDefaults(rec)
	if !rec.CriticalValid() {
		// Still invalid after defaulting: skip silently, decode will
		// fail later and the loader excludes that image.
		return
	}

	p.registry.Register(ref, rec)
}

// applyDefaults fills the allow-listed optional fields with documented
// defaults. Critical fields (rows, columns) are never defaulted.
func applyDefaults(rec Record) Record {
	if rec.FrameCount <= 0 {
		rec.FrameCount = 1
	}
	if rec.Photometric == "" {
		rec.Photometric = imaging.PhotometricMonochrome2
	}
	if rec.RescaleSlope == 0 {
		rec.RescaleSlope = 1
	}
	return rec
}
