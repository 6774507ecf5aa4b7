// Package loader implements bounded-concurrency bulk loading of image
// series with per-series result caching and in-flight de-duplication.
package loader

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"dicom-viewer/internal/imaging"
	"dicom-viewer/internal/metadata"
)

// Defaults for loader tuning; overridable through Options.
const (
	DefaultBatchSize        = 10
	DefaultBatchDelay       = 20 * time.Millisecond
	DefaultThumbnailTimeout = 8 * time.Second
)

// Handle is a ready-to-render image: the reference plus its decoded
// frame.
type Handle struct {
	Ref   imaging.ImageRef
	Frame *imaging.Frame
}

// Options tunes a BulkLoader. Zero values select the defaults.
type Options struct {
	// BatchSize is the number of images decoded concurrently per batch.
	BatchSize int

	// BatchDelay is the pause between batches, a brief yield so a large
	// series does not saturate the transport layer.
	BatchDelay time.Duration

	// ThumbnailTimeout bounds a single thumbnail-scale load.
	ThumbnailTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchDelay <= 0 {
		o.BatchDelay = DefaultBatchDelay
	}
	if o.ThumbnailTimeout <= 0 {
		o.ThumbnailTimeout = DefaultThumbnailTimeout
	}
	return o
}

// seriesLoad tracks one in-flight series load so that concurrent
// callers for the same key share the eventual result instead of
// duplicating work. done is closed once handles/err are set.
type seriesLoad struct {
	done    chan struct{}
	handles []Handle
	err     error
}

// BulkLoader turns lists of image references into ready-to-render
// handles. Results are cached per series key for the process lifetime;
// the cache is the one piece of cross-session shared state and is safe
// for concurrent use.
type BulkLoader struct {
	decoder   imaging.Decoder
	preloader *metadata.Preloader
	opts      Options

	mu       sync.Mutex
	cache    map[string][]Handle
	inflight map[string]*seriesLoad
}

// New creates a bulk loader. preloader may be nil when metadata is
// registered by other means.
func New(decoder imaging.Decoder, preloader *metadata.Preloader, opts Options) *BulkLoader {
	return &BulkLoader{
		decoder:   decoder,
		preloader: preloader,
		opts:      opts.withDefaults(),
		cache:     make(map[string][]Handle),
		inflight:  make(map[string]*seriesLoad),
	}
}

// LoadSeries loads every image of a series and returns handles in the
// order of refs. Failed images are logged and excluded; a series where
// everything fails yields an empty (non-nil-error) result, which the
// caller treats as "no viewable images".
//
// A cache hit returns immediately with 100% progress and no decode
// work. A load already in flight for the same key is joined, not
// repeated.
func (l *BulkLoader) LoadSeries(ctx context.Context, seriesKey string, refs []imaging.ImageRef, onProgress func(percent int)) ([]Handle, error) {
	l.mu.Lock()
	if handles, ok := l.cache[seriesKey]; ok {
		l.mu.Unlock()
		if onProgress != nil {
			onProgress(100)
		}
		return append([]Handle(nil), handles...), nil
	}
	if fl, ok := l.inflight[seriesKey]; ok {
		l.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if fl.err != nil {
			return nil, fl.err
		}
		if onProgress != nil {
			onProgress(100)
		}
		return append([]Handle(nil), fl.handles...), nil
	}
	fl := &seriesLoad{done: make(chan struct{})}
	l.inflight[seriesKey] = fl
	l.mu.Unlock()

	handles, err := l.loadAll(ctx, refs, onProgress)

	l.mu.Lock()
	delete(l.inflight, seriesKey)
	if err == nil {
		l.cache[seriesKey] = handles
	}
	l.mu.Unlock()

	fl.handles = handles
	fl.err = err
	close(fl.done)

	if err != nil {
		return nil, err
	}
	return append([]Handle(nil), handles...), nil
}

// loadAll performs the batched decode of a full series.
func (l *BulkLoader) loadAll(ctx context.Context, refs []imaging.ImageRef, onProgress func(int)) ([]Handle, error) {
	if l.preloader != nil {
		if err := l.preloader.Preload(ctx, refs); err != nil {
			return nil, fmt.Errorf("loader: metadata preload: %w", err)
		}
	}

	total := len(refs)
	if total == 0 {
		// An empty series is complete the moment it is asked for.
		if onProgress != nil {
			onProgress(100)
		}
		return nil, nil
	}
	slots := make([]*Handle, total)

	var progressMu sync.Mutex
	completed := 0
	report := func() {
		if onProgress == nil {
			progressMu.Lock()
			completed++
			progressMu.Unlock()
			return
		}
		progressMu.Lock()
		completed++
		pct := int(math.Round(float64(completed) / float64(total) * 100))
		onProgress(pct)
		progressMu.Unlock()
	}

	for start := 0; start < total; start += l.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + l.opts.BatchSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer report()

				frame, err := l.decoder.Decode(ctx, refs[i])
				if err != nil {
					log.Printf("loader: decoding %s failed: %v", refs[i], err)
					return
				}
				if !frame.Valid() {
					log.Printf("loader: decoding %s produced no usable pixels", refs[i])
					return
				}
				slots[i] = &Handle{Ref: refs[i], Frame: frame}
			}(i)
		}
		wg.Wait()

		// Yield briefly between batches.
		if end < total {
			select {
			case <-time.After(l.opts.BatchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	// Compact, preserving the input order among successful loads.
	handles := make([]Handle, 0, total)
	for _, h := range slots {
		if h != nil {
			handles = append(handles, *h)
		}
	}
	return handles, nil
}

// LoadThumbnail loads a single image for thumbnail display, bounded by
// the thumbnail timeout so one slow image cannot block the strip.
func (l *BulkLoader) LoadThumbnail(ctx context.Context, ref imaging.ImageRef) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.ThumbnailTimeout)
	defer cancel()

	frame, err := l.decoder.Decode(ctx, ref)
	if err != nil {
		return Handle{}, fmt.Errorf("loader: thumbnail %s: %w", ref, err)
	}
	if !frame.Valid() {
		return Handle{}, fmt.Errorf("loader: thumbnail %s: %w", ref, imaging.ErrEmptyFrame)
	}
	return Handle{Ref: ref, Frame: frame}, nil
}

// Cached reports whether a series result is cached.
func (l *BulkLoader) Cached(seriesKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.cache[seriesKey]
	return ok
}

// ClearSeries drops one cached series.
func (l *BulkLoader) ClearSeries(seriesKey string) {
	l.mu.Lock()
	delete(l.cache, seriesKey)
	l.mu.Unlock()
}

// ClearAll drops every cached series.
func (l *BulkLoader) ClearAll() {
	l.mu.Lock()
	l.cache = make(map[string][]Handle)
	l.mu.Unlock()
}
