package viewer

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"dicom-viewer/internal/imaging"
	"dicom-viewer/internal/loader"
	"dicom-viewer/internal/resource"
)

const thumbSize = 96

// Strip is the thumbnail bar along the bottom of the viewer. All
// thumbnails render through one shared engine acquired from a
// ref-counted pool: the engine exists only while at least one thumbnail
// load is outstanding.
type Strip struct {
	widget.BaseWidget
	loader *loader.BulkLoader
	pool   *resource.Pool[*imaging.Engine]

	// OnSelect is called with the image index when a thumbnail is
	// clicked.
	OnSelect func(index int)

	mu       sync.Mutex
	box      *fyne.Container
	scroll   *container.Scroll
	renderMu sync.Mutex
}

// NewStrip creates an empty thumbnail strip.
func NewStrip(bl *loader.BulkLoader) *Strip {
	s := &Strip{
		loader: bl,
		pool: resource.NewPool(
			func(ctx context.Context) (*imaging.Engine, error) {
				return imaging.NewEngine(1, 1)
			},
			func(e *imaging.Engine) { e.Destroy() },
		),
	}
	s.box = container.NewHBox()
	s.scroll = container.NewHScroll(s.box)
	s.scroll.SetMinSize(fyne.NewSize(thumbSize, thumbSize+24))
	s.ExtendBaseWidget(s)
	return s
}

// CreateRenderer implements fyne.Widget.
func (s *Strip) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(s.scroll)
}

// SetSeries replaces the strip contents and loads thumbnails in the
// background. Each thumbnail failure is isolated to its own cell.
func (s *Strip) SetSeries(ctx context.Context, refs []imaging.ImageRef) {
	s.mu.Lock()
	s.box.Objects = nil
	cells := make([]*thumbCell, len(refs))
	for i := range refs {
		c := newThumbCell(s, i)
		cells[i] = c
		s.box.Add(c)
	}
	s.mu.Unlock()
	s.box.Refresh()

	for i, ref := range refs {
		go s.loadOne(ctx, ref, cells[i])
	}
}

// loadOne loads and renders a single thumbnail through the shared
// engine.
func (s *Strip) loadOne(ctx context.Context, ref imaging.ImageRef, c *thumbCell) {
	ticket, err := s.pool.Acquire(ctx)
	if err != nil {
		log.Printf("thumbnails: engine unavailable for %s: %v", ref, err)
		c.setFailed()
		return
	}
	defer ticket.Release()

	h, err := s.loader.LoadThumbnail(ctx, ref)
	if err != nil {
		log.Printf("thumbnails: %v", err)
		c.setFailed()
		return
	}

	// The pooled engine has a single slot; renders are serialized so
	// concurrent loads never share it mid-frame.
	s.renderMu.Lock()
	vp := ticket.Resource().Viewport(0)
	vp.SetSize(thumbSize, thumbSize)
	vp.SetFrame(h.Frame)
	vp.ApplyState(imaging.DefaultState(h.Frame))
	out := vp.Render()
	s.renderMu.Unlock()

	c.setImage(out)
}

// thumbCell is one clickable thumbnail.
type thumbCell struct {
	widget.BaseWidget
	strip *Strip
	index int

	img   *fynecanvas.Image
	label *widget.Label
}

func newThumbCell(s *Strip, index int) *thumbCell {
	c := &thumbCell{
		strip: s,
		index: index,
		img:   fynecanvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, thumbSize, thumbSize))),
		label: widget.NewLabel(fmt.Sprintf("%d", index+1)),
	}
	c.img.FillMode = fynecanvas.ImageFillContain
	c.img.SetMinSize(fyne.NewSize(thumbSize, thumbSize))
	c.label.Alignment = fyne.TextAlignCenter
	c.ExtendBaseWidget(c)
	return c
}

// CreateRenderer implements fyne.Widget.
func (c *thumbCell) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewVBox(c.img, c.label))
}

// Tapped selects this thumbnail's image.
func (c *thumbCell) Tapped(*fyne.PointEvent) {
	if c.strip.OnSelect != nil {
		c.strip.OnSelect(c.index)
	}
}

func (c *thumbCell) setImage(img image.Image) {
	c.img.Image = img
	c.img.Refresh()
}

func (c *thumbCell) setFailed() {
	c.label.SetText(fmt.Sprintf("%d !", c.index+1))
}
