package viewer

import (
	"image"
	"image/color"
	"math"

	"dicom-viewer/internal/annotation"
	"dicom-viewer/internal/imaging"
	"dicom-viewer/pkg/geometry"
)

// overlayColor is the annotation accent drawn over the grayscale image.
var overlayColor = color.RGBA{R: 0xFF, G: 0x98, B: 0x00, A: 0xFF}

// drawOverlays paints annotation geometry for the displayed image onto
// the output surface. Records without an image reference are pending
// (drawn but not yet forwarded) and belong to the current image.
func drawOverlays(out *image.RGBA, vp *imaging.Viewport, recs map[string]annotation.Record, current imaging.ImageRef) {
	for _, rec := range recs {
		if rec.ImageRef != "" && rec.ImageRef != current {
			continue
		}
		drawGeometry(out, vp, rec.Geometry)
	}
}

func drawGeometry(out *image.RGBA, vp *imaging.Viewport, g annotation.Geometry) {
	switch shape := g.(type) {
	case annotation.Rectangle:
		drawRectOutline(out, vp, shape.Bounds)
	case annotation.Ellipse:
		drawEllipseOutline(out, vp, shape.Bounds)
	case annotation.Length:
		drawSegment(out, vp, shape.From, shape.To)
	case annotation.Angle:
		drawSegment(out, vp, shape.Apex, shape.A)
		drawSegment(out, vp, shape.Apex, shape.B)
	case annotation.Arrow:
		drawSegment(out, vp, shape.Tail, shape.Tip)
		drawArrowHead(out, vp, shape.Tail, shape.Tip)
	case annotation.Freehand:
		for i := 1; i < len(shape.Points); i++ {
			drawSegment(out, vp, shape.Points[i-1], shape.Points[i])
		}
	}
}

func drawRectOutline(out *image.RGBA, vp *imaging.Viewport, r geometry.Rect) {
	tl := geometry.NewPoint2D(r.X, r.Y)
	tr := geometry.NewPoint2D(r.X+r.Width, r.Y)
	bl := geometry.NewPoint2D(r.X, r.Y+r.Height)
	br := geometry.NewPoint2D(r.X+r.Width, r.Y+r.Height)
	drawSegment(out, vp, tl, tr)
	drawSegment(out, vp, tr, br)
	drawSegment(out, vp, br, bl)
	drawSegment(out, vp, bl, tl)
}

func drawEllipseOutline(out *image.RGBA, vp *imaging.Viewport, r geometry.Rect) {
	c := r.Center()
	rx, ry := r.Width/2, r.Height/2

	const steps = 96
	prev := geometry.NewPoint2D(c.X+rx, c.Y)
	for i := 1; i <= steps; i++ {
		a := 2 * math.Pi * float64(i) / steps
		pt := geometry.NewPoint2D(c.X+rx*math.Cos(a), c.Y+ry*math.Sin(a))
		drawSegment(out, vp, prev, pt)
		prev = pt
	}
}

func drawArrowHead(out *image.RGBA, vp *imaging.Viewport, tail, tip geometry.Point2D) {
	d := tip.Sub(tail)
	length := math.Hypot(d.X, d.Y)
	if length == 0 {
		return
	}
	// Two short barbs at 30 degrees off the shaft.
	barb := length * 0.2
	if barb > 12 {
		barb = 12
	}
	angle := math.Atan2(d.Y, d.X)
	for _, off := range []float64{math.Pi * 5 / 6, -math.Pi * 5 / 6} {
		end := geometry.NewPoint2D(
			tip.X+barb*math.Cos(angle+off),
			tip.Y+barb*math.Sin(angle+off),
		)
		drawSegment(out, vp, tip, end)
	}
}

// drawSegment plots a line between two image-space points in screen
// space.
func drawSegment(out *image.RGBA, vp *imaging.Viewport, a, b geometry.Point2D) {
	x1, y1 := vp.ImageToScreen(a.X, a.Y)
	x2, y2 := vp.ImageToScreen(b.X, b.Y)

	steps := int(math.Max(math.Abs(x2-x1), math.Abs(y2-y1)))
	if steps < 1 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(x1 + (x2-x1)*t))
		y := int(math.Round(y1 + (y2-y1)*t))
		if image.Pt(x, y).In(out.Bounds()) {
			out.SetRGBA(x, y, overlayColor)
		}
	}
}
