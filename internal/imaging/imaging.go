// Package imaging defines the imaging-library surface the viewer core
// orchestrates: image references, decoded frames, and the software
// rendering engine with its viewport slots.
package imaging

import (
	"context"
	"errors"
)

// ImageRef is an opaque identifier for one decodable image within a
// series. Produced externally, consumed as a map key everywhere.
type ImageRef string

// Photometric interpretation values relevant to rendering.
const (
	// PhotometricMonochrome1 declares that minimum pixel values render
	// white; such images must be displayed inverted by default.
	PhotometricMonochrome1 = "MONOCHROME1"

	// PhotometricMonochrome2 is the common case: minimum renders black.
	// Also the documented sentinel applied when metadata omits the field.
	PhotometricMonochrome2 = "MONOCHROME2"
)

// Frame is one decoded image: a grayscale pixel buffer with its
// intrinsic metadata. Pixel values are modality values (rescale slope
// and intercept already applied by the decoder).
type Frame struct {
	Ref         ImageRef
	Width       int
	Height      int
	Pixels      []float64 // row-major, len == Width*Height
	Photometric string

	// WindowCenter and WindowWidth are the acquisition defaults, zero
	// when the source declared none.
	WindowCenter float64
	WindowWidth  float64
}

// ErrEmptyFrame is returned when a decoder produces no pixel data.
var ErrEmptyFrame = errors.New("imaging: frame has no pixel data")

// Valid reports whether the frame carries a usable pixel buffer.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pixels) == f.Width*f.Height
}

// Decoder turns an image reference into a decoded frame. Implementations
// fetch and decode bytes; the viewer core never parses pixel data itself.
type Decoder interface {
	Decode(ctx context.Context, ref ImageRef) (*Frame, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, ref ImageRef) (*Frame, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(ctx context.Context, ref ImageRef) (*Frame, error) {
	return f(ctx, ref)
}
