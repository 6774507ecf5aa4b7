package imaging

import (
	"gonum.org/v1/gonum/stat"

	"dicom-viewer/internal/viewstate"
)

// AutoWindow derives a window center/width from the frame's pixel
// statistics: center at the mean, width spanning four standard
// deviations. Used when an image is visited for the first time and the
// source declared no acquisition window.
func AutoWindow(f *Frame) (center, width float64) {
	if f == nil || !f.Valid() {
		return 128, 256
	}

	mean, std := stat.MeanStdDev(f.Pixels, nil)
	width = 4 * std
	if width < 1 {
		width = 1
	}
	return mean, width
}

// DefaultState builds the initial view state for a frame on first
// visit: the acquisition window when declared, otherwise statistics
// derived; fit-to-viewport zoom; inversion per the frame's photometric
// interpretation.
func DefaultState(f *Frame) viewstate.State {
	s := viewstate.State{
		// Zero zoom scale means fit-to-viewport.
		ZoomScale: 0,
	}

	if f != nil && f.WindowWidth > 0 {
		s.WindowWidth = f.WindowWidth
		s.WindowCenter = f.WindowCenter
	} else {
		s.WindowCenter, s.WindowWidth = AutoWindow(f)
	}

	if f != nil && f.Photometric == PhotometricMonochrome1 {
		s.Inverted = true
	}
	return s
}
