// Package dicomfile adapts DICOM part-10 files to the viewer's decoder
// and metadata-source interfaces. Parsing is delegated to the
// suyashkumar/dicom library; this package only maps datasets onto the
// core's Frame and Record types.
package dicomfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-viewer/internal/imaging"
	"dicom-viewer/internal/metadata"
	"dicom-viewer/internal/transport"
)

// Client decodes frames and fetches metadata from DICOM files reachable
// through a transport fetcher. Image references are fetcher locations
// (file paths or URLs).
type Client struct {
	fetcher transport.Fetcher
}

// New creates a client over the given fetcher.
func New(fetcher transport.Fetcher) *Client {
	return &Client{fetcher: fetcher}
}

// Decode implements imaging.Decoder.
func (c *Client) Decode(ctx context.Context, ref imaging.ImageRef) (*imaging.Frame, error) {
	data, err := c.fetcher.Fetch(ctx, string(ref))
	if err != nil {
		return nil, err
	}

	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("dicomfile: parsing %s: %w", ref, err)
	}

	return frameFromDataset(ref, &ds)
}

// Fetch implements metadata.Source. Pixel data is skipped; only header
// fields are read.
func (c *Client) Fetch(ctx context.Context, ref imaging.ImageRef) (metadata.Record, error) {
	data, err := c.fetcher.Fetch(ctx, string(ref))
	if err != nil {
		return metadata.Record{}, err
	}

	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil, dicom.SkipPixelData())
	if err != nil {
		return metadata.Record{}, fmt.Errorf("dicomfile: parsing header of %s: %w", ref, err)
	}

	rec := metadata.Record{Ref: ref}
	rec.Rows, _ = intValue(&ds, tag.Rows)
	rec.Columns, _ = intValue(&ds, tag.Columns)
	rec.FrameCount, _ = intValue(&ds, tag.NumberOfFrames)
	rec.Photometric, _ = stringValue(&ds, tag.PhotometricInterpretation)
	rec.WindowCenter, _ = floatValue(&ds, tag.WindowCenter)
	rec.WindowWidth, _ = floatValue(&ds, tag.WindowWidth)
	rec.FrameOfReferenceUID, _ = stringValue(&ds, tag.FrameOfReferenceUID)
	if slope, ok := floatValue(&ds, tag.RescaleSlope); ok {
		rec.RescaleSlope = slope
	}
	rec.RescaleIntercept, _ = floatValue(&ds, tag.RescaleIntercept)
	return rec, nil
}

// frameFromDataset extracts the first frame as modality values.
func frameFromDataset(ref imaging.ImageRef, ds *dicom.Dataset) (*imaging.Frame, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("dicomfile: %s has no pixel data: %w", ref, err)
	}

	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("dicomfile: %s: %w", ref, imaging.ErrEmptyFrame)
	}

	native, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return nil, fmt.Errorf("dicomfile: %s uses an unsupported encapsulated transfer syntax: %w", ref, err)
	}

	slope := 1.0
	if s, ok := floatValue(ds, tag.RescaleSlope); ok && s != 0 {
		slope = s
	}
	intercept, _ := floatValue(ds, tag.RescaleIntercept)

	f := &imaging.Frame{
		Ref:    ref,
		Width:  native.Cols,
		Height: native.Rows,
		Pixels: make([]float64, native.Rows*native.Cols),
	}
	f.Photometric, _ = stringValue(ds, tag.PhotometricInterpretation)
	f.WindowCenter, _ = floatValue(ds, tag.WindowCenter)
	f.WindowWidth, _ = floatValue(ds, tag.WindowWidth)

	for i, sample := range native.Data {
		if i >= len(f.Pixels) || len(sample) == 0 {
			break
		}
		f.Pixels[i] = float64(sample[0])*slope + intercept
	}

	if !f.Valid() {
		return nil, fmt.Errorf("dicomfile: %s: %w", ref, imaging.ErrEmptyFrame)
	}
	return f, nil
}

// DirectoryRefs lists the DICOM files in a directory as image
// references, sorted by filename so instance order is stable.
func DirectoryRefs(dir string) ([]imaging.ImageRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dicomfile: listing %s: %w", dir, err)
	}

	var refs []imaging.ImageRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".dcm" && ext != ".dicom" && ext != "" {
			continue
		}
		refs = append(refs, imaging.ImageRef(filepath.Join(dir, name)))
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs, nil
}

func intValue(ds *dicom.Dataset, t tag.Tag) (int, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch v := el.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(v[0])); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func stringValue(ds *dicom.Dataset, t tag.Tag) (string, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return "", false
	}
	if v, ok := el.Value.GetValue().([]string); ok && len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	return "", false
}

func floatValue(ds *dicom.Dataset, t tag.Tag) (float64, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch v := el.Value.GetValue().(type) {
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v[0]), 64); err == nil {
				return f, true
			}
		}
	case []int:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	}
	return 0, false
}
