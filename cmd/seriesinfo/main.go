// Command seriesinfo loads a DICOM series headlessly and prints its
// metadata and windowing defaults.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"dicom-viewer/internal/dicomfile"
	"dicom-viewer/internal/imaging"
	"dicom-viewer/internal/loader"
	"dicom-viewer/internal/metadata"
	"dicom-viewer/internal/transport"
)

func main() {
	dir := flag.String("dir", "", "Path to a directory of DICOM files")
	token := flag.String("token", "", "Bearer token when loading from URLs")
	url := flag.String("url", "", "Load a single instance from a URL instead of a directory")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall load deadline")
	flag.Parse()

	if *dir == "" && *url == "" {
		fmt.Println("Usage: seriesinfo -dir <path> | -url <http-url> [-token <bearer>]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var fetcher transport.Fetcher = transport.FileFetcher{}
	if *url != "" {
		fetcher = transport.NewHTTPFetcher(*token)
	}
	client := dicomfile.New(fetcher)

	var refs []imaging.ImageRef
	if *url != "" {
		refs = []imaging.ImageRef{imaging.ImageRef(*url)}
	} else {
		var err error
		refs, err = dicomfile.DirectoryRefs(*dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list series: %v\n", err)
			os.Exit(1)
		}
	}
	if len(refs) == 0 {
		fmt.Println("No DICOM files found")
		os.Exit(1)
	}
	fmt.Printf("Series: %d instances\n", len(refs))

	registry := metadata.NewRegistry()
	preloader := metadata.NewPreloader(registry, client, 0)
	bl := loader.New(client, preloader, loader.Options{})

	lastPct := -1
	handles, err := bl.LoadSeries(ctx, *dir+*url, refs, func(pct int) {
		if pct != lastPct {
			fmt.Printf("\rLoading... %3d%%", pct)
			lastPct = pct
		}
	})
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d of %d images\n\n", len(handles), len(refs))

	for i, h := range handles {
		rec, _ := registry.Get(h.Ref)
		st := imaging.DefaultState(h.Frame)
		fmt.Printf("[%3d] %s\n", i, h.Ref)
		fmt.Printf("      %dx%d, %d frame(s), %s\n",
			rec.Columns, rec.Rows, rec.FrameCount, rec.Photometric)
		fmt.Printf("      window %.1f/%.1f (center/width), inverted=%v\n",
			st.WindowCenter, st.WindowWidth, st.Inverted)
		if rec.FrameOfReferenceUID != "" {
			fmt.Printf("      frame of reference %s\n", rec.FrameOfReferenceUID)
		}
	}
}
