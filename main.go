// Package main provides the entry point for the DICOM viewer
// application.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	fyneapp "fyne.io/fyne/v2/app"

	"dicom-viewer/internal/annotation"
	"dicom-viewer/internal/app"
	"dicom-viewer/internal/config"
	"dicom-viewer/internal/dicomfile"
	"dicom-viewer/internal/loader"
	"dicom-viewer/internal/metadata"
	"dicom-viewer/internal/transport"
	"dicom-viewer/internal/version"
	"dicom-viewer/internal/viewport"
	"dicom-viewer/ui/mainwindow"
	"dicom-viewer/ui/prefs"
	"dicom-viewer/ui/viewer"
)

const appTitle = "DICOM Viewer"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting %s v%s", appTitle, version.Version)

	cfg, err := config.LoadConfig(config.DefaultPath())
	if err != nil {
		log.Printf("Config error, using defaults: %v", err)
		cfg = config.DefaultConfig()
	}

	client := dicomfile.New(transport.FileFetcher{})
	registry := metadata.NewRegistry()
	preloader := metadata.NewPreloader(registry, client, cfg.Metadata.PreloadConcurrency)
	bl := loader.New(client, preloader, loader.Options{
		BatchSize:        cfg.Loader.BatchSize,
		BatchDelay:       cfg.BatchDelay(),
		ThumbnailTimeout: cfg.ThumbnailTimeout(),
	})

	store := annotation.NewMemStore()
	orch := viewport.New(bl, registry, store, annotationSaver(), nil)
	defer orch.Close()
	if err := orch.SetLayout(cfg.Display.Rows, cfg.Display.Cols); err != nil {
		log.Printf("Initial layout failed: %v", err)
	}

	fyneApp := fyneapp.NewWithID("dicom-viewer")
	fyneApp.Settings().SetTheme(&app.ViewerTheme{})

	appState := app.NewState()
	appPrefs := prefs.Load()

	view := viewer.New(orch, store)
	thumbs := viewer.NewStrip(bl)

	win := mainwindow.New(fyneApp, appState, orch, view, thumbs, appPrefs)
	win.SetTitle(appTitle)

	// Handle command line arguments
	if len(os.Args) > 1 {
		dir := os.Args[1]
		if refs, err := dicomfile.DirectoryRefs(dir); err != nil || len(refs) == 0 {
			log.Printf("Failed to open series %s: %v", dir, err)
		} else {
			appState.SetSeries(dir, dir, refs)
			thumbs.SetSeries(context.Background(), refs)
			go func() {
				if err := orch.LoadSeries(context.Background(), dir, refs, appState.SetProgress); err != nil {
					log.Printf("Failed to load series %s: %v", dir, err)
				}
			}()
		}
	} else {
		win.RestoreLastSeries()
	}

	win.ShowAndRun()
}

// annotationSaver returns the persistence hook: completed annotations
// are appended as JSON lines under the user config directory.
func annotationSaver() annotation.SaveFunc {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	path := filepath.Join(configDir, "dicom-viewer", "annotations.jsonl")

	return func(_ context.Context, rec annotation.Record) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}

		line, err := json.Marshal(struct {
			ID                  string              `json:"id"`
			Tool                string              `json:"tool"`
			ImageRef            string              `json:"imageRef"`
			FrameOfReferenceUID string              `json:"frameOfReferenceUID"`
			Kind                string              `json:"kind"`
			Geometry            annotation.Geometry `json:"geometry"`
		}{
			ID:                  rec.ID,
			Tool:                rec.Tool,
			ImageRef:            string(rec.ImageRef),
			FrameOfReferenceUID: rec.FrameOfReferenceUID,
			Kind:                rec.Geometry.Kind().String(),
			Geometry:            rec.Geometry,
		})
		if err != nil {
			return err
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.Write(append(line, '\n'))
		return err
	}
}
