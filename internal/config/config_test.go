package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Loader.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Loader.BatchSize)
	}
	if cfg.BatchDelay() != 20*time.Millisecond {
		t.Errorf("BatchDelay = %v, want 20ms", cfg.BatchDelay())
	}
	if cfg.ThumbnailTimeout() != 8*time.Second {
		t.Errorf("ThumbnailTimeout = %v, want 8s", cfg.ThumbnailTimeout())
	}
	if cfg.Metadata.PreloadConcurrency != 10 {
		t.Errorf("PreloadConcurrency = %d, want 10", cfg.Metadata.PreloadConcurrency)
	}
	if cfg.Display.Rows != 1 || cfg.Display.Cols != 1 {
		t.Errorf("layout = %dx%d, want 1x1", cfg.Display.Rows, cfg.Display.Cols)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
loader:
  batchSize: 5
  batchDelayMillis: 100
display:
  rows: 2
  cols: 2
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Loader.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want 5", cfg.Loader.BatchSize)
	}
	if cfg.BatchDelay() != 100*time.Millisecond {
		t.Errorf("BatchDelay = %v, want 100ms", cfg.BatchDelay())
	}
	// Untouched sections keep their defaults.
	if cfg.Loader.ThumbnailTimeoutSeconds != 8 {
		t.Errorf("ThumbnailTimeoutSeconds = %d, want default 8", cfg.Loader.ThumbnailTimeoutSeconds)
	}
	if cfg.Display.Rows != 2 || cfg.Display.Cols != 2 {
		t.Errorf("layout = %dx%d, want 2x2", cfg.Display.Rows, cfg.Display.Cols)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("loader:\n  batchSize: -3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected a validation error for a negative batch size")
	}
}

func TestValidateZoomRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Display.MinZoom = 2
	cfg.Display.MaxZoom = 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an inverted zoom range")
	}
}
