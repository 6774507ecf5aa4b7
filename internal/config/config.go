// Package config provides configuration loading for the viewer.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Loader parameters for bulk series loading
	Loader struct {
		// BatchSize is the number of images decoded concurrently per batch
		BatchSize int `yaml:"batchSize"`

		// BatchDelayMillis is the pause between batches, to avoid
		// saturating the transport layer
		BatchDelayMillis int `yaml:"batchDelayMillis"`

		// ThumbnailTimeoutSeconds bounds a single thumbnail-scale load
		ThumbnailTimeoutSeconds int `yaml:"thumbnailTimeoutSeconds"`
	} `yaml:"loader"`

	// Metadata prefetch parameters
	Metadata struct {
		// PreloadConcurrency is the maximum number of in-flight
		// metadata fetches
		PreloadConcurrency int `yaml:"preloadConcurrency"`
	} `yaml:"metadata"`

	// Display parameters
	Display struct {
		// Rows and Cols define the startup viewport grid layout
		Rows int `yaml:"rows"`
		Cols int `yaml:"cols"`

		// MinZoom and MaxZoom clamp the zoom scale
		MinZoom float64 `yaml:"minZoom"`
		MaxZoom float64 `yaml:"maxZoom"`
	} `yaml:"display"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Loader.BatchSize = 10
	cfg.Loader.BatchDelayMillis = 20
	cfg.Loader.ThumbnailTimeoutSeconds = 8

	cfg.Metadata.PreloadConcurrency = 10

	cfg.Display.Rows = 1
	cfg.Display.Cols = 1
	cfg.Display.MinZoom = 0.01
	cfg.Display.MaxZoom = 16.0

	return cfg
}

// LoadConfig loads configuration from the given path. A missing file is
// not an error; defaults are returned instead.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns the default config file location under the user
// config directory.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "dicom-viewer", "config.yaml")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Loader.BatchSize <= 0 {
		return fmt.Errorf("loader.batchSize must be positive, got %d", c.Loader.BatchSize)
	}
	if c.Metadata.PreloadConcurrency <= 0 {
		return fmt.Errorf("metadata.preloadConcurrency must be positive, got %d", c.Metadata.PreloadConcurrency)
	}
	if c.Display.Rows <= 0 || c.Display.Cols <= 0 {
		return fmt.Errorf("display layout must be at least 1x1, got %dx%d", c.Display.Rows, c.Display.Cols)
	}
	if c.Display.MinZoom <= 0 || c.Display.MaxZoom <= c.Display.MinZoom {
		return fmt.Errorf("display zoom range invalid: min=%g max=%g", c.Display.MinZoom, c.Display.MaxZoom)
	}
	return nil
}

// BatchDelay returns the inter-batch delay as a duration.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Loader.BatchDelayMillis) * time.Millisecond
}

// ThumbnailTimeout returns the per-thumbnail load deadline.
func (c *Config) ThumbnailTimeout() time.Duration {
	return time.Duration(c.Loader.ThumbnailTimeoutSeconds) * time.Second
}
