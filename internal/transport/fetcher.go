// Package transport fetches raw image and metadata bytes. The viewer
// core only decides when and how many fetches happen; authentication
// and wire details live here.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Fetcher retrieves the raw bytes behind an image reference.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FileFetcher reads image references that are local file paths.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("transport: reading %s: %w", location, err)
	}
	return data, nil
}

// HTTPFetcher retrieves bytes over authenticated HTTP.
type HTTPFetcher struct {
	Client *http.Client
	// Token is sent as a bearer token when non-empty.
	Token string
}

// NewHTTPFetcher creates a fetcher with a sane default client.
func NewHTTPFetcher(token string) *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{Timeout: 30 * time.Second},
		Token:  token,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: building request for %s: %w", location, err)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	req.Header.Set("Accept", "application/dicom, application/octet-stream")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: fetching %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: fetching %s: unexpected status %s", location, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading body of %s: %w", location, err)
	}
	return data, nil
}
