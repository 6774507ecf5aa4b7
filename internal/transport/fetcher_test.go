package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.dcm")
	want := []byte{0x44, 0x49, 0x43, 0x4D}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FileFetcher{}.Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Fetch = %v, want %v", got, want)
	}
}

func TestFileFetcherMissing(t *testing.T) {
	if _, err := (FileFetcher{}).Fetch(context.Background(), "/no/such/file"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestHTTPFetcherAuth(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("pixels"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("secret-token")
	data, err := f.Fetch(context.Background(), srv.URL+"/studies/1/instances/2")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("body = %q, want pixels", data)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want the bearer token", gotAuth)
	}
	if gotAccept == "" {
		t.Error("Accept header should be set")
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewHTTPFetcher("").Fetch(context.Background(), srv.URL); err == nil {
		t.Error("expected an error for a non-200 response")
	}
}
