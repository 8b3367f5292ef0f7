// client_test.go - Unit Tests fuer den Hub-Client
package pretrained

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
)

// TestValidateModelID testet die Format-Pruefung
func TestValidateModelID(t *testing.T) {
	tests := []struct {
		modelID string
		wantErr bool
	}{
		{modelID: "google-t5/t5-small", wantErr: false},
		{modelID: "", wantErr: true},
		{modelID: "t5-small", wantErr: true},
		{modelID: "a/b/c", wantErr: true},
		{modelID: "/t5-small", wantErr: true},
	}

	for _, tt := range tests {
		err := validateModelID(tt.modelID)
		if (err != nil) != tt.wantErr {
			t.Errorf("validateModelID(%q) = %v, erwartet Fehler: %v", tt.modelID, err, tt.wantErr)
		}
	}
}

// TestFetchFileDownload testet Download und anschliessenden Cache-Treffer
func TestFetchFileDownload(t *testing.T) {
	t.Setenv("TEXAR_CACHE", t.TempDir())
	t.Setenv("TEXAR_OFFLINE", "")

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/google-t5/t5-small/resolve/main/config.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"model_type":"t5"}`))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))

	path, err := c.FetchFile(context.Background(), "google-t5/t5-small", "config.json")
	if err != nil {
		t.Fatalf("FetchFile fehlgeschlagen: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("heruntergeladene Datei lesen fehlgeschlagen: %v", err)
	}
	if string(data) != `{"model_type":"t5"}` {
		t.Errorf("Inhalt = %q", data)
	}

	// Zweiter Abruf kommt aus dem Cache
	if _, err := c.FetchFile(context.Background(), "google-t5/t5-small", "config.json"); err != nil {
		t.Fatalf("Cache-Abruf fehlgeschlagen: %v", err)
	}
	if requests.Load() != 1 {
		t.Errorf("HTTP-Requests = %d, erwartet 1", requests.Load())
	}
}

// TestFetchFileNotFound testet die Fehler-Abbildung fuer 404
func TestFetchFileNotFound(t *testing.T) {
	t.Setenv("TEXAR_CACHE", t.TempDir())
	t.Setenv("TEXAR_OFFLINE", "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	_, err := c.FetchFile(context.Background(), "google-t5/t5-small", "missing.bin")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("erwartet ErrModelNotFound, erhalten %v", err)
	}
}

// TestFetchFileOffline testet den Offline-Modus ohne Cache-Treffer
func TestFetchFileOffline(t *testing.T) {
	t.Setenv("TEXAR_CACHE", t.TempDir())
	t.Setenv("TEXAR_OFFLINE", "1")

	c := NewClient(WithBaseURL("http://unreachable.invalid"))
	_, err := c.FetchFile(context.Background(), "google-t5/t5-small", "config.json")
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("erwartet ErrOffline, erhalten %v", err)
	}
}

// TestFetchAll testet den parallelen Abruf mehrerer Dateien
func TestFetchAll(t *testing.T) {
	t.Setenv("TEXAR_CACHE", t.TempDir())
	t.Setenv("TEXAR_OFFLINE", "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	paths, err := c.FetchAll(context.Background(), "google-t5/t5-small", []string{"a.json", "b.json", "c.json"})
	if err != nil {
		t.Fatalf("FetchAll fehlgeschlagen: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("Pfade = %d, erwartet 3", len(paths))
	}
	for i, name := range []string{"a.json", "b.json", "c.json"} {
		data, err := os.ReadFile(paths[i])
		if err != nil {
			t.Fatalf("Datei %s lesen fehlgeschlagen: %v", name, err)
		}
		if string(data) != "/google-t5/t5-small/resolve/main/"+name {
			t.Errorf("Inhalt von %s = %q", name, data)
		}
	}
}
