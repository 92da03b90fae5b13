// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package style

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sprite": "https://assets.example.com/sprite",
			"glyphs": "https://fonts.example.com/{fontstack}/{range}.pbf",
			"sources": {
				"osm": {"tiles": ["https://t.example.com/{z}/{x}/{y}.pbf"]}
			},
			"layers": [
				{"layout": {"text-font": ["Noto Sans Regular"]}}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	m, err := c.Fetch(context.Background(), srv.URL+"/style.json")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if m.Sprite != "https://assets.example.com/sprite" {
		t.Errorf("unexpected sprite: %s", m.Sprite)
	}
	if len(m.Sources["osm"].Tiles) != 1 {
		t.Errorf("unexpected sources: %+v", m.Sources)
	}
	if len(m.Layers) != 1 || m.Layers[0].Layout.TextFont[0] != "Noto Sans Regular" {
		t.Errorf("unexpected layers: %+v", m.Layers)
	}
}

func TestClientFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "style not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	if _, err := c.Fetch(context.Background(), srv.URL+"/missing.json"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestClientFetchInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for invalid JSON body")
	}
}

func TestClientFetchContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(5 * time.Second)
	if _, err := c.Fetch(ctx, srv.URL); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
