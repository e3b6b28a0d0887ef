package probe

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Example Fleet Site</title>
<meta name="description" content="An example site used to exercise the front page analyzer.">
<link rel="stylesheet" href="/style.css">
<link rel="canonical" href="/">
<script src="/app.js"></script>
<script>var inline = true;</script>
</head>
<body>
<h1>Welcome</h1>
<h2>Section one</h2>
<h2>Section two</h2>
<img src="/hero.png">
<img alt="no source">
</body>
</html>`

func TestFrontPagePlainResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	m, err := New(0).FrontPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FrontPage: %v", err)
	}
	if m.GzipEnabled {
		t.Error("GzipEnabled = true for uncompressed response")
	}
	if m.PageSizeBytes != int64(len(samplePage)) {
		t.Errorf("PageSizeBytes = %d, want %d", m.PageSizeBytes, len(samplePage))
	}
	if m.Title != "Example Fleet Site" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.MetaDescription == "" {
		t.Error("MetaDescription empty")
	}
	if m.H1Count != 1 || m.H2Count != 2 {
		t.Errorf("headings = %d h1, %d h2", m.H1Count, m.H2Count)
	}
	// Page itself + stylesheet + sourced script + sourced image.
	if m.RequestCount != 4 {
		t.Errorf("RequestCount = %d, want 4", m.RequestCount)
	}
	if m.LoadTimeMS < 0 {
		t.Errorf("LoadTimeMS = %d", m.LoadTimeMS)
	}
}

func TestFrontPageGzipResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(samplePage))
		gz.Close()
	}))
	defer srv.Close()

	m, err := New(0).FrontPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FrontPage: %v", err)
	}
	if !m.GzipEnabled {
		t.Error("GzipEnabled = false for gzip response")
	}
	// Size is the decompressed payload.
	if m.PageSizeBytes != int64(len(samplePage)) {
		t.Errorf("PageSizeBytes = %d, want %d", m.PageSizeBytes, len(samplePage))
	}
	if m.Title != "Example Fleet Site" {
		t.Errorf("Title = %q", m.Title)
	}
}

func TestFrontPageErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := New(0).FrontPage(context.Background(), srv.URL); err == nil {
		t.Fatal("want error for 503 front page")
	}
}

func TestFrontPageNonHTMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text, no markup"))
	}))
	defer srv.Close()

	m, err := New(0).FrontPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FrontPage: %v", err)
	}
	if m.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", m.RequestCount)
	}
	if m.Title != "" || m.H1Count != 0 {
		t.Errorf("structure fields should stay zero: %+v", m)
	}
}
