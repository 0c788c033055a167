package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchHTML_ReturnsBody(t *testing.T) {
	var gotUA string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html><body>hi</body></html>")
	}))
	defer upstream.Close()

	body, err := NewFetcher().FetchHTML(context.Background(), upstream.URL)
	if err != nil {
		t.Fatalf("FetchHTML() error = %v", err)
	}
	if !strings.Contains(body, "hi") {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(gotUA, "Mozilla/5.0") {
		t.Errorf("User-Agent = %q, want a browser agent", gotUA)
	}
}

func TestFetchHTML_UpstreamStatusError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer upstream.Close()

	_, err := NewFetcher().FetchHTML(context.Background(), upstream.URL)

	var upErr UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if upErr.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", upErr.Status)
	}
}

func TestFetchHTML_RejectsNonHTML(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"not":"html"}`)
	}))
	defer upstream.Close()

	if _, err := NewFetcher().FetchHTML(context.Background(), upstream.URL); err == nil {
		t.Fatal("expected an error for JSON content type")
	}
}

func TestFetchHTML_RejectsEmptyBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	}))
	defer upstream.Close()

	if _, err := NewFetcher().FetchHTML(context.Background(), upstream.URL); err == nil {
		t.Fatal("expected an error for an empty body")
	}
}
