package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// FetchTimeout bounds the upstream HTML fetch so a dead target site
	// cannot hang the proxy request.
	FetchTimeout = 8 * time.Second

	// browserUserAgent is sent upstream. Many sites vary output or reject
	// requests outright for unknown agents.
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	maxDocumentSize = 10 << 20
)

// UpstreamError carries the target site's failure status so the proxy
// endpoint can propagate it instead of masking everything as 500.
type UpstreamError struct {
	Status int
	URL    string
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.Status, e.URL)
}

// Fetcher retrieves Mini App documents server-side.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a fetcher with the bounded timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: FetchTimeout},
	}
}

// FetchHTML fetches targetURL and returns its HTML body. Non-2xx statuses,
// empty bodies, and non-HTML responses are errors: the caller must never
// serve those as a successful proxied document.
func (f *Fetcher) FetchHTML(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid target url: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", targetURL).Msg("upstream fetch failed")
		return "", fmt.Errorf("failed to fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("url", targetURL).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream fetch completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", UpstreamError{Status: resp.StatusCode, URL: targetURL}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("upstream returned non-HTML content type %q for %s", ct, targetURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", fmt.Errorf("failed to read upstream body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", fmt.Errorf("upstream returned an empty body for %s", targetURL)
	}

	return string(body), nil
}
