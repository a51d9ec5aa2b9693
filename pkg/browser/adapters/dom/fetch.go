package dom

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultFetchTimeout bounds Fetch when the caller passes a nil client.
const DefaultFetchTimeout = 15 * time.Second

const userAgent = "crescent/1.0 (+https://github.com/odvcencio/crescent)"

// Fetch loads rawURL over HTTP into a new Document.
func Fetch(ctx context.Context, client *http.Client, rawURL string, opts ...Option) (*Document, error) {
	d := &Document{source: rawURL}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if err := d.Refresh(ctx, client, rawURL); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh reloads the document from rawURL, making earlier elements stale.
func (d *Document) Refresh(ctx context.Context, client *http.Client, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid url %q", rawURL)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("received status code %d from %s", resp.StatusCode, parsed.Redacted())
	}
	return d.Load(resp.Body)
}
