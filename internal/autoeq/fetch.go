package autoeq

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Fetcher retrieves parametric preset descriptions by lookup key from a
// configurable base URL. It is the injectable resource loader used
// instead of intercepting any global networking primitive.
type Fetcher struct {
	baseURL string
	http    *http.Client
}

// DefaultBaseURL serves the published AutoEq result set.
const DefaultBaseURL = "https://raw.githubusercontent.com/jaakkopasanen/AutoEq/master/results"

// NewFetcher creates a Fetcher for the given base URL. An empty base URL
// uses the published result set; a nil client uses a default with a
// conservative timeout.
func NewFetcher(baseURL string, client *http.Client) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{baseURL: baseURL, http: client}
}

// Fetch downloads and parses the preset stored under key. Any transport
// or parse failure degrades to "no preset available".
func (f *Fetcher) Fetch(ctx context.Context, key string) ([]ParametricFilter, error) {
	u := f.baseURL + "/" + url.PathEscape(key) + "/ParametricEQ.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoUsablePreset, err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		log.Printf("autoeq: fetch %q: %v", key, err)
		return nil, fmt.Errorf("%w: fetch failed", ErrNoUsablePreset)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("autoeq: fetch %q: status %d", key, resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrNoUsablePreset, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoUsablePreset, err)
	}
	return Parse(string(body))
}
