package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Observation is the decoded outcome of one provider fetch: numeric
// parameter values for the alert engine plus quality metadata for the
// health tracker.
type Observation struct {
	Values           map[string]float64
	Completeness     float64
	ValidationErrors []string
	ObservedAt       time.Time
}

// Fetcher retrieves one provider product.
type Fetcher interface {
	Name() string
	Endpoint() string
	Fetch(ctx context.Context) (Observation, error)
}

// Options parameterise the NOAA SWPC HTTP client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type httpClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func newHTTPClient(opts Options) httpClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://services.swpc.noaa.gov"
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "swxmon/1.0"
	}
	return httpClient{baseURL: baseURL, userAgent: userAgent, client: &http.Client{Timeout: timeout}}
}

func (c httpClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned %d for %s", resp.StatusCode, path)
	}
	return body, nil
}
