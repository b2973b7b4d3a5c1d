package resource

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

const defaultTimeout = 10 * time.Second

// Fetcher reads the current resource state of the provisioning account.
// Implementations perform a single read per call and never retry.
type Fetcher interface {
	Fetch(ctx context.Context) (*model.ResourceSnapshot, error)
}

// Source names accepted by New.
const (
	SourceTronscan   = "tronscan"
	SourceExposition = "exposition"
)

// New returns the Fetcher for the given source type.
func New(source, url string, timeout time.Duration) (Fetcher, error) {
	switch source {
	case SourceTronscan, "":
		return NewTronscanFetcher(url, timeout), nil
	case SourceExposition:
		return NewExpositionFetcher(url, timeout), nil
	default:
		return nil, model.ConfigError("resource", fmt.Errorf("unsupported source %q", source))
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func get(ctx context.Context, client *http.Client, op, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.TransportError(op, fmt.Errorf("build request: %w", err))
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, model.TransportError(op, fmt.Errorf("http get: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, model.TransportError(op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return resp, nil
}
