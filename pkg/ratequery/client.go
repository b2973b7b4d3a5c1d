// Package ratequery finds the busiest request route from a Prometheus-compatible
// time-series endpoint.
package ratequery

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// DefaultQuery is the per-route request rate of the public API.
const DefaultQuery = `rate(http_server_requests_seconds_count{job="gasfree-api"}[60s])`

// DefaultLabel is the sample label that carries the route.
const DefaultLabel = "uri"

// Client runs one instant query and picks the highest sample.
type Client struct {
	api     v1.API
	query   string
	label   string
	timeout time.Duration
}

// New creates a client for the query endpoint at address.
func New(address, query, label string, timeout time.Duration) (*Client, error) {
	if query == "" {
		query = DefaultQuery
	}
	if label == "" {
		label = DefaultLabel
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c, err := api.NewClient(api.Config{
		Address: address,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, model.ConfigError("ratequery", fmt.Errorf("create client: %w", err))
	}

	return &Client{api: v1.NewAPI(c), query: query, label: label, timeout: timeout}, nil
}

// TopRoute returns the route with the highest rate at time at, or nil when the
// query yields no samples.
func (c *Client) TopRoute(ctx context.Context, at time.Time) (*model.TopRoute, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, _, err := c.api.Query(ctx, c.query, at)
	if err != nil {
		return nil, model.QueryError("ratequery", fmt.Errorf("query request rate: %w", err))
	}

	vector, ok := value.(prommodel.Vector)
	if !ok {
		return nil, model.DecodeError("ratequery", fmt.Errorf("expected vector result, got %s", value.Type()))
	}
	return Highest(vector, c.label), nil
}

// Highest picks the sample with the largest finite value. Ties keep the first.
func Highest(vector prommodel.Vector, label string) *model.TopRoute {
	var top *model.TopRoute
	for _, s := range vector {
		v := float64(s.Value)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if top == nil || v > top.Rate {
			top = &model.TopRoute{
				Route: string(s.Metric[prommodel.LabelName(label)]),
				Rate:  v,
			}
		}
	}
	return top
}
