package resource

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	prommodel "github.com/prometheus/common/model"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// Gauge names read from the exposition endpoint.
const (
	MetricBalance        = "tron_trx"
	MetricEnergy         = "tron_energy"
	MetricEnergyLimit    = "tron_energy_limit"
	MetricBandwidth      = "tron_net"
	MetricBandwidthLimit = "tron_net_limit"
)

// ExpositionFetcher reads account gauges from a Prometheus text exposition.
// Balance and remaining values are required; a missing limit reads as 0.
type ExpositionFetcher struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewExpositionFetcher creates a fetcher for the exposition at url.
func NewExpositionFetcher(url string, timeout time.Duration) *ExpositionFetcher {
	return &ExpositionFetcher{
		url:    url,
		client: newHTTPClient(timeout),
		now:    time.Now,
	}
}

func (f *ExpositionFetcher) Fetch(ctx context.Context) (*model.ResourceSnapshot, error) {
	resp, err := get(ctx, f.client, "exposition", f.url, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	mfs, err := parseMetrics(resp.Body)
	if err != nil {
		return nil, model.DecodeError("exposition", err)
	}

	snap := &model.ResourceSnapshot{FetchedAt: f.now().UTC()}
	required := []struct {
		name string
		dst  *int64
	}{
		{MetricBalance, &snap.ReserveBalance},
		{MetricEnergy, &snap.EnergyRemaining},
		{MetricBandwidth, &snap.BandwidthRemaining},
	}
	for _, r := range required {
		v, ok, err := gaugeValue(mfs[r.name])
		if err != nil {
			return nil, model.DecodeError("exposition", fmt.Errorf("%s: %w", r.name, err))
		}
		if !ok {
			return nil, model.DecodeError("exposition", fmt.Errorf("missing metric %s", r.name))
		}
		*r.dst = v
	}

	optional := []struct {
		name string
		dst  *int64
	}{
		{MetricEnergyLimit, &snap.EnergyLimit},
		{MetricBandwidthLimit, &snap.BandwidthLimit},
	}
	for _, o := range optional {
		v, _, err := gaugeValue(mfs[o.name])
		if err != nil {
			return nil, model.DecodeError("exposition", fmt.Errorf("%s: %w", o.name, err))
		}
		*o.dst = v
	}

	return snap, nil
}

func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	parser := expfmt.NewTextParser(prommodel.UTF8Validation)
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return mfs, nil
}

// gaugeValue sums the samples of a family and rejects negative or non-finite totals.
func gaugeValue(mf *dto.MetricFamily) (int64, bool, error) {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0, false, nil
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, true, fmt.Errorf("non-finite value")
	}
	if total < 0 {
		return 0, true, fmt.Errorf("negative value %v", total)
	}
	return int64(math.Round(total)), true, nil
}
