package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// TronscanFetcher reads the account summary JSON published by the chain explorer.
type TronscanFetcher struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewTronscanFetcher creates a fetcher for the account summary at url.
func NewTronscanFetcher(url string, timeout time.Duration) *TronscanFetcher {
	return &TronscanFetcher{
		url:    url,
		client: newHTTPClient(timeout),
		now:    time.Now,
	}
}

type tronscanAccount struct {
	Balance   *int64             `json:"balance"`
	Bandwidth *tronscanBandwidth `json:"bandwidth"`
}

type tronscanBandwidth struct {
	EnergyRemaining *int64 `json:"energyRemaining"`
	EnergyLimit     *int64 `json:"energyLimit"`
	NetRemaining    *int64 `json:"netRemaining"`
	NetLimit        *int64 `json:"netLimit"`
}

func (f *TronscanFetcher) Fetch(ctx context.Context) (*model.ResourceSnapshot, error) {
	resp, err := get(ctx, f.client, "tronscan", f.url, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var acct tronscanAccount
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return nil, model.DecodeError("tronscan", fmt.Errorf("decode account: %w", err))
	}
	if acct.Bandwidth == nil {
		return nil, model.DecodeError("tronscan", errors.New("missing field bandwidth"))
	}

	fields := []struct {
		name string
		v    *int64
	}{
		{"balance", acct.Balance},
		{"bandwidth.energyRemaining", acct.Bandwidth.EnergyRemaining},
		{"bandwidth.energyLimit", acct.Bandwidth.EnergyLimit},
		{"bandwidth.netRemaining", acct.Bandwidth.NetRemaining},
		{"bandwidth.netLimit", acct.Bandwidth.NetLimit},
	}
	for _, fld := range fields {
		if fld.v == nil {
			return nil, model.DecodeError("tronscan", fmt.Errorf("missing field %s", fld.name))
		}
		if *fld.v < 0 {
			return nil, model.DecodeError("tronscan", fmt.Errorf("negative value %d for %s", *fld.v, fld.name))
		}
	}

	return &model.ResourceSnapshot{
		ReserveBalance:     *acct.Balance,
		EnergyRemaining:    *acct.Bandwidth.EnergyRemaining,
		EnergyLimit:        *acct.Bandwidth.EnergyLimit,
		BandwidthRemaining: *acct.Bandwidth.NetRemaining,
		BandwidthLimit:     *acct.Bandwidth.NetLimit,
		FetchedAt:          f.now().UTC(),
	}, nil
}
