// Package report builds the periodic business digest from ledger queries,
// the latest resource snapshot and the busiest request route.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// Ledger is the read-only query surface the digest needs.
type Ledger interface {
	CountTransactions(ctx context.Context, filter model.TxFilter) (int64, error)
	SumAmount(ctx context.Context, filter model.TxFilter) (int64, error)
	CountAddresses(ctx context.Context, lo, hi int64) (int64, error)
	RankPartners(ctx context.Context, keys []string, window model.Window, limit int) ([]model.PartnerVolume, error)
	Close() error
}

// Opener connects to the ledger. A new handle is opened for every build.
type Opener func(ctx context.Context) (Ledger, error)

// Options configures digest content.
type Options struct {
	Title       string
	Genesis     time.Time
	LargeAmount int64             // micro-units; transfers at or above count as large
	Partners    map[string]string // api key -> display name
	RankLimit   int
	Location    *time.Location
	Timeout     time.Duration
}

// Default option values.
const (
	DefaultTitle       = "GasFree Provider digest"
	DefaultLargeAmount = 50_000_000
	DefaultRankLimit   = 3
	DefaultTimeout     = 30 * time.Second
)

// DefaultGenesis is the first day of service.
var DefaultGenesis = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

// TxStats summarises transfers in one window.
type TxStats struct {
	Count  int64 `json:"count"`
	Failed int64 `json:"failed"`
	Large  int64 `json:"large"`
	Amount int64 `json:"amount"` // successful transfers, micro-units
}

// LargeRatio returns the share of large transfers, 0 when there are none.
func (s TxStats) LargeRatio() float64 {
	return model.Ratio(s.Large, s.Count)
}

// Stats is everything a digest reports.
type Stats struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	LastDay         TxStats                 `json:"last_day"`
	LastDayNew      TxStats                 `json:"last_day_new_addresses"`
	AllTime         TxStats                 `json:"all_time"`
	AddressTotal    int64                   `json:"address_total"`
	Buckets         []model.AddressBucket   `json:"address_buckets"`
	PartnersAllTime []model.PartnerVolume   `json:"partners_all_time"`
	PartnersLastDay []model.PartnerVolume   `json:"partners_last_day"`
	Resources       *model.ResourceSnapshot `json:"resources,omitempty"`
	TopRoute        *model.TopRoute         `json:"top_route,omitempty"`
}

// Digest is a rendered report.
type Digest struct {
	Stats   Stats  `json:"stats"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

var addressBuckets = []model.AddressBucket{
	{Label: ">=50", Min: 50},
	{Label: "10-50", Min: 10, Max: 50},
	{Label: "5-10", Min: 5, Max: 10},
	{Label: "0-5", Min: 0, Max: 5},
}

// Aggregator runs the digest queries.
type Aggregator struct {
	open   Opener
	opts   Options
	logger *slog.Logger
}

// NewAggregator creates an aggregator, filling unset options with defaults.
func NewAggregator(open Opener, opts Options, logger *slog.Logger) *Aggregator {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.Genesis.IsZero() {
		opts.Genesis = DefaultGenesis
	}
	if opts.LargeAmount <= 0 {
		opts.LargeAmount = DefaultLargeAmount
	}
	if opts.RankLimit <= 0 {
		opts.RankLimit = DefaultRankLimit
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Aggregator{open: open, opts: opts, logger: logger}
}

// BuildDigest queries the ledger and renders the digest. Any query failure
// aborts the build; no partial digest is returned.
func (a *Aggregator) BuildDigest(ctx context.Context, now time.Time, snap *model.ResourceSnapshot, top *model.TopRoute) (*Digest, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	ledger, err := a.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			a.logger.Warn("close ledger", "error", err)
		}
	}()

	stats, err := a.collect(ctx, ledger, now)
	if err != nil {
		return nil, err
	}
	stats.Resources = snap
	stats.TopRoute = top

	return &Digest{
		Stats:   *stats,
		Subject: fmt.Sprintf("%s %s", a.opts.Title, a.stamp(now)),
		Text:    a.render(stats),
	}, nil
}

func (a *Aggregator) collect(ctx context.Context, ledger Ledger, now time.Time) (*Stats, error) {
	day := model.LastDay(now)
	allTime := model.Since(a.opts.Genesis, now)

	stats := &Stats{GeneratedAt: now}
	var err error

	if stats.LastDay, err = a.txStats(ctx, ledger, day, false); err != nil {
		return nil, fmt.Errorf("last day transactions: %w", err)
	}
	if stats.LastDayNew, err = a.txStats(ctx, ledger, day, true); err != nil {
		return nil, fmt.Errorf("last day new address transactions: %w", err)
	}
	if stats.AllTime, err = a.txStats(ctx, ledger, allTime, false); err != nil {
		return nil, fmt.Errorf("all time transactions: %w", err)
	}

	if stats.AddressTotal, err = ledger.CountAddresses(ctx, 0, 0); err != nil {
		return nil, fmt.Errorf("address total: %w", err)
	}
	for _, b := range addressBuckets {
		if b.Count, err = ledger.CountAddresses(ctx, b.Min, b.Max); err != nil {
			return nil, fmt.Errorf("address bucket %s: %w", b.Label, err)
		}
		stats.Buckets = append(stats.Buckets, b)
	}

	keys := a.partnerKeys()
	if stats.PartnersAllTime, err = ledger.RankPartners(ctx, keys, allTime, a.opts.RankLimit); err != nil {
		return nil, fmt.Errorf("all time partner ranking: %w", err)
	}
	if stats.PartnersLastDay, err = ledger.RankPartners(ctx, keys, day, a.opts.RankLimit); err != nil {
		return nil, fmt.Errorf("last day partner ranking: %w", err)
	}
	a.name(stats.PartnersAllTime)
	a.name(stats.PartnersLastDay)

	return stats, nil
}

func (a *Aggregator) txStats(ctx context.Context, ledger Ledger, w model.Window, newOnly bool) (TxStats, error) {
	var s TxStats
	var err error

	base := model.TxFilter{Window: w, NewAddressesOnly: newOnly}

	if s.Count, err = ledger.CountTransactions(ctx, base); err != nil {
		return s, err
	}

	failed := base
	failed.State = model.TxFailed
	if s.Failed, err = ledger.CountTransactions(ctx, failed); err != nil {
		return s, err
	}

	large := base
	large.MinAmount = a.opts.LargeAmount
	if s.Large, err = ledger.CountTransactions(ctx, large); err != nil {
		return s, err
	}

	succeeded := base
	succeeded.State = model.TxSucceeded
	if s.Amount, err = ledger.SumAmount(ctx, succeeded); err != nil {
		return s, err
	}
	return s, nil
}

func (a *Aggregator) partnerKeys() []string {
	keys := make([]string, 0, len(a.opts.Partners))
	for k := range a.opts.Partners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *Aggregator) name(ranking []model.PartnerVolume) {
	for i := range ranking {
		ranking[i].Name = a.opts.Partners[ranking[i].Key]
		if ranking[i].Name == "" {
			ranking[i].Name = ranking[i].Key
		}
	}
}

func (a *Aggregator) stamp(t time.Time) string {
	return t.In(a.opts.Location).Format("2006-01-02T15:04:05")
}
