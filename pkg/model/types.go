package model

import "time"

// MicroPerUnit is the number of micro-units in one whole unit of the reserve currency.
const MicroPerUnit = 1_000_000

// Per-transfer resource costs used to estimate how many transfers remain.
const (
	EnergyPerTransferWithActivation    = 340_000
	EnergyPerTransferWithoutActivation = 170_000
	BandwidthPerTransfer               = 699
)

// ResourceSnapshot is one point-in-time reading of the provisioning account.
type ResourceSnapshot struct {
	ReserveBalance     int64     `json:"reserve_balance"` // micro-units
	EnergyRemaining    int64     `json:"energy_remaining"`
	EnergyLimit        int64     `json:"energy_limit"`
	BandwidthRemaining int64     `json:"bandwidth_remaining"`
	BandwidthLimit     int64     `json:"bandwidth_limit"`
	FetchedAt          time.Time `json:"fetched_at"`
}

// Balance returns the reserve balance in whole units.
func (s ResourceSnapshot) Balance() float64 {
	return float64(s.ReserveBalance) / MicroPerUnit
}

// EnergyRatio returns remaining/limit for energy, or 0 when the limit is zero.
func (s ResourceSnapshot) EnergyRatio() float64 {
	return Ratio(s.EnergyRemaining, s.EnergyLimit)
}

// BandwidthRatio returns remaining/limit for bandwidth, or 0 when the limit is zero.
func (s ResourceSnapshot) BandwidthRatio() float64 {
	return Ratio(s.BandwidthRemaining, s.BandwidthLimit)
}

func (s ResourceSnapshot) EstimatedTransfersWithActivation() int64 {
	return s.EnergyRemaining / EnergyPerTransferWithActivation
}

func (s ResourceSnapshot) EstimatedTransfersWithoutActivation() int64 {
	return s.EnergyRemaining / EnergyPerTransferWithoutActivation
}

func (s ResourceSnapshot) EstimatedBandwidthTransfers() int64 {
	return s.BandwidthRemaining / BandwidthPerTransfer
}

// Ratio divides part by whole, returning 0 for a non-positive whole.
func Ratio(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// Thresholds are the warning levels a snapshot is evaluated against.
type Thresholds struct {
	BalanceMin       float64 `json:"balance_min" yaml:"balance_min"`             // whole units
	BalanceReference float64 `json:"balance_reference" yaml:"balance_reference"` // whole units
	BalanceRatio     float64 `json:"balance_ratio" yaml:"balance_ratio"`
	EnergyRatio      float64 `json:"energy_ratio" yaml:"energy_ratio"`
	BandwidthRatio   float64 `json:"bandwidth_ratio" yaml:"bandwidth_ratio"`
}

// AlertClass identifies which resource dimension breached.
type AlertClass string

const (
	BalanceLow   AlertClass = "balance_low"
	EnergyLow    AlertClass = "energy_low"
	BandwidthLow AlertClass = "bandwidth_low"
)

// Breach is a single threshold violation found during evaluation.
type Breach struct {
	Class     AlertClass `json:"class"`
	Current   float64    `json:"current"`
	Threshold float64    `json:"threshold"`
	Message   string     `json:"message"`
}

// TopRoute is the busiest request route reported by telemetry.
type TopRoute struct {
	Route string  `json:"route"`
	Rate  float64 `json:"rate"`
}

// TxState is the settlement state of an off-chain transfer.
type TxState string

const (
	TxSucceeded  TxState = "SUCCEED"
	TxFailed     TxState = "FAILED"
	TxInProgress TxState = "INPROGRESS"
	TxWaiting    TxState = "WAITING"
)

// Window is a closed time range [Start, End].
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastDay returns the 24 hour window ending at now.
func LastDay(now time.Time) Window {
	return Window{Start: now.Add(-24 * time.Hour), End: now}
}

// Since returns the window from start up to now.
func Since(start, now time.Time) Window {
	return Window{Start: start, End: now}
}

// TxFilter narrows ledger transaction queries. Zero values mean no restriction.
type TxFilter struct {
	Window           Window
	State            TxState
	MinAmount        int64 // micro-units, inclusive
	NewAddressesOnly bool  // only addresses onboarded inside Window
}

// PartnerVolume is one row of a partner ranking.
type PartnerVolume struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Count  int64  `json:"count"`
	Amount int64  `json:"amount"` // micro-units
}

// AddressBucket counts addresses whose transaction count falls in [Min, Max).
// Max <= 0 means unbounded.
type AddressBucket struct {
	Label string `json:"label"`
	Min   int64  `json:"min"`
	Max   int64  `json:"max"`
	Count int64  `json:"count"`
}
