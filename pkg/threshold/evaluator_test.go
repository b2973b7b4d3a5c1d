package threshold_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/threshold"
)

func TestEvaluate_BalanceAndEnergy(t *testing.T) {
	snap := model.ResourceSnapshot{
		ReserveBalance:  9_000_000,
		EnergyRemaining: 100,
		EnergyLimit:     1000,
	}
	th := model.Thresholds{BalanceMin: 1000, EnergyRatio: 0.5}

	breaches := threshold.Evaluate(snap, th)

	assert.Equal(t, []model.AlertClass{model.BalanceLow, model.EnergyLow}, threshold.Classes(breaches))
	assert.InDelta(t, 9.0, breaches[0].Current, 1e-9)
	assert.Equal(t, 1000.0, breaches[0].Threshold)
	assert.Contains(t, breaches[0].Message, "reserve balance 9.00 is below 1,000.00")
	assert.InDelta(t, 0.1, breaches[1].Current, 1e-9)
	assert.Contains(t, breaches[1].Message, "energy remaining 100 of 1,000 (10.0%)")
}

func TestEvaluate_ZeroLimitNotBreached(t *testing.T) {
	snap := model.ResourceSnapshot{
		ReserveBalance:     5_000_000_000,
		EnergyRemaining:    0,
		EnergyLimit:        0,
		BandwidthRemaining: 0,
		BandwidthLimit:     0,
	}
	th := model.Thresholds{EnergyRatio: 0.9, BandwidthRatio: 0.9, BalanceRatio: 0.9}

	assert.Empty(t, threshold.Evaluate(snap, th))
}

func TestEvaluate_AllDimensions(t *testing.T) {
	snap := model.ResourceSnapshot{
		ReserveBalance:     1_000_000_000, // 1,000 units
		EnergyRemaining:    10,
		EnergyLimit:        100,
		BandwidthRemaining: 1,
		BandwidthLimit:     100,
	}
	th := model.Thresholds{
		BalanceReference: 10_000,
		BalanceRatio:     0.2,
		EnergyRatio:      0.2,
		BandwidthRatio:   0.2,
	}

	breaches := threshold.Evaluate(snap, th)
	assert.Equal(t,
		[]model.AlertClass{model.BalanceLow, model.EnergyLow, model.BandwidthLow},
		threshold.Classes(breaches))
	assert.Equal(t, 2000.0, breaches[0].Threshold)
	assert.Contains(t, breaches[0].Message, "(10.0% of reference)")
}

func TestEvaluate_RatioBoundary(t *testing.T) {
	tests := []struct {
		name      string
		remaining int64
		limit     int64
		ratio     float64
		breached  bool
	}{
		{"equal is not a breach", 50, 100, 0.5, false},
		{"just below", 49, 100, 0.5, true},
		{"above", 80, 100, 0.5, false},
		{"zero threshold never fires", 0, 100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := model.ResourceSnapshot{EnergyRemaining: tt.remaining, EnergyLimit: tt.limit}
			got := threshold.Evaluate(snap, model.Thresholds{EnergyRatio: tt.ratio})
			assert.Equal(t, tt.breached, len(got) == 1)
		})
	}
}

func TestEvaluate_Pure(t *testing.T) {
	snap := model.ResourceSnapshot{ReserveBalance: 1, EnergyRemaining: 1, EnergyLimit: 10}
	th := model.Thresholds{BalanceMin: 10, EnergyRatio: 0.5}

	first := threshold.Evaluate(snap, th)
	second := threshold.Evaluate(snap, th)
	assert.Equal(t, first, second)
}
