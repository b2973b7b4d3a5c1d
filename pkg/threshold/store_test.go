package threshold_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/threshold"
)

var defaults = model.Thresholds{
	BalanceMin:     1000,
	EnergyRatio:    0.2,
	BandwidthRatio: 0.2,
}

func newStore(t *testing.T) *threshold.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return threshold.NewStore(path, defaults, logger)
}

func TestStore_MissingFileUsesDefaults(t *testing.T) {
	s := newStore(t)
	th, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, defaults, th)
	assert.Equal(t, defaults, s.Current())
}

func TestStore_SetPersists(t *testing.T) {
	s := newStore(t)

	th, err := s.Set(threshold.NameEnergyRatio, 0.35)
	require.NoError(t, err)
	assert.Equal(t, 0.35, th.EnergyRatio)
	assert.Equal(t, 1000.0, th.BalanceMin)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "energy_ratio: 0.35")

	reopened := threshold.NewStore(s.Path(), model.Thresholds{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	loaded, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, th, loaded)
}

func TestStore_SetValidation(t *testing.T) {
	s := newStore(t)

	tests := []struct {
		name  string
		key   string
		value float64
	}{
		{"ratio above one", threshold.NameBandwidthRatio, 1.5},
		{"negative ratio", threshold.NameBalanceRatio, -0.1},
		{"negative absolute", threshold.NameBalanceMin, -1},
		{"unknown name", "gas_ratio", 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Set(tt.key, tt.value)
			require.Error(t, err)
			assert.Equal(t, model.KindConfig, model.KindOf(err))
		})
	}

	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestStore_CurrentKeepsLastGood(t *testing.T) {
	s := newStore(t)
	_, err := s.Set(threshold.NameBalanceMin, 500)
	require.NoError(t, err)
	assert.Equal(t, 500.0, s.Current().BalanceMin)

	require.NoError(t, os.WriteFile(s.Path(), []byte("balance_min: [oops"), 0o644))
	_, err = s.Load()
	require.Error(t, err)
	assert.Equal(t, 500.0, s.Current().BalanceMin)

	require.NoError(t, os.WriteFile(s.Path(), []byte("energy_ratio: 3\n"), 0o644))
	assert.Equal(t, 500.0, s.Current().BalanceMin)
	assert.Equal(t, 0.2, s.Current().EnergyRatio)
}

func TestStore_ExternalEditApplies(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("balance_min: 42\nbandwidth_ratio: 0.05\n"), 0o644))

	th := s.Current()
	assert.Equal(t, 42.0, th.BalanceMin)
	assert.Equal(t, 0.05, th.BandwidthRatio)
	assert.Equal(t, 0.2, th.EnergyRatio)
}

func TestStore_Watch(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan model.Thresholds, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(th model.Thresholds) { changes <- th })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	_, err := s.Set(threshold.NameEnergyRatio, 0.6)
	require.NoError(t, err)

	select {
	case th := <-changes:
		assert.Equal(t, 0.6, th.EnergyRatio)
	case <-time.After(5 * time.Second):
		t.Fatal("no change observed")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{
		"balance_min", "balance_ratio", "balance_reference", "bandwidth_ratio", "energy_ratio",
	}, threshold.Names())
}
