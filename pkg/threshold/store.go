package threshold

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// Threshold names accepted by Store.Set.
const (
	NameBalanceMin       = "balance_min"
	NameBalanceReference = "balance_reference"
	NameBalanceRatio     = "balance_ratio"
	NameEnergyRatio      = "energy_ratio"
	NameBandwidthRatio   = "bandwidth_ratio"
)

type field struct {
	ratio bool
	ptr   func(*model.Thresholds) *float64
}

var fields = map[string]field{
	NameBalanceMin:       {ratio: false, ptr: func(t *model.Thresholds) *float64 { return &t.BalanceMin }},
	NameBalanceReference: {ratio: false, ptr: func(t *model.Thresholds) *float64 { return &t.BalanceReference }},
	NameBalanceRatio:     {ratio: true, ptr: func(t *model.Thresholds) *float64 { return &t.BalanceRatio }},
	NameEnergyRatio:      {ratio: true, ptr: func(t *model.Thresholds) *float64 { return &t.EnergyRatio }},
	NameBandwidthRatio:   {ratio: true, ptr: func(t *model.Thresholds) *float64 { return &t.BandwidthRatio }},
}

// Names returns the settable threshold names in sorted order.
func Names() []string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that ratios lie in [0,1] and absolute values are non-negative.
func Validate(th model.Thresholds) error {
	for _, name := range Names() {
		f := fields[name]
		v := *f.ptr(&th)
		if v < 0 {
			return model.ConfigError("thresholds", fmt.Errorf("%s must be >= 0, got %v", name, v))
		}
		if f.ratio && v > 1 {
			return model.ConfigError("thresholds", fmt.Errorf("%s must be within [0,1], got %v", name, v))
		}
	}
	return nil
}

// Store persists thresholds in a YAML file. The file is the source of truth:
// every Current call re-reads it so external edits apply on the next tick.
type Store struct {
	path     string
	defaults model.Thresholds
	logger   *slog.Logger

	mu   sync.Mutex
	last model.Thresholds
}

// NewStore creates a store backed by path. defaults are used while the file does not exist.
func NewStore(path string, defaults model.Thresholds, logger *slog.Logger) *Store {
	return &Store{
		path:     path,
		defaults: defaults,
		logger:   logger,
		last:     defaults,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads and validates the threshold file.
func (s *Store) Load() (model.Thresholds, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.defaults, nil
	}
	if err != nil {
		return model.Thresholds{}, model.ConfigError("thresholds", fmt.Errorf("read %s: %w", s.path, err))
	}

	th := s.defaults
	if err := yaml.Unmarshal(data, &th); err != nil {
		return model.Thresholds{}, model.ConfigError("thresholds", fmt.Errorf("parse %s: %w", s.path, err))
	}
	if err := Validate(th); err != nil {
		return model.Thresholds{}, err
	}
	return th, nil
}

// Current returns the thresholds on disk, or the last good value when the file is unreadable.
func (s *Store) Current() model.Thresholds {
	th, err := s.Load()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Error("load thresholds, keeping previous", "path", s.path, "error", err)
		return s.last
	}
	s.last = th
	return th
}

// Set updates one named threshold and persists the result atomically.
func (s *Store) Set(name string, value float64) (model.Thresholds, error) {
	f, ok := fields[name]
	if !ok {
		return model.Thresholds{}, model.ConfigError("thresholds", fmt.Errorf("unknown threshold %q", name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	th, err := s.Load()
	if err != nil {
		th = s.last
	}
	*f.ptr(&th) = value
	if err := Validate(th); err != nil {
		return model.Thresholds{}, err
	}
	if err := s.save(th); err != nil {
		return model.Thresholds{}, err
	}

	s.last = th
	s.logger.Info("threshold updated", "name", name, "value", value)
	return th, nil
}

func (s *Store) save(th model.Thresholds) error {
	data, err := yaml.Marshal(th)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create thresholds directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write thresholds: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close thresholds: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace thresholds: %w", err)
	}
	return nil
}
