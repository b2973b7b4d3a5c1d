// Package monitor drives the polling loop: resource checks, alert batches and
// the scheduled digest.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/gasfree-sentinel/internal/metrics"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/alerts"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/ratelimit"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/report"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/resource"
)

// Default loop timings.
const (
	DefaultPollInterval = 60 * time.Second
	DefaultCooldown     = 600 * time.Second
)

// ThresholdSource returns the thresholds in force right now.
type ThresholdSource interface {
	Current() model.Thresholds
}

// DigestBuilder renders a digest from the ledger.
type DigestBuilder interface {
	BuildDigest(ctx context.Context, now time.Time, snap *model.ResourceSnapshot, top *model.TopRoute) (*report.Digest, error)
}

// RateSource reports the busiest request route.
type RateSource interface {
	TopRoute(ctx context.Context, at time.Time) (*model.TopRoute, error)
}

// Options wires the scheduler. Digests, Trigger and Rates are optional; the
// digest is disabled unless both Digests and Trigger are set.
type Options struct {
	Fetcher    resource.Fetcher
	Thresholds ThresholdSource
	Limiter    *ratelimit.Limiter
	Dispatcher *alerts.Dispatcher
	Routes     alerts.Routes

	Digests DigestBuilder
	Trigger *report.Trigger
	Rates   RateSource

	PollInterval time.Duration
	Cooldown     time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Status is the scheduler's most recent activity.
type Status struct {
	LastTick   time.Time               `json:"last_tick"`
	LastAlert  time.Time               `json:"last_alert"`
	LastDigest time.Time               `json:"last_digest"`
	LastError  string                  `json:"last_error,omitempty"`
	Snapshot   *model.ResourceSnapshot `json:"snapshot,omitempty"`
}

// Scheduler runs ticks one at a time. On-demand entry points may run
// concurrently with the loop; the limiter keeps alert batches spaced.
type Scheduler struct {
	opts   Options
	now    func() time.Time
	logger *slog.Logger

	mu         sync.Mutex
	status     Status
	digestSlot time.Time
}

// New creates a scheduler, filling unset timings with defaults.
func New(opts Options, logger *slog.Logger) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Scheduler{opts: opts, now: now, logger: logger}
}

// Run ticks until ctx is cancelled, sleeping PollInterval after each tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"poll_interval", s.opts.PollInterval,
		"cooldown", s.opts.Cooldown,
		"digest", s.digestEnabled())

	for {
		_ = s.Tick(ctx)
		if !sleepWithContext(ctx, s.opts.PollInterval) {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

// Tick performs one polling cycle. A fetch failure ends the tick before
// thresholds or the digest are looked at. Panics are recovered and returned
// as errors so the loop keeps going.
func (s *Scheduler) Tick(ctx context.Context) (err error) {
	start := s.now()
	logger := s.logger.With("tick", uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tick panicked", "panic", r, "stack", string(debug.Stack()))
			metrics.TicksTotal.WithLabelValues("panic").Inc()
			err = fmt.Errorf("tick panicked: %v", r)
		}
		metrics.TickDuration.Observe(s.now().Sub(start).Seconds())
		s.record(func(st *Status) {
			st.LastTick = start
			st.LastError = ""
			if err != nil {
				st.LastError = err.Error()
			}
		})
	}()

	snap, err := s.fetch(ctx)
	if err != nil {
		logger.Error("fetch resources", "error", err)
		metrics.TicksTotal.WithLabelValues("fetch_error").Inc()
		return err
	}

	s.alert(ctx, logger, start, snap)

	if err := s.scheduledDigest(ctx, logger, start, snap); err != nil {
		logger.Error("scheduled digest", "error", err)
		metrics.TicksTotal.WithLabelValues("digest_error").Inc()
		return err
	}

	metrics.TicksTotal.WithLabelValues("ok").Inc()
	return nil
}

// Snapshot fetches the current resource state.
func (s *Scheduler) Snapshot(ctx context.Context) (*model.ResourceSnapshot, error) {
	return s.fetch(ctx)
}

// Status returns a copy of the latest activity.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) fetch(ctx context.Context) (*model.ResourceSnapshot, error) {
	snap, err := s.opts.Fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch resources: %w", err)
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = s.now()
	}
	metrics.ObserveSnapshot(snap)
	s.record(func(st *Status) { st.Snapshot = snap })
	return snap, nil
}

func (s *Scheduler) record(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *Scheduler) digestEnabled() bool {
	return s.opts.Digests != nil && s.opts.Trigger != nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
