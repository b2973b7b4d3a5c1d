package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/gasfree-sentinel/internal/metrics"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/alerts"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/report"
)

// ErrDigestDisabled is returned by Digest when no digest builder is wired.
var ErrDigestDisabled = errors.New("digest disabled")

// Digest builds a digest now and, when send is true, delivers it to the
// digest channels. A failed resource fetch leaves the resources section empty
// instead of aborting.
func (s *Scheduler) Digest(ctx context.Context, send bool) (*report.Digest, error) {
	if s.opts.Digests == nil {
		return nil, ErrDigestDisabled
	}
	now := s.now()
	snap, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("digest without resources", "error", err)
	}
	return s.digest(ctx, s.logger, now, snap, send)
}

// scheduledDigest fires at most once per trigger minute.
func (s *Scheduler) scheduledDigest(ctx context.Context, logger *slog.Logger, now time.Time, snap *model.ResourceSnapshot) error {
	if !s.digestEnabled() || !s.opts.Trigger.Due(now) {
		return nil
	}

	slot := s.opts.Trigger.Slot(now)
	s.mu.Lock()
	if s.digestSlot.Equal(slot) {
		s.mu.Unlock()
		logger.Debug("digest already sent for slot", "slot", slot)
		return nil
	}
	s.digestSlot = slot
	s.mu.Unlock()

	_, err := s.digest(ctx, logger, now, snap, true)
	return err
}

func (s *Scheduler) digest(ctx context.Context, logger *slog.Logger, now time.Time, snap *model.ResourceSnapshot, send bool) (*report.Digest, error) {
	var top *model.TopRoute
	if s.opts.Rates != nil {
		var err error
		if top, err = s.opts.Rates.TopRoute(ctx, now); err != nil {
			metrics.DigestsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("query top route: %w", err)
		}
	}

	d, err := s.opts.Digests.BuildDigest(ctx, now, snap, top)
	if err != nil {
		metrics.DigestsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("build digest: %w", err)
	}
	if !send {
		metrics.DigestsTotal.WithLabelValues("built").Inc()
		return d, nil
	}

	notifiers := s.opts.Routes.For(alerts.KindDigest)
	if len(notifiers) == 0 {
		metrics.DigestsTotal.WithLabelValues("failed").Inc()
		return d, model.ConfigError("digest", errors.New("no digest channels configured"))
	}

	result := s.opts.Dispatcher.Deliver(ctx, notifiers, alerts.Message{
		Kind:    alerts.KindDigest,
		Subject: d.Subject,
		Text:    d.Text,
	})
	if !result.Delivered() {
		metrics.DigestsTotal.WithLabelValues("failed").Inc()
		return d, result.Err()
	}

	logger.Info("digest sent", "subject", d.Subject, "channels", len(notifiers))
	metrics.DigestsTotal.WithLabelValues("sent").Inc()
	s.record(func(st *Status) { st.LastDigest = now })
	return d, nil
}
