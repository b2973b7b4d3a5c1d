package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ogulcanaydogan/gasfree-sentinel/internal/metrics"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/alerts"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/threshold"
)

// AlertSubject is the subject line of every alert batch.
const AlertSubject = "GasFree resource alert"

// Outcome describes what happened to the breaches of one check.
type Outcome string

const (
	OutcomeClear      Outcome = "clear"
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// CheckResult is the result of evaluating one snapshot.
type CheckResult struct {
	Snapshot *model.ResourceSnapshot `json:"snapshot"`
	Breaches []model.Breach          `json:"breaches"`
	Outcome  Outcome                 `json:"outcome"`
	Error    string                  `json:"error,omitempty"`
}

// CheckNow fetches a snapshot and runs the alert path outside the loop. It
// shares the loop's limiter, so it cannot bypass the cooldown.
func (s *Scheduler) CheckNow(ctx context.Context) (*CheckResult, error) {
	snap, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	res := s.alert(ctx, s.logger, s.now(), snap)
	return &res, nil
}

func (s *Scheduler) alert(ctx context.Context, logger *slog.Logger, now time.Time, snap *model.ResourceSnapshot) CheckResult {
	breaches := threshold.Evaluate(*snap, s.opts.Thresholds.Current())
	res := CheckResult{Snapshot: snap, Breaches: breaches, Outcome: OutcomeClear}
	if len(breaches) == 0 {
		return res
	}
	for _, b := range breaches {
		metrics.BreachesTotal.WithLabelValues(string(b.Class)).Inc()
	}
	classes := threshold.Classes(breaches)

	release, ok := s.opts.Limiter.Acquire(now, s.opts.Cooldown)
	if !ok {
		logger.Info("alert batch suppressed",
			"classes", classes, "last_sent", s.opts.Limiter.Last(), "cooldown", s.opts.Cooldown)
		metrics.AlertBatchesTotal.WithLabelValues(string(OutcomeSuppressed)).Inc()
		res.Outcome = OutcomeSuppressed
		return res
	}

	notifiers := s.opts.Routes.For(alerts.KindAlert)
	result := s.opts.Dispatcher.Deliver(ctx, notifiers, alerts.Message{
		Kind:     alerts.KindAlert,
		Subject:  AlertSubject,
		Text:     AlertText(breaches),
		Escalate: true,
	})
	if !result.Delivered() {
		release()
		err := result.Err()
		if len(notifiers) == 0 {
			err = model.ConfigError("alert", errors.New("no alert channels configured"))
		}
		logger.Error("alert batch not delivered", "classes", classes, "error", err)
		metrics.AlertBatchesTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}

	if failed := result.Failures(); len(failed) > 0 {
		logger.Warn("alert batch partially delivered", "classes", classes, "error", result.Err())
	}
	logger.Info("alert batch sent", "classes", classes, "channels", len(notifiers))
	metrics.AlertBatchesTotal.WithLabelValues(string(OutcomeSent)).Inc()
	s.record(func(st *Status) { st.LastAlert = now })
	res.Outcome = OutcomeSent
	return res
}

// AlertText joins breach messages one per line.
func AlertText(breaches []model.Breach) string {
	lines := make([]string, 0, len(breaches))
	for _, b := range breaches {
		lines = append(lines, "⚠️ "+b.Message)
	}
	return strings.Join(lines, "\n")
}
