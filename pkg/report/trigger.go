package report

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// DefaultSchedule fires at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Trigger decides whether a wall-clock minute is a digest minute.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	loc      *time.Location
}

// NewTrigger parses a standard five-field cron expression evaluated in loc.
func NewTrigger(spec string, loc *time.Location) (*Trigger, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, model.ConfigError("report", fmt.Errorf("parse schedule %q: %w", spec, err))
	}
	return &Trigger{spec: spec, schedule: schedule, loc: loc}, nil
}

// Slot returns the minute t falls in.
func (tr *Trigger) Slot(t time.Time) time.Time {
	return t.In(tr.loc).Truncate(time.Minute)
}

// Due reports whether the minute containing t matches the schedule.
func (tr *Trigger) Due(t time.Time) bool {
	slot := tr.Slot(t)
	return tr.schedule.Next(slot.Add(-time.Second)).Equal(slot)
}

// Next returns the next digest minute strictly after t.
func (tr *Trigger) Next(t time.Time) time.Time {
	return tr.schedule.Next(t.In(tr.loc))
}

func (tr *Trigger) String() string { return tr.spec }
