package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// RetryPolicy is a fixed-delay retry schedule applied per channel.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy tries each channel ten times, one second apart.
var DefaultRetryPolicy = RetryPolicy{Attempts: 10, Delay: time.Second}

// Outcome is the final state of delivery to one channel.
type Outcome struct {
	Notifier string
	Attempts int
	Err      error
}

// Result collects the outcome of every channel in configuration order.
type Result struct {
	Outcomes []Outcome
}

// Delivered reports whether at least one channel accepted the message.
func (r Result) Delivered() bool {
	for _, o := range r.Outcomes {
		if o.Err == nil {
			return true
		}
	}
	return false
}

// Failures returns the channels that exhausted their retries.
func (r Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the failures into one delivery error, or nil.
func (r Result) Err() error {
	var errs []error
	for _, o := range r.Failures() {
		errs = append(errs, fmt.Errorf("%s after %d attempts: %w", o.Notifier, o.Attempts, o.Err))
	}
	if len(errs) == 0 {
		return nil
	}
	return model.DeliveryError("dispatch", errors.Join(errs...))
}

// Dispatcher fans a message out to every channel concurrently. A failing
// channel never blocks or aborts the others.
type Dispatcher struct {
	policy    RetryPolicy
	logger    *slog.Logger
	onAttempt func(notifier string, err error)
}

// NewDispatcher creates a dispatcher with the given retry policy.
func NewDispatcher(policy RetryPolicy, logger *slog.Logger) *Dispatcher {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Delay < 0 {
		policy.Delay = 0
	}
	return &Dispatcher{policy: policy, logger: logger}
}

// OnAttempt registers a hook called after every single send attempt.
func (d *Dispatcher) OnAttempt(fn func(notifier string, err error)) {
	d.onAttempt = fn
}

// Deliver sends msg to every notifier and waits for all of them to finish.
func (d *Dispatcher) Deliver(ctx context.Context, notifiers []Notifier, msg Message) Result {
	result := Result{Outcomes: make([]Outcome, len(notifiers))}

	var wg sync.WaitGroup
	for i, n := range notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			result.Outcomes[i] = d.deliverOne(ctx, n, msg)
		}(i, n)
	}
	wg.Wait()

	return result
}

// deliverOne retries one channel. A panicking notifier fails only its own outcome.
func (d *Dispatcher) deliverOne(ctx context.Context, n Notifier, msg Message) (out Outcome) {
	var name string
	attempts := 0
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notifier panicked",
				"channel", name, "kind", msg.Kind, "attempts", attempts, "panic", r, "stack", string(debug.Stack()))
			out = Outcome{
				Notifier: name,
				Attempts: attempts,
				Err:      model.DeliveryError(name, fmt.Errorf("notifier panic: %v", r)),
			}
		}
	}()
	name = n.Name()

	op := func() error {
		attempts++
		err := n.Send(ctx, msg)
		if d.onAttempt != nil {
			d.onAttempt(name, err)
		}
		if err == nil {
			return nil
		}
		d.logger.Warn("delivery attempt failed",
			"channel", name, "kind", msg.Kind, "attempt", attempts, "error", err)
		if model.IsKind(err, model.KindConfig) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.policy.Delay), uint64(d.policy.Attempts-1)),
		ctx,
	)
	err := backoff.Retry(op, b)
	if err != nil {
		d.logger.Error("delivery failed",
			"channel", name, "kind", msg.Kind, "attempts", attempts, "error", err)
		return Outcome{Notifier: name, Attempts: attempts, Err: err}
	}

	d.logger.Info("delivered", "channel", name, "kind", msg.Kind, "attempts", attempts)
	return Outcome{Notifier: name, Attempts: attempts}
}
