package monitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/alerts"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/monitor"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/ratelimit"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/report"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	mu    sync.Mutex
	snap  model.ResourceSnapshot
	err   error
	panic bool
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(context.Context) (*model.ResourceSnapshot, error) {
	f.calls.Add(1)
	if f.panic {
		panic("decoder exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	snap := f.snap
	return &snap, nil
}

type staticThresholds model.Thresholds

func (s staticThresholds) Current() model.Thresholds { return model.Thresholds(s) }

type recordingNotifier struct {
	name string
	mu   sync.Mutex
	msgs []alerts.Message
	err  error
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(_ context.Context, msg alerts.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNotifier) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *recordingNotifier) messages() []alerts.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerts.Message(nil), r.msgs...)
}

type fakeDigests struct {
	calls atomic.Int32
	err   error
	snaps []*model.ResourceSnapshot
	tops  []*model.TopRoute
}

func (f *fakeDigests) BuildDigest(_ context.Context, now time.Time, snap *model.ResourceSnapshot, top *model.TopRoute) (*report.Digest, error) {
	f.calls.Add(1)
	f.snaps = append(f.snaps, snap)
	f.tops = append(f.tops, top)
	if f.err != nil {
		return nil, f.err
	}
	return &report.Digest{Subject: "digest " + now.Format(time.RFC3339), Text: "body"}, nil
}

type fakeRates struct {
	top *model.TopRoute
	err error
}

func (f fakeRates) TopRoute(context.Context, time.Time) (*model.TopRoute, error) {
	return f.top, f.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// lowBalance is 9 units against a floor of 1000.
var lowBalance = model.ResourceSnapshot{
	ReserveBalance:     9_000_000,
	EnergyRemaining:    900_000,
	EnergyLimit:        1_000_000,
	BandwidthRemaining: 9_000,
	BandwidthLimit:     10_000,
}

var floor = staticThresholds{BalanceMin: 1000, EnergyRatio: 0.2, BandwidthRatio: 0.2}

type harness struct {
	sched   *monitor.Scheduler
	fetcher *fakeFetcher
	pager   *recordingNotifier
	digestN *recordingNotifier
	digests *fakeDigests
	clock   *clock
}

func newHarness(t *testing.T, mutate func(*monitor.Options)) *harness {
	t.Helper()
	h := &harness{
		fetcher: &fakeFetcher{snap: lowBalance},
		pager:   &recordingNotifier{name: "telegram"},
		digestN: &recordingNotifier{name: "email"},
		digests: &fakeDigests{},
		clock:   &clock{now: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)},
	}

	trigger, err := report.NewTrigger("0 * * * *", time.UTC)
	require.NoError(t, err)

	opts := monitor.Options{
		Fetcher:    h.fetcher,
		Thresholds: floor,
		Limiter:    ratelimit.New(),
		Dispatcher: alerts.NewDispatcher(alerts.RetryPolicy{Attempts: 1}, testLogger()),
		Routes: alerts.Routes{
			{Notifier: h.pager, Alerts: true},
			{Notifier: h.digestN, Digests: true},
		},
		Digests:  h.digests,
		Trigger:  trigger,
		Cooldown: 10 * time.Minute,
		Clock:    h.clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.sched = monitor.New(opts, testLogger())
	return h
}

func TestTick_SendsEscalatedAlertToAlertChannels(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.sched.Tick(context.Background()))

	msgs := h.pager.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, alerts.KindAlert, msgs[0].Kind)
	assert.True(t, msgs[0].Escalate)
	assert.Equal(t, monitor.AlertSubject, msgs[0].Subject)
	assert.Contains(t, msgs[0].Text, "reserve balance 9.00 is below 1,000.00")
	assert.Empty(t, h.digestN.messages(), "digest channel must not receive alerts")

	st := h.sched.Status()
	assert.Equal(t, h.clock.Now(), st.LastAlert)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, int64(9_000_000), st.Snapshot.ReserveBalance)
}

func TestTick_CooldownSuppressesWholeBatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	start := h.clock.Now()

	require.NoError(t, h.sched.Tick(ctx))

	// A new class breaches inside the cooldown: still suppressed.
	h.fetcher.mu.Lock()
	h.fetcher.snap.EnergyRemaining = 10_000
	h.fetcher.mu.Unlock()
	h.clock.Set(start.Add(5 * time.Minute))
	require.NoError(t, h.sched.Tick(ctx))
	assert.Len(t, h.pager.messages(), 1)

	h.clock.Set(start.Add(10 * time.Minute))
	require.NoError(t, h.sched.Tick(ctx))
	msgs := h.pager.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "energy remaining")
}

func TestTick_FailedBatchDoesNotStartCooldown(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	start := h.clock.Now()

	h.pager.setErr(model.TransportError("telegram", errors.New("connection refused")))
	require.NoError(t, h.sched.Tick(ctx))
	assert.True(t, h.sched.Status().LastAlert.IsZero())

	h.pager.setErr(nil)
	h.clock.Set(start.Add(time.Minute))
	require.NoError(t, h.sched.Tick(ctx))
	assert.Len(t, h.pager.messages(), 1)
}

func TestTick_NoBreachNoAlert(t *testing.T) {
	h := newHarness(t, func(o *monitor.Options) {
		o.Thresholds = staticThresholds{BalanceMin: 1, EnergyRatio: 0.2, BandwidthRatio: 0.2}
	})

	require.NoError(t, h.sched.Tick(context.Background()))
	assert.Empty(t, h.pager.messages())
}

func TestTick_FetchFailureEndsTick(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.err = model.TransportError("tronscan", errors.New("timeout"))
	h.clock.Set(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))

	err := h.sched.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.KindTransport, model.KindOf(err))
	assert.Empty(t, h.pager.messages())
	assert.Zero(t, h.digests.calls.Load(), "digest is skipped when the fetch fails")
	assert.Contains(t, h.sched.Status().LastError, "timeout")
}

func TestTick_RecoversPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.panic = true

	err := h.sched.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoder exploded")
	assert.False(t, h.sched.Status().LastTick.IsZero())
}

func TestTick_DigestOncePerTriggerMinute(t *testing.T) {
	h := newHarness(t, func(o *monitor.Options) {
		o.Rates = fakeRates{top: &model.TopRoute{Route: "/api/v1/address", Rate: 2}}
	})
	ctx := context.Background()

	h.clock.Set(time.Date(2025, 6, 1, 13, 0, 5, 0, time.UTC))
	require.NoError(t, h.sched.Tick(ctx))
	h.clock.Set(time.Date(2025, 6, 1, 13, 0, 50, 0, time.UTC))
	require.NoError(t, h.sched.Tick(ctx))
	h.clock.Set(time.Date(2025, 6, 1, 13, 1, 5, 0, time.UTC))
	require.NoError(t, h.sched.Tick(ctx))

	assert.Equal(t, int32(1), h.digests.calls.Load())
	msgs := h.digestN.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, alerts.KindDigest, msgs[0].Kind)
	assert.False(t, msgs[0].Escalate)
	require.NotNil(t, h.digests.tops[0])
	assert.Equal(t, "/api/v1/address", h.digests.tops[0].Route)
	require.NotNil(t, h.digests.snaps[0])

	// The pager only got the alert batch.
	for _, m := range h.pager.messages() {
		assert.Equal(t, alerts.KindAlert, m.Kind)
	}

	h.clock.Set(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	require.NoError(t, h.sched.Tick(ctx))
	assert.Equal(t, int32(2), h.digests.calls.Load())
}

func TestTick_DigestRunsEvenWhenAlertSuppressed(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.clock.Set(time.Date(2025, 6, 1, 12, 55, 0, 0, time.UTC))
	require.NoError(t, h.sched.Tick(ctx))

	h.clock.Set(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
	require.NoError(t, h.sched.Tick(ctx))

	assert.Len(t, h.pager.messages(), 1)
	assert.Len(t, h.digestN.messages(), 1)
}

func TestTick_RateQueryFailureAbortsDigest(t *testing.T) {
	h := newHarness(t, func(o *monitor.Options) {
		o.Rates = fakeRates{err: model.QueryError("ratequery", errors.New("bad gateway"))}
	})
	h.clock.Set(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))

	err := h.sched.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.KindQuery, model.KindOf(err))
	assert.Zero(t, h.digests.calls.Load())
	assert.Empty(t, h.digestN.messages())
	assert.Len(t, h.pager.messages(), 1, "alerts are independent of the digest")
}

func TestDigest_OnDemand(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	d, err := h.sched.Digest(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "body", d.Text)
	assert.Empty(t, h.digestN.messages())

	_, err = h.sched.Digest(ctx, true)
	require.NoError(t, err)
	assert.Len(t, h.digestN.messages(), 1)
	assert.Equal(t, h.clock.Now(), h.sched.Status().LastDigest)
}

func TestDigest_OnDemandWithoutResources(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.err = model.TransportError("tronscan", errors.New("timeout"))

	_, err := h.sched.Digest(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, h.digests.snaps, 1)
	assert.Nil(t, h.digests.snaps[0])
}

func TestDigest_Disabled(t *testing.T) {
	h := newHarness(t, func(o *monitor.Options) { o.Digests = nil })

	_, err := h.sched.Digest(context.Background(), true)
	assert.ErrorIs(t, err, monitor.ErrDigestDisabled)
}

func TestDigest_NoChannels(t *testing.T) {
	h := newHarness(t, func(o *monitor.Options) {
		o.Routes = alerts.Routes{{Notifier: &recordingNotifier{name: "telegram"}, Alerts: true}}
	})

	_, err := h.sched.Digest(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, model.KindConfig, model.KindOf(err))
}

func TestCheckNow_ConcurrentCallersSendOnce(t *testing.T) {
	h := newHarness(t, nil)

	var wg sync.WaitGroup
	results := make([]*monitor.CheckResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.sched.CheckNow(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	sent := 0
	for _, r := range results {
		require.NotNil(t, r)
		require.Len(t, r.Breaches, 1)
		if r.Outcome == monitor.OutcomeSent {
			sent++
		} else {
			assert.Equal(t, monitor.OutcomeSuppressed, r.Outcome)
		}
	}
	assert.Equal(t, 1, sent)
	assert.Len(t, h.pager.messages(), 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, func(o *monitor.Options) { o.PollInterval = time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sched.Run(ctx) }()

	require.Eventually(t, func() bool { return h.fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestAlertText(t *testing.T) {
	text := monitor.AlertText([]model.Breach{{Message: "a"}, {Message: "b"}})
	assert.Equal(t, "⚠️ a\n⚠️ b", text)
}

func TestTick_IdenticalBreachTenSecondsLater(t *testing.T) {
	h := newHarness(t, func(o *monitor.Options) { o.Cooldown = 600 * time.Second })
	ctx := context.Background()
	start := h.clock.Now()

	require.NoError(t, h.sched.Tick(ctx))
	h.clock.Set(start.Add(10 * time.Second))
	require.NoError(t, h.sched.Tick(ctx))

	assert.Len(t, h.pager.messages(), 1)
}
