package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battalert/pkg/alert"
	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/metrics"
	"github.com/charlie0129/battalert/pkg/notify"
	"github.com/charlie0129/battalert/pkg/powerinfo"
)

// scriptedReader returns queued samples in order and repeats the last one.
type scriptedReader struct {
	mu      sync.Mutex
	samples [][]powerinfo.Reading
	errs    []error
	calls   int
}

func (r *scriptedReader) push(err error, readings ...powerinfo.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, readings)
	r.errs = append(r.errs, err)
}

func (r *scriptedReader) Sample(_ context.Context) ([]powerinfo.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if len(r.samples) == 0 {
		return nil, nil
	}
	readings, err := r.samples[0], r.errs[0]
	if len(r.samples) > 1 {
		r.samples = r.samples[1:]
		r.errs = r.errs[1:]
	}
	return readings, err
}

func (r *scriptedReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingDispatcher struct {
	mu        sync.Mutex
	decisions []alert.Decision
	sources   []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, source string, decision alert.Decision, _ config.Snapshot) *notify.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decisions = append(d.decisions, decision)
	d.sources = append(d.sources, source)
	return &notify.Request{Source: source, Kind: decision.Kind.String(), Capacity: decision.Capacity}
}

func (d *recordingDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.decisions)
}

// fixedDelay is a cron.Schedule without cron.Every's one-second rounding.
type fixedDelay time.Duration

func (f fixedDelay) Next(t time.Time) time.Time { return t.Add(time.Duration(f)) }

type settings struct {
	mu   sync.Mutex
	snap config.Snapshot
}

func (s *settings) Snapshot() config.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *settings) set(snap config.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func bat(id string, capacity int, charging bool) powerinfo.Reading {
	return powerinfo.Reading{SourceID: id, CapacityPercent: capacity, IsCharging: charging}
}

func newTestMonitor() (*Monitor, *scriptedReader, *recordingDispatcher, *settings) {
	r := &scriptedReader{}
	d := &recordingDispatcher{}
	s := &settings{snap: config.DefaultSnapshot()}
	return New(r, s, d), r, d, s
}

func TestStartTicksImmediately(t *testing.T) {
	m, r, d, _ := newTestMonitor()
	r.push(nil, bat("BAT0", 10, false))

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Equal(t, 1, r.Calls())
	assert.Equal(t, 1, d.Count())

	st := m.Status()
	assert.True(t, st.Running)
	assert.Equal(t, config.DefaultPollInterval, st.Interval)
	assert.Equal(t, alert.AlertedLow, st.States["BAT0"])
}

func TestStartIsIdempotent(t *testing.T) {
	m, r, _, _ := newTestMonitor()

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	require.NoError(t, m.Start(context.Background()))

	assert.Equal(t, 1, r.Calls())
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	m, r, d, s := newTestMonitor()
	s.set(config.Snapshot{LowThreshold: 80, HighThreshold: 20, PollInterval: time.Minute})

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))

	assert.False(t, m.Status().Running)
	assert.Equal(t, 0, r.Calls(), "no tick may run before a valid config")
	assert.Equal(t, 0, d.Count())
}

func TestScenario(t *testing.T) {
	m, r, d, _ := newTestMonitor()
	s := config.DefaultSnapshot()
	s.LowThreshold, s.HighThreshold = 20, 80

	// First tick happens on Start.
	r.push(nil, bat("BAT0", 25, false))
	r.push(nil, bat("BAT0", 18, false))
	r.push(nil, bat("BAT0", 15, false))
	r.push(nil, bat("BAT0", 25, false))
	r.push(nil, bat("BAT0", 85, true))

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.Equal(t, alert.Normal, m.Status().States["BAT0"])

	want := []struct {
		kind  alert.Kind
		state alert.State
	}{
		{alert.Low, alert.AlertedLow},
		{alert.None, alert.AlertedLow},
		{alert.None, alert.Normal},
		{alert.High, alert.AlertedHigh},
	}
	for i, w := range want {
		res, err := m.CheckNow(context.Background())
		require.NoError(t, err)

		if w.kind == alert.None {
			assert.Empty(t, res.Alerts, "step %d", i)
		} else {
			require.Len(t, res.Alerts, 1, "step %d", i)
			assert.Equal(t, w.kind.String(), res.Alerts[0].Kind)
		}
		assert.Equal(t, w.state, m.Status().States["BAT0"], "step %d", i)
	}
	assert.Equal(t, 2, d.Count())
}

func TestQueryErrorLeavesStateUnchanged(t *testing.T) {
	m, r, d, _ := newTestMonitor()
	r.push(nil, bat("BAT0", 10, false), bat("BAT1", 90, true))
	r.push(&powerinfo.QueryError{Op: "test", Err: errors.New("snapshot unavailable")})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	before := m.Status().States
	dispatched := d.Count()
	errsBefore := testutil.ToFloat64(metrics.QueryErrors)

	_, err := m.CheckNow(context.Background())
	var qerr *powerinfo.QueryError
	require.True(t, errors.As(err, &qerr))

	assert.Equal(t, before, m.Status().States)
	assert.Equal(t, dispatched, d.Count(), "a failed tick must not dispatch")
	assert.Equal(t, errsBefore+1, testutil.ToFloat64(metrics.QueryErrors))
	assert.True(t, m.Status().Running, "monitoring continues after a query error")
}

func TestSourcesAreIndependent(t *testing.T) {
	m, r, d, _ := newTestMonitor()
	r.push(nil, bat("BAT0", 10, false), bat("BAT1", 50, false))
	r.push(nil, bat("BAT0", 10, false), bat("BAT1", 10, false))

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	_, err := m.CheckNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, d.Count())
	assert.Equal(t, []string{"BAT0", "BAT1"}, d.sources)
}

func TestZeroSourcesProduceNoDecisions(t *testing.T) {
	m, _, d, _ := newTestMonitor()

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	res, err := m.CheckNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Readings)
	assert.Equal(t, 0, d.Count())
}

func TestStopClearsState(t *testing.T) {
	m, r, d, _ := newTestMonitor()
	r.push(nil, bat("BAT0", 10, false))

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, 1, d.Count())

	m.Stop()
	st := m.Status()
	assert.False(t, st.Running)
	assert.Empty(t, st.States)

	// Same low reading fires again after a restart.
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.Equal(t, 2, d.Count())
}

func TestSetIntervalRestartsWithImmediateTick(t *testing.T) {
	m, r, _, _ := newTestMonitor()

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	require.Equal(t, 1, r.Calls())

	require.NoError(t, m.SetInterval(context.Background(), 2*time.Minute))
	assert.Equal(t, 2, r.Calls(), "new interval must tick right away")
	assert.Equal(t, 2*time.Minute, m.Status().Interval)
}

func TestSetIntervalClampsToFloor(t *testing.T) {
	m, _, _, _ := newTestMonitor()

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NoError(t, m.SetInterval(context.Background(), time.Second))
	assert.Equal(t, config.MinPollInterval, m.Status().Interval)
}

func TestSetIntervalWhileStopped(t *testing.T) {
	m, r, _, _ := newTestMonitor()

	require.NoError(t, m.SetInterval(context.Background(), 5*time.Minute))
	assert.Equal(t, 0, r.Calls())
	assert.False(t, m.Status().Running)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.Equal(t, 5*time.Minute, m.Status().Interval)
}

func TestCheckNowWhileStoppedOnlySamples(t *testing.T) {
	m, r, d, _ := newTestMonitor()
	r.push(nil, bat("BAT0", 5, false))

	res, err := m.CheckNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []powerinfo.Reading{bat("BAT0", 5, false)}, res.Readings)
	assert.Equal(t, 0, d.Count())
	assert.Equal(t, res.Readings, m.Status().Readings)
}

func TestReload(t *testing.T) {
	m, r, d, s := newTestMonitor()
	r.push(nil, bat("BAT0", 15, false))

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	require.Equal(t, 1, d.Count())

	// Threshold-only change keeps state and does not tick.
	snap := config.DefaultSnapshot()
	snap.LowThreshold = 10
	s.set(snap)
	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, 1, r.Calls())
	assert.Equal(t, alert.AlertedLow, m.Status().States["BAT0"])

	// Interval change restarts with a fresh tick.
	snap.PollInterval = 90 * time.Second
	s.set(snap)
	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, 2, r.Calls())
	assert.Equal(t, 90*time.Second, m.Status().Interval)

	// Invalid settings stop monitoring.
	s.set(config.Snapshot{LowThreshold: 50, HighThreshold: 40, PollInterval: time.Minute})
	err := m.Reload(context.Background())
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
	assert.False(t, m.Status().Running)

	// Fixing them resumes monitoring.
	s.set(config.DefaultSnapshot())
	require.NoError(t, m.Reload(context.Background()))
	assert.True(t, m.Status().Running)
	assert.Equal(t, 3, r.Calls())
}

func TestReloadDoesNotStartExplicitlyStoppedMonitor(t *testing.T) {
	m, r, _, _ := newTestMonitor()

	require.NoError(t, m.Start(context.Background()))
	m.Stop()

	require.NoError(t, m.Reload(context.Background()))
	assert.False(t, m.Status().Running)
	assert.Equal(t, 1, r.Calls())
}

func TestScheduledTicks(t *testing.T) {
	m, r, _, _ := newTestMonitor()
	m.every = func(time.Duration) cron.Schedule { return fixedDelay(10 * time.Millisecond) }

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Eventually(t, func() bool { return r.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

// gatedReader blocks in Sample while blocked is set, until gate is closed or
// ctx is done.
type gatedReader struct {
	calls   atomic.Int32
	blocked atomic.Bool
	gate    chan struct{}
}

func (r *gatedReader) Sample(ctx context.Context) ([]powerinfo.Reading, error) {
	r.calls.Add(1)
	if !r.blocked.Load() {
		return nil, nil
	}
	select {
	case <-r.gate:
		return nil, nil
	case <-ctx.Done():
		return nil, &powerinfo.QueryError{Op: "get batteries", Err: ctx.Err()}
	}
}

func TestScheduledTickSkippedWhileInFlight(t *testing.T) {
	r := &gatedReader{gate: make(chan struct{})}
	m := New(r, &settings{snap: config.DefaultSnapshot()}, &recordingDispatcher{})
	m.every = func(time.Duration) cron.Schedule { return fixedDelay(10 * time.Millisecond) }
	m.TickTimeout = 5 * time.Second

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	skippedBefore := testutil.ToFloat64(metrics.TicksSkipped)

	r.blocked.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.CheckNow(context.Background())
	}()
	require.Eventually(t, m.ticking.Load, time.Second, time.Millisecond)

	calls := r.calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, r.calls.Load(), "no tick may run while another is in flight")

	close(r.gate)
	<-done
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.TicksSkipped) > skippedBefore
	}, time.Second, 5*time.Millisecond)
}

func TestScheduledTickWaitsForShortLockHolders(t *testing.T) {
	m, r, _, _ := newTestMonitor()
	m.every = func(time.Duration) cron.Schedule { return fixedDelay(10 * time.Millisecond) }

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	skippedBefore := testutil.ToFloat64(metrics.TicksSkipped)

	// Hold the lock the way Status or a threshold-only Reload does.
	m.mu.Lock()
	time.Sleep(50 * time.Millisecond)
	calls := r.Calls()
	m.mu.Unlock()

	require.Eventually(t, func() bool { return r.Calls() > calls }, time.Second, 5*time.Millisecond)
	assert.Equal(t, skippedBefore, testutil.ToFloat64(metrics.TicksSkipped))
}

func TestEveryTickIsBounded(t *testing.T) {
	r := &gatedReader{gate: make(chan struct{})}
	r.blocked.Store(true)
	defer close(r.gate)

	m := New(r, &settings{snap: config.DefaultSnapshot()}, &recordingDispatcher{})
	m.TickTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := m.CheckNow(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), time.Second, "check while stopped")

	start = time.Now()
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.Less(t, time.Since(start), time.Second, "first tick on start")

	start = time.Now()
	_, err = m.CheckNow(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), time.Second, "check while running")

	start = time.Now()
	require.NoError(t, m.SetInterval(context.Background(), 2*time.Minute))
	assert.Less(t, time.Since(start), time.Second, "tick on interval change")

	assert.True(t, m.Status().Running)
}

func TestStopEndsScheduledTicks(t *testing.T) {
	m, r, _, _ := newTestMonitor()
	m.every = func(time.Duration) cron.Schedule { return fixedDelay(10 * time.Millisecond) }

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return r.Calls() >= 2 }, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	calls := r.Calls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, r.Calls())
}
