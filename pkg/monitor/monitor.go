package monitor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battalert/pkg/alert"
	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/events"
	"github.com/charlie0129/battalert/pkg/metrics"
	"github.com/charlie0129/battalert/pkg/notify"
	"github.com/charlie0129/battalert/pkg/powerinfo"
)

// DefaultTickTimeout bounds a single tick, mostly the OS query.
const DefaultTickTimeout = 10 * time.Second

// Dispatcher receives every decision that raises an alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, source string, decision alert.Decision, snap config.Snapshot) *notify.Request
}

// Result is what one tick observed and raised.
type Result struct {
	Readings []powerinfo.Reading `json:"readings"`
	Alerts   []notify.Request    `json:"alerts"`
}

// Status is a point-in-time copy of the monitor state.
type Status struct {
	Running         bool                   `json:"running"`
	Interval        time.Duration          `json:"-"`
	IntervalSeconds int                    `json:"intervalSeconds"`
	LastTick        time.Time              `json:"lastTick"`
	Readings        []powerinfo.Reading    `json:"readings"`
	States          map[string]alert.State `json:"states"`
}

// Monitor polls the power sources on a fixed interval and runs every reading
// through the threshold policy, keeping one hysteresis state per source.
//
// A single mutex guards the state map, the timer and the running flag. Every
// tick holds it, so at most one tick is in flight and Start, Stop and
// SetInterval never interleave with an evaluation. A scheduled tick that
// fires while another tick is in flight is skipped, not queued.
type Monitor struct {
	// Hub, if set, receives monitor.state and battery.levels events.
	Hub *events.Hub
	// TickTimeout bounds every tick, whatever context the caller passes.
	// Set before Start.
	TickTimeout time.Duration

	reader     powerinfo.Reader
	settings   config.Provider
	dispatcher Dispatcher
	every      func(time.Duration) cron.Schedule

	// ticking is set while a tick samples and dispatches.
	ticking atomic.Bool

	mu       sync.Mutex
	running  bool
	interval time.Duration
	// intervalOverride is set by SetInterval and wins over the settings.
	intervalOverride time.Duration
	// suspended means monitoring was requested but the settings are invalid.
	// The next valid Reload starts it.
	suspended bool
	// gen retires timer goroutines left over from a previous run.
	gen          uint64
	stopCh       chan struct{}
	states       map[string]alert.State
	lastReadings []powerinfo.Reading
	lastTick     time.Time
}

func New(reader powerinfo.Reader, settings config.Provider, dispatcher Dispatcher) *Monitor {
	if reader == nil || settings == nil || dispatcher == nil {
		panic("monitor: reader, settings and dispatcher cannot be nil")
	}

	return &Monitor{
		TickTimeout: DefaultTickTimeout,
		reader:      reader,
		settings:    settings,
		dispatcher:  dispatcher,
		every: func(d time.Duration) cron.Schedule {
			return cron.Every(d)
		},
	}
}

// Start validates the settings, arms the timer and runs the first tick
// before returning. It is a no-op when already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	snap, err := m.snapshot()
	if err != nil {
		m.suspended = true
		return err
	}

	m.startLocked(ctx, snap, m.effectiveInterval(snap))
	return nil
}

// Stop cancels the timer and forgets every source's hysteresis state.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.suspended = false
	if !m.running {
		return
	}
	m.stopLocked()
}

// SetInterval clamps d to the floor and, while running, restarts the monitor
// with it so the first tick of the new interval happens right away.
func (m *Monitor) SetInterval(ctx context.Context, d time.Duration) error {
	d = config.ClampPollInterval(d)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.intervalOverride = d
	if !m.running {
		return nil
	}

	m.stopLocked()

	snap, err := m.snapshot()
	if err != nil {
		m.suspended = true
		return err
	}
	m.startLocked(ctx, snap, d)

	return nil
}

// Reload applies changed settings. Threshold changes take effect on the next
// tick without touching hysteresis state; an interval change restarts the
// monitor; invalid settings stop it until a later Reload fixes them.
func (m *Monitor) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.snapshot()
	if err != nil {
		if m.running {
			logrus.Errorf("stopping monitor, settings are invalid: %v", err)
			m.stopLocked()
			m.suspended = true
		}
		return err
	}

	if !m.running {
		if m.suspended {
			logrus.Info("settings are valid again, starting monitor")
			m.intervalOverride = snap.PollInterval
			m.startLocked(ctx, snap, snap.PollInterval)
		}
		return nil
	}

	if snap.PollInterval != m.interval {
		logrus.WithFields(logrus.Fields{
			"from": m.interval.String(),
			"to":   snap.PollInterval.String(),
		}).Info("poll interval changed, restarting monitor")
		m.intervalOverride = snap.PollInterval
		m.stopLocked()
		m.startLocked(ctx, snap, snap.PollInterval)
	}

	return nil
}

// CheckNow runs a tick synchronously. When stopped it only samples, so the
// displayed levels refresh without touching alert state.
func (m *Monitor) CheckNow(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		ctx, cancel := m.tickContext(ctx)
		defer cancel()

		readings, err := m.sample(ctx)
		if err != nil {
			return Result{}, err
		}
		m.recordReadings(readings)
		return Result{Readings: readings}, nil
	}

	snap, err := m.snapshot()
	if err != nil {
		return Result{}, err
	}

	return m.tickLocked(ctx, snap)
}

// Status returns a copy of the current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]alert.State, len(m.states))
	for k, v := range m.states {
		states[k] = v
	}

	readings := make([]powerinfo.Reading, len(m.lastReadings))
	copy(readings, m.lastReadings)

	interval := m.interval
	if !m.running {
		interval = m.effectiveInterval(m.settings.Snapshot().Normalize())
	}

	return Status{
		Running:         m.running,
		Interval:        interval,
		IntervalSeconds: int(interval / time.Second),
		LastTick:        m.lastTick,
		Readings:        readings,
		States:          states,
	}
}

func (m *Monitor) effectiveInterval(snap config.Snapshot) time.Duration {
	if m.intervalOverride > 0 {
		return m.intervalOverride
	}
	return snap.PollInterval
}

func (m *Monitor) snapshot() (config.Snapshot, error) {
	snap := m.settings.Snapshot().Normalize()
	if err := snap.Validate(); err != nil {
		metrics.ConfigErrors.Inc()
		return snap, err
	}
	return snap, nil
}

func (m *Monitor) startLocked(ctx context.Context, snap config.Snapshot, interval time.Duration) {
	m.running = true
	m.suspended = false
	m.interval = interval
	m.gen++
	m.states = make(map[string]alert.State)
	m.stopCh = make(chan struct{})

	metrics.MonitorRunning.Set(1)
	logrus.WithFields(logrus.Fields{
		"interval":      interval.String(),
		"lowThreshold":  snap.LowThreshold,
		"highThreshold": snap.HighThreshold,
		"sound":         snap.SoundEnabled,
	}).Info("monitor started")
	m.publishState()

	_, _ = m.tickLocked(ctx, snap)

	go m.run(m.gen, interval, m.stopCh)
}

func (m *Monitor) stopLocked() {
	close(m.stopCh)
	m.running = false
	m.states = nil

	metrics.MonitorRunning.Set(0)
	logrus.Info("monitor stopped")
	m.publishState()
}

func (m *Monitor) run(gen uint64, interval time.Duration, stopCh chan struct{}) {
	schedule := m.every(interval)

	for {
		timer := time.NewTimer(time.Until(schedule.Next(time.Now())))

		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		fired := time.Now()
		if m.ticking.Load() {
			m.skipTick()
			continue
		}

		// Other holders of the lock are short, wait for them.
		m.mu.Lock()

		if !m.running || m.gen != gen {
			m.mu.Unlock()
			return
		}

		// A manual tick got the lock first and has just sampled.
		if m.lastTick.After(fired) {
			m.mu.Unlock()
			m.skipTick()
			continue
		}

		snap, err := m.snapshot()
		if err != nil {
			logrus.Errorf("skipping tick, settings are invalid: %v", err)
			m.mu.Unlock()
			continue
		}

		_, _ = m.tickLocked(context.Background(), snap)

		m.mu.Unlock()
	}
}

func (m *Monitor) skipTick() {
	metrics.TicksSkipped.Inc()
	logrus.Debug("previous tick still in flight, skipping this one")
}

func (m *Monitor) tickContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.TickTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.TickTimeout)
}

func (m *Monitor) sample(ctx context.Context) ([]powerinfo.Reading, error) {
	start := time.Now()
	readings, err := m.reader.Sample(ctx)
	metrics.SampleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryErrors.Inc()
		logrus.Errorf("failed to sample power sources: %v", err)
		return nil, err
	}
	return readings, nil
}

// tickLocked samples, evaluates and dispatches. A failed sample leaves every
// source's state untouched.
func (m *Monitor) tickLocked(ctx context.Context, snap config.Snapshot) (Result, error) {
	m.ticking.Store(true)
	defer m.ticking.Store(false)

	ctx, cancel := m.tickContext(ctx)
	defer cancel()

	readings, err := m.sample(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Readings: readings}
	for _, r := range readings {
		prev := m.states[r.SourceID]
		decision, next := alert.Evaluate(r, prev, snap)
		m.states[r.SourceID] = next

		if next != prev {
			logrus.WithFields(logrus.Fields{
				"source":   r.SourceID,
				"capacity": r.CapacityPercent,
				"charging": r.IsCharging,
				"from":     prev.String(),
				"to":       next.String(),
			}).Debug("hysteresis state changed")
		}

		if !decision.Raised() {
			continue
		}
		if req := m.dispatcher.Dispatch(ctx, r.SourceID, decision, snap); req != nil {
			res.Alerts = append(res.Alerts, *req)
		}
	}

	m.recordReadings(readings)
	metrics.TicksTotal.Inc()

	logrus.WithFields(logrus.Fields{
		"sources": len(readings),
		"alerts":  len(res.Alerts),
	}).Trace("tick done")

	return res, nil
}

func (m *Monitor) recordReadings(readings []powerinfo.Reading) {
	m.lastReadings = readings
	m.lastTick = time.Now()

	levels := make([]events.BatteryLevel, 0, len(readings))
	for _, r := range readings {
		metrics.Capacity.WithLabelValues(r.SourceID).Set(float64(r.CapacityPercent))
		charging := 0.0
		if r.IsCharging {
			charging = 1
		}
		metrics.Charging.WithLabelValues(r.SourceID).Set(charging)

		levels = append(levels, events.BatteryLevel{
			Source:   r.SourceID,
			Capacity: r.CapacityPercent,
			Charging: r.IsCharging,
		})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Source < levels[j].Source })

	m.Hub.Publish(events.BatteryLevels, events.BatteryLevelsEvent{
		Levels: levels,
		Ts:     m.lastTick.Unix(),
	})
}

func (m *Monitor) publishState() {
	m.Hub.Publish(events.MonitorState, events.MonitorStateEvent{
		Running:         m.running,
		IntervalSeconds: int(m.interval / time.Second),
		Ts:              time.Now().Unix(),
	})
}
