package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Poller timing constants.
const (
	// minPollInterval is the floor for the poll interval. Requests
	// below this are rejected and the previous interval stays active.
	minPollInterval = 5 * time.Second

	// watchdogTick is how often the watchdog checks catalog freshness.
	watchdogTick = 60 * time.Second

	// watchdogFloor is the minimum staleness threshold. The effective
	// threshold is the larger of this and twice the poll interval, so
	// slow polling schedules are not flagged as stale.
	watchdogFloor = 60 * time.Second
)

// SyncFunc performs one catalog sync. The reason string identifies
// what scheduled it ("poll", "watchdog", "command", "startup").
type SyncFunc func(ctx context.Context, reason string)

// Poller drives periodic catalog syncs.
//
// It uses a single-shot timer re-armed after each sync rather than a
// ticker, so a slow cloud round-trip delays the next poll instead of
// stacking them. A watchdog ticker independently checks that fetches
// keep succeeding and forces a sync when the catalog goes stale.
//
// Thread Safety: all methods are safe for concurrent use.
type Poller struct {
	sync        SyncFunc
	lastUpdated func() time.Time

	intervalMu sync.Mutex
	interval   time.Duration

	// Overlap guard: only one sync runs at a time, extra triggers
	// are dropped.
	syncInFlight atomic.Bool

	kick chan string

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// PollerConfig holds configuration for creating a poller.
type PollerConfig struct {
	// Interval is the poll interval. Values below the minimum are
	// raised to it.
	Interval time.Duration

	// Sync performs one catalog sync.
	Sync SyncFunc

	// LastUpdated reports when the catalog was last refreshed.
	// Used by the watchdog to detect staleness.
	LastUpdated func() time.Time
}

// NewPoller creates a poller. Call Start to begin polling.
func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval < minPollInterval {
		interval = minPollInterval
	}

	return &Poller{
		sync:        cfg.Sync,
		lastUpdated: cfg.LastUpdated,
		interval:    interval,
		kick:        make(chan string, 1),
		done:        make(chan struct{}),
	}
}

// Start begins the poll loop and watchdog.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop shuts down the poller. Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

// Interval returns the current poll interval.
func (p *Poller) Interval() time.Duration {
	p.intervalMu.Lock()
	defer p.intervalMu.Unlock()
	return p.interval
}

// SetInterval changes the poll interval, taking effect from the next
// re-arm. Intervals below the minimum return ErrIntervalTooShort and
// leave the previous interval in place.
func (p *Poller) SetInterval(d time.Duration) error {
	if d < minPollInterval {
		return ErrIntervalTooShort
	}

	p.intervalMu.Lock()
	p.interval = d
	p.intervalMu.Unlock()

	p.logInfo("poll interval changed", "interval", d.String())
	return nil
}

// TriggerSync requests an immediate sync. Non-blocking: if a trigger
// is already pending the new one is dropped.
func (p *Poller) TriggerSync(reason string) {
	select {
	case p.kick <- reason:
	default:
	}
}

// run is the poll loop. The timer is single-shot and re-armed after
// each sync completes.
func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	timer := time.NewTimer(p.Interval())
	defer timer.Stop()

	watchdog := time.NewTicker(watchdogTick)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-timer.C:
			p.runSync(ctx, "poll")
			timer.Reset(p.Interval())
		case reason := <-p.kick:
			p.runSync(ctx, reason)
		case <-watchdog.C:
			if p.stale() {
				p.logWarn("catalog stale, forcing sync",
					"threshold", p.staleThreshold().String())
				p.runSync(ctx, "watchdog")
			}
		}
	}
}

// runSync executes the sync callback with the overlap guard held.
func (p *Poller) runSync(ctx context.Context, reason string) {
	if !p.syncInFlight.CompareAndSwap(false, true) {
		p.logDebug("sync skipped, already in flight", "reason", reason)
		return
	}
	defer p.syncInFlight.Store(false)

	p.sync(ctx, reason)
}

// stale reports whether the catalog has gone unrefreshed past the
// watchdog threshold. A zero LastUpdated means no fetch has ever
// succeeded, which counts as stale.
func (p *Poller) stale() bool {
	if p.lastUpdated == nil {
		return false
	}
	last := p.lastUpdated()
	if last.IsZero() {
		return true
	}
	return time.Since(last) > p.staleThreshold()
}

// staleThreshold returns the effective watchdog threshold.
func (p *Poller) staleThreshold() time.Duration {
	threshold := 2 * p.Interval()
	if threshold < watchdogFloor {
		threshold = watchdogFloor
	}
	return threshold
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

func (p *Poller) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

func (p *Poller) logDebug(msg string, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (p *Poller) logInfo(msg string, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (p *Poller) logWarn(msg string, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
