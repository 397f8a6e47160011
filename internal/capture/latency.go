package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/metrics"
)

// DefaultLatencyBudget is how long a callback may run before it is
// reported.
const DefaultLatencyBudget = 500 * time.Microsecond

// warnInterval bounds how often an over-budget callback is logged.
const warnInterval = 10 * time.Second

// LatencyMonitor measures one hook's callback durations.
type LatencyMonitor struct {
	hook      string
	budget    time.Duration
	diag      *diag.Log
	logger    *slog.Logger
	stopwatch func() time.Time
	warn      rate.Sometimes
}

// NewLatencyMonitor returns a monitor for hook. A zero budget means
// DefaultLatencyBudget.
func NewLatencyMonitor(hook string, budget time.Duration, log *diag.Log, logger *slog.Logger) *LatencyMonitor {
	if budget <= 0 {
		budget = DefaultLatencyBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LatencyMonitor{
		hook:      hook,
		budget:    budget,
		diag:      log,
		logger:    logger,
		stopwatch: time.Now,
		warn:      rate.Sometimes{Interval: warnInterval},
	}
}

// Budget returns the configured budget.
func (m *LatencyMonitor) Budget() time.Duration { return m.budget }

// Begin starts a measurement.
func (m *LatencyMonitor) Begin() time.Time { return m.stopwatch() }

// End finishes the measurement started at start. Over budget, a
// CallbackLatency entry is recorded if the diagnostic log is free; the
// callback never waits for it.
func (m *LatencyMonitor) End(start time.Time) time.Duration {
	d := m.stopwatch().Sub(start)
	over := d > m.budget
	metrics.CallbackObserved(m.hook, d, over)
	if !over {
		return d
	}
	summary := fmt.Sprintf("%s hook blocked for %dus", m.hook, d.Microseconds())
	m.diag.TryRecord(diag.CallbackLatency, m.hook+".callback", summary, nil)
	m.warn.Do(func() {
		m.logger.LogAttrs(context.Background(), slog.LevelWarn, "callback over latency budget",
			slog.String("hook", m.hook),
			slog.Duration("elapsed", d),
			slog.Duration("budget", m.budget))
	})
	return d
}
