package capture

import (
	"log/slog"
	"time"

	"github.com/roach88/mestouches/internal/diag"
)

type config struct {
	clock     Clock
	diag      *diag.Log
	logger    *slog.Logger
	budget    time.Duration
	stopwatch func() time.Time
	resolver  Resolver
	privacy   *Privacy
}

// Option configures a hook.
type Option func(*config)

// WithClock sets the event timestamp source.
func WithClock(c Clock) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithDiag sets the diagnostic log receiving CallbackLatency entries.
func WithDiag(l *diag.Log) Option {
	return func(cfg *config) { cfg.diag = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithLatencyBudget overrides DefaultLatencyBudget.
func WithLatencyBudget(d time.Duration) Option {
	return func(cfg *config) { cfg.budget = d }
}

// WithStopwatch replaces the time source used to measure callback
// durations.
func WithStopwatch(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.stopwatch = now
		}
	}
}

// WithResolver sets how window handles are turned into names.
func WithResolver(r Resolver) Option {
	return func(cfg *config) {
		if r != nil {
			cfg.resolver = r
		}
	}
}

// WithPrivacy sets the subject exclusion filter.
func WithPrivacy(p *Privacy) Option {
	return func(cfg *config) { cfg.privacy = p }
}

func newConfig(opts []Option) config {
	cfg := config{
		clock:     NewSystemClock(),
		logger:    slog.Default(),
		stopwatch: time.Now,
		resolver:  NopResolver{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (cfg config) monitor(hook string) *LatencyMonitor {
	m := NewLatencyMonitor(hook, cfg.budget, cfg.diag, cfg.logger)
	m.stopwatch = cfg.stopwatch
	return m
}
