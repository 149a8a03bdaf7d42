package profiler

import (
	"log"
	"time"
)

// PassStatsOption is a functional option for configuring a PassStats
// accumulator during creation.
type PassStatsOption func(*passStats)

// NewPassStats creates a pass timing accumulator with the provided options
// applied. By default summaries are logged once per second through the
// standard logger.
//
// Parameters:
//   - opts: optional configuration options
//
// Returns:
//   - PassStats: the configured accumulator
func NewPassStats(opts ...PassStatsOption) PassStats {
	p := &passStats{
		updateInterval: time.Second,
		lastTime:       time.Now(),
		logf:           log.Printf,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithUpdateInterval sets how often averaged summaries are logged. A zero
// interval logs on every observation.
//
// Parameters:
//   - d: the minimum time between summaries
//
// Returns:
//   - PassStatsOption: the option to apply
func WithUpdateInterval(d time.Duration) PassStatsOption {
	return func(p *passStats) {
		p.updateInterval = d
	}
}

// WithLogFunc overrides the summary log destination.
//
// Parameters:
//   - fn: the Printf-style sink receiving summaries
//
// Returns:
//   - PassStatsOption: the option to apply
func WithLogFunc(fn func(format string, args ...any)) PassStatsOption {
	return func(p *passStats) {
		if fn != nil {
			p.logf = fn
		}
	}
}
