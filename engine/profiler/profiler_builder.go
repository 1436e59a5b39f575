package profiler

import "time"

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithUpdateInterval sets the window length. Non-positive values keep the default.
//
// Parameters:
//   - interval: the window length
//
// Returns:
//   - ProfilerBuilderOption: the option
func WithUpdateInterval(interval time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if interval > 0 {
			p.updateInterval = interval
		}
	}
}

// WithHistory sets how many windows Samples and Report keep.
func WithHistory(n int) ProfilerBuilderOption {
	return func(p *Profiler) {
		if n > 0 {
			p.history = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}
