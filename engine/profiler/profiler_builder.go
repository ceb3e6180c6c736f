package profiler

import "go.uber.org/zap"

// ProfilerBuilderOption is a functional option applied to a Profiler during construction via NewProfiler.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the logger Report writes to. Defaults to a no-op logger.
//
// Parameters:
//   - l: the logger to use, nil keeps the default
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the logger option
func WithLogger(l *zap.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if l != nil {
			p.logger = l
		}
	}
}
