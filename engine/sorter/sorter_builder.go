package sorter

import (
	"github.com/Carmen-Shannon/oxy-sort/engine/profiler"
	"go.uber.org/zap"
)

// SorterBuilderOption is a functional option applied to a sorter during construction via NewSorter.
type SorterBuilderOption func(*sorter)

// WithLogger sets the logger for plan and dispatch diagnostics. Defaults to a no-op logger.
//
// Parameters:
//   - l: the logger to use, nil keeps the default
//
// Returns:
//   - SorterBuilderOption: a function that applies the logger option
func WithLogger(l *zap.Logger) SorterBuilderOption {
	return func(s *sorter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGroupCapacityLog sets log2 of the kernel lanes per workgroup. Defaults to 8 (256 lanes).
//
// Parameters:
//   - groupLog: the group capacity log, at most kernel.MaxGroupCapacityLog
//
// Returns:
//   - SorterBuilderOption: a function that applies the group capacity option
func WithGroupCapacityLog(groupLog uint32) SorterBuilderOption {
	return func(s *sorter) {
		s.groupCapacityLog = groupLog
	}
}

// WithMaxAttempts sets how many times SortEncoded runs before giving up on a dispatch,
// readback or verification failure. Defaults to 1.
//
// Parameters:
//   - n: the attempt count, at least 1
//
// Returns:
//   - SorterBuilderOption: a function that applies the attempts option
func WithMaxAttempts(n int) SorterBuilderOption {
	return func(s *sorter) {
		s.maxAttempts = n
	}
}

// WithVerify enables checking every SortEncoded result against a host reference sort.
//
// Parameters:
//   - verify: if true, results are verified
//
// Returns:
//   - SorterBuilderOption: a function that applies the verify option
func WithVerify(verify bool) SorterBuilderOption {
	return func(s *sorter) {
		s.verify = verify
	}
}

// WithProfiler records phase timings of every sort into p.
//
// Parameters:
//   - p: the profiler, nil disables timing
//
// Returns:
//   - SorterBuilderOption: a function that applies the profiler option
func WithProfiler(p *profiler.Profiler) SorterBuilderOption {
	return func(s *sorter) {
		s.profiler = p
	}
}
