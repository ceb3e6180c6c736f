package engine

import (
	"github.com/Carmen-Shannon/oxy-sort/engine/backend"
	"github.com/Carmen-Shannon/oxy-sort/engine/config"
	"github.com/Carmen-Shannon/oxy-sort/engine/sorter"
	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables phase timing output after each sort.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithLogger sets the logger shared by the engine, its backend, sorter and profiler.
//
// Parameters:
//   - l: the logger to use, nil keeps the no-op default
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(l *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBackendType selects the backend the engine creates. Defaults to backend.BackendTypeWGPU.
//
// Parameters:
//   - t: the backend type
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackendType(t backend.BackendType) EngineBuilderOption {
	return func(e *engine) {
		e.backendType = t
	}
}

// WithBackendOptions appends options passed to backend.NewBackend. They are applied after
// any configuration set with WithConfig.
//
// Parameters:
//   - options: the backend options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackendOptions(options ...backend.BackendBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.backendOptions = append(e.backendOptions, options...)
	}
}

// WithSorterOptions appends options passed to sorter.NewSorter. They are applied after
// any configuration set with WithConfig.
//
// Parameters:
//   - options: the sorter options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSorterOptions(options ...sorter.SorterBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.sorterOptions = append(e.sorterOptions, options...)
	}
}

// WithBackend sets a backend created by the caller rather than allowing the engine to
// create and manage one internally. The engine does not release it.
//
// Parameters:
//   - b: a ready Backend instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackend(b backend.Backend) EngineBuilderOption {
	return func(e *engine) {
		e.backend = b
		e.ownsBackend = false
	}
}

// WithConfig applies the backend section, sort section and profiling setting of cfg.
// The backend type in cfg replaces any set with WithBackendType.
//
// Parameters:
//   - cfg: the loaded configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = &cfg
		e.profilingEnabled = cfg.Run.Profile
	}
}
