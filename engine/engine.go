package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/backend"
	"github.com/Carmen-Shannon/oxy-sort/engine/config"
	"github.com/Carmen-Shannon/oxy-sort/engine/profiler"
	"github.com/Carmen-Shannon/oxy-sort/engine/sorter"
	"go.uber.org/zap"
)

// engine implements the Engine interface.
// Owns the backend, the sorter dispatching to it, and the profiler both report to.
type engine struct {
	mu sync.Mutex

	logger *zap.Logger
	cfg    *config.Config

	backendType    backend.BackendType
	backendOptions []backend.BackendBuilderOption
	sorterOptions  []sorter.SorterBuilderOption

	backend     backend.Backend
	ownsBackend bool
	sorter      sorter.Sorter
	initialized bool
	releaseOnce sync.Once // Ensures backend resources are released once
	released    bool

	profiler         *profiler.Profiler
	profilingEnabled bool
}

// Engine is the main entry point for sorting.
// It creates the compute backend, compiles kernels on demand and runs sorts against them.
type Engine interface {
	// Init creates the backend and the sorter. Called implicitly by the first sort.
	// Calling Init again after success is a no-op.
	//
	// Returns:
	//   - error: an error wrapping backend.ErrBackendInit if the device cannot be created
	Init() error

	// Backend returns the backend in use, or nil before Init.
	//
	// Returns:
	//   - backend.Backend: the backend instance
	Backend() backend.Backend

	// Sorter returns the sorter in use, or nil before Init.
	//
	// Returns:
	//   - sorter.Sorter: the sorter instance
	Sorter() sorter.Sorter

	// Profiler returns the phase profiler fed by every sort.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler instance
	Profiler() *profiler.Profiler

	// EnableProfiler enables logging phase timings after each sort.
	EnableProfiler()

	// DisableProfiler disables phase timing output.
	DisableProfiler()

	// SortEncoded sorts little-endian encoded elements and returns the sorted bytes.
	//
	// Parameters:
	//   - ctx: bounds the sort and the readback
	//   - kind: the element kind of data
	//   - data: the encoded elements, of length 2^k
	//
	// Returns:
	//   - []byte: the sorted encoded elements
	//   - error: an initialization, precondition, dispatch or verification error
	SortEncoded(ctx context.Context, kind common.ElementKind, data []byte) ([]byte, error)

	// Release frees the backend if the engine created it.
	// Safe to call multiple times; subsequent calls are no-ops.
	Release()
}

// NewEngine creates a new Engine instance with the provided options.
// The backend is not created until Init or the first sort.
//
// Parameters:
//   - options: functional options for engine configuration (backend, sorter, profiling)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		logger:      zap.NewNop(),
		backendType: backend.BackendTypeWGPU,
	}
	for _, opt := range options {
		opt(e)
	}
	e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	return e
}

func (e *engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.init()
}

func (e *engine) init() error {
	if e.released {
		return backend.ErrReleased
	}
	if e.initialized {
		return nil
	}

	backendOptions := []backend.BackendBuilderOption{backend.WithLogger(e.logger)}
	sorterOptions := []sorter.SorterBuilderOption{sorter.WithLogger(e.logger)}
	if e.cfg != nil {
		t, err := e.cfg.BackendType()
		if err != nil {
			return err
		}
		e.backendType = t
		opts, err := e.cfg.BackendOptions(e.logger)
		if err != nil {
			return err
		}
		backendOptions = append(backendOptions, opts...)
		sorterOptions = append(sorterOptions, e.cfg.SorterOptions(e.logger)...)
	}
	backendOptions = append(backendOptions, e.backendOptions...)
	sorterOptions = append(sorterOptions, e.sorterOptions...)
	sorterOptions = append(sorterOptions, sorter.WithProfiler(e.profiler))

	if e.backend == nil {
		started := time.Now()
		b, err := backend.NewBackend(e.backendType, backendOptions...)
		e.profiler.Add(profiler.PhaseInitialization, time.Since(started))
		if err != nil {
			return err
		}
		e.backend = b
		e.ownsBackend = true
	}

	s, err := sorter.NewSorter(e.backend, sorterOptions...)
	if err != nil {
		return err
	}
	e.sorter = s
	e.initialized = true
	e.logger.Info("engine ready", zap.Stringer("backend", e.backend.Type()), zap.String("device", e.backend.Name()))
	return nil
}

func (e *engine) Backend() backend.Backend {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend
}

func (e *engine) Sorter() sorter.Sorter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sorter
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

func (e *engine) SortEncoded(ctx context.Context, kind common.ElementKind, data []byte) ([]byte, error) {
	e.mu.Lock()
	if err := e.init(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	s := e.sorter
	profiling := e.profilingEnabled
	e.mu.Unlock()

	out, err := s.SortEncoded(ctx, kind, data)
	if profiling {
		e.profiler.Report()
	}
	return out, err
}

func (e *engine) Release() {
	e.releaseOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.released = true
		if e.ownsBackend && e.backend != nil {
			e.backend.Release()
		}
		e.backend = nil
		e.sorter = nil
	})
}

// Sort sorts data in place in ascending order on e. Empty input is a no-op.
//
// Parameters:
//   - ctx: bounds the sort and the readback
//   - e: the engine to sort with
//   - data: the elements, of length 2^k
//
// Returns:
//   - error: an initialization, precondition, dispatch or verification error; data is
//     left unmodified on error
func Sort[T common.Element](ctx context.Context, e Engine, data []T) error {
	if e == nil {
		return errors.New("engine: nil engine")
	}
	if len(data) == 0 {
		return nil
	}
	out, err := e.SortEncoded(ctx, common.ElementKindOf[T](), common.EncodeElements(data))
	if err != nil {
		return err
	}
	return common.DecodeElements(data, out)
}
