// Package sorter sorts power-of-two sized arrays on a compute backend by issuing the
// bitonic dispatch plan one compare-exchange stage at a time.
package sorter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/backend"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/profiler"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
	"go.uber.org/zap"
)

// Sorter sorts arrays in place on a single backend.
// Kernels are compiled once per element kind and reused across calls.
type Sorter interface {
	// Backend returns the backend the sorter dispatches to.
	//
	// Returns:
	//   - backend.Backend: the backend passed to NewSorter
	Backend() backend.Backend

	// GroupCapacityLog returns log2 of the kernel lanes per workgroup.
	//
	// Returns:
	//   - uint32: the configured group capacity log
	GroupCapacityLog() uint32

	// Kernel returns the compiled sort kernel for an element kind, compiling and
	// registering it with the backend on first use.
	//
	// Parameters:
	//   - kind: the element kind the kernel sorts
	//
	// Returns:
	//   - kernel.Kernel: the registered kernel
	//   - error: an error wrapping ErrKernelCompile if it cannot be created
	Kernel(kind common.ElementKind) (kernel.Kernel, error)

	// SortArray sorts a device array in place in ascending order. It returns once every
	// dispatch is submitted; read the array back to wait for completion.
	//
	// Parameters:
	//   - ctx: checked between dispatches
	//   - arr: an array created by Backend(), of length 2^k
	//
	// Returns:
	//   - error: ErrNotPowerOfTwo, ErrKernelCompile, ErrDispatch or ctx.Err()
	SortArray(ctx context.Context, arr backend.Array) error

	// SortEncoded uploads encoded host elements, sorts them and returns the sorted bytes.
	// Failed dispatches, readbacks and verifications are retried from the untouched input
	// up to the configured attempt count. Empty input returns an empty result.
	//
	// Parameters:
	//   - ctx: bounds the sort and the final readback
	//   - kind: the element kind of data
	//   - data: little-endian encoded elements, left unmodified
	//
	// Returns:
	//   - []byte: the sorted encoded elements
	//   - error: the last attempt's error
	SortEncoded(ctx context.Context, kind common.ElementKind, data []byte) ([]byte, error)
}

type sorter struct {
	mu               sync.Mutex
	backend          backend.Backend
	logger           *zap.Logger
	profiler         *profiler.Profiler
	groupCapacityLog uint32
	maxAttempts      int
	verify           bool
	kernels          map[common.ElementKind]kernel.Kernel
}

var _ Sorter = &sorter{}

// NewSorter creates a Sorter dispatching to b.
//
// Parameters:
//   - b: the compute backend
//   - options: functional options configuring the sorter
//
// Returns:
//   - Sorter: the new sorter
//   - error: an error if the options are out of range
func NewSorter(b backend.Backend, options ...SorterBuilderOption) (Sorter, error) {
	if b == nil {
		return nil, errors.New("sorter: nil backend")
	}
	s := &sorter{
		backend:          b,
		logger:           zap.NewNop(),
		groupCapacityLog: kernel.DefaultGroupCapacityLog,
		maxAttempts:      1,
		kernels:          make(map[common.ElementKind]kernel.Kernel),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.groupCapacityLog > kernel.MaxGroupCapacityLog {
		return nil, fmt.Errorf("sorter: group capacity log %d exceeds %d", s.groupCapacityLog, kernel.MaxGroupCapacityLog)
	}
	if s.maxAttempts < 1 {
		return nil, fmt.Errorf("sorter: max attempts must be at least 1, got %d", s.maxAttempts)
	}
	return s, nil
}

func (s *sorter) Backend() backend.Backend {
	return s.backend
}

func (s *sorter) GroupCapacityLog() uint32 {
	return s.groupCapacityLog
}

func (s *sorter) Kernel(kind common.ElementKind) (kernel.Kernel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.kernels[kind]; ok {
		return k, nil
	}

	var k kernel.Kernel
	err := s.profiler.Track(profiler.PhaseInitialization, func() error {
		var err error
		k, err = kernel.NewBitonicKernel(kind, s.groupCapacityLog)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrKernelCompile, err)
		}
		return s.backend.RegisterKernel(k)
	})
	if err != nil {
		return nil, err
	}
	s.kernels[kind] = k
	s.logger.Info("compiled sort kernel", zap.String("kernel", k.Key()), zap.String("backend", s.backend.Name()))
	return k, nil
}

func (s *sorter) SortArray(ctx context.Context, arr backend.Array) error {
	plan, err := sequencer.PlanFor(arr.Len())
	if err != nil {
		return fmt.Errorf("sort %s: %w", arr.Label(), err)
	}
	k, err := s.Kernel(arr.Kind())
	if err != nil {
		return err
	}

	s.logger.Info("issuing sort",
		zap.String("array", arr.Label()),
		zap.Int("elements", arr.Len()),
		zap.Int("dispatches", len(plan)),
		zap.Uint32s("grid", dispatchGridSlice(plan.LogLen(), k.GroupCapacityLog())))

	return s.profiler.Track(profiler.PhaseComputation, func() error {
		return issue(ctx, s.backend, k, arr, plan, s.logger)
	})
}

func (s *sorter) SortEncoded(ctx context.Context, kind common.ElementKind, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("sorter: invalid element kind %v", kind)
	}
	if len(data)%common.ElementSize != 0 {
		return nil, fmt.Errorf("sorter: %d bytes is not a whole number of %s elements", len(data), kind)
	}
	if n := len(data) / common.ElementSize; !common.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: %d elements", ErrNotPowerOfTwo, n)
	}
	if _, err := s.Kernel(kind); err != nil {
		return nil, err
	}

	var arr backend.Array
	err := s.profiler.Track(profiler.PhaseDataTransfer, func() error {
		var err error
		arr, err = s.backend.CreateArray(fmt.Sprintf("sort %s x%d", kind, len(data)/common.ElementSize), kind, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Warn("retrying sort from input snapshot", zap.Int("attempt", attempt), zap.Error(lastErr))
			if err := s.profiler.Track(profiler.PhaseDataTransfer, func() error {
				return s.backend.WriteArray(arr, data)
			}); err != nil {
				return nil, err
			}
		}

		out, err := s.attempt(ctx, kind, arr, data)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (s *sorter) attempt(ctx context.Context, kind common.ElementKind, arr backend.Array, original []byte) ([]byte, error) {
	if err := s.SortArray(ctx, arr); err != nil {
		return nil, err
	}

	var out []byte
	err := s.profiler.Track(profiler.PhaseDataTransfer, func() error {
		var err error
		out, err = s.backend.Read(ctx, arr)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.verify {
		if err := s.profiler.Track(profiler.PhaseCPUReference, func() error {
			return verifyEncoded(kind, original, out)
		}); err != nil {
			return nil, err
		}
		s.logger.Debug("verified sort", zap.String("array", arr.Label()))
	}
	return out, nil
}

// Sort sorts data in place in ascending order using s. Empty input is a no-op.
//
// Parameters:
//   - ctx: bounds the sort and the final readback
//   - s: the sorter to use
//   - data: the elements, of length 2^k
//
// Returns:
//   - error: ErrNotPowerOfTwo, a backend error, ErrVerification, or ctx.Err(); data is
//     left unmodified on error
func Sort[T common.Element](ctx context.Context, s Sorter, data []T) error {
	if len(data) == 0 {
		return nil
	}
	out, err := s.SortEncoded(ctx, common.ElementKindOf[T](), common.EncodeElements(data))
	if err != nil {
		return err
	}
	return common.DecodeElements(data, out)
}

// verifyEncoded decodes both buffers as kind and runs Verify on them.
func verifyEncoded(kind common.ElementKind, original, sorted []byte) error {
	switch kind {
	case common.ElementKindFloat32:
		return verifyAs[float32](original, sorted)
	case common.ElementKindUint32:
		return verifyAs[uint32](original, sorted)
	case common.ElementKindInt32:
		return verifyAs[int32](original, sorted)
	default:
		return fmt.Errorf("sorter: invalid element kind %v", kind)
	}
}

func verifyAs[T common.Element](original, sorted []byte) error {
	want := make([]T, len(original)/common.ElementSize)
	got := make([]T, len(sorted)/common.ElementSize)
	if err := common.DecodeElements(want, original); err != nil {
		return err
	}
	if err := common.DecodeElements(got, sorted); err != nil {
		return err
	}
	return Verify(want, got)
}

func dispatchGridSlice(logLen, groupLog uint32) []uint32 {
	grid := DispatchGrid(logLen, groupLog)
	return grid[:]
}
