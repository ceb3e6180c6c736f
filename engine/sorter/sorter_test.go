package sorter

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/backend"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/profiler"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchRecord struct {
	params sequencer.StageParameters
	grid   [3]uint32
}

// recordingBackend forwards to a host backend and records every dispatch. failDispatches
// makes that many dispatches fail before the backend starts succeeding.
type recordingBackend struct {
	backend.Backend

	mu             sync.Mutex
	dispatches     []dispatchRecord
	writes         int
	failDispatches int
	onDispatch     func(step int)
}

func newRecordingBackend(t *testing.T) *recordingBackend {
	t.Helper()
	host, err := backend.NewBackend(backend.BackendTypeHost, backend.WithHostWorkers(2))
	require.NoError(t, err)
	t.Cleanup(host.Release)
	return &recordingBackend{Backend: host}
}

func (r *recordingBackend) Dispatch(k kernel.Kernel, arr backend.Array, params sequencer.StageParameters, grid [3]uint32) error {
	r.mu.Lock()
	step := len(r.dispatches)
	r.dispatches = append(r.dispatches, dispatchRecord{params: params, grid: grid})
	fail := r.failDispatches > 0
	if fail {
		r.failDispatches--
	}
	r.mu.Unlock()

	if r.onDispatch != nil {
		r.onDispatch(step)
	}
	if fail {
		return errors.New("device lost")
	}
	return r.Backend.Dispatch(k, arr, params, grid)
}

func (r *recordingBackend) WriteArray(arr backend.Array, data []byte) error {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	return r.Backend.WriteArray(arr, data)
}

func randomFloats(seed uint64, n int) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()*2000 - 1000
	}
	return out
}

func TestDispatchGrid(t *testing.T) {
	cases := []struct {
		logLen uint32
		want   [3]uint32
	}{
		{0, [3]uint32{1, 1, 1}},
		{1, [3]uint32{1, 1, 1}},
		{8, [3]uint32{1, 1, 1}},
		{9, [3]uint32{2, 1, 1}},
		{10, [3]uint32{4, 2, 1}},
		{11, [3]uint32{4, 2, 1}},
		{16, [3]uint32{32, 16, 1}},
		{17, [3]uint32{32, 16, 1}},
	}
	for _, c := range cases {
		grid := DispatchGrid(c.logLen, kernel.DefaultGroupCapacityLog)
		assert.Equal(t, c.want, grid, "logLen=%d", c.logLen)
		lanes := uint64(grid[0]) * uint64(grid[1]) * uint64(grid[2]) << kernel.DefaultGroupCapacityLog
		assert.GreaterOrEqual(t, lanes, uint64(1)<<c.logLen, "grid covers every element at logLen=%d", c.logLen)
	}
	assert.Equal(t, [3]uint32{2, 1, 1}, DispatchGrid(5, 4))
}

func TestSortFloats(t *testing.T) {
	rb := newRecordingBackend(t)
	s, err := NewSorter(rb, WithVerify(true))
	require.NoError(t, err)

	for _, logLen := range []uint32{0, 1, 5, 8, 9, 10, 13} {
		data := randomFloats(uint64(logLen), 1<<logLen)
		want := slices.Clone(data)
		slices.Sort(want)

		require.NoError(t, Sort(context.Background(), s, data), "logLen=%d", logLen)
		assert.Equal(t, want, data, "logLen=%d", logLen)
	}
}

func TestSortIntegerKinds(t *testing.T) {
	s, err := NewSorter(newRecordingBackend(t))
	require.NoError(t, err)

	ints := []int32{5, -3, 0, math.MaxInt32, math.MinInt32, 7, -3, 2}
	require.NoError(t, Sort(context.Background(), s, ints))
	assert.Equal(t, []int32{math.MinInt32, -3, -3, 0, 2, 5, 7, math.MaxInt32}, ints)

	uints := []uint32{9, 0, math.MaxUint32, 4}
	require.NoError(t, Sort(context.Background(), s, uints))
	assert.Equal(t, []uint32{0, 4, 9, math.MaxUint32}, uints)
}

func TestSortIssuesPlanInOrder(t *testing.T) {
	rb := newRecordingBackend(t)
	s, err := NewSorter(rb)
	require.NoError(t, err)

	data := randomFloats(11, 1<<10)
	require.NoError(t, Sort(context.Background(), s, data))

	plan := sequencer.Compute(10)
	require.Len(t, rb.dispatches, len(plan))
	for i, d := range rb.dispatches {
		assert.Equal(t, plan[i], d.params, "step %d", i)
		assert.Equal(t, [3]uint32{4, 2, 1}, d.grid, "step %d", i)
	}
}

func TestSortAlreadySortedStillDispatches(t *testing.T) {
	rb := newRecordingBackend(t)
	s, err := NewSorter(rb)
	require.NoError(t, err)

	data := make([]uint32, 64)
	for i := range data {
		data[i] = uint32(i)
	}
	want := slices.Clone(data)
	require.NoError(t, Sort(context.Background(), s, data))
	assert.Equal(t, want, data)
	assert.Len(t, rb.dispatches, sequencer.Len(6))
}

func TestSortDeterministic(t *testing.T) {
	s, err := NewSorter(newRecordingBackend(t))
	require.NoError(t, err)

	input := common.EncodeElements(randomFloats(99, 1<<9))
	first, err := s.SortEncoded(context.Background(), common.ElementKindFloat32, input)
	require.NoError(t, err)
	second, err := s.SortEncoded(context.Background(), common.ElementKindFloat32, input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSortPreconditions(t *testing.T) {
	rb := newRecordingBackend(t)
	s, err := NewSorter(rb)
	require.NoError(t, err)

	data := make([]float32, 10)
	err = Sort(context.Background(), s, data)
	assert.ErrorIs(t, err, ErrNotPowerOfTwo)
	assert.Empty(t, rb.dispatches)

	assert.NoError(t, Sort(context.Background(), s, []float32{}))
	assert.Empty(t, rb.dispatches)

	_, err = s.SortEncoded(context.Background(), common.ElementKindFloat32, make([]byte, 6))
	assert.Error(t, err)
	_, err = s.SortEncoded(context.Background(), common.ElementKind(42), make([]byte, 8))
	assert.Error(t, err)
}

func TestSortArrayRejectsNonPowerOfTwo(t *testing.T) {
	rb := newRecordingBackend(t)
	s, err := NewSorter(rb)
	require.NoError(t, err)

	arr, err := rb.CreateArray("ten", common.ElementKindFloat32, make([]byte, 10*common.ElementSize))
	require.NoError(t, err)
	assert.ErrorIs(t, s.SortArray(context.Background(), arr), ErrNotPowerOfTwo)
	assert.Empty(t, rb.dispatches)
}

func TestIssueLengthMismatch(t *testing.T) {
	rb := newRecordingBackend(t)
	k, err := kernel.NewBitonicKernel(common.ElementKindFloat32, kernel.DefaultGroupCapacityLog)
	require.NoError(t, err)
	require.NoError(t, rb.RegisterKernel(k))
	arr, err := rb.CreateArray("sixteen", common.ElementKindFloat32, make([]byte, 16*common.ElementSize))
	require.NoError(t, err)

	err = Issue(context.Background(), rb, k, arr, sequencer.Compute(3))
	assert.ErrorIs(t, err, ErrLengthMismatch)
	err = Issue(context.Background(), rb, k, arr, sequencer.Compute(4)[:5])
	assert.ErrorIs(t, err, ErrLengthMismatch)
	assert.Empty(t, rb.dispatches)

	assert.NoError(t, Issue(context.Background(), rb, k, arr, sequencer.Compute(4)))
	assert.Len(t, rb.dispatches, 10)
}

func TestIssueStopsOnCancel(t *testing.T) {
	rb := newRecordingBackend(t)
	s, err := NewSorter(rb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rb.onDispatch = func(step int) {
		if step == 2 {
			cancel()
		}
	}
	err = Sort(ctx, s, randomFloats(5, 32))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rb.dispatches, 3)
}

func TestDispatchFailureNamesStep(t *testing.T) {
	rb := newRecordingBackend(t)
	rb.failDispatches = 1
	s, err := NewSorter(rb)
	require.NoError(t, err)

	data := randomFloats(3, 16)
	original := slices.Clone(data)
	err = Sort(context.Background(), s, data)
	assert.ErrorIs(t, err, ErrDispatch)
	assert.ErrorContains(t, err, "step 0")
	assert.Equal(t, 1, strings.Count(err.Error(), ErrDispatch.Error()))
	assert.Equal(t, original, data, "input untouched on failure")
}

func TestBackendDispatchErrorWrappedOnce(t *testing.T) {
	rb := newRecordingBackend(t)
	k, err := kernel.NewBitonicKernel(common.ElementKindFloat32, 2)
	require.NoError(t, err)
	arr, err := rb.CreateArray("unregistered", common.ElementKindFloat32, common.EncodeElements(randomFloats(1, 8)))
	require.NoError(t, err)
	defer arr.Release()

	err = Issue(context.Background(), rb, k, arr, sequencer.Compute(3))
	assert.ErrorIs(t, err, ErrDispatch)
	assert.ErrorContains(t, err, "step 0")
	assert.Equal(t, 1, strings.Count(err.Error(), ErrDispatch.Error()), err.Error())
}

func TestRetryStartsFromSnapshot(t *testing.T) {
	rb := newRecordingBackend(t)
	rb.failDispatches = 1
	p := profiler.NewProfiler()
	s, err := NewSorter(rb, WithMaxAttempts(2), WithVerify(true), WithProfiler(p))
	require.NoError(t, err)

	data := randomFloats(8, 256)
	want := slices.Clone(data)
	slices.Sort(want)

	require.NoError(t, Sort(context.Background(), s, data))
	assert.Equal(t, want, data)
	assert.Equal(t, 1, rb.writes)
	assert.Len(t, rb.dispatches, 1+sequencer.Len(8))
	assert.Equal(t, 1, p.Count(profiler.PhaseCPUReference))
	assert.Equal(t, 2, p.Count(profiler.PhaseComputation))
}

func TestNewSorterOptions(t *testing.T) {
	rb := newRecordingBackend(t)

	_, err := NewSorter(nil)
	assert.Error(t, err)
	_, err = NewSorter(rb, WithGroupCapacityLog(9))
	assert.Error(t, err)
	_, err = NewSorter(rb, WithMaxAttempts(0))
	assert.Error(t, err)

	s, err := NewSorter(rb, WithGroupCapacityLog(4))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), s.GroupCapacityLog())
	assert.Same(t, rb, s.Backend())

	k, err := s.Kernel(common.ElementKindUint32)
	require.NoError(t, err)
	again, err := s.Kernel(common.ElementKindUint32)
	require.NoError(t, err)
	assert.Same(t, k, again)
	assert.Equal(t, uint32(16), k.Lanes())

	data := make([]uint32, 1<<7)
	for i := range data {
		data[i] = uint32(len(data) - i)
	}
	require.NoError(t, Sort(context.Background(), s, data))
	assert.True(t, slices.IsSorted(data))
	assert.Equal(t, DispatchGrid(7, 4), rb.dispatches[0].grid)
}

func TestVerify(t *testing.T) {
	original := []int32{3, 1, 2, 0}
	assert.NoError(t, Verify(original, []int32{0, 1, 2, 3}))
	assert.Equal(t, []int32{3, 1, 2, 0}, original)

	err := Verify(original, []int32{0, 2, 1, 3})
	assert.ErrorIs(t, err, ErrVerification)
	assert.ErrorContains(t, err, "index 1")

	assert.ErrorIs(t, Verify(original, []int32{0, 1}), ErrVerification)

	nan := float32(math.NaN())
	assert.NoError(t, Verify([]float32{nan, 1}, []float32{nan, 1}))
}

func TestVerifyIgnoresNaNPlacement(t *testing.T) {
	nan := float32(math.NaN())
	original := []float32{2, nan, -1, nan}

	assert.NoError(t, Verify(original, []float32{nan, nan, -1, 2}))
	assert.NoError(t, Verify(original, []float32{-1, 2, nan, nan}))
	assert.NoError(t, Verify(original, []float32{-1, nan, 2, nan}))

	err := Verify(original, []float32{nan, 2, nan, -1})
	assert.ErrorIs(t, err, ErrVerification)
	assert.ErrorContains(t, err, "index 1")

	err = Verify(original, []float32{-1, 2, nan, 0})
	assert.ErrorIs(t, err, ErrVerification)
	assert.ErrorContains(t, err, "NaN")

	assert.ErrorIs(t, Verify([]float32{1, 0}, []float32{nan, 1}), ErrVerification)
}

func TestVerifyLargeInputReportsFirstMismatch(t *testing.T) {
	n := 1 << 18
	original := make([]uint32, n)
	for i := range original {
		original[i] = uint32(n - i)
	}
	sorted := slices.Clone(original)
	slices.Sort(sorted)
	assert.NoError(t, Verify(original, sorted))

	sorted[n-10], sorted[n-1] = sorted[n-1], sorted[n-10]
	sorted[200000], sorted[200001] = sorted[200001], sorted[200000]
	err := Verify(original, sorted)
	assert.ErrorIs(t, err, ErrVerification)
	assert.ErrorContains(t, err, "index 200000")
}

func TestSortersShareBackend(t *testing.T) {
	backends := []backend.Backend{newRecordingBackend(t)}
	if gpu, err := backend.NewBackend(backend.BackendTypeWGPU); err == nil {
		t.Cleanup(gpu.Release)
		backends = append(backends, gpu)
	} else {
		t.Logf("no WebGPU device available, host backend only: %v", err)
	}

	for _, b := range backends {
		first, err := NewSorter(b)
		require.NoError(t, err)
		second, err := NewSorter(b)
		require.NoError(t, err)

		for i, s := range []Sorter{first, second, first} {
			data := randomFloats(uint64(20+i), 1<<10)
			require.NoError(t, Sort(context.Background(), s, data), b.Type().String())
			assert.True(t, slices.IsSorted(data), b.Type().String())
		}
	}
}
