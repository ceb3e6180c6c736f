package backend

import (
	"context"
	"math/rand/v2"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridFor mirrors the sorter's grid rule so the backend can be exercised on its own.
func gridFor(logLen, groupLog uint32) [3]uint32 {
	if logLen <= groupLog {
		return [3]uint32{1, 1, 1}
	}
	half := uint32(1) << ((logLen - groupLog) / 2)
	return [3]uint32{2 * half, half, 1}
}

func newHost(t *testing.T, options ...BackendBuilderOption) Backend {
	t.Helper()
	b, err := NewBackend(BackendTypeHost, options...)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func TestParseBackendType(t *testing.T) {
	for in, want := range map[string]BackendType{"wgpu": BackendTypeWGPU, "gpu": BackendTypeWGPU, "": BackendTypeWGPU, "host": BackendTypeHost, "cpu": BackendTypeHost} {
		got, err := ParseBackendType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBackendType("metal")
	assert.Error(t, err)
	assert.Equal(t, "host", BackendTypeHost.String())
	assert.Equal(t, "BackendType(7)", BackendType(7).String())
}

func TestNewBackendUnknownType(t *testing.T) {
	_, err := NewBackend(BackendType(7))
	assert.ErrorIs(t, err, ErrBackendInit)
}

func TestHostBackendSortsThroughPlan(t *testing.T) {
	for _, workers := range []int{1, 4} {
		b := newHost(t, WithHostWorkers(workers))
		k, err := kernel.NewBitonicKernel(common.ElementKindFloat32, kernel.DefaultGroupCapacityLog)
		require.NoError(t, err)
		require.NoError(t, b.RegisterKernel(k))

		rng := rand.New(rand.NewPCG(7, uint64(workers)))
		for _, logLen := range []uint32{0, 3, 8, 9, 12} {
			values := make([]float32, 1<<logLen)
			for i := range values {
				values[i] = rng.Float32()
			}
			arr, err := b.CreateArray("floats", common.ElementKindFloat32, common.EncodeElements(values))
			require.NoError(t, err)
			assert.Equal(t, len(values), arr.Len())

			grid := gridFor(logLen, k.GroupCapacityLog())
			for _, p := range sequencer.Compute(logLen) {
				require.NoError(t, b.Dispatch(k, arr, p, grid))
			}

			raw, err := b.Read(context.Background(), arr)
			require.NoError(t, err)
			got := make([]float32, len(values))
			require.NoError(t, common.DecodeElements(got, raw))

			want := slices.Clone(values)
			slices.Sort(want)
			assert.Equal(t, want, got, "workers=%d logLen=%d", workers, logLen)
			arr.Release()
		}
	}
}

func TestHostBackendCreateArrayChecks(t *testing.T) {
	b := newHost(t, WithLimits(Limits{MaxStorageBufferBindingSize: 16, MaxWorkgroupsPerDimension: 4}))
	assert.Equal(t, 4, b.Limits().MaxElements())

	_, err := b.CreateArray("big", common.ElementKindUint32, make([]byte, 20))
	assert.ErrorIs(t, err, ErrArrayTooLarge)

	_, err = b.CreateArray("empty", common.ElementKindUint32, nil)
	assert.Error(t, err)

	_, err = b.CreateArray("ragged", common.ElementKindUint32, make([]byte, 6))
	assert.Error(t, err)

	_, err = b.CreateArray("bad kind", common.ElementKind(99), make([]byte, 4))
	assert.Error(t, err)

	arr, err := b.CreateArray("ok", common.ElementKindUint32, make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, uint64(16), arr.Size())
}

func TestHostBackendDispatchChecks(t *testing.T) {
	b := newHost(t, WithLimits(Limits{MaxStorageBufferBindingSize: 1 << 20, MaxWorkgroupsPerDimension: 4}))
	k, err := kernel.NewBitonicKernel(common.ElementKindUint32, kernel.DefaultGroupCapacityLog)
	require.NoError(t, err)
	arr, err := b.CreateArray("u32", common.ElementKindUint32, common.EncodeElements([]uint32{4, 3, 2, 1}))
	require.NoError(t, err)
	params := sequencer.Compute(2)[0]

	err = b.Dispatch(k, arr, params, [3]uint32{1, 1, 1})
	assert.ErrorIs(t, err, ErrDispatch, "unregistered kernel")

	require.NoError(t, b.RegisterKernel(k))
	assert.ErrorIs(t, b.Dispatch(k, arr, params, [3]uint32{0, 1, 1}), ErrDispatch)
	assert.ErrorIs(t, b.Dispatch(k, arr, params, [3]uint32{8, 1, 1}), ErrDispatch)

	floats, err := kernel.NewBitonicKernel(common.ElementKindFloat32, kernel.DefaultGroupCapacityLog)
	require.NoError(t, err)
	require.NoError(t, b.RegisterKernel(floats))
	assert.ErrorIs(t, b.Dispatch(floats, arr, params, [3]uint32{1, 1, 1}), ErrDispatch)

	assert.NoError(t, b.Dispatch(k, arr, params, [3]uint32{1, 1, 1}))
}

func TestHostBackendRejectsKernelWithoutInvocation(t *testing.T) {
	b := newHost(t)
	k := kernel.NewKernel("no host")
	assert.ErrorIs(t, b.RegisterKernel(k), ErrKernelCompile)
}

func TestHostBackendWriteAndRead(t *testing.T) {
	b := newHost(t)
	arr, err := b.CreateArray("i32", common.ElementKindInt32, common.EncodeElements([]int32{1, 2}))
	require.NoError(t, err)

	require.NoError(t, b.WriteArray(arr, common.EncodeElements([]int32{-5, 9})))
	assert.Error(t, b.WriteArray(arr, common.EncodeElements([]int32{1})))

	raw, err := b.Read(context.Background(), arr)
	require.NoError(t, err)
	got := make([]int32, 2)
	require.NoError(t, common.DecodeElements(got, raw))
	assert.Equal(t, []int32{-5, 9}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Read(ctx, arr)
	assert.ErrorIs(t, err, context.Canceled)

	arr.Release()
	_, err = b.Read(context.Background(), arr)
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, b.WriteArray(arr, make([]byte, 8)), ErrReleased)
}

func TestHostBackendCreateArrayCopiesInput(t *testing.T) {
	b := newHost(t)
	data := common.EncodeElements([]uint32{1, 2})
	arr, err := b.CreateArray("copy", common.ElementKindUint32, data)
	require.NoError(t, err)
	data[0] = 0xff

	raw, err := b.Read(context.Background(), arr)
	require.NoError(t, err)
	assert.Equal(t, byte(1), raw[0])
}

func TestWGPUBackendSorts(t *testing.T) {
	b, err := NewBackend(BackendTypeWGPU)
	if err != nil {
		t.Skipf("no WebGPU device available: %v", err)
	}
	defer b.Release()
	assert.Equal(t, BackendTypeWGPU, b.Type())
	assert.NotEmpty(t, b.Name())

	k, err := kernel.NewBitonicKernel(common.ElementKindUint32, kernel.DefaultGroupCapacityLog)
	require.NoError(t, err)
	require.NoError(t, b.RegisterKernel(k))

	const logLen = 10
	rng := rand.New(rand.NewPCG(3, 4))
	values := make([]uint32, 1<<logLen)
	for i := range values {
		values[i] = rng.Uint32()
	}
	arr, err := b.CreateArray("wgpu u32", common.ElementKindUint32, common.EncodeElements(values))
	require.NoError(t, err)
	defer arr.Release()

	for _, p := range sequencer.Compute(logLen) {
		require.NoError(t, b.Dispatch(k, arr, p, gridFor(logLen, k.GroupCapacityLog())))
	}
	raw, err := b.Read(context.Background(), arr)
	require.NoError(t, err)

	got := make([]uint32, len(values))
	require.NoError(t, common.DecodeElements(got, raw))
	assert.True(t, slices.IsSorted(got))
}

func TestHostBackendReleaseStopsWorkers(t *testing.T) {
	before := runtime.NumGoroutine()
	for range 20 {
		b, err := NewBackend(BackendTypeHost, WithHostWorkers(4))
		require.NoError(t, err)
		b.Release()
		b.Release()
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHostBackendDispatchAfterRelease(t *testing.T) {
	b, err := NewBackend(BackendTypeHost, WithHostWorkers(4))
	require.NoError(t, err)
	k, err := kernel.NewBitonicKernel(common.ElementKindUint32, 1)
	require.NoError(t, err)
	require.NoError(t, b.RegisterKernel(k))
	arr, err := b.CreateArray("after release", common.ElementKindUint32, common.EncodeElements([]uint32{4, 3, 2, 1}))
	require.NoError(t, err)

	b.Release()
	err = b.Dispatch(k, arr, sequencer.StageParameters{LogLen: 2}, gridFor(2, 1))
	assert.ErrorIs(t, err, ErrDispatch)
}

// sortWithKernel runs the full plan for values on b with k and returns the result.
func sortWithKernel(t *testing.T, b Backend, k kernel.Kernel, values []uint32) []uint32 {
	t.Helper()
	logLen := common.Log2(len(values))
	arr, err := b.CreateArray("shared key", common.ElementKindUint32, common.EncodeElements(values))
	require.NoError(t, err)
	defer arr.Release()

	for _, p := range sequencer.Compute(logLen) {
		require.NoError(t, b.Dispatch(k, arr, p, gridFor(logLen, k.GroupCapacityLog())))
	}
	raw, err := b.Read(context.Background(), arr)
	require.NoError(t, err)
	got := make([]uint32, len(values))
	require.NoError(t, common.DecodeElements(got, raw))
	return got
}

func TestKernelsSharingKeyDispatch(t *testing.T) {
	host := newHost(t, WithHostWorkers(2))
	backends := []Backend{host}
	if gpu, err := NewBackend(BackendTypeWGPU); err == nil {
		t.Cleanup(gpu.Release)
		backends = append(backends, gpu)
	} else {
		t.Logf("no WebGPU device available, host backend only: %v", err)
	}

	values := make([]uint32, 1<<10)
	for i := range values {
		values[i] = uint32(len(values) - i)
	}
	for _, b := range backends {
		first, err := kernel.NewBitonicKernel(common.ElementKindUint32, kernel.DefaultGroupCapacityLog)
		require.NoError(t, err)
		second, err := kernel.NewBitonicKernel(common.ElementKindUint32, kernel.DefaultGroupCapacityLog)
		require.NoError(t, err)
		require.Equal(t, first.Key(), second.Key())

		require.NoError(t, b.RegisterKernel(first), b.Type().String())
		require.NoError(t, b.RegisterKernel(second), b.Type().String())
		assert.True(t, slices.IsSorted(sortWithKernel(t, b, first, values)), b.Type().String())
		assert.True(t, slices.IsSorted(sortWithKernel(t, b, second, values)), b.Type().String())
	}
}
