package common

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 4, 256, 1 << 20} {
		assert.True(t, IsPowerOfTwo(n), "n=%d", n)
	}
	for _, n := range []int{0, -4, 3, 10, 255, 1<<20 + 1} {
		assert.False(t, IsPowerOfTwo(n), "n=%d", n)
	}
}

func TestLog2(t *testing.T) {
	assert.Equal(t, uint32(0), Log2(1))
	assert.Equal(t, uint32(4), Log2(16))
	assert.Equal(t, uint32(16), Log2(65536))
	assert.Equal(t, uint32(0), Log2(0))
	assert.Equal(t, 512, Pow2(9))
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 0, Coalesce(0, 0))
	assert.Equal(t, uint32(8), Coalesce(uint32(0), uint32(8)))
}

func TestElementKindOf(t *testing.T) {
	type celsius float32
	assert.Equal(t, ElementKindFloat32, ElementKindOf[float32]())
	assert.Equal(t, ElementKindFloat32, ElementKindOf[celsius]())
	assert.Equal(t, ElementKindUint32, ElementKindOf[uint32]())
	assert.Equal(t, ElementKindInt32, ElementKindOf[int32]())
}

func TestEncodeDecodeElements(t *testing.T) {
	ints := []int32{-5, 0, 7, math.MinInt32, math.MaxInt32}
	buf := EncodeElements(ints)
	require.Len(t, buf, len(ints)*ElementSize)

	out := make([]int32, len(ints))
	require.NoError(t, DecodeElements(out, buf))
	assert.Equal(t, ints, out)

	floats := []float32{-1.5, 0, 3.25}
	fout := make([]float32, 3)
	require.NoError(t, DecodeElements(fout, EncodeElements(floats)))
	assert.Equal(t, floats, fout)

	assert.Error(t, DecodeElements(out, []byte{1, 2, 3}))
	assert.Error(t, DecodeElements(make([]int32, 1), buf))
}

func TestElementKindGreater(t *testing.T) {
	enc := func(v any) []byte {
		switch x := v.(type) {
		case float32:
			return EncodeElements([]float32{x})
		case int32:
			return EncodeElements([]int32{x})
		default:
			return EncodeElements([]uint32{x.(uint32)})
		}
	}
	assert.True(t, ElementKindFloat32.Greater(enc(float32(2)), enc(float32(-3))))
	assert.False(t, ElementKindFloat32.Greater(enc(float32(-3)), enc(float32(2))))
	assert.True(t, ElementKindInt32.Greater(enc(int32(1)), enc(int32(-1))))
	assert.False(t, ElementKindUint32.Greater(enc(uint32(1)), enc(uint32(math.MaxUint32))))
	nan := float32(math.NaN())
	assert.False(t, ElementKindFloat32.Greater(enc(nan), enc(float32(1))))
	assert.False(t, ElementKindFloat32.Greater(enc(float32(1)), enc(nan)))
}

func TestParseElementKind(t *testing.T) {
	k, err := ParseElementKind("Float32")
	require.NoError(t, err)
	assert.Equal(t, ElementKindFloat32, k)
	k, err = ParseElementKind("u32")
	require.NoError(t, err)
	assert.Equal(t, "u32", k.WGSLType())
	_, err = ParseElementKind("f64")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)
	_, err = NewLogger("loud")
	assert.Error(t, err)
	assert.NotNil(t, LoggerOrNop(nil))
}

func TestStopWorkerPool(t *testing.T) {
	StopWorkerPool(nil)

	before := runtime.NumGoroutine()
	var ran atomic.Int32
	for range 10 {
		pool := worker.NewDynamicWorkerPool(6, 16, 1*time.Second)
		var wg sync.WaitGroup
		for i := range 12 {
			wg.Add(1)
			pool.SubmitTask(worker.Task{
				ID: i,
				Do: func() (any, error) {
					defer wg.Done()
					ran.Add(1)
					return nil, nil
				},
			})
		}
		wg.Wait()
		StopWorkerPool(pool)
	}
	assert.Equal(t, int32(120), ran.Load())
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}
