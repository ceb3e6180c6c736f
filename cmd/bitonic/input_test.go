package main

import (
	"runtime"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInputDeterministic(t *testing.T) {
	n := 3*inputChunk + 5
	serial := generateInput(common.ElementKindFloat32, n, 7, 1)
	parallel := generateInput(common.ElementKindFloat32, n, 7, 4)
	assert.Len(t, serial, n*common.ElementSize)
	assert.Equal(t, serial, parallel)
	assert.NotEqual(t, serial, generateInput(common.ElementKindFloat32, n, 8, 4))

	values := make([]float32, n)
	require.NoError(t, common.DecodeElements(values, serial))
	for _, v := range values {
		assert.True(t, v >= 0 && v < 1)
	}
}

func TestGenerateInputKinds(t *testing.T) {
	for _, kind := range []common.ElementKind{common.ElementKindUint32, common.ElementKindInt32} {
		out := generateInput(kind, 16, 1, 2)
		assert.Len(t, out, 16*common.ElementSize, kind.String())
	}
	assert.Empty(t, generateInput(common.ElementKindUint32, 0, 1, 2))
}

func TestGenerateInputStopsWorkers(t *testing.T) {
	before := runtime.NumGoroutine()
	for seed := range uint64(10) {
		generateInput(common.ElementKindUint32, 2*inputChunk, seed, 4)
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}
