package main

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-sort/common"
)

// inputChunk is the number of elements one generator task fills.
const inputChunk = 1 << 16

// generateInput returns n random encoded elements of kind. Floats are uniform in
// [0, 1) like the benchmark input; integers cover their full range. Each chunk draws from
// its own generator seeded by (seed, chunk), so the result depends only on seed and n.
func generateInput(kind common.ElementKind, n int, seed uint64, workers int) []byte {
	out := make([]byte, n*common.ElementSize)
	fill := func(chunk int) {
		rng := rand.New(rand.NewPCG(seed, uint64(chunk)))
		from := chunk * inputChunk
		to := min(from+inputChunk, n)
		switch kind {
		case common.ElementKindFloat32:
			values := make([]float32, to-from)
			for i := range values {
				values[i] = rng.Float32()
			}
			copy(out[from*common.ElementSize:], common.EncodeElements(values))
		case common.ElementKindInt32:
			values := make([]int32, to-from)
			for i := range values {
				values[i] = int32(rng.Uint32())
			}
			copy(out[from*common.ElementSize:], common.EncodeElements(values))
		default:
			values := make([]uint32, to-from)
			for i := range values {
				values[i] = rng.Uint32()
			}
			copy(out[from*common.ElementSize:], common.EncodeElements(values))
		}
	}

	chunks := (n + inputChunk - 1) / inputChunk
	if workers < 2 || chunks < 2 {
		for c := range chunks {
			fill(c)
		}
		return out
	}

	pool := worker.NewDynamicWorkerPool(workers, max(chunks, 1), 1*time.Second)
	var wg sync.WaitGroup
	for c := range chunks {
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID: c,
			Do: func() (any, error) {
				defer wg.Done()
				fill(c)
				return nil, nil
			},
		})
	}
	wg.Wait()
	common.StopWorkerPool(pool)
	return out
}
