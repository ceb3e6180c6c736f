package sorter

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-sort/common"
)

// verifyChunk is the smallest number of elements compared by one verification task.
const verifyChunk = 1 << 14

var (
	verifyWorkers = max(runtime.NumCPU()-1, 1)
	verifyPool    = sync.OnceValue(func() worker.DynamicWorkerPool {
		return worker.NewDynamicWorkerPool(verifyWorkers, 256, 1*time.Second)
	})
	verifyTaskID atomic.Int64
)

// Verify compares sorted element-wise against an ascending host sort of original.
// NaN values may sit anywhere in sorted; only their count must match, and the remaining
// elements are compared in order.
//
// Parameters:
//   - original: the unsorted input, left unmodified
//   - sorted: the result to check
//
// Returns:
//   - error: nil if sorted matches, otherwise an error wrapping ErrVerification that
//     names the first mismatching index
func Verify[T common.Element](original, sorted []T) error {
	if len(original) != len(sorted) {
		return fmt.Errorf("%w: reference has %d elements, result has %d", ErrVerification, len(original), len(sorted))
	}
	reference := slices.Clone(original)
	slices.Sort(reference)

	// slices.Sort places NaN first
	nans := 0
	for nans < len(reference) && isNaN(reference[nans]) {
		nans++
	}
	if nans == 0 {
		if i := firstMismatch(reference, sorted); i >= 0 {
			return fmt.Errorf("%w: index %d is %v, want %v", ErrVerification, i, sorted[i], reference[i])
		}
		return nil
	}

	want := reference[nans:]
	got := make([]T, 0, len(want))
	index := make([]int, 0, len(want))
	for i, v := range sorted {
		if !isNaN(v) {
			got = append(got, v)
			index = append(index, i)
		}
	}
	if len(got) != len(want) {
		return fmt.Errorf("%w: result has %d NaN values, want %d", ErrVerification, len(sorted)-len(got), nans)
	}
	if i := firstMismatch(want, got); i >= 0 {
		return fmt.Errorf("%w: index %d is %v, want %v", ErrVerification, index[i], got[i], want[i])
	}
	return nil
}

// isNaN reports whether v is a float NaN; v != v holds only for NaN.
func isNaN[T common.Element](v T) bool {
	return v != v
}

// firstMismatch returns the lowest index where want and got differ, or -1. Inputs larger
// than one chunk are compared in parallel on the verification pool.
func firstMismatch[T common.Element](want, got []T) int {
	n := len(want)
	if n <= verifyChunk || verifyWorkers < 2 {
		return mismatchIn(want, got, 0, n)
	}

	chunks := min(verifyWorkers, (n+verifyChunk-1)/verifyChunk)
	per := (n + chunks - 1) / chunks
	first := make([]int, chunks)
	pool := verifyPool()

	var wg sync.WaitGroup
	for c := range chunks {
		from := c * per
		to := min(from+per, n)
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID: int(verifyTaskID.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				first[c] = mismatchIn(want, got, from, to)
				return nil, nil
			},
		})
	}
	wg.Wait()

	for _, i := range first {
		if i >= 0 {
			return i
		}
	}
	return -1
}

func mismatchIn[T common.Element](want, got []T, from, to int) int {
	for i := from; i < to; i++ {
		if want[i] != got[i] {
			return i
		}
	}
	return -1
}
