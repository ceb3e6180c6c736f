package common

import (
	"runtime"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// StopWorkerPool ends every worker goroutine of pool and stops it. Workers share one stop
// channel and an idle worker discards a stop signal meant for another, so each worker is
// also handed a task that exits its goroutine. Tasks submitted after StopWorkerPool never run.
//
// Parameters:
//   - pool: the pool to stop, nil is a no-op
func StopWorkerPool(pool worker.DynamicWorkerPool) {
	if pool == nil {
		return
	}
	for i := range pool.GetMaxWorkers() {
		pool.SubmitTask(worker.Task{
			ID: -1 - i,
			Do: func() (any, error) {
				runtime.Goexit()
				return nil, nil
			},
		})
	}
	pool.Stop()
}
