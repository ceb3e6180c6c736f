package backend

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// hostQueueSize is the task queue depth of the host worker pool. A dispatch never
// submits more tasks than this, so submission does not wait on queue space.
const hostQueueSize = 256

type hostArray struct {
	label    string
	kind     common.ElementKind
	data     []byte
	released bool
}

var _ Array = &hostArray{}

func (a *hostArray) Label() string            { return a.label }
func (a *hostArray) Len() int                 { return len(a.data) / common.ElementSize }
func (a *hostArray) Kind() common.ElementKind { return a.kind }
func (a *hostArray) Size() uint64             { return uint64(len(a.data)) }

func (a *hostArray) Release() {
	a.released = true
	a.data = nil
}

// hostBackendImpl executes kernels on the host. Each dispatch is split into contiguous
// workgroup ranges that run on a worker pool; the dispatch returns after all ranges finish,
// so successive dispatches are ordered exactly as on a device queue.
type hostBackendImpl struct {
	mu      *sync.Mutex
	logger  *zap.Logger
	limits  Limits
	workers int
	pool    worker.DynamicWorkerPool
	kernels map[string]kernel.Kernel
	taskID  int
}

var _ Backend = &hostBackendImpl{}

func newHostBackend(cfg *backendConfig) *hostBackendImpl {
	limits := defaultLimits()
	if cfg.limits != nil {
		limits = *cfg.limits
	}
	b := &hostBackendImpl{
		mu:      &sync.Mutex{},
		logger:  cfg.logger,
		limits:  limits,
		workers: cfg.hostWorkers,
		kernels: make(map[string]kernel.Kernel),
	}
	if b.workers > 1 {
		b.pool = worker.NewDynamicWorkerPool(b.workers, hostQueueSize, 1*time.Second)
	}
	b.logger.Info("host backend ready", zap.Int("workers", b.workers), zap.Int("max_elements", limits.MaxElements()))
	return b
}

// defaultLimits mirrors the WebGPU default limits so host and device accept the same inputs.
func defaultLimits() Limits {
	l := wgpu.DefaultLimits()
	return Limits{
		MaxStorageBufferBindingSize: l.MaxStorageBufferBindingSize,
		MaxWorkgroupsPerDimension:   l.MaxComputeWorkgroupsPerDimension,
	}
}

func (b *hostBackendImpl) Type() BackendType {
	return BackendTypeHost
}

func (b *hostBackendImpl) Name() string {
	return fmt.Sprintf("host (%s/%s, %d workers)", runtime.GOOS, runtime.GOARCH, b.workers)
}

func (b *hostBackendImpl) Limits() Limits {
	return b.limits
}

func (b *hostBackendImpl) RegisterKernel(k kernel.Kernel) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.kernels[k.Key()]; ok {
		return nil
	}
	if !k.HostExecutable() {
		return fmt.Errorf("%w: kernel %s has no host invocation", ErrKernelCompile, k.Key())
	}
	b.kernels[k.Key()] = k
	b.logger.Debug("registered kernel", zap.String("kernel", k.Key()), zap.Uint32("lanes", k.Lanes()))
	return nil
}

func (b *hostBackendImpl) CreateArray(label string, kind common.ElementKind, data []byte) (Array, error) {
	if err := checkArray(b.limits, kind, data); err != nil {
		return nil, err
	}
	return &hostArray{label: label, kind: kind, data: bytes.Clone(data)}, nil
}

func (b *hostBackendImpl) WriteArray(arr Array, data []byte) error {
	a, err := b.array(arr)
	if err != nil {
		return err
	}
	if len(data) != len(a.data) {
		return fmt.Errorf("write %s: got %d bytes, array holds %d", a.label, len(data), len(a.data))
	}
	copy(a.data, data)
	return nil
}

func (b *hostBackendImpl) Dispatch(k kernel.Kernel, arr Array, params sequencer.StageParameters, grid [3]uint32) error {
	a, err := b.array(arr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	b.mu.Lock()
	_, registered := b.kernels[k.Key()]
	pool := b.pool
	b.mu.Unlock()
	if !registered {
		return fmt.Errorf("%w: kernel %s is not registered", ErrDispatch, k.Key())
	}
	if err := checkDispatch(b.limits, k, arr, grid); err != nil {
		return err
	}

	lanes := k.Lanes()
	rowStride := grid[0] * lanes
	// Workgroups are numbered linearly over (x, y, z) and split into contiguous ranges.
	total := int(grid[0]) * int(grid[1]) * int(grid[2])
	run := func(from, to int) {
		for wg := from; wg < to; wg++ {
			wx := uint32(wg) % grid[0]
			wy := (uint32(wg) / grid[0]) % grid[1]
			for lane := range lanes {
				gx := wx*lanes + lane
				k.Invoke(a.data, params, gx+wy*rowStride)
			}
		}
	}

	if pool == nil || total < 2 {
		run(0, total)
		return nil
	}

	chunks := min(b.workers, total, hostQueueSize)
	per := (total + chunks - 1) / chunks
	var wg sync.WaitGroup
	for from := 0; from < total; from += per {
		to := min(from+per, total)
		wg.Add(1)
		b.mu.Lock()
		id := b.taskID
		b.taskID++
		b.mu.Unlock()
		pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				run(from, to)
				return nil, nil
			},
		})
	}
	wg.Wait()
	return nil
}

func (b *hostBackendImpl) Read(ctx context.Context, arr Array) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := b.array(arr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadback, err)
	}
	return bytes.Clone(a.data), nil
}

func (b *hostBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.kernels)
	common.StopWorkerPool(b.pool)
	b.pool = nil
}

func (b *hostBackendImpl) array(arr Array) (*hostArray, error) {
	a, ok := arr.(*hostArray)
	if !ok {
		return nil, fmt.Errorf("array %s was not created by the host backend", arr.Label())
	}
	if a.released {
		return nil, fmt.Errorf("array %s: %w", a.label, ErrReleased)
	}
	return a, nil
}
