package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
)

// BackendType selects the compute backend implementation.
type BackendType int

const (
	// BackendTypeWGPU runs kernels on a WebGPU device through wgpu-native.
	BackendTypeWGPU BackendType = iota

	// BackendTypeHost emulates the device on the host, executing the kernel's host
	// invocation over the full dispatch grid.
	BackendTypeHost
)

func (t BackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeHost:
		return "host"
	default:
		return fmt.Sprintf("BackendType(%d)", int(t))
	}
}

// ParseBackendType resolves "wgpu" or "host" to a BackendType.
func ParseBackendType(s string) (BackendType, error) {
	switch s {
	case "wgpu", "gpu", "":
		return BackendTypeWGPU, nil
	case "host", "cpu":
		return BackendTypeHost, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}

var (
	// ErrBackendInit reports that the instance, adapter or device could not be created.
	ErrBackendInit = errors.New("backend initialization failed")
	// ErrKernelCompile reports that a kernel's shader module or pipeline could not be created.
	ErrKernelCompile = errors.New("kernel compilation failed")
	// ErrArrayTooLarge reports an array exceeding the device storage binding limit.
	ErrArrayTooLarge = errors.New("array exceeds device storage limit")
	// ErrDispatch reports a failed kernel submission.
	ErrDispatch = errors.New("dispatch failed")
	// ErrReadback reports a failed download of array contents.
	ErrReadback = errors.New("readback failed")
	// ErrReleased reports use of an array or backend after Release.
	ErrReleased = errors.New("resource already released")
)

// Limits are the device limits that bound array sizes and dispatch grids.
type Limits struct {
	// MaxStorageBufferBindingSize is the largest storage binding in bytes.
	MaxStorageBufferBindingSize uint64
	// MaxWorkgroupsPerDimension is the largest workgroup count along any grid axis.
	MaxWorkgroupsPerDimension uint32
}

// MaxElements returns the largest element count a single array may hold under these limits.
func (l Limits) MaxElements() int {
	return int(l.MaxStorageBufferBindingSize / common.ElementSize)
}

// Array is an accelerator-resident element array owned by a Backend.
type Array interface {
	// Label returns the debug label of the array.
	//
	// Returns:
	//   - string: the label passed at creation
	Label() string

	// Len returns the number of elements.
	//
	// Returns:
	//   - int: the element count
	Len() int

	// Kind returns the element kind.
	//
	// Returns:
	//   - common.ElementKind: the element kind passed at creation
	Kind() common.ElementKind

	// Size returns the size of the array in bytes.
	//
	// Returns:
	//   - uint64: Len() * common.ElementSize
	Size() uint64

	// Release frees the device memory backing the array. Later use returns ErrReleased.
	Release()
}

// Backend is the compute backend consumed by the sorter: it allocates device arrays,
// compiles kernels, submits dispatches with an explicit grid, and reads arrays back.
// Dispatches submitted to one Backend execute in submission order.
type Backend interface {
	// Type returns the backend implementation type.
	//
	// Returns:
	//   - BackendType: the type passed to NewBackend
	Type() BackendType

	// Name returns a human-readable description of the device in use.
	//
	// Returns:
	//   - string: the adapter or host description
	Name() string

	// Limits returns the device limits in force.
	//
	// Returns:
	//   - Limits: the storage and grid limits
	Limits() Limits

	// RegisterKernel creates the device objects for a kernel. Kernels already registered are skipped.
	//
	// Parameters:
	//   - k: the kernel to compile
	//
	// Returns:
	//   - error: an error wrapping ErrKernelCompile if compilation fails
	RegisterKernel(k kernel.Kernel) error

	// CreateArray allocates a device array initialised from encoded host data.
	//
	// Parameters:
	//   - label: a debug label for the array's resources
	//   - kind: the element kind of data
	//   - data: the little-endian encoded elements
	//
	// Returns:
	//   - Array: the device array
	//   - error: an error wrapping ErrArrayTooLarge if data exceeds Limits, or the allocation error
	CreateArray(label string, kind common.ElementKind, data []byte) (Array, error)

	// WriteArray overwrites the full contents of an array with encoded host data.
	//
	// Parameters:
	//   - arr: an array created by this backend
	//   - data: exactly arr.Size() encoded bytes
	//
	// Returns:
	//   - error: an error if the sizes differ or the array was released
	WriteArray(arr Array, data []byte) error

	// Dispatch uploads params to the array's parameter block and submits one invocation
	// of the kernel over grid workgroups. It returns once the work is submitted.
	//
	// Parameters:
	//   - k: a registered kernel whose element kind matches arr
	//   - arr: the array the kernel operates on
	//   - params: the stage parameters value for this dispatch
	//   - grid: the workgroup counts along x, y and z
	//
	// Returns:
	//   - error: an error wrapping ErrDispatch if the dispatch cannot be submitted
	Dispatch(k kernel.Kernel, arr Array, params sequencer.StageParameters, grid [3]uint32) error

	// Read waits for all submitted work touching arr and returns a copy of its contents.
	// This is the only blocking operation; ctx bounds the wait.
	//
	// Parameters:
	//   - ctx: bounds the wait for the device
	//   - arr: the array to download
	//
	// Returns:
	//   - []byte: arr.Size() encoded bytes
	//   - error: an error wrapping ErrReadback, or ctx.Err() if the context ends first
	Read(ctx context.Context, arr Array) ([]byte, error)

	// Release frees every kernel pipeline registered with the backend and the device itself.
	Release()
}

// NewBackend creates a compute backend of the given type.
//
// Parameters:
//   - backendType: the implementation to create
//   - options: functional options configuring the backend
//
// Returns:
//   - Backend: the ready backend
//   - error: an error wrapping ErrBackendInit if the device cannot be created
func NewBackend(backendType BackendType, options ...BackendBuilderOption) (Backend, error) {
	cfg := defaultBackendConfig()
	for _, opt := range options {
		opt(cfg)
	}
	switch backendType {
	case BackendTypeWGPU:
		return newWGPUBackend(cfg)
	case BackendTypeHost:
		return newHostBackend(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend type %v", ErrBackendInit, backendType)
	}
}

// checkArray validates the common preconditions of CreateArray.
func checkArray(limits Limits, kind common.ElementKind, data []byte) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid element kind %v", kind)
	}
	if len(data) == 0 || len(data)%common.ElementSize != 0 {
		return fmt.Errorf("array data must be a non-empty multiple of %d bytes, got %d", common.ElementSize, len(data))
	}
	if uint64(len(data)) > limits.MaxStorageBufferBindingSize {
		return fmt.Errorf("%w: %d bytes > %d", ErrArrayTooLarge, len(data), limits.MaxStorageBufferBindingSize)
	}
	return nil
}

// checkDispatch validates the common preconditions of Dispatch.
func checkDispatch(limits Limits, k kernel.Kernel, arr Array, grid [3]uint32) error {
	if k.ElementKind() != arr.Kind() {
		return fmt.Errorf("%w: kernel %s operates on %s, array %s holds %s", ErrDispatch, k.Key(), k.ElementKind(), arr.Label(), arr.Kind())
	}
	for axis, n := range grid {
		if n == 0 || n > limits.MaxWorkgroupsPerDimension {
			return fmt.Errorf("%w: grid %v axis %d outside [1, %d]", ErrDispatch, grid, axis, limits.MaxWorkgroupsPerDimension)
		}
	}
	return nil
}
