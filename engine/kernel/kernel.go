package kernel

import (
	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel/shader"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
	"github.com/cogentcore/webgpu/wgpu"
)

// Invocation executes a single kernel invocation on host memory. It is the host-side
// equivalent of the compute entry point and is used by backends that emulate the device.
//
// Parameters:
//   - kind: the element kind of data
//   - data: the encoded element array, mutated in place
//   - params: the stage parameters bound to the dispatch
//   - index: the flattened global invocation index
type Invocation func(kind common.ElementKind, data []byte, params sequencer.StageParameters, index uint32)

// kernel is the implementation of the Kernel interface.
type kernel struct {
	key           string
	computeShader shader.Shader
	invocation    Invocation

	// computePipeline is set by a device backend once the kernel is registered, nil for host execution.
	computePipeline *wgpu.ComputePipeline
}

// Kernel defines a compiled-or-compilable compute program: its specialised shader, the
// host emulation of one invocation, and the device pipeline created for it by a backend.
type Kernel interface {
	// Key returns the unique key associated with this kernel, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this kernel
	Key() string

	// Shader returns the compute shader this kernel runs.
	//
	// Returns:
	//   - shader.Shader: the compute shader, or nil if not set
	Shader() shader.Shader

	// ElementKind returns the element kind the kernel was specialised for.
	//
	// Returns:
	//   - common.ElementKind: the element kind of the kernel's data binding
	ElementKind() common.ElementKind

	// Lanes returns the number of invocations per workgroup along x.
	//
	// Returns:
	//   - uint32: the workgroup lane count
	Lanes() uint32

	// GroupCapacityLog returns log2 of Lanes, the largest array exponent one workgroup covers.
	//
	// Returns:
	//   - uint32: log2 of the lane count
	GroupCapacityLog() uint32

	// Invoke runs one invocation of the kernel on host memory. It is a no-op when the
	// kernel was built without a host invocation.
	//
	// Parameters:
	//   - data: the encoded element array, mutated in place
	//   - params: the stage parameters of the dispatch
	//   - index: the flattened global invocation index
	Invoke(data []byte, params sequencer.StageParameters, index uint32)

	// HostExecutable reports whether the kernel carries a host invocation.
	//
	// Returns:
	//   - bool: true if Invoke performs work
	HostExecutable() bool

	// Pipeline returns the device compute pipeline, or nil if no device backend registered the kernel.
	//
	// Returns:
	//   - *wgpu.ComputePipeline: the created pipeline
	Pipeline() *wgpu.ComputePipeline

	// SetComputePipeline stores the device compute pipeline after creation by a backend.
	//
	// Parameters:
	//   - p: the created compute pipeline
	SetComputePipeline(p *wgpu.ComputePipeline)

	// Release releases the device pipeline if one was created.
	Release()
}

var _ Kernel = &kernel{}

// NewKernel creates a new Kernel with the provided options. A compute shader must be set
// with WithComputeShader before the kernel can be registered with a device backend.
//
// Parameters:
//   - key: the unique identifier for the kernel
//   - options: functional options configuring the kernel
//
// Returns:
//   - Kernel: the configured kernel
func NewKernel(key string, options ...KernelBuilderOption) Kernel {
	k := &kernel{key: key}
	for _, opt := range options {
		opt(k)
	}
	return k
}

func (k *kernel) Key() string {
	return k.key
}

func (k *kernel) Shader() shader.Shader {
	return k.computeShader
}

func (k *kernel) ElementKind() common.ElementKind {
	if k.computeShader == nil {
		return common.ElementKindFloat32
	}
	return k.computeShader.ElementKind()
}

func (k *kernel) Lanes() uint32 {
	if k.computeShader == nil {
		return 1
	}
	return k.computeShader.WorkgroupSize()[0]
}

func (k *kernel) GroupCapacityLog() uint32 {
	return common.Log2(int(k.Lanes()))
}

func (k *kernel) Invoke(data []byte, params sequencer.StageParameters, index uint32) {
	if k.invocation == nil {
		return
	}
	k.invocation(k.ElementKind(), data, params, index)
}

func (k *kernel) HostExecutable() bool {
	return k.invocation != nil
}

func (k *kernel) Pipeline() *wgpu.ComputePipeline {
	return k.computePipeline
}

func (k *kernel) SetComputePipeline(p *wgpu.ComputePipeline) {
	k.computePipeline = p
}

func (k *kernel) Release() {
	if k.computePipeline != nil {
		k.computePipeline.Release()
		k.computePipeline = nil
	}
}
