package kernel

import "github.com/Carmen-Shannon/oxy-sort/engine/kernel/shader"

// KernelBuilderOption is a functional option applied to a kernel during construction via NewKernel.
type KernelBuilderOption func(*kernel)

// WithComputeShader sets the compute shader the kernel dispatches.
//
// Parameters:
//   - s: the parsed compute shader
//
// Returns:
//   - KernelBuilderOption: a function that applies the compute shader option to a kernel
func WithComputeShader(s shader.Shader) KernelBuilderOption {
	return func(k *kernel) {
		k.computeShader = s
	}
}

// WithInvocation sets the host emulation of one kernel invocation.
//
// Parameters:
//   - fn: the host invocation matching the shader's semantics
//
// Returns:
//   - KernelBuilderOption: a function that applies the invocation option to a kernel
func WithInvocation(fn Invocation) KernelBuilderOption {
	return func(k *kernel) {
		k.invocation = fn
	}
}
