package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBuffer sets a buffer for a role.
//
// Parameters:
//   - role: the role of this buffer
//   - buf: the buffer to associate with the role
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified role
func WithBuffer(role BufferRole, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[role] = buf
	}
}

// WithBindGroup sets the bind group used with a kernel.
//
// Parameters:
//   - kernelKey: the key of the kernel the bind group belongs to
//   - bg: the bind group
//
// Returns:
//   - BindGroupProviderOption: a function that sets the bind group for the kernel
func WithBindGroup(kernelKey string, bg *wgpu.BindGroup) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindGroups[kernelKey] = bg
	}
}
