package bind_group_provider

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferRole identifies the purpose of a buffer held by a provider.
type BufferRole int

const (
	// BufferRoleData is the storage buffer holding the element array.
	BufferRoleData BufferRole = iota
	// BufferRoleParams is the uniform buffer holding the stage parameter block.
	BufferRoleParams
	// BufferRoleStaging is the map-readable buffer used to download the element array.
	BufferRoleStaging
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	// The following fields are GPU allocated resources and must be released when no longer needed.

	// buffers holds the GPU buffers created for this provider, keyed by role.
	buffers map[BufferRole]*wgpu.Buffer
	// bindGroups holds one bind group per kernel key, created lazily against that kernel's layout.
	bindGroups map[string]*wgpu.BindGroup
}

// BindGroupProvider owns the GPU resources backing one device array: its storage, parameter
// and staging buffers plus the bind groups that attach them to each registered kernel.
//
// Usage pattern:
//  1. Backend creates a provider and stores the buffers via SetBuffer()
//  2. Backend creates a bind group for a kernel the first time the array is dispatched with it
//  3. Backend looks up BindGroup(kernelKey) for every later dispatch
//  4. Release() frees every buffer and bind group
type BindGroupProvider interface {
	// Release releases every GPU resource held by this provider.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the bind group created for a kernel, or nil if none exists yet.
	//
	// Parameters:
	//   - kernelKey: the key of the kernel the bind group was created for
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group or nil
	BindGroup(kernelKey string) *wgpu.BindGroup

	// SetBindGroup stores the bind group created for a kernel.
	//
	// Parameters:
	//   - kernelKey: the key of the kernel the bind group was created for
	//   - bg: the created bind group
	SetBindGroup(kernelKey string, bg *wgpu.BindGroup)

	// Buffer returns the buffer stored for a role.
	// Returns nil if GPU resources have not been initialized.
	//
	// Parameters:
	//   - role: the buffer role
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer or nil
	Buffer(role BufferRole) *wgpu.Buffer

	// Buffers returns all buffers held by this provider keyed by role.
	//
	// Returns:
	//   - map[BufferRole]*wgpu.Buffer: a map of buffers keyed by role
	Buffers() map[BufferRole]*wgpu.Buffer

	// SetBuffer stores a buffer for a role, replacing any previous buffer for it.
	//
	// Parameters:
	//   - role: the buffer role
	//   - buf: the created buffer
	SetBuffer(role BufferRole, buf *wgpu.Buffer)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: the debug label used for every resource the provider owns
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:      label,
		buffers:    make(map[BufferRole]*wgpu.Buffer),
		bindGroups: make(map[string]*wgpu.BindGroup),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup(kernelKey string) *wgpu.BindGroup {
	return p.bindGroups[kernelKey]
}

func (p *bindGroupProvider) SetBindGroup(kernelKey string, bg *wgpu.BindGroup) {
	if old := p.bindGroups[kernelKey]; old != nil && old != bg {
		old.Release()
	}
	p.bindGroups[kernelKey] = bg
}

func (p *bindGroupProvider) Buffer(role BufferRole) *wgpu.Buffer {
	return p.buffers[role]
}

func (p *bindGroupProvider) Buffers() map[BufferRole]*wgpu.Buffer {
	return p.buffers
}

func (p *bindGroupProvider) SetBuffer(role BufferRole, buf *wgpu.Buffer) {
	if old := p.buffers[role]; old != nil && old != buf {
		old.Release()
	}
	p.buffers[role] = buf
}

func (p *bindGroupProvider) Release() {
	for key, bg := range p.bindGroups {
		if bg != nil {
			bg.Release()
		}
		delete(p.bindGroups, key)
	}
	for role, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, role)
	}
}
