package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/backend/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel/shader"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Variable names the kernel binds its resources to.
const (
	dataVarName   = "data"
	paramsVarName = "params"
)

type wgpuArray struct {
	provider bind_group_provider.BindGroupProvider
	kind     common.ElementKind
	length   int
	released bool
}

var _ Array = &wgpuArray{}

func (a *wgpuArray) Label() string            { return a.provider.Label() }
func (a *wgpuArray) Len() int                 { return a.length }
func (a *wgpuArray) Kind() common.ElementKind { return a.kind }
func (a *wgpuArray) Size() uint64             { return uint64(a.length) * common.ElementSize }

func (a *wgpuArray) Release() {
	if a.released {
		return
	}
	a.released = true
	a.provider.Release()
}

// registeredKernel keeps the layouts created for a kernel's pipeline so array bind groups
// can be created against them.
type registeredKernel struct {
	kernel           kernel.Kernel
	module           *wgpu.ShaderModule
	pipelineLayout   *wgpu.PipelineLayout
	bindGroupLayouts []*wgpu.BindGroupLayout
}

type wgpuBackendImpl struct {
	mu     *sync.Mutex
	logger *zap.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	name         string
	limits       Limits
	pollInterval time.Duration
	kernels      map[string]*registeredKernel
	released     bool
}

var _ Backend = &wgpuBackendImpl{}

func newWGPUBackend(cfg *backendConfig) (b Backend, err error) {
	// wgpu-native reports some failures by panicking through the callback bridge.
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("%w: %v", ErrBackendInit, r)
		}
	}()

	w := &wgpuBackendImpl{
		mu:           &sync.Mutex{},
		logger:       cfg.logger,
		instance:     wgpu.CreateInstance(nil),
		pollInterval: cfg.pollInterval,
		kernels:      make(map[string]*registeredKernel),
	}
	if w.instance == nil {
		return nil, fmt.Errorf("%w: could not create WebGPU instance", ErrBackendInit)
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		PowerPreference:      cfg.powerPreference,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("%w: no adapter: %w", ErrBackendInit, err)
	}
	w.adapter = a
	info := a.GetInfo()
	w.name = fmt.Sprintf("%s (%s)", info.Name, info.BackendType)

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: cfg.deviceLabel,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		a.Release()
		w.instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrBackendInit, err)
	}
	w.device = d
	w.queue = d.GetQueue()
	w.limits = Limits{
		MaxStorageBufferBindingSize: limits.MaxStorageBufferBindingSize,
		MaxWorkgroupsPerDimension:   limits.MaxComputeWorkgroupsPerDimension,
	}

	w.logger.Info("wgpu backend ready",
		zap.String("adapter", w.name),
		zap.Bool("fallback", cfg.forceFallbackAdapter),
		zap.Int("max_elements", w.limits.MaxElements()))
	return w, nil
}

func (b *wgpuBackendImpl) Type() BackendType {
	return BackendTypeWGPU
}

func (b *wgpuBackendImpl) Name() string {
	return b.name
}

func (b *wgpuBackendImpl) Limits() Limits {
	return b.limits
}

func (b *wgpuBackendImpl) RegisterKernel(k kernel.Kernel) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return fmt.Errorf("%w: backend: %w", ErrKernelCompile, ErrReleased)
	}
	if reg, ok := b.kernels[k.Key()]; ok {
		if k != reg.kernel {
			k.SetComputePipeline(reg.kernel.Pipeline())
		}
		return nil
	}
	computeShader := k.Shader()
	if computeShader == nil {
		return fmt.Errorf("%w: kernel %s has no compute shader", ErrKernelCompile, k.Key())
	}

	module, err := b.device.CreateShaderModule(computeShader.Module())
	if err != nil {
		return fmt.Errorf("%w: shader module %s: %w", ErrKernelCompile, computeShader.Key(), err)
	}
	reg := &registeredKernel{kernel: k, module: module}

	descriptors := computeShader.BindGroupLayoutDescriptors()
	maxGroup := -1
	for g := range descriptors {
		maxGroup = max(maxGroup, g)
	}
	reg.bindGroupLayouts = make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g, desc := range descriptors {
		desc.Label = fmt.Sprintf("%s group %d", k.Key(), g)
		bgl, bglErr := b.device.CreateBindGroupLayout(&desc)
		if bglErr != nil {
			releaseRegistered(reg)
			return fmt.Errorf("%w: bind group layout for group %d: %w", ErrKernelCompile, g, bglErr)
		}
		reg.bindGroupLayouts[g] = bgl
	}

	reg.pipelineLayout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            k.Key(),
		BindGroupLayouts: reg.bindGroupLayouts,
	})
	if err != nil {
		releaseRegistered(reg)
		return fmt.Errorf("%w: pipeline layout: %w", ErrKernelCompile, err)
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  k.Key() + " Compute Pipeline",
		Layout: reg.pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		releaseRegistered(reg)
		return fmt.Errorf("%w: compute pipeline: %w", ErrKernelCompile, err)
	}
	k.SetComputePipeline(created)
	b.kernels[k.Key()] = reg

	b.logger.Debug("registered kernel", zap.String("kernel", k.Key()), zap.Uint32("lanes", k.Lanes()))
	return nil
}

func (b *wgpuBackendImpl) CreateArray(label string, kind common.ElementKind, data []byte) (Array, error) {
	if err := checkArray(b.limits, kind, data); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil, fmt.Errorf("create %s: %w", label, ErrReleased)
	}

	provider := bind_group_provider.NewBindGroupProvider(label)
	size := uint64(len(data))

	storage, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label + " Storage Buffer",
		Contents: data,
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s storage buffer: %w", label, err)
	}
	provider.SetBuffer(bind_group_provider.BufferRoleData, storage)

	var params sequencer.GPUStageParameters
	uniform, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Params Buffer",
		Size:  uint64(params.Size()),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		provider.Release()
		return nil, fmt.Errorf("create %s params buffer: %w", label, err)
	}
	provider.SetBuffer(bind_group_provider.BufferRoleParams, uniform)

	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Staging Buffer",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		provider.Release()
		return nil, fmt.Errorf("create %s staging buffer: %w", label, err)
	}
	provider.SetBuffer(bind_group_provider.BufferRoleStaging, staging)

	return &wgpuArray{provider: provider, kind: kind, length: len(data) / common.ElementSize}, nil
}

func (b *wgpuBackendImpl) WriteArray(arr Array, data []byte) error {
	a, err := b.array(arr)
	if err != nil {
		return err
	}
	if uint64(len(data)) != a.Size() {
		return fmt.Errorf("write %s: got %d bytes, array holds %d", a.Label(), len(data), a.Size())
	}
	b.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: a.provider,
		Role:     bind_group_provider.BufferRoleData,
		Data:     data,
	}})
	return nil
}

// WriteBuffers queues every write in order on the device queue.
func (b *wgpuBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		buf := w.Provider.Buffer(w.Role)
		if buf == nil {
			continue
		}
		b.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
}

func (b *wgpuBackendImpl) Dispatch(k kernel.Kernel, arr Array, params sequencer.StageParameters, grid [3]uint32) error {
	a, err := b.array(arr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	if err := checkDispatch(b.limits, k, arr, grid); err != nil {
		return err
	}

	b.mu.Lock()
	reg, ok := b.kernels[k.Key()]
	b.mu.Unlock()
	if !ok || reg.kernel.Pipeline() == nil {
		return fmt.Errorf("%w: kernel %s is not registered", ErrDispatch, k.Key())
	}

	bindGroup, err := b.bindGroupFor(reg, a)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	gpuParams := params.GPU()
	b.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: a.provider,
		Role:     bind_group_provider.BufferRoleParams,
		Data:     gpuParams.Marshal(),
	}})

	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: command encoder: %w", ErrDispatch, err)
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(reg.kernel.Pipeline())
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(grid[0], grid[1], grid[2])
	pass.End()
	pass.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("%w: finish: %w", ErrDispatch, err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

// bindGroupFor returns the bind group attaching the array's buffers to a kernel, creating
// it on first use. Buffers are matched to bindings through the shader's variable names.
func (b *wgpuBackendImpl) bindGroupFor(reg *registeredKernel, a *wgpuArray) (*wgpu.BindGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := reg.kernel.Key()
	if bg := a.provider.BindGroup(key); bg != nil {
		return bg, nil
	}

	s := reg.kernel.Shader()
	descriptor := s.BindGroupLayoutDescriptor(0)
	if len(descriptor.Entries) == 0 || len(reg.bindGroupLayouts) == 0 {
		return nil, fmt.Errorf("kernel %s declares no group 0 bindings", key)
	}
	roles, err := bindingRoles(s)
	if err != nil {
		return nil, err
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(descriptor.Entries))
	for _, entry := range descriptor.Entries {
		role, ok := roles[int(entry.Binding)]
		if !ok {
			return nil, fmt.Errorf("kernel %s binding %d (%s) has no array buffer", key, entry.Binding, s.BindGroupVarName(0, int(entry.Binding)))
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  a.provider.Buffer(role),
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}

	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   a.Label() + " " + key + " Bind Group",
		Layout:  reg.bindGroupLayouts[0],
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	a.provider.SetBindGroup(key, bg)
	return bg, nil
}

// bindingRoles maps a kernel's group 0 binding indices to the array buffer roles
// bound to them.
func bindingRoles(s shader.Shader) (map[int]bind_group_provider.BufferRole, error) {
	dataBinding, ok := s.BindGroupFromVarName(0, dataVarName)
	if !ok {
		return nil, fmt.Errorf("kernel %s has no %q binding", s.Key(), dataVarName)
	}
	paramsBinding, ok := s.BindGroupFromVarName(0, paramsVarName)
	if !ok {
		return nil, fmt.Errorf("kernel %s has no %q binding", s.Key(), paramsVarName)
	}
	return map[int]bind_group_provider.BufferRole{
		dataBinding:   bind_group_provider.BufferRoleData,
		paramsBinding: bind_group_provider.BufferRoleParams,
	}, nil
}

func (b *wgpuBackendImpl) Read(ctx context.Context, arr Array) ([]byte, error) {
	a, err := b.array(arr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadback, err)
	}
	storage := a.provider.Buffer(bind_group_provider.BufferRoleData)
	staging := a.provider.Buffer(bind_group_provider.BufferRoleStaging)
	size := a.Size()

	b.mu.Lock()
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: command encoder: %w", ErrReadback, err)
	}
	encoder.CopyBufferToBuffer(storage, 0, staging, 0, size)
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: finish copy: %w", ErrReadback, err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.mu.Unlock()

	var (
		statusMu sync.Mutex
		mapped   bool
		status   wgpu.BufferMapAsyncStatus
	)
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		statusMu.Lock()
		defer statusMu.Unlock()
		status = s
		mapped = true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: map staging buffer: %w", ErrReadback, err)
	}

	done := func() bool {
		statusMu.Lock()
		defer statusMu.Unlock()
		return mapped
	}
	for !done() {
		select {
		case <-ctx.Done():
			staging.Unmap()
			return nil, ctx.Err()
		default:
		}
		b.device.Poll(false, nil)
		if !done() {
			time.Sleep(b.pollInterval)
		}
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("%w: map status %v", ErrReadback, status)
	}

	out := make([]byte, size)
	copy(out, staging.GetMappedRange(0, uint(size)))
	staging.Unmap()
	return out, nil
}

func (b *wgpuBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return
	}
	b.released = true
	for key, reg := range b.kernels {
		reg.kernel.Release()
		releaseRegistered(reg)
		delete(b.kernels, key)
	}
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

func (b *wgpuBackendImpl) array(arr Array) (*wgpuArray, error) {
	a, ok := arr.(*wgpuArray)
	if !ok {
		return nil, fmt.Errorf("array %s was not created by the wgpu backend", arr.Label())
	}
	if a.released {
		return nil, fmt.Errorf("array %s: %w", a.Label(), ErrReleased)
	}
	return a, nil
}

func releaseRegistered(reg *registeredKernel) {
	if reg.pipelineLayout != nil {
		reg.pipelineLayout.Release()
	}
	for _, bgl := range reg.bindGroupLayouts {
		if bgl != nil {
			bgl.Release()
		}
	}
	if reg.module != nil {
		reg.module.Release()
	}
}

// IsUnavailable reports whether err means no WebGPU device could be created on this host.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendInit)
}
