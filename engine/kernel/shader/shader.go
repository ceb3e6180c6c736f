package shader

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// shader is the implementation of the Shader interface.
// It holds the pre-processed source and the layout metadata needed for compute pipeline creation.
type shader struct {
	key                        string
	rawSource                  string
	sourcePath                 string
	source                     string
	elementKind                common.ElementKind
	lanes                      uint32
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	workGroupSize              [3]uint32
	entryPoint                 string
	module                     *wgpu.ShaderModuleDescriptor

	pp PreProcessor
}

// Shader defines the interface for a loaded and parsed WGSL compute kernel. It exposes the
// kernel's unique key, processed source, entry point, bind group layout descriptors and
// workgroup size needed for pipeline creation and resource wiring.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the pre-processed WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source code submitted to the device
	Source() string

	// ElementKind returns the element kind the source was specialised for.
	//
	// Returns:
	//   - common.ElementKind: the element kind bound to the "element" annotation type
	ElementKind() common.ElementKind

	// BindGroupLayoutDescriptor retrieves the bind group layout descriptor for a group index.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor for the group, or an empty descriptor if not declared
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors keyed by group index.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the variable name declared at a group and binding index.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or an empty string if not found
	BindGroupVarName(group, binding int) string

	// BindGroupFromVarName retrieves the binding index of a named variable within a group.
	//
	// Parameters:
	//   - group: the bind group index
	//   - varName: the variable name within the group
	//
	// Returns:
	//   - int: the binding index, or -1 if not found
	//   - bool: true if the variable name was found
	BindGroupFromVarName(group int, varName string) (int, bool)

	// EntryPoint returns the compute entry point name.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// WorkgroupSize returns the workgroup size dimensions parsed from the processed source.
	// Defaults to [1, 1, 1] when @workgroup_size is not present.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Module returns the wgpu.ShaderModuleDescriptor built from the processed source.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor

	// Declarations returns the bind group annotations parsed from the raw source.
	//
	// Returns:
	//   - []Annotation: group declarations in source order
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShader creates and parses a new compute Shader. A source must be provided with
// WithSource or WithSourceFromPath. The source is pre-processed with the configured
// element kind and lane count before layouts are parsed.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and lookups
//   - options: functional options configuring the source and specialisation
//
// Returns:
//   - Shader: the parsed shader
//   - error: an error if the source cannot be read, pre-processed, or has no compute entry point
func NewShader(key string, options ...ShaderBuilderOption) (Shader, error) {
	s := &shader{
		key:         key,
		elementKind: common.ElementKindFloat32,
		lanes:       256,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.rawSource == "" && s.sourcePath != "" {
		data, err := os.ReadFile(s.sourcePath)
		if err != nil {
			return nil, fmt.Errorf("shader: failed to read source file %q: %w", s.sourcePath, err)
		}
		s.rawSource = string(data)
	}
	if s.rawSource == "" {
		return nil, fmt.Errorf("shader: %s must have a source provided via WithSource or WithSourceFromPath", key)
	}
	if !s.elementKind.Valid() {
		return nil, fmt.Errorf("shader: %s has invalid element kind %v", key, s.elementKind)
	}

	s.pp = NewPreProcessor(s.elementKind, s.lanes)
	if err := s.parseSource(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) ElementKind() common.ElementKind {
	return s.elementKind
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	if s.bindingVarNames[group] == nil {
		return ""
	}
	return s.bindingVarNames[group][binding]
}

func (s *shader) BindGroupFromVarName(group int, varName string) (int, bool) {
	for binding, name := range s.bindingVarNames[group] {
		if name == varName {
			return binding, true
		}
	}
	return -1, false
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) Declarations() []Annotation {
	return s.pp.Declarations()
}

// parseSource pre-processes the raw source, builds the shader module descriptor and
// extracts the entry point, workgroup size and bind group layouts.
func (s *shader) parseSource() error {
	var err error
	s.source, err = s.pp.Process(s.rawSource)
	if err != nil {
		return fmt.Errorf("shader: failed to pre-process %s: %w", s.key, err)
	}
	s.entryPoint = parseEntryPoint(s.source)
	if s.entryPoint == "" {
		return fmt.Errorf("shader: %s has no @compute entry point", s.key)
	}
	s.module = &wgpu.ShaderModuleDescriptor{
		Label: s.key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.source,
		},
	}
	s.workGroupSize = parseWorkgroupSize(s.source)
	s.bindGroupLayoutDescriptors, s.bindingVarNames = parseBindGroupLayouts(s.source, wgpu.ShaderStageCompute)
	return nil
}
