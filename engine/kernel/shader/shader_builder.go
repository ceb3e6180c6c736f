package shader

import "github.com/Carmen-Shannon/oxy-sort/common"

// ShaderBuilderOption is a functional option applied to a shader during construction via NewShader.
type ShaderBuilderOption func(*shader)

// WithSource sets the raw WGSL source of the shader. Takes precedence over WithSourceFromPath.
//
// Parameters:
//   - source: the raw WGSL source, which may contain @oxy: annotations
//
// Returns:
//   - ShaderBuilderOption: a function that applies the source option to a shader
func WithSource(source string) ShaderBuilderOption {
	return func(s *shader) {
		s.rawSource = source
	}
}

// WithSourceFromPath reads the raw WGSL source from a file when the shader is created.
//
// Parameters:
//   - path: the file path to read WGSL source from
//
// Returns:
//   - ShaderBuilderOption: a function that applies the source path option to a shader
func WithSourceFromPath(path string) ShaderBuilderOption {
	return func(s *shader) {
		s.sourcePath = path
	}
}

// WithElementKind sets the element kind the "element" annotation type resolves to.
// Defaults to common.ElementKindFloat32.
//
// Parameters:
//   - kind: the element kind of the data array
//
// Returns:
//   - ShaderBuilderOption: a function that applies the element kind option to a shader
func WithElementKind(kind common.ElementKind) ShaderBuilderOption {
	return func(s *shader) {
		s.elementKind = kind
	}
}

// WithWorkgroupLanes sets the number of invocations emitted by @oxy:workgroup. Defaults to 256.
//
// Parameters:
//   - lanes: invocations per workgroup
//
// Returns:
//   - ShaderBuilderOption: a function that applies the lane count option to a shader
func WithWorkgroupLanes(lanes uint32) ShaderBuilderOption {
	return func(s *shader) {
		s.lanes = lanes
	}
}
