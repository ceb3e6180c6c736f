// pre_processor.go implements the Oxy WGSL kernel pre-processor. It scans kernel
// source for @oxy: annotations and replaces them with injected struct source, generated
// bind group declarations, or the compute entry point attribute.
//
// The pre-processor is configured with the element kind and the workgroup size of the
// kernel being built, so one WGSL template can be specialised for every element type
// and every group capacity.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
)

// WorkgroupLanesConst is the module-scope WGSL constant emitted by @oxy:workgroup holding
// the lane count, so kernels can flatten a 2-D grid into a linear invocation index.
const WorkgroupLanesConst = "WORKGROUP_LANES"

// registryEntry pairs a WGSL struct source string with the resolved WGSL type name
// used in generated @group/@binding declarations.
type registryEntry struct {
	// Source is the raw WGSL struct definition text injected by @oxy:include. Empty for scalar types.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations (e.g. "StageParams", "f32").
	Type string
}

type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string
	workgroupSize        uint32

	// declarations is reset at the start of each Process call.
	declarations []Annotation
}

// PreProcessor processes raw WGSL kernel source containing @oxy: annotations.
type PreProcessor interface {
	// Process replaces every @oxy: annotation in source with its WGSL output.
	// @oxy:include lines become the registered struct source, @oxy:group lines become
	// @group/@binding declarations and @oxy:workgroup lines become the compute stage
	// attribute with the configured workgroup size.
	//
	// Parameters:
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error if any annotation is malformed or references an unknown type
	Process(source string) (string, error)

	// Declarations returns the group annotations collected during the most recent Process call, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor that resolves the "element" type to kind and
// emits workgroupSize lanes for @oxy:workgroup.
//
// Parameters:
//   - kind: the element kind the kernel operates on
//   - workgroupSize: the number of invocations per workgroup
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(kind common.ElementKind, workgroupSize uint32) PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgStageParams: {Source: sequencer.GPUStageParamsSource, Type: "StageParams"},
			AnnotationArgElement:     {Type: kind.WGSLType()},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
		workgroupSize: workgroupSize,
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok || entry.Source == "" {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", a.Line, a.Args[0])
			}
			out = append(out, entry.Source)
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			var wgslType string
			if inner, ok := strings.CutPrefix(string(a.Args[2]), "array<"); ok {
				entry := p.structRegistry[AnnotationArg(strings.TrimSuffix(inner, ">"))]
				wgslType = fmt.Sprintf("array<%s>", entry.Type)
			} else {
				wgslType = p.structRegistry[a.Args[2]].Type
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeWorkgroup:
			if p.workgroupSize == 0 {
				return "", fmt.Errorf("line %d: @oxy:workgroup used without a configured workgroup size", a.Line)
			}
			out = append(out,
				fmt.Sprintf("const %s: u32 = %du;", WorkgroupLanesConst, p.workgroupSize),
				fmt.Sprintf("@compute @workgroup_size(%d)", p.workgroupSize),
			)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", a.Line, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
