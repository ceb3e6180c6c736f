package kernel

import (
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel/shader"
	"github.com/Carmen-Shannon/oxy-sort/engine/sequencer"
)

// BitonicSource is the WGSL template of the bitonic compare-exchange kernel.
//
//go:embed assets/bitonic.wgsl
var BitonicSource string

// DefaultGroupCapacityLog is log2 of the default workgroup lane count (256).
const DefaultGroupCapacityLog uint32 = 8

// MaxGroupCapacityLog bounds the lane count to WebGPU's default maxComputeInvocationsPerWorkgroup (256).
const MaxGroupCapacityLog uint32 = 8

// BitonicKey returns the cache key of the bitonic kernel for an element kind and group capacity.
func BitonicKey(kind common.ElementKind, groupCapacityLog uint32) string {
	return fmt.Sprintf("bitonic_%s_%d", kind, common.Pow2(groupCapacityLog))
}

// NewBitonicKernel builds the bitonic compare-exchange kernel specialised for an element
// kind with 2^groupCapacityLog lanes per workgroup.
//
// Parameters:
//   - kind: the element kind of the sorted array
//   - groupCapacityLog: log2 of the workgroup lane count, at most MaxGroupCapacityLog
//
// Returns:
//   - Kernel: the kernel with its shader and host invocation set
//   - error: an error if the lane count is out of range or the shader fails to parse
func NewBitonicKernel(kind common.ElementKind, groupCapacityLog uint32) (Kernel, error) {
	if groupCapacityLog > MaxGroupCapacityLog {
		return nil, fmt.Errorf("kernel: group capacity log %d exceeds %d", groupCapacityLog, MaxGroupCapacityLog)
	}
	key := BitonicKey(kind, groupCapacityLog)
	s, err := shader.NewShader(key,
		shader.WithSource(BitonicSource),
		shader.WithElementKind(kind),
		shader.WithWorkgroupLanes(uint32(common.Pow2(groupCapacityLog))),
	)
	if err != nil {
		return nil, err
	}
	return NewKernel(key, WithComputeShader(s), WithInvocation(BitonicInvocation)), nil
}

// BitonicInvocation is the host equivalent of one bitonic kernel invocation. Invocations
// past the array end, and invocations owning the upper half of their group, do nothing.
func BitonicInvocation(kind common.ElementKind, data []byte, params sequencer.StageParameters, index uint32) {
	n := uint32(1) << params.LogLen
	if index >= n || params.LogGroupCurr >= params.LogLen {
		return
	}

	size := uint32(1) << params.GroupSizeLog()
	half := size >> 1
	pos := index & (size - 1)
	if pos >= half {
		return
	}

	partner := index + half
	if params.Flip() {
		partner = index - pos + (size - 1 - pos)
	}

	a := data[index*common.ElementSize : (index+1)*common.ElementSize]
	b := data[partner*common.ElementSize : (partner+1)*common.ElementSize]
	if kind.Greater(a, b) {
		var tmp [common.ElementSize]byte
		copy(tmp[:], a)
		copy(a, b)
		copy(b, tmp[:])
	}
}
