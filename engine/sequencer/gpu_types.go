package sequencer

import (
	_ "embed"
	"encoding/binary"
	"unsafe"
)

// GPUStageParamsSource is the canonical WGSL definition of the StageParams struct.
// Matches GPUStageParameters layout exactly (16 bytes, uniform aligned).
//
//go:embed assets/stage_params.wgsl
var GPUStageParamsSource string

// GPUStageParameters is the GPU-aligned representation of the stage parameter uniform.
// Size: 16 bytes (uniform buffers require 16 byte struct alignment).
type GPUStageParameters struct {
	LogLen       uint32 // offset  0
	LogGroupInit uint32 // offset  4
	LogGroupCurr uint32 // offset  8
	_pad         uint32 // offset 12: padding to 16 bytes
}

// Size returns the size of the GPUStageParameters struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUStageParameters) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUStageParameters struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUStageParameters) Marshal() []byte {
	buf := make([]byte, g.Size())
	binary.LittleEndian.PutUint32(buf[0:], g.LogLen)
	binary.LittleEndian.PutUint32(buf[4:], g.LogGroupInit)
	binary.LittleEndian.PutUint32(buf[8:], g.LogGroupCurr)
	binary.LittleEndian.PutUint32(buf[12:], 0) // _pad
	return buf
}
