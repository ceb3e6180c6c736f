// package common contains common types that are used throughout this module. They are not interface-wrapped structs, just plain types that express
// the element data-types the sorter can move between the host and the device.
package common

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Element is the constraint satisfied by every host-side value type that can be sorted.
// All members are 4-byte scalars with a direct WGSL counterpart.
type Element interface {
	~float32 | ~uint32 | ~int32
}

// ElementKind identifies the scalar type stored in a device array.
type ElementKind int

const (
	// ElementKindFloat32 stores IEEE-754 single precision values (WGSL f32).
	ElementKindFloat32 ElementKind = iota

	// ElementKindUint32 stores unsigned 32-bit integers (WGSL u32).
	ElementKindUint32

	// ElementKindInt32 stores signed 32-bit integers (WGSL i32).
	ElementKindInt32
)

// ElementSize is the byte width of every supported element kind.
const ElementSize = 4

func (k ElementKind) String() string {
	switch k {
	case ElementKindFloat32:
		return "f32"
	case ElementKindUint32:
		return "u32"
	case ElementKindInt32:
		return "i32"
	default:
		return fmt.Sprintf("ElementKind(%d)", int(k))
	}
}

// WGSLType returns the WGSL scalar type name used for arrays of this kind.
//
// Returns:
//   - string: "f32", "u32" or "i32"
func (k ElementKind) WGSLType() string {
	return k.String()
}

// Valid reports whether k is one of the supported element kinds.
func (k ElementKind) Valid() bool {
	return k >= ElementKindFloat32 && k <= ElementKindInt32
}

// Greater reports whether the encoded element a orders after the encoded element b.
// Both slices must hold at least ElementSize little-endian bytes. Float NaN compares
// false in both directions, matching the device comparison.
//
// Parameters:
//   - a: the encoded left operand
//   - b: the encoded right operand
//
// Returns:
//   - bool: true if a > b for this element kind
func (k ElementKind) Greater(a, b []byte) bool {
	ua := binary.LittleEndian.Uint32(a)
	ub := binary.LittleEndian.Uint32(b)
	switch k {
	case ElementKindFloat32:
		return math.Float32frombits(ua) > math.Float32frombits(ub)
	case ElementKindInt32:
		return int32(ua) > int32(ub)
	default:
		return ua > ub
	}
}

// ParseElementKind resolves a textual element type name ("f32", "float32", "u32",
// "uint32", "i32", "int32") to an ElementKind.
//
// Parameters:
//   - s: the case-insensitive type name
//
// Returns:
//   - ElementKind: the matching kind
//   - error: an error if the name is not recognised
func ParseElementKind(s string) (ElementKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f32", "float32", "float":
		return ElementKindFloat32, nil
	case "u32", "uint32", "uint":
		return ElementKindUint32, nil
	case "i32", "int32", "int":
		return ElementKindInt32, nil
	default:
		return 0, fmt.Errorf("unknown element type %q", s)
	}
}

// ElementKindOf returns the ElementKind matching the underlying type of T.
func ElementKindOf[T Element]() ElementKind {
	var zero T
	switch reflect.TypeOf(zero).Kind() {
	case reflect.Float32:
		return ElementKindFloat32
	case reflect.Int32:
		return ElementKindInt32
	default:
		return ElementKindUint32
	}
}

// EncodeElements serializes data into a freshly allocated little-endian byte buffer
// suitable for GPU upload. The result never aliases data.
//
// Parameters:
//   - data: the host values to encode
//
// Returns:
//   - []byte: len(data)*ElementSize bytes
func EncodeElements[T Element](data []T) []byte {
	kind := ElementKindOf[T]()
	buf := make([]byte, len(data)*ElementSize)
	for i, v := range data {
		var bits uint32
		switch kind {
		case ElementKindFloat32:
			bits = math.Float32bits(float32(v))
		case ElementKindInt32:
			bits = uint32(int32(v))
		default:
			bits = uint32(v)
		}
		binary.LittleEndian.PutUint32(buf[i*ElementSize:], bits)
	}
	return buf
}

// DecodeElements deserializes little-endian element bytes into dst.
// dst must hold at least len(src)/ElementSize values.
//
// Parameters:
//   - dst: the destination slice
//   - src: the encoded bytes
//
// Returns:
//   - error: an error if src is not a whole number of elements or dst is too short
func DecodeElements[T Element](dst []T, src []byte) error {
	if len(src)%ElementSize != 0 {
		return fmt.Errorf("decode: %d bytes is not a multiple of the element size %d", len(src), ElementSize)
	}
	n := len(src) / ElementSize
	if len(dst) < n {
		return fmt.Errorf("decode: destination holds %d elements, need %d", len(dst), n)
	}
	kind := ElementKindOf[T]()
	for i := range n {
		bits := binary.LittleEndian.Uint32(src[i*ElementSize:])
		switch kind {
		case ElementKindFloat32:
			dst[i] = T(math.Float32frombits(bits))
		case ElementKindInt32:
			dst[i] = T(int32(bits))
		default:
			dst[i] = T(bits)
		}
	}
	return nil
}
