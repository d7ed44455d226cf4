package datatype

import "fmt"

// ComponentDatatype is the element type of a vertex buffer, using the
// WebGL enumeration values renderers upload with.
type ComponentDatatype uint16

const (
	Byte          ComponentDatatype = 5120
	UnsignedByte  ComponentDatatype = 5121
	Short         ComponentDatatype = 5122
	UnsignedShort ComponentDatatype = 5123
	Int           ComponentDatatype = 5124
	UnsignedInt   ComponentDatatype = 5125
	Float         ComponentDatatype = 5126
	Double        ComponentDatatype = 5130
)

// SizeInBytes returns the width of one element, or 0 for unknown values.
func (c ComponentDatatype) SizeInBytes() int {
	switch c {
	case Byte, UnsignedByte:
		return 1
	case Short, UnsignedShort:
		return 2
	case Int, UnsignedInt, Float:
		return 4
	case Double:
		return 8
	default:
		return 0
	}
}

// Valid reports whether c is a known datatype.
func (c ComponentDatatype) Valid() bool {
	return c.SizeInBytes() != 0
}

func (c ComponentDatatype) String() string {
	switch c {
	case Byte:
		return "BYTE"
	case UnsignedByte:
		return "UNSIGNED_BYTE"
	case Short:
		return "SHORT"
	case UnsignedShort:
		return "UNSIGNED_SHORT"
	case Int:
		return "INT"
	case UnsignedInt:
		return "UNSIGNED_INT"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	default:
		return fmt.Sprintf("ComponentDatatype(%d)", uint16(c))
	}
}

// FromTypedArray returns the datatype tag of a typed array.
func FromTypedArray(a TypedArray) ComponentDatatype {
	return a.Datatype()
}

// sixtyFourKilobytes is the largest vertex count 16-bit indices can
// address: exactly 65536 points still fit, since the largest index is
// 65535. Cesium's IndexDatatype switches to 32 bits at numPoints >= 64K;
// this one switches only above it.
const sixtyFourKilobytes = 64 * 1024

// IndexDatatypeFor returns the smallest index type able to address
// numPoints vertices, i.e. to represent numPoints-1.
func IndexDatatypeFor(numPoints int) ComponentDatatype {
	if numPoints > sixtyFourKilobytes {
		return UnsignedInt
	}
	return UnsignedShort
}

// NewIndexArray allocates an index array of length entries sized for numPoints.
func NewIndexArray(numPoints, length int) IndexArray {
	if IndexDatatypeFor(numPoints) == UnsignedInt {
		return make(Uint32Array, length)
	}
	return make(Uint16Array, length)
}
