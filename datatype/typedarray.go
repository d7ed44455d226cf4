package datatype

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// TypedArray is a flat numeric buffer ready for upload.
type TypedArray interface {
	Datatype() ComponentDatatype
	Len() int
	// At returns element i widened to float64, for inspection.
	At(i int) float64
	// Bytes returns the little-endian encoding of the elements.
	Bytes() []byte
}

// IndexArray is a TypedArray of unsigned vertex indices.
type IndexArray interface {
	TypedArray
	Index(i int) uint32
	SetIndex(i int, v uint32)
}

type (
	Int8Array    []int8
	Uint8Array   []uint8
	Int16Array   []int16
	Uint16Array  []uint16
	Int32Array   []int32
	Uint32Array  []uint32
	Float32Array []float32
	Float64Array []float64
)

// Number is any element type a typed array can hold.
type Number interface {
	constraints.Integer | constraints.Float
}

// Convert copies src into a new slice of D using Go conversion rules:
// integers narrow to their low bits, floats round to the nearest
// representable value.
func Convert[D, S Number](src []S) []D {
	dst := make([]D, len(src))
	for i, v := range src {
		dst[i] = D(v)
	}
	return dst
}

func (a Int8Array) Datatype() ComponentDatatype    { return Byte }
func (a Uint8Array) Datatype() ComponentDatatype   { return UnsignedByte }
func (a Int16Array) Datatype() ComponentDatatype   { return Short }
func (a Uint16Array) Datatype() ComponentDatatype  { return UnsignedShort }
func (a Int32Array) Datatype() ComponentDatatype   { return Int }
func (a Uint32Array) Datatype() ComponentDatatype  { return UnsignedInt }
func (a Float32Array) Datatype() ComponentDatatype { return Float }
func (a Float64Array) Datatype() ComponentDatatype { return Double }

func (a Int8Array) Len() int    { return len(a) }
func (a Uint8Array) Len() int   { return len(a) }
func (a Int16Array) Len() int   { return len(a) }
func (a Uint16Array) Len() int  { return len(a) }
func (a Int32Array) Len() int   { return len(a) }
func (a Uint32Array) Len() int  { return len(a) }
func (a Float32Array) Len() int { return len(a) }
func (a Float64Array) Len() int { return len(a) }

func (a Int8Array) At(i int) float64    { return float64(a[i]) }
func (a Uint8Array) At(i int) float64   { return float64(a[i]) }
func (a Int16Array) At(i int) float64   { return float64(a[i]) }
func (a Uint16Array) At(i int) float64  { return float64(a[i]) }
func (a Int32Array) At(i int) float64   { return float64(a[i]) }
func (a Uint32Array) At(i int) float64  { return float64(a[i]) }
func (a Float32Array) At(i int) float64 { return float64(a[i]) }
func (a Float64Array) At(i int) float64 { return a[i] }

func (a Uint16Array) Index(i int) uint32       { return uint32(a[i]) }
func (a Uint16Array) SetIndex(i int, v uint32) { a[i] = uint16(v) }
func (a Uint32Array) Index(i int) uint32       { return a[i] }
func (a Uint32Array) SetIndex(i int, v uint32) { a[i] = v }

func (a Int8Array) Bytes() []byte {
	out := make([]byte, len(a))
	for i, v := range a {
		out[i] = byte(v)
	}
	return out
}

func (a Uint8Array) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a)
	return out
}

func (a Int16Array) Bytes() []byte {
	out := make([]byte, 2*len(a))
	for i, v := range a {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func (a Uint16Array) Bytes() []byte {
	out := make([]byte, 2*len(a))
	for i, v := range a {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func (a Int32Array) Bytes() []byte {
	out := make([]byte, 4*len(a))
	for i, v := range a {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func (a Uint32Array) Bytes() []byte {
	out := make([]byte, 4*len(a))
	for i, v := range a {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

func (a Float32Array) Bytes() []byte {
	out := make([]byte, 4*len(a))
	for i, v := range a {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func (a Float64Array) Bytes() []byte {
	out := make([]byte, 8*len(a))
	for i, v := range a {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}

// FromBytes decodes little-endian data into a typed array of datatype c.
func FromBytes(c ComponentDatatype, data []byte) (TypedArray, error) {
	size := c.SizeInBytes()
	if size == 0 {
		return nil, fmt.Errorf("unknown component datatype %d", uint16(c))
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s elements", len(data), c)
	}
	n := len(data) / size

	switch c {
	case Byte:
		out := make(Int8Array, n)
		for i := range out {
			out[i] = int8(data[i])
		}
		return out, nil
	case UnsignedByte:
		out := make(Uint8Array, n)
		copy(out, data)
		return out, nil
	case Short:
		out := make(Int16Array, n)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
		}
		return out, nil
	case UnsignedShort:
		out := make(Uint16Array, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(data[2*i:])
		}
		return out, nil
	case Int:
		out := make(Int32Array, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return out, nil
	case UnsignedInt:
		out := make(Uint32Array, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[4*i:])
		}
		return out, nil
	case Float:
		out := make(Float32Array, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return out, nil
	default:
		out := make(Float64Array, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
		return out, nil
	}
}
