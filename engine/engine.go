package engine

import (
	"context"
	"fmt"

	"github.com/wippyai/draco-worker/resource"
)

// GeometryType is the kind of geometry a compressed buffer encodes.
type GeometryType int32

const (
	InvalidGeometryType GeometryType = -1
	PointCloud          GeometryType = 0
	TriangularMesh      GeometryType = 1
)

func (g GeometryType) String() string {
	switch g {
	case PointCloud:
		return "POINT_CLOUD"
	case TriangularMesh:
		return "TRIANGULAR_MESH"
	case InvalidGeometryType:
		return "INVALID_GEOMETRY_TYPE"
	default:
		return "UNKNOWN_GEOMETRY_TYPE"
	}
}

// AttributeType is the semantic class of an attribute inside the engine.
type AttributeType int32

const (
	Position AttributeType = 0
	Normal   AttributeType = 1
	Color    AttributeType = 2
	TexCoord AttributeType = 3
	Generic  AttributeType = 4
)

// SemanticAttributeTypes are the well-known classes whose transforms can
// be deferred to the shader.
var SemanticAttributeTypes = []AttributeType{Position, Normal, Color, TexCoord}

func (a AttributeType) String() string {
	switch a {
	case Position:
		return "POSITION"
	case Normal:
		return "NORMAL"
	case Color:
		return "COLOR"
	case TexCoord:
		return "TEX_COORD"
	case Generic:
		return "GENERIC"
	default:
		return "INVALID"
	}
}

// DataType is the engine's source numeric datatype code for an attribute.
type DataType int32

const (
	DTInvalid DataType = 0
	DTInt8    DataType = 1
	DTUint8   DataType = 2
	DTInt16   DataType = 3
	DTUint16  DataType = 4
	DTInt32   DataType = 5
	DTUint32  DataType = 6
	DTInt64   DataType = 7
	DTUint64  DataType = 8
	DTFloat32 DataType = 9
	DTFloat64 DataType = 10
	DTBool    DataType = 11
)

func (d DataType) String() string {
	switch d {
	case DTInt8:
		return "DT_INT8"
	case DTUint8:
		return "DT_UINT8"
	case DTInt16:
		return "DT_INT16"
	case DTUint16:
		return "DT_UINT16"
	case DTInt32:
		return "DT_INT32"
	case DTUint32:
		return "DT_UINT32"
	case DTInt64:
		return "DT_INT64"
	case DTUint64:
		return "DT_UINT64"
	case DTFloat32:
		return "DT_FLOAT32"
	case DTFloat64:
		return "DT_FLOAT64"
	case DTBool:
		return "DT_BOOL"
	case DTInvalid:
		return "DT_INVALID"
	default:
		return fmt.Sprintf("DataType(%d)", int32(d))
	}
}

// Width returns the element size in bytes of arrays the engine surfaces
// for d. 64-bit types are not surfaced and report 0, like unknown codes.
func (d DataType) Width() int {
	switch d {
	case DTInt8, DTUint8, DTBool:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTUint32, DTFloat32:
		return 4
	default:
		return 0
	}
}

// Status is the outcome of a buffer to mesh decode.
type Status struct {
	Message string
	OK      bool
}

// Module is one instantiated decoding engine. It allocates every
// engine-side object; each object must be released by its owner.
type Module interface {
	NewDecoder(ctx context.Context) (Decoder, error)
	// NewBuffer wraps the first byteLength bytes of data.
	NewBuffer(ctx context.Context, data []byte, byteLength int) (Buffer, error)
	NewMesh(ctx context.Context) (Mesh, error)
	// NewArray allocates an engine typed array. Only DTInt8, DTUint8,
	// DTInt16, DTUint16, DTInt32, DTUint32 and DTFloat32 are valid.
	NewArray(ctx context.Context, dt DataType) (Array, error)
	NewQuantizationTransform(ctx context.Context) (QuantizationTransform, error)
	NewOctahedronTransform(ctx context.Context) (OctahedronTransform, error)
	Close(ctx context.Context) error
}

// Decoder is an engine decoder object. It may be reused across buffers.
type Decoder interface {
	resource.Releaser
	// SkipAttributeTransform keeps attributes of class t in their
	// transformed (quantized) domain on every later decode.
	SkipAttributeTransform(ctx context.Context, t AttributeType) error
	EncodedGeometryType(ctx context.Context, buf Buffer) (GeometryType, error)
	DecodeBufferToMesh(ctx context.Context, buf Buffer, mesh Mesh) (Status, error)
	// FaceFromMesh writes the three point indices of face into out.
	FaceFromMesh(ctx context.Context, mesh Mesh, face int, out Array) (bool, error)
	// AttributeByUniqueID returns nil if the mesh has no such attribute.
	// The attribute is owned by the mesh and is not released separately.
	AttributeByUniqueID(ctx context.Context, mesh Mesh, id int) (Attribute, error)
	// AttributeForAllPoints fills out with numPoints*numComponents values
	// converted to out's datatype.
	AttributeForAllPoints(ctx context.Context, mesh Mesh, attr Attribute, out Array) (bool, error)
}

// Buffer is an engine-side view over compressed bytes.
type Buffer interface {
	resource.Releaser
}

// Mesh is a decoded mesh.
type Mesh interface {
	resource.Releaser
	// Valid reports whether the mesh is backed by a live engine object.
	Valid() bool
	NumPoints(ctx context.Context) (int, error)
	NumFaces(ctx context.Context) (int, error)
}

// Attribute is a read-only view of one mesh attribute.
type Attribute interface {
	NumComponents(ctx context.Context) (int, error)
	ByteOffset(ctx context.Context) (int, error)
	DataType(ctx context.Context) (DataType, error)
	Normalized(ctx context.Context) (bool, error)
}

// Array is an engine typed array.
type Array interface {
	resource.Releaser
	DataType() DataType
	Len(ctx context.Context) (int, error)
	// Bytes copies the array contents out as little-endian bytes.
	Bytes(ctx context.Context) ([]byte, error)
}

// QuantizationTransform probes an attribute for linear quantization.
type QuantizationTransform interface {
	resource.Releaser
	InitFromAttribute(ctx context.Context, attr Attribute) (bool, error)
	QuantizationBits(ctx context.Context) (int, error)
	MinValue(ctx context.Context, component int) (float32, error)
	Range(ctx context.Context) (float32, error)
}

// OctahedronTransform probes an attribute for octahedral encoding.
type OctahedronTransform interface {
	resource.Releaser
	InitFromAttribute(ctx context.Context, attr Attribute) (bool, error)
	QuantizationBits(ctx context.Context) (int, error)
}
