package enginetest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wippyai/draco-worker/engine"
)

// magic prefixes every container produced by Encode.
var magic = []byte("DRACO\x00ET1")

// notDraco is the status message for input the engine cannot parse.
const notDraco = "Not a Draco file."

// MeshSpec describes the mesh a test container decodes to.
type MeshSpec struct {
	GeometryType engine.GeometryType `json:"geometryType"`
	NumPoints    int                 `json:"numPoints"`
	Faces        [][3]uint32         `json:"faces,omitempty"`
	Attributes   []AttributeSpec     `json:"attributes,omitempty"`
	// DecodeError makes the buffer to mesh decode fail with this message.
	DecodeError string `json:"decodeError,omitempty"`
}

// AttributeSpec describes one attribute of a MeshSpec.
//
// Values holds NumPoints*NumComponents source values. For an attribute
// with a transform they are the encoded integers; the engine applies the
// transform on decode unless the attribute class was skipped.
type AttributeSpec struct {
	UniqueID      int                  `json:"uniqueId"`
	Type          engine.AttributeType `json:"type"`
	DataType      engine.DataType      `json:"dataType"`
	NumComponents int                  `json:"numComponents"`
	ByteOffset    int                  `json:"byteOffset,omitempty"`
	Normalized    bool                 `json:"normalized,omitempty"`
	Values        []float64            `json:"values"`
	Quantization  *QuantizationSpec    `json:"quantization,omitempty"`
	Octahedron    *OctahedronSpec      `json:"octahedron,omitempty"`
}

// QuantizationSpec is a linear quantization transform.
type QuantizationSpec struct {
	Bits      int       `json:"bits"`
	MinValues []float32 `json:"minValues"`
	Range     float32   `json:"range"`
}

// OctahedronSpec is an octahedral normal encoding.
type OctahedronSpec struct {
	Bits int `json:"bits"`
}

// Triangles returns a triangular mesh spec with the given faces.
func Triangles(numPoints int, faces ...[3]uint32) MeshSpec {
	return MeshSpec{
		GeometryType: engine.TriangularMesh,
		NumPoints:    numPoints,
		Faces:        faces,
	}
}

// Quad is the 4 point, 2 face square used throughout the tests.
func Quad() MeshSpec {
	return Triangles(4, [3]uint32{0, 1, 2}, [3]uint32{0, 2, 3})
}

// With returns a copy of s with attrs appended.
func (s MeshSpec) With(attrs ...AttributeSpec) MeshSpec {
	out := s
	out.Attributes = append(append([]AttributeSpec(nil), s.Attributes...), attrs...)
	return out
}

// Encode produces a container the reference engine decodes to spec.
func Encode(spec MeshSpec) []byte {
	body, err := json.Marshal(spec)
	if err != nil {
		panic(fmt.Sprintf("enginetest: encode mesh spec: %v", err))
	}
	return append(append([]byte(nil), magic...), body...)
}

func parse(data []byte) (*MeshSpec, bool) {
	if !bytes.HasPrefix(data, magic) {
		return nil, false
	}
	var spec MeshSpec
	if err := json.Unmarshal(data[len(magic):], &spec); err != nil {
		return nil, false
	}
	return &spec, true
}
