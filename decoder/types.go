package decoder

import (
	"github.com/wippyai/draco-worker/datatype"
	"github.com/wippyai/draco-worker/errors"
)

// Job is one decode request.
type Job struct {
	// ID identifies the job in logs.
	ID string

	// Array holds the compressed mesh. Only the first ByteLength bytes
	// are decoded; zero means the whole slice.
	Array      []byte
	ByteLength int

	// CompressedAttributes maps attribute names to engine unique ids.
	CompressedAttributes map[string]int

	// DequantizeInShader keeps POSITION, NORMAL, COLOR and TEX_COORD
	// attributes quantized so they can be reconstructed on the GPU.
	DequantizeInShader bool
}

func (j *Job) byteLength() (int, error) {
	switch {
	case j.ByteLength == 0:
		return len(j.Array), nil
	case j.ByteLength < 0 || j.ByteLength > len(j.Array):
		return 0, errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Value(j.ByteLength).
			Detail("byte length %d outside buffer of %d bytes", j.ByteLength, len(j.Array)).
			Build()
	default:
		return j.ByteLength, nil
	}
}

// QuantizationKind tells the quantization transforms apart.
type QuantizationKind uint8

const (
	QuantizationLinear QuantizationKind = iota + 1
	QuantizationOctahedral
)

func (k QuantizationKind) String() string {
	switch k {
	case QuantizationLinear:
		return "linear"
	case QuantizationOctahedral:
		return "octahedral"
	default:
		return "none"
	}
}

// Quantization describes how to reconstruct the values of a quantized
// attribute. A nil *Quantization means the values are final.
type Quantization struct {
	Kind QuantizationKind
	Bits int

	// MinValues and Range are set for linear quantization only.
	MinValues []float32
	Range     float32
}

// Dequantize reconstructs one linearly quantized component.
func (q *Quantization) Dequantize(component int, encoded uint32) float32 {
	var min float32
	if component >= 0 && component < len(q.MinValues) {
		min = q.MinValues[component]
	}
	return datatype.Dequantize(encoded, q.Bits, min, q.Range)
}

// OctDecode reconstructs a unit vector from one octahedral pair.
func (q *Quantization) OctDecode(x, y uint32) [3]float32 {
	return datatype.OctDecode(x, y, q.Bits)
}

// AttributeData is the vertex layout of a decoded attribute.
type AttributeData struct {
	ComponentsPerAttribute int
	ComponentDatatype      datatype.ComponentDatatype
	ByteOffset             int
	ByteStride             int
	Normalized             bool
	Quantization           *Quantization
}

// Attribute is one decoded attribute array with its layout.
type Attribute struct {
	Array datatype.TypedArray
	Data  AttributeData
}

// IndexArray is the triangle index list of a decoded mesh.
type IndexArray struct {
	TypedArray      datatype.IndexArray
	NumberOfIndices int
}

// Result is the output of one job. It holds no engine references.
type Result struct {
	IndexArray    IndexArray
	AttributeData map[string]*Attribute
}
