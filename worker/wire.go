package worker

import (
	"encoding/json"

	"github.com/wippyai/draco-worker/datatype"
	"github.com/wippyai/draco-worker/decoder"
)

// message is one inbound protocol line: either the bootstrap message or
// a job.
type message struct {
	WebAssemblyConfig *WebAssemblyConfig `json:"webAssemblyConfig,omitempty"`
	ID                json.Number        `json:"id,omitempty"`
	Parameters        *parameters        `json:"parameters,omitempty"`
}

type bufferView struct {
	ByteLength int `json:"byteLength"`
}

type parameters struct {
	BufferView           bufferView     `json:"bufferView"`
	Array                []byte         `json:"array"`
	CompressedAttributes map[string]int `json:"compressedAttributes"`
	DequantizeInShader   bool           `json:"dequantizeInShader,omitempty"`
}

func (p *parameters) job(id string) *decoder.Job {
	return &decoder.Job{
		ID:                   id,
		Array:                p.Array,
		ByteLength:           p.BufferView.ByteLength,
		CompressedAttributes: p.CompressedAttributes,
		DequantizeInShader:   p.DequantizeInShader,
	}
}

// response answers one job. Exactly one of Result and Error is set.
type response struct {
	ID     json.Number `json:"id"`
	Result *wireResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type wireTypedArray struct {
	ComponentDatatype datatype.ComponentDatatype `json:"componentDatatype"`
	Data              []byte                     `json:"data"`
}

type wireIndexArray struct {
	TypedArray      wireTypedArray `json:"typedArray"`
	NumberOfIndices int            `json:"numberOfIndices"`
}

type wireQuantization struct {
	QuantizationBits int       `json:"quantizationBits"`
	MinValues        []float32 `json:"minValues,omitempty"`
	Range            *float32  `json:"range,omitempty"`
	OctEncoded       bool      `json:"octEncoded,omitempty"`
}

type wireAttributeData struct {
	ComponentsPerAttribute int                        `json:"componentsPerAttribute"`
	ComponentDatatype      datatype.ComponentDatatype `json:"componentDatatype"`
	ByteOffset             int                        `json:"byteOffset"`
	ByteStride             int                        `json:"byteStride"`
	Normalized             bool                       `json:"normalized"`
	Quantization           *wireQuantization          `json:"quantization,omitempty"`
}

type wireAttribute struct {
	Array wireTypedArray    `json:"array"`
	Data  wireAttributeData `json:"data"`
}

type wireResult struct {
	IndexArray    wireIndexArray           `json:"indexArray"`
	AttributeData map[string]wireAttribute `json:"attributeData"`
}

func typedArrayToWire(a datatype.TypedArray) wireTypedArray {
	if a == nil {
		return wireTypedArray{}
	}
	return wireTypedArray{ComponentDatatype: a.Datatype(), Data: a.Bytes()}
}

func quantizationToWire(q *decoder.Quantization) *wireQuantization {
	if q == nil {
		return nil
	}
	w := &wireQuantization{QuantizationBits: q.Bits}
	switch q.Kind {
	case decoder.QuantizationOctahedral:
		w.OctEncoded = true
	default:
		rng := q.Range
		w.MinValues = q.MinValues
		w.Range = &rng
	}
	return w
}

func resultToWire(r *decoder.Result) *wireResult {
	out := &wireResult{
		IndexArray: wireIndexArray{
			TypedArray:      typedArrayToWire(r.IndexArray.TypedArray),
			NumberOfIndices: r.IndexArray.NumberOfIndices,
		},
		AttributeData: make(map[string]wireAttribute, len(r.AttributeData)),
	}
	for name, attr := range r.AttributeData {
		d := attr.Data
		out.AttributeData[name] = wireAttribute{
			Array: typedArrayToWire(attr.Array),
			Data: wireAttributeData{
				ComponentsPerAttribute: d.ComponentsPerAttribute,
				ComponentDatatype:      d.ComponentDatatype,
				ByteOffset:             d.ByteOffset,
				ByteStride:             d.ByteStride,
				Normalized:             d.Normalized,
				Quantization:           quantizationToWire(d.Quantization),
			},
		}
	}
	return out
}
