package decoder

import (
	"math"
	"testing"

	"github.com/wippyai/draco-worker/datatype"
	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/enginetest"
	"github.com/wippyai/draco-worker/errors"
)

func triangle() enginetest.MeshSpec {
	return enginetest.Triangles(3, [3]uint32{0, 1, 2})
}

func scalar(dt engine.DataType, values ...float64) enginetest.AttributeSpec {
	return enginetest.AttributeSpec{
		UniqueID:      0,
		Type:          engine.Generic,
		DataType:      dt,
		NumComponents: 1,
		Values:        values,
	}
}

func TestDecodeAttribute_SourceDatatypes(t *testing.T) {
	tests := []struct {
		name   string
		source engine.DataType
		values []float64
		want   []float64
		output datatype.ComponentDatatype
	}{
		{"int8", engine.DTInt8, []float64{-3, 5, 127}, []float64{-3, 5, 127}, datatype.Byte},
		{"bool", engine.DTBool, []float64{1, 0, 1}, []float64{1, 0, 1}, datatype.Byte},
		{"uint8", engine.DTUint8, []float64{0, 200, 255}, []float64{0, 200, 255}, datatype.UnsignedByte},
		{"int16", engine.DTInt16, []float64{-30000, 0, 30000}, []float64{-30000, 0, 30000}, datatype.Short},
		{"uint16", engine.DTUint16, []float64{0, 40000, 65535}, []float64{0, 40000, 65535}, datatype.UnsignedShort},
		{"int32", engine.DTInt32, []float64{math.MinInt32, 0, math.MaxInt32}, []float64{math.MinInt32, 0, math.MaxInt32}, datatype.Int},
		{"uint32", engine.DTUint32, []float64{0, 4000000000, 1}, []float64{0, 4000000000, 1}, datatype.UnsignedInt},
		{"float32", engine.DTFloat32, []float64{0.5, -1.25, 3}, []float64{0.5, -1.25, 3}, datatype.Float},
		{"int64 narrowed", engine.DTInt64, []float64{1<<32 + 7, -(1 << 33) - 3, 5}, []float64{7, -3, 5}, datatype.Int},
		{"uint64 narrowed", engine.DTUint64, []float64{1<<32 + 9, 1 << 40, 3}, []float64{9, 0, 3}, datatype.UnsignedInt},
		{"float64 narrowed", engine.DTFloat64, []float64{0.1, 1e-3, 2},
			[]float64{float64(float32(0.1)), float64(float32(1e-3)), 2}, datatype.Float},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := enginetest.New()
			result, err := decode(t, eng, &Job{
				Array:                enginetest.Encode(triangle().With(scalar(tt.source, tt.values...))),
				CompressedAttributes: map[string]int{"value": 0},
			})
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			assertNoLeaks(t, eng)

			attr := result.AttributeData["value"]
			if attr.Data.ComponentDatatype != tt.output {
				t.Fatalf("ComponentDatatype = %s, want %s", attr.Data.ComponentDatatype, tt.output)
			}
			if attr.Array.Datatype() != tt.output {
				t.Fatalf("array datatype = %s, want %s", attr.Array.Datatype(), tt.output)
			}
			if attr.Data.ByteStride != tt.output.SizeInBytes() {
				t.Errorf("ByteStride = %d for %s", attr.Data.ByteStride, tt.output)
			}
			for i, want := range tt.want {
				if got := attr.Array.At(i); got != want {
					t.Errorf("value %d = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestDecodeAttribute_UnrecognizedDatatype(t *testing.T) {
	for _, dt := range []engine.DataType{engine.DTInvalid, 42} {
		t.Run(dt.String(), func(t *testing.T) {
			eng := enginetest.New()
			_, err := decode(t, eng, &Job{
				Array:                enginetest.Encode(triangle().With(scalar(dt, 1, 2, 3))),
				CompressedAttributes: map[string]int{"weird": 0},
			})
			if !errors.Is(err, errors.ErrUnrecognizedAttributeType) {
				t.Fatalf("expected ErrUnrecognizedAttributeType, got %v", err)
			}
			var e *errors.Error
			if !errors.As(err, &e) || e.Attribute != "weird" || e.Value != int32(dt) {
				t.Errorf("error does not name the attribute and code: %+v", e)
			}
			assertNoLeaks(t, eng)
		})
	}
}

func octNormals(bits int) []float64 {
	normals := [][3]float32{
		{0, 0, 1},
		{0, 0, -1},
		{0.6, 0.8, 0},
		{-0.48, 0.6, -0.64},
	}
	var values []float64
	for _, n := range normals {
		x, y := datatype.OctEncode(n, bits)
		values = append(values, float64(x), float64(y))
	}
	return values
}

func octahedral(bits int) enginetest.AttributeSpec {
	return enginetest.AttributeSpec{
		UniqueID:      2,
		Type:          engine.Normal,
		DataType:      engine.DTUint16,
		NumComponents: 2,
		Values:        octNormals(bits),
		Octahedron:    &enginetest.OctahedronSpec{Bits: bits},
	}
}

func unitLength(v [3]float32) float64 {
	return math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2]))
}

func TestDecodeAttribute_Octahedral(t *testing.T) {
	const bits = 10
	eng := enginetest.New()
	result, err := decode(t, eng, &Job{
		Array:                enginetest.Encode(enginetest.Quad().With(octahedral(bits))),
		CompressedAttributes: map[string]int{"NORMAL": 2},
		DequantizeInShader:   true,
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	assertNoLeaks(t, eng)

	attr := result.AttributeData["NORMAL"]
	q := attr.Data.Quantization
	if q == nil || q.Kind != QuantizationOctahedral || q.Bits != bits {
		t.Fatalf("expected octahedral quantization, got %+v", q)
	}
	if q.MinValues != nil || q.Range != 0 {
		t.Errorf("octahedral quantization carries linear fields: %+v", q)
	}

	values, ok := attr.Array.(datatype.Uint16Array)
	if !ok || len(values) != 8 {
		t.Fatalf("expected 8 uint16 values, got %T len %d", attr.Array, attr.Array.Len())
	}
	maxQ := datatype.MaxQuantized(bits)
	for i := 0; i < len(values); i += 2 {
		if uint32(values[i]) > maxQ || uint32(values[i+1]) > maxQ {
			t.Fatalf("encoded pair %d exceeds %d bits", i/2, bits)
		}
		if l := unitLength(q.OctDecode(uint32(values[i]), uint32(values[i+1]))); math.Abs(l-1) > 1e-5 {
			t.Errorf("pair %d decodes to length %v", i/2, l)
		}
	}
}

func TestDecodeAttribute_OctahedralAppliedByEngine(t *testing.T) {
	eng := enginetest.New()
	result, err := decode(t, eng, &Job{
		Array:                enginetest.Encode(enginetest.Quad().With(octahedral(12))),
		CompressedAttributes: map[string]int{"NORMAL": 2},
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	attr := result.AttributeData["NORMAL"]
	if attr.Data.Quantization != nil {
		t.Fatalf("expected no quantization, got %+v", attr.Data.Quantization)
	}
	if attr.Data.ComponentsPerAttribute != 3 || attr.Data.ComponentDatatype != datatype.Float {
		t.Fatalf("layout = %+v", attr.Data)
	}
	values := attr.Array.(datatype.Float32Array)
	for i := 0; i+2 < len(values); i += 3 {
		if l := unitLength([3]float32{values[i], values[i+1], values[i+2]}); math.Abs(l-1) > 1e-5 {
			t.Errorf("normal %d has length %v", i/3, l)
		}
	}
}

func TestDecodeAttribute_OctahedralOverridesLinear(t *testing.T) {
	spec := octahedral(8)
	spec.Quantization = &enginetest.QuantizationSpec{Bits: 14, MinValues: []float32{-1, -1}, Range: 2}

	eng := enginetest.New()
	result, err := decode(t, eng, &Job{
		Array:                enginetest.Encode(enginetest.Quad().With(spec)),
		CompressedAttributes: map[string]int{"NORMAL": 2},
		DequantizeInShader:   true,
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	assertNoLeaks(t, eng)

	q := result.AttributeData["NORMAL"].Data.Quantization
	if q == nil || q.Kind != QuantizationOctahedral || q.Bits != 8 {
		t.Fatalf("expected octahedral to win, got %+v", q)
	}
	if eng.CallIndex(enginetest.CallInitFromAttribute, "quantization") < 0 {
		t.Error("linear probe was not run")
	}
}

func TestDecodeAttribute_LinearReconstructsRange(t *testing.T) {
	for _, bits := range []int{8, 11, 14, 16} {
		maxQ := float64(datatype.MaxQuantized(bits))
		spec := enginetest.AttributeSpec{
			UniqueID:      5,
			Type:          engine.Position,
			DataType:      engine.DTUint16,
			NumComponents: 3,
			Values: []float64{
				0, 0, 0,
				maxQ, maxQ, maxQ,
				maxQ / 2, 1, maxQ - 1,
				3, maxQ, 0,
			},
			Quantization: &enginetest.QuantizationSpec{
				Bits:      bits,
				MinValues: []float32{-10, 0.5, 100},
				Range:     25,
			},
		}

		eng := enginetest.New()
		result, err := decode(t, eng, &Job{
			Array:                enginetest.Encode(enginetest.Quad().With(spec)),
			CompressedAttributes: map[string]int{"POSITION": 5},
			DequantizeInShader:   true,
		})
		if err != nil {
			t.Fatalf("bits=%d: Decode failed: %v", bits, err)
		}

		attr := result.AttributeData["POSITION"]
		q := attr.Data.Quantization
		values := attr.Array.(datatype.Uint16Array)
		for i, v := range values {
			if uint32(v) > datatype.MaxQuantized(bits) {
				t.Fatalf("bits=%d: value %d = %d exceeds depth", bits, i, v)
			}
		}
		for c := 0; c < 3; c++ {
			got := q.Dequantize(c, uint32(values[3+c]))
			if want := q.MinValues[c] + q.Range; got != want {
				t.Errorf("bits=%d component %d: max reconstructs to %v, want %v", bits, c, got, want)
			}
			if got := q.Dequantize(c, uint32(values[c])); got != q.MinValues[c] {
				t.Errorf("bits=%d component %d: zero reconstructs to %v", bits, c, got)
			}
		}
	}
}

func TestDecodeAttribute_ValueCountMismatch(t *testing.T) {
	spec := genericFloat(0)
	spec.Values = spec.Values[:9]

	eng := enginetest.New()
	_, err := decode(t, eng, &Job{
		Array:                enginetest.Encode(enginetest.Quad().With(spec)),
		CompressedAttributes: map[string]int{"p": 0},
	})
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindDecodeFailed || e.Attribute != "p" {
		t.Fatalf("expected extraction failure for p, got %v", err)
	}
	assertNoLeaks(t, eng)
}

func TestDecodeAttribute_Metadata(t *testing.T) {
	spec := enginetest.AttributeSpec{
		UniqueID:      9,
		Type:          engine.Color,
		DataType:      engine.DTUint8,
		NumComponents: 4,
		ByteOffset:    16,
		Normalized:    true,
		Values:        make([]float64, 16),
	}

	eng := enginetest.New()
	result, err := decode(t, eng, &Job{
		Array:                enginetest.Encode(enginetest.Quad().With(spec)),
		CompressedAttributes: map[string]int{"COLOR": 9},
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	data := result.AttributeData["COLOR"].Data
	want := AttributeData{
		ComponentsPerAttribute: 4,
		ComponentDatatype:      datatype.UnsignedByte,
		ByteOffset:             16,
		ByteStride:             4,
		Normalized:             true,
	}
	if data != want {
		t.Fatalf("data = %+v, want %+v", data, want)
	}
}

func TestDecodeAttributeData_SeveralAttributes(t *testing.T) {
	eng := enginetest.New()
	result, err := decode(t, eng, &Job{
		Array: enginetest.Encode(enginetest.Quad().With(
			linear8(1, engine.Position),
			genericFloat(4),
			octahedral(10),
		)),
		CompressedAttributes: map[string]int{"POSITION": 1, "_FEATURE_ID": 4, "NORMAL": 2},
		DequantizeInShader:   true,
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	assertNoLeaks(t, eng)

	if len(result.AttributeData) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(result.AttributeData))
	}
	kinds := map[string]QuantizationKind{}
	for name, attr := range result.AttributeData {
		if attr.Data.Quantization != nil {
			kinds[name] = attr.Data.Quantization.Kind
		}
	}
	if kinds["POSITION"] != QuantizationLinear || kinds["NORMAL"] != QuantizationOctahedral || len(kinds) != 2 {
		t.Fatalf("quantization kinds = %v", kinds)
	}
}

func TestDecodeAttributeData_FirstFailureByName(t *testing.T) {
	eng := enginetest.New()
	_, err := decode(t, eng, &Job{
		Array:                enginetest.Encode(enginetest.Quad()),
		CompressedAttributes: map[string]int{"b": 1, "a": 2},
	})
	var e *errors.Error
	if !errors.As(err, &e) || e.Attribute != "a" {
		t.Fatalf("expected failure on attribute a, got %v", err)
	}
}

func TestAccessorFor(t *testing.T) {
	tests := []struct {
		source   engine.DataType
		accessor engine.DataType
		output   datatype.ComponentDatatype
	}{
		{engine.DTInt8, engine.DTInt8, datatype.Byte},
		{engine.DTBool, engine.DTInt8, datatype.Byte},
		{engine.DTUint8, engine.DTUint8, datatype.UnsignedByte},
		{engine.DTInt16, engine.DTInt16, datatype.Short},
		{engine.DTUint16, engine.DTUint16, datatype.UnsignedShort},
		{engine.DTInt32, engine.DTInt32, datatype.Int},
		{engine.DTInt64, engine.DTInt32, datatype.Int},
		{engine.DTUint32, engine.DTUint32, datatype.UnsignedInt},
		{engine.DTUint64, engine.DTUint32, datatype.UnsignedInt},
		{engine.DTFloat32, engine.DTFloat32, datatype.Float},
		{engine.DTFloat64, engine.DTFloat32, datatype.Float},
	}

	for _, tt := range tests {
		accessor, output, ok := accessorFor(tt.source)
		if !ok || accessor != tt.accessor || output != tt.output {
			t.Errorf("accessorFor(%s) = %s, %s, %v", tt.source, accessor, output, ok)
		}
		if accessor.Width() != output.SizeInBytes() {
			t.Errorf("%s: accessor width %d != output size %d", tt.source, accessor.Width(), output.SizeInBytes())
		}
	}

	if _, _, ok := accessorFor(engine.DTInvalid); ok {
		t.Error("DT_INVALID should have no accessor")
	}
}
