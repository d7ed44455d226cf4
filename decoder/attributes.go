package decoder

import (
	"context"
	"fmt"
	"slices"

	"github.com/wippyai/draco-worker/datatype"
	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/errors"
	"github.com/wippyai/draco-worker/resource"
)

// decodeAttributeData decodes every requested attribute, in name order.
func (d *Decoder) decodeAttributeData(ctx context.Context, dec engine.Decoder, mesh engine.Mesh, requested map[string]int, scope *resource.Scope) (map[string]*Attribute, error) {
	numPoints, err := mesh.NumPoints(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "mesh num points", err)
	}

	names := make([]string, 0, len(requested))
	for name := range requested {
		names = append(names, name)
	}
	slices.Sort(names)

	decoded := make(map[string]*Attribute, len(requested))
	for _, name := range names {
		attr, err := d.decodeAttribute(ctx, dec, mesh, numPoints, name, requested[name], scope)
		if err != nil {
			return nil, err
		}
		decoded[name] = attr
	}
	return decoded, nil
}

func (d *Decoder) decodeAttribute(ctx context.Context, dec engine.Decoder, mesh engine.Mesh, numPoints int, name string, id int, scope *resource.Scope) (*Attribute, error) {
	attribute, err := dec.AttributeByUniqueID(ctx, mesh, id)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "get attribute by unique id", err)
	}
	if attribute == nil {
		return nil, errors.New(errors.PhaseExtract, errors.KindNotFound).
			Attribute(name).
			Value(id).
			Detail("no attribute with unique id %d", id).
			Build()
	}

	numComponents, err := attribute.NumComponents(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "attribute num components", err)
	}
	if numComponents <= 0 {
		return nil, errors.Extraction(name, fmt.Sprintf("engine reported %d components", numComponents))
	}

	quantization, err := d.probeQuantization(ctx, attribute, numComponents, scope)
	if err != nil {
		return nil, err
	}

	length := numPoints * numComponents
	var array datatype.TypedArray
	if quantization != nil {
		array, err = d.decodeQuantizedTypedArray(ctx, dec, mesh, attribute, name, length, scope)
	} else {
		array, err = d.decodeTypedArray(ctx, dec, mesh, attribute, name, length, scope)
	}
	if err != nil {
		return nil, err
	}

	byteOffset, err := attribute.ByteOffset(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "attribute byte offset", err)
	}
	normalized, err := attribute.Normalized(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "attribute normalized", err)
	}

	componentDatatype := datatype.FromTypedArray(array)
	return &Attribute{
		Array: array,
		Data: AttributeData{
			ComponentsPerAttribute: numComponents,
			ComponentDatatype:      componentDatatype,
			ByteOffset:             byteOffset,
			ByteStride:             componentDatatype.SizeInBytes() * numComponents,
			Normalized:             normalized,
			Quantization:           quantization,
		},
	}, nil
}

// quantizationProbe inspects an attribute for one transform kind and
// returns nil when the attribute does not carry it.
type quantizationProbe func(ctx context.Context, attribute engine.Attribute, numComponents int, scope *resource.Scope) (*Quantization, error)

// probeQuantization runs the probes in order. A later match replaces an
// earlier one, so octahedral wins over linear.
func (d *Decoder) probeQuantization(ctx context.Context, attribute engine.Attribute, numComponents int, scope *resource.Scope) (*Quantization, error) {
	var quantization *Quantization
	for _, probe := range []quantizationProbe{d.probeLinear, d.probeOctahedral} {
		q, err := probe(ctx, attribute, numComponents, scope)
		if err != nil {
			return nil, err
		}
		if q != nil {
			quantization = q
		}
	}
	return quantization, nil
}

func (d *Decoder) probeLinear(ctx context.Context, attribute engine.Attribute, numComponents int, scope *resource.Scope) (*Quantization, error) {
	t, err := d.module.NewQuantizationTransform(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "create quantization transform", err)
	}
	transform := resource.Own(scope, "quantization transform", t)

	q, err := readLinear(ctx, t, attribute, numComponents)
	if rerr := transform.Release(ctx); err == nil {
		err = rerr
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func readLinear(ctx context.Context, t engine.QuantizationTransform, attribute engine.Attribute, numComponents int) (*Quantization, error) {
	ok, err := t.InitFromAttribute(ctx, attribute)
	if err != nil || !ok {
		return nil, wrapIf(err, "quantization init from attribute")
	}

	bits, err := t.QuantizationBits(ctx)
	if err != nil {
		return nil, wrapIf(err, "quantization bits")
	}
	minValues := make([]float32, numComponents)
	for i := range minValues {
		if minValues[i], err = t.MinValue(ctx, i); err != nil {
			return nil, wrapIf(err, "quantization min value")
		}
	}
	rng, err := t.Range(ctx)
	if err != nil {
		return nil, wrapIf(err, "quantization range")
	}

	return &Quantization{
		Kind:      QuantizationLinear,
		Bits:      bits,
		MinValues: minValues,
		Range:     rng,
	}, nil
}

func (d *Decoder) probeOctahedral(ctx context.Context, attribute engine.Attribute, _ int, scope *resource.Scope) (*Quantization, error) {
	t, err := d.module.NewOctahedronTransform(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "create octahedron transform", err)
	}
	transform := resource.Own(scope, "octahedron transform", t)

	var q *Quantization
	ok, err := t.InitFromAttribute(ctx, attribute)
	if err == nil && ok {
		var bits int
		if bits, err = t.QuantizationBits(ctx); err == nil {
			q = &Quantization{Kind: QuantizationOctahedral, Bits: bits}
		}
	}
	if rerr := transform.Release(ctx); err == nil {
		err = rerr
	}
	if err != nil {
		return nil, wrapIf(err, "octahedron transform")
	}
	return q, nil
}

func wrapIf(err error, call string) error {
	if err == nil {
		return nil
	}
	return engineErr(errors.PhaseExtract, call, err)
}

// decodeQuantizedTypedArray reads quantized values. The engine widens them
// to 16 bits whatever the quantization depth.
func (d *Decoder) decodeQuantizedTypedArray(ctx context.Context, dec engine.Decoder, mesh engine.Mesh, attribute engine.Attribute, name string, length int, scope *resource.Scope) (datatype.TypedArray, error) {
	return d.readAttribute(ctx, dec, mesh, attribute, name, length, engine.DTUint16, datatype.UnsignedShort, scope)
}

// decodeTypedArray reads values through the accessor matching the source
// datatype.
func (d *Decoder) decodeTypedArray(ctx context.Context, dec engine.Decoder, mesh engine.Mesh, attribute engine.Attribute, name string, length int, scope *resource.Scope) (datatype.TypedArray, error) {
	source, err := attribute.DataType(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "attribute data type", err)
	}
	accessor, output, ok := accessorFor(source)
	if !ok {
		return nil, errors.UnrecognizedAttributeType(name, int32(source))
	}
	return d.readAttribute(ctx, dec, mesh, attribute, name, length, accessor, output, scope)
}

// accessorFor maps a source datatype to the engine accessor and the output
// datatype. The engine cannot surface 64-bit values, so those sources are
// narrowed to their 32-bit counterparts.
func accessorFor(source engine.DataType) (engine.DataType, datatype.ComponentDatatype, bool) {
	switch source {
	case engine.DTInt8, engine.DTBool:
		return engine.DTInt8, datatype.Byte, true
	case engine.DTUint8:
		return engine.DTUint8, datatype.UnsignedByte, true
	case engine.DTInt16:
		return engine.DTInt16, datatype.Short, true
	case engine.DTUint16:
		return engine.DTUint16, datatype.UnsignedShort, true
	case engine.DTInt32, engine.DTInt64:
		return engine.DTInt32, datatype.Int, true
	case engine.DTUint32, engine.DTUint64:
		return engine.DTUint32, datatype.UnsignedInt, true
	case engine.DTFloat32, engine.DTFloat64:
		return engine.DTFloat32, datatype.Float, true
	default:
		return engine.DTInvalid, 0, false
	}
}

// readAttribute copies length values out of a fresh engine array of type
// accessor and releases the array before returning.
func (d *Decoder) readAttribute(ctx context.Context, dec engine.Decoder, mesh engine.Mesh, attribute engine.Attribute, name string, length int, accessor engine.DataType, output datatype.ComponentDatatype, scope *resource.Scope) (datatype.TypedArray, error) {
	arr, err := d.module.NewArray(ctx, accessor)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "create attribute array", err)
	}
	attributeData := resource.Own(scope, "attribute data "+name, arr)

	data, err := copyValues(ctx, dec, mesh, attribute, arr, name, length)
	if rerr := attributeData.Release(ctx); err == nil {
		err = rerr
	}
	if err != nil {
		return nil, err
	}

	values, err := datatype.FromBytes(output, data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExtract, errors.KindDecodeFailed, err, "attribute "+name)
	}
	return values, nil
}

func copyValues(ctx context.Context, dec engine.Decoder, mesh engine.Mesh, attribute engine.Attribute, arr engine.Array, name string, length int) ([]byte, error) {
	ok, err := dec.AttributeForAllPoints(ctx, mesh, attribute, arr)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "get attribute for all points", err)
	}
	if !ok {
		return nil, errors.Extraction(name, "engine could not read attribute values")
	}

	n, err := arr.Len(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "attribute array size", err)
	}
	if n != length {
		return nil, errors.Extraction(name, fmt.Sprintf("engine returned %d values, want %d", n, length))
	}

	data, err := arr.Bytes(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "read attribute array", err)
	}
	return data, nil
}
