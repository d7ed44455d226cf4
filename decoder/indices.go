package decoder

import (
	"context"
	"fmt"

	"github.com/wippyai/draco-worker/datatype"
	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/errors"
	"github.com/wippyai/draco-worker/resource"
)

// decodeIndexArray flattens the mesh faces into a triangle list in face
// order. One engine array is reused for every face.
func (d *Decoder) decodeIndexArray(ctx context.Context, dec engine.Decoder, mesh engine.Mesh, scope *resource.Scope) (IndexArray, error) {
	numPoints, err := mesh.NumPoints(ctx)
	if err != nil {
		return IndexArray{}, engineErr(errors.PhaseExtract, "mesh num points", err)
	}
	numFaces, err := mesh.NumFaces(ctx)
	if err != nil {
		return IndexArray{}, engineErr(errors.PhaseExtract, "mesh num faces", err)
	}
	if numPoints < 0 || numFaces < 0 {
		return IndexArray{}, errors.Extraction("", fmt.Sprintf("engine reported %d points and %d faces", numPoints, numFaces))
	}

	arr, err := d.module.NewArray(ctx, engine.DTInt32)
	if err != nil {
		return IndexArray{}, engineErr(errors.PhaseExtract, "create face array", err)
	}
	faceIndices := resource.Own(scope, "face indices", arr)

	numIndices := numFaces * 3
	indexArray := datatype.NewIndexArray(numPoints, numIndices)

	offset := 0
	for i := 0; i < numFaces; i++ {
		ok, err := dec.FaceFromMesh(ctx, mesh, i, arr)
		if err != nil {
			return IndexArray{}, engineErr(errors.PhaseExtract, "get face from mesh", err)
		}
		if !ok {
			return IndexArray{}, errors.Extraction("", fmt.Sprintf("engine could not read face %d", i))
		}

		face, err := readInt32s(ctx, arr)
		if err != nil {
			return IndexArray{}, err
		}
		if len(face) < 3 {
			return IndexArray{}, errors.Extraction("", fmt.Sprintf("face %d has %d indices", i, len(face)))
		}

		for k := 0; k < 3; k++ {
			v := face[k]
			if v < 0 || int(v) >= numPoints {
				return IndexArray{}, errors.Extraction("", fmt.Sprintf("face %d index %d outside [0, %d)", i, v, numPoints))
			}
			indexArray.SetIndex(offset+k, uint32(v))
		}
		offset += 3
	}

	if err := faceIndices.Release(ctx); err != nil {
		return IndexArray{}, err
	}

	return IndexArray{
		TypedArray:      indexArray,
		NumberOfIndices: numIndices,
	}, nil
}

func readInt32s(ctx context.Context, arr engine.Array) (datatype.Int32Array, error) {
	data, err := arr.Bytes(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseExtract, "read face array", err)
	}
	values, err := datatype.FromBytes(datatype.Int, data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExtract, errors.KindDecodeFailed, err, "face array")
	}
	return values.(datatype.Int32Array), nil
}
