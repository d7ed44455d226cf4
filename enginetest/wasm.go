package enginetest

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/draco-worker/engine"
)

// Guest addresses of the counters kept by the WasmDecoder fixture.
const (
	WasmFreeCounter  = 3000
	WasmAllocCounter = 3004
	WasmSkipCounter  = 3008
)

// WasmQuad is the float data of attribute 0 in the WasmDecoder fixture.
var WasmQuad = []float32{
	0, 0, 0,
	1, 0, 0,
	1, 1, 0,
	0, 1, 0,
}

// Fixed guest layout of the fixture.
const (
	statusMessageAddr = 2048
	heapBase          = 8192
	arrayBase         = 1024
	arrayStride       = 64
	decoderPtr        = 16
	bufferPtr         = 32
	meshPtr           = 48
	statusPtr         = 64
	quantizationPtr   = 80
	octahedronPtr     = 96
	attributePtr      = 112
)

type wasmOptions struct {
	geometry    engine.GeometryType
	decodeError string
	omit        map[string]bool
}

// WasmOption configures the WasmDecoder fixture.
type WasmOption func(*wasmOptions)

// WithGeometryType sets the geometry type the fixture reports.
func WithGeometryType(g engine.GeometryType) WasmOption {
	return func(o *wasmOptions) { o.geometry = g }
}

// WithDecodeError makes every decode fail with msg.
func WithDecodeError(msg string) WasmOption {
	return func(o *wasmOptions) { o.decodeError = msg }
}

// WithoutExport leaves an ABI export out of the module.
func WithoutExport(name string) WasmOption {
	return func(o *wasmOptions) { o.omit[name] = true }
}

// WasmDecoder assembles a core wasm module implementing the decoder ABI
// for one fixed mesh: 4 points, 2 faces where face f is (0, f+1, f+2),
// and a FLOAT32 attribute with unique id 0 and 3 components holding
// WasmQuad. Every create bumps the alloc counter and every destroy or
// free bumps the free counter.
func WasmDecoder(opts ...WasmOption) []byte {
	o := &wasmOptions{geometry: engine.TriangularMesh, omit: make(map[string]bool)}
	for _, opt := range opts {
		opt(o)
	}

	ok := int32(1)
	if o.decodeError != "" {
		ok = 0
	}

	var (
		none = []byte{}
		i32  = []byte{0x7f}
		f32  = []byte{0x7d}
	)
	allocI32 := func(v int32) []byte { return cat(bump(WasmAllocCounter), i32Const(v)) }

	fns := []wasmFunc{
		{"malloc", sig(i32, i32), cat(
			bump(WasmAllocCounter),
			[]byte{0x23, 0x00},
			[]byte{0x23, 0x00, 0x20, 0x00}, i32Const(7), []byte{0x6a}, i32Const(-8), []byte{0x71, 0x6a},
			[]byte{0x24, 0x00},
		)},
		{"free", sig(i32, none), bump(WasmFreeCounter)},
		{"decoder_create", sig(nil, i32), allocI32(decoderPtr)},
		{"decoder_destroy", sig(i32, none), bump(WasmFreeCounter)},
		{"decoder_skip_attribute_transform", sig(cat(i32, i32), none), bump(WasmSkipCounter)},
		{"decoder_get_encoded_geometry_type", sig(cat(i32, i32), i32), i32Const(int32(o.geometry))},
		{"decoder_decode_buffer_to_mesh", sig(cat(i32, i32, i32), i32), allocI32(statusPtr)},
		{"decoder_get_face_from_mesh", sig(cat(i32, i32, i32, i32), i32), cat(
			store(localGet(3), i32Const(3), 0),
			store(localGet(3), i32Const(0), 8),
			store(localGet(3), cat(localGet(2), i32Const(1), []byte{0x6a}), 12),
			store(localGet(3), cat(localGet(2), i32Const(2), []byte{0x6a}), 16),
			i32Const(1),
		)},
		{"decoder_get_attribute_by_unique_id", sig(cat(i32, i32, i32), i32), cat(
			i32Const(attributePtr), i32Const(0), localGet(2), []byte{0x45, 0x1b},
		)},
		{"decoder_get_attribute_for_all_points", sig(cat(i32, i32, i32, i32), i32), cat(
			store(localGet(3), i32Const(int32(len(WasmQuad))), 0),
			i32Const(1),
		)},
		{"buffer_create", sig(cat(i32, i32), i32), allocI32(bufferPtr)},
		{"buffer_destroy", sig(i32, none), bump(WasmFreeCounter)},
		{"mesh_create", sig(nil, i32), allocI32(meshPtr)},
		{"mesh_destroy", sig(i32, none), bump(WasmFreeCounter)},
		{"mesh_num_points", sig(i32, i32), i32Const(4)},
		{"mesh_num_faces", sig(i32, i32), i32Const(2)},
		{"status_ok", sig(i32, i32), i32Const(ok)},
		{"status_error_msg", sig(i32, i32), i32Const(statusMessageAddr)},
		{"status_destroy", sig(i32, none), bump(WasmFreeCounter)},
		{"array_create", sig(i32, i32), cat(
			bump(WasmAllocCounter),
			localGet(0), i32Const(6), []byte{0x74}, i32Const(arrayBase), []byte{0x6a},
		)},
		{"array_destroy", sig(i32, none), bump(WasmFreeCounter)},
		{"array_size", sig(i32, i32), cat(localGet(0), []byte{0x28, 0x02, 0x00})},
		{"array_data", sig(i32, i32), cat(localGet(0), i32Const(8), []byte{0x6a})},
		{"attribute_num_components", sig(i32, i32), i32Const(3)},
		{"attribute_byte_offset", sig(i32, i32), i32Const(0)},
		{"attribute_data_type", sig(i32, i32), i32Const(int32(engine.DTFloat32))},
		{"attribute_normalized", sig(i32, i32), i32Const(0)},
		{"quantization_transform_create", sig(nil, i32), allocI32(quantizationPtr)},
		{"quantization_transform_destroy", sig(i32, none), bump(WasmFreeCounter)},
		{"quantization_transform_init_from_attribute", sig(cat(i32, i32), i32), i32Const(0)},
		{"quantization_transform_quantization_bits", sig(i32, i32), i32Const(0)},
		{"quantization_transform_min_value", sig(cat(i32, i32), f32), f32Const(0)},
		{"quantization_transform_range", sig(i32, f32), f32Const(0)},
		{"octahedron_transform_create", sig(nil, i32), allocI32(octahedronPtr)},
		{"octahedron_transform_destroy", sig(i32, none), bump(WasmFreeCounter)},
		{"octahedron_transform_init_from_attribute", sig(cat(i32, i32), i32), i32Const(0)},
		{"octahedron_transform_quantization_bits", sig(i32, i32), i32Const(0)},
	}

	kept := fns[:0]
	for _, fn := range fns {
		if !o.omit[fn.name] {
			kept = append(kept, fn)
		}
	}

	quad := make([]byte, 4*len(WasmQuad))
	for i, v := range WasmQuad {
		binary.LittleEndian.PutUint32(quad[4*i:], math.Float32bits(v))
	}
	floatArray := arrayBase + int32(engine.DTFloat32)*arrayStride + 8

	return assemble(kept, !o.omit["memory"], []dataSegment{
		{offset: statusMessageAddr, data: append([]byte(o.decodeError), 0)},
		{offset: floatArray, data: quad},
	})
}

type wasmFunc struct {
	name string
	typ  []byte
	body []byte
}

type dataSegment struct {
	offset int32
	data   []byte
}

func assemble(fns []wasmFunc, exportMemory bool, segments []dataSegment) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var types, funcs, exports, code [][]byte
	for i, fn := range fns {
		types = append(types, fn.typ)
		funcs = append(funcs, uleb(uint32(i)))
		exports = append(exports, cat(name(fn.name), []byte{0x00}, uleb(uint32(i))))
		code = append(code, withSize(cat([]byte{0x00}, fn.body, []byte{0x0b})))
	}
	if exportMemory {
		exports = append(exports, cat(name("memory"), []byte{0x02, 0x00}))
	}

	var data [][]byte
	for _, s := range segments {
		data = append(data, cat([]byte{0x00}, i32Const(s.offset), []byte{0x0b}, uleb(uint32(len(s.data))), s.data))
	}

	out = append(out, section(1, vec(types))...)
	out = append(out, section(3, vec(funcs))...)
	out = append(out, section(5, vec([][]byte{{0x00, 0x01}}))...)
	out = append(out, section(6, vec([][]byte{cat([]byte{0x7f, 0x01}, i32Const(heapBase), []byte{0x0b})}))...)
	out = append(out, section(7, vec(exports))...)
	out = append(out, section(10, vec(code))...)
	out = append(out, section(11, vec(data))...)
	return out
}

func sig(params, results []byte) []byte {
	return cat([]byte{0x60}, uleb(uint32(len(params))), params, uleb(uint32(len(results))), results)
}

// bump increments the i32 counter at addr.
func bump(addr int32) []byte {
	return store(i32Const(addr), cat(i32Const(addr), []byte{0x28, 0x02, 0x00}, i32Const(1), []byte{0x6a}), 0)
}

func store(addr, value []byte, offset uint32) []byte {
	return cat(addr, value, []byte{0x36, 0x02}, uleb(offset))
}

func localGet(i uint32) []byte { return cat([]byte{0x20}, uleb(i)) }

func i32Const(v int32) []byte { return cat([]byte{0x41}, sleb(int64(v))) }

func f32Const(v float32) []byte {
	b := make([]byte, 5)
	b[0] = 0x43
	binary.LittleEndian.PutUint32(b[1:], math.Float32bits(v))
	return b
}

func name(s string) []byte { return cat(uleb(uint32(len(s))), []byte(s)) }

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, withSize(payload))
}

func withSize(b []byte) []byte { return cat(uleb(uint32(len(b))), b) }

func vec(items [][]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
