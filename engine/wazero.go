package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/draco-worker/errors"
)

// WazeroModulePath is the module path the wazero engine registers under.
const WazeroModulePath = "wazero"

func init() {
	Register(WazeroModulePath, openWazero)
}

// maxErrorMessage bounds how far a status message is scanned for its NUL.
const maxErrorMessage = 4096

var requiredExports = []string{
	"malloc",
	"free",
	"decoder_create",
	"decoder_destroy",
	"decoder_skip_attribute_transform",
	"decoder_get_encoded_geometry_type",
	"decoder_decode_buffer_to_mesh",
	"decoder_get_face_from_mesh",
	"decoder_get_attribute_by_unique_id",
	"decoder_get_attribute_for_all_points",
	"buffer_create",
	"buffer_destroy",
	"mesh_create",
	"mesh_destroy",
	"mesh_num_points",
	"mesh_num_faces",
	"status_ok",
	"status_error_msg",
	"status_destroy",
	"array_create",
	"array_destroy",
	"array_size",
	"array_data",
	"attribute_num_components",
	"attribute_byte_offset",
	"attribute_data_type",
	"attribute_normalized",
	"quantization_transform_create",
	"quantization_transform_destroy",
	"quantization_transform_init_from_attribute",
	"quantization_transform_quantization_bits",
	"quantization_transform_min_value",
	"quantization_transform_range",
	"octahedron_transform_create",
	"octahedron_transform_destroy",
	"octahedron_transform_init_from_attribute",
	"octahedron_transform_quantization_bits",
}

// WazeroConfig holds configuration for the wazero engine
type WazeroConfig struct {
	// Name is the guest module name. Defaults to "draco".
	Name string

	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableWASI instantiates WASI preview1 before the decoder, for
	// toolchains that emit WASI imports (emscripten standalone, wasi-sdk).
	EnableWASI bool
}

// WazeroEngine hosts a decoder compiled to a core wasm module with a flat
// C ABI. All engine objects are guest pointers; 0 is null.
//
// WazeroEngine is NOT safe for concurrent use.
type WazeroEngine struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	fns     map[string]api.Function
	name    string
}

func openWazero(ctx context.Context, cfg Config) (Module, error) {
	if len(cfg.WasmBinary) == 0 {
		return nil, errors.InvalidInput(errors.PhaseBootstrap, "wazero engine requires wasmBinaryFile")
	}
	wcfg := &WazeroConfig{EnableWASI: cfg.OptionBool("wasi")}
	if pages, ok := cfg.OptionUint32("memoryLimitPages"); ok {
		wcfg.MemoryLimitPages = pages
	}
	return NewWazeroEngine(ctx, cfg.WasmBinary, wcfg)
}

// NewWazeroEngine compiles and instantiates wasmBytes. The binary must
// export linear memory and every function of the decoder ABI.
func NewWazeroEngine(ctx context.Context, wasmBytes []byte, cfg *WazeroConfig) (*WazeroEngine, error) {
	if cfg == nil {
		cfg = &WazeroConfig{}
	}
	name := cfg.Name
	if name == "" {
		name = "draco"
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	e, err := instantiate(ctx, runtime, name, wasmBytes, cfg.EnableWASI)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

func instantiate(ctx context.Context, runtime wazero.Runtime, name string, wasmBytes []byte, enableWASI bool) (*WazeroEngine, error) {
	if enableWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
			return nil, fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	exported := compiled.ExportedFunctions()
	var missing []string
	for _, fn := range requiredExports {
		if _, ok := exported[fn]; !ok {
			missing = append(missing, fn)
		}
	}
	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		missing = append(missing, "memory")
	}
	if len(missing) > 0 {
		return nil, &errors.MissingExportsError{Module: name, Exports: missing}
	}

	mod, err := runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions("_initialize"))
	if err != nil {
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	fns := make(map[string]api.Function, len(requiredExports))
	for _, fn := range requiredExports {
		fns[fn] = mod.ExportedFunction(fn)
	}

	Logger().Debug("wazero engine ready",
		zap.String("module", name),
		zap.Uint32("memory_bytes", mod.Memory().Size()))

	return &WazeroEngine{
		runtime: runtime,
		module:  mod,
		memory:  mod.Memory(),
		fns:     fns,
		name:    name,
	}, nil
}

// Memory returns the guest linear memory.
func (e *WazeroEngine) Memory() api.Memory {
	return e.memory
}

// Close releases the guest instance and the wazero runtime.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func (e *WazeroEngine) call(ctx context.Context, name string, params ...uint64) (uint64, error) {
	results, err := e.fns[name].Call(ctx, params...)
	if err != nil {
		return 0, errors.EngineCall(errors.PhaseDecode, name, err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}

func (e *WazeroEngine) callI32(ctx context.Context, name string, params ...uint64) (int32, error) {
	r, err := e.call(ctx, name, params...)
	return api.DecodeI32(r), err
}

func (e *WazeroEngine) callPtr(ctx context.Context, name string, params ...uint64) (uint32, error) {
	r, err := e.call(ctx, name, params...)
	return api.DecodeU32(r), err
}

func (e *WazeroEngine) callBool(ctx context.Context, name string, params ...uint64) (bool, error) {
	r, err := e.callI32(ctx, name, params...)
	return r != 0, err
}

func (e *WazeroEngine) allocated(what string, ptr uint32) error {
	if ptr == 0 {
		return errors.New(errors.PhaseDecode, errors.KindEngineCall).
			Detail("engine returned null %s", what).
			Build()
	}
	return nil
}

func (e *WazeroEngine) readCString(ptr uint32) string {
	if ptr == 0 {
		return ""
	}
	n := uint32(maxErrorMessage)
	if size := e.memory.Size(); ptr >= size {
		return ""
	} else if size-ptr < n {
		n = size - ptr
	}
	data, ok := e.memory.Read(ptr, n)
	if !ok {
		return ""
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

func (e *WazeroEngine) NewDecoder(ctx context.Context) (Decoder, error) {
	ptr, err := e.callPtr(ctx, "decoder_create")
	if err != nil {
		return nil, err
	}
	if err := e.allocated("decoder", ptr); err != nil {
		return nil, err
	}
	return &wazeroDecoder{e: e, ptr: ptr}, nil
}

func (e *WazeroEngine) NewBuffer(ctx context.Context, data []byte, byteLength int) (Buffer, error) {
	if byteLength < 0 || byteLength > len(data) {
		return nil, errors.InvalidInput(errors.PhaseDecode,
			fmt.Sprintf("byte length %d outside buffer of %d bytes", byteLength, len(data)))
	}

	dataPtr, err := e.callPtr(ctx, "malloc", api.EncodeU32(uint32(byteLength)))
	if err != nil {
		return nil, err
	}
	if err := e.allocated("buffer storage", dataPtr); err != nil {
		return nil, err
	}
	if !e.memory.Write(dataPtr, data[:byteLength]) {
		_, _ = e.call(ctx, "free", api.EncodeU32(dataPtr))
		return nil, errors.New(errors.PhaseDecode, errors.KindEngineCall).
			Detail("write %d bytes at %d out of guest memory range", byteLength, dataPtr).
			Build()
	}

	ptr, err := e.callPtr(ctx, "buffer_create", api.EncodeU32(dataPtr), api.EncodeU32(uint32(byteLength)))
	if err == nil {
		err = e.allocated("buffer", ptr)
	}
	if err != nil {
		_, _ = e.call(ctx, "free", api.EncodeU32(dataPtr))
		return nil, err
	}
	return &wazeroBuffer{e: e, ptr: ptr, dataPtr: dataPtr}, nil
}

func (e *WazeroEngine) NewMesh(ctx context.Context) (Mesh, error) {
	ptr, err := e.callPtr(ctx, "mesh_create")
	if err != nil {
		return nil, err
	}
	return &wazeroMesh{e: e, ptr: ptr}, nil
}

func (e *WazeroEngine) NewArray(ctx context.Context, dt DataType) (Array, error) {
	if dt.Width() == 0 {
		return nil, errors.InvalidInput(errors.PhaseExtract, fmt.Sprintf("engine cannot surface data type %d", dt))
	}
	ptr, err := e.callPtr(ctx, "array_create", api.EncodeI32(int32(dt)))
	if err != nil {
		return nil, err
	}
	if err := e.allocated("array", ptr); err != nil {
		return nil, err
	}
	return &wazeroArray{e: e, ptr: ptr, dt: dt}, nil
}

func (e *WazeroEngine) NewQuantizationTransform(ctx context.Context) (QuantizationTransform, error) {
	ptr, err := e.callPtr(ctx, "quantization_transform_create")
	if err != nil {
		return nil, err
	}
	if err := e.allocated("quantization transform", ptr); err != nil {
		return nil, err
	}
	return &wazeroQuantization{e: e, ptr: ptr}, nil
}

func (e *WazeroEngine) NewOctahedronTransform(ctx context.Context) (OctahedronTransform, error) {
	ptr, err := e.callPtr(ctx, "octahedron_transform_create")
	if err != nil {
		return nil, err
	}
	if err := e.allocated("octahedron transform", ptr); err != nil {
		return nil, err
	}
	return &wazeroOctahedron{e: e, ptr: ptr}, nil
}

// destroy calls a destructor once and clears the pointer.
func (e *WazeroEngine) destroy(ctx context.Context, fn string, ptr *uint32) error {
	if *ptr == 0 {
		return nil
	}
	p := *ptr
	*ptr = 0
	_, err := e.call(ctx, fn, api.EncodeU32(p))
	return err
}

type wazeroDecoder struct {
	e   *WazeroEngine
	ptr uint32
}

func (d *wazeroDecoder) Release(ctx context.Context) error {
	return d.e.destroy(ctx, "decoder_destroy", &d.ptr)
}

func (d *wazeroDecoder) SkipAttributeTransform(ctx context.Context, t AttributeType) error {
	_, err := d.e.call(ctx, "decoder_skip_attribute_transform", api.EncodeU32(d.ptr), api.EncodeI32(int32(t)))
	return err
}

func (d *wazeroDecoder) EncodedGeometryType(ctx context.Context, buf Buffer) (GeometryType, error) {
	b, err := asWazero[*wazeroBuffer](buf)
	if err != nil {
		return InvalidGeometryType, err
	}
	r, err := d.e.callI32(ctx, "decoder_get_encoded_geometry_type", api.EncodeU32(d.ptr), api.EncodeU32(b.ptr))
	return GeometryType(r), err
}

func (d *wazeroDecoder) DecodeBufferToMesh(ctx context.Context, buf Buffer, mesh Mesh) (Status, error) {
	b, err := asWazero[*wazeroBuffer](buf)
	if err != nil {
		return Status{}, err
	}
	m, err := asWazero[*wazeroMesh](mesh)
	if err != nil {
		return Status{}, err
	}

	st, err := d.e.callPtr(ctx, "decoder_decode_buffer_to_mesh",
		api.EncodeU32(d.ptr), api.EncodeU32(b.ptr), api.EncodeU32(m.ptr))
	if err != nil {
		return Status{}, err
	}
	if st == 0 {
		return Status{Message: "engine returned no status"}, nil
	}
	defer func() { _ = d.e.destroy(ctx, "status_destroy", &st) }()

	ok, err := d.e.callBool(ctx, "status_ok", api.EncodeU32(st))
	if err != nil {
		return Status{}, err
	}
	if ok {
		return Status{OK: true}, nil
	}
	msgPtr, err := d.e.callPtr(ctx, "status_error_msg", api.EncodeU32(st))
	if err != nil {
		return Status{}, err
	}
	return Status{Message: d.e.readCString(msgPtr)}, nil
}

func (d *wazeroDecoder) FaceFromMesh(ctx context.Context, mesh Mesh, face int, out Array) (bool, error) {
	m, err := asWazero[*wazeroMesh](mesh)
	if err != nil {
		return false, err
	}
	a, err := asWazero[*wazeroArray](out)
	if err != nil {
		return false, err
	}
	return d.e.callBool(ctx, "decoder_get_face_from_mesh",
		api.EncodeU32(d.ptr), api.EncodeU32(m.ptr), api.EncodeI32(int32(face)), api.EncodeU32(a.ptr))
}

func (d *wazeroDecoder) AttributeByUniqueID(ctx context.Context, mesh Mesh, id int) (Attribute, error) {
	m, err := asWazero[*wazeroMesh](mesh)
	if err != nil {
		return nil, err
	}
	ptr, err := d.e.callPtr(ctx, "decoder_get_attribute_by_unique_id",
		api.EncodeU32(d.ptr), api.EncodeU32(m.ptr), api.EncodeI32(int32(id)))
	if err != nil || ptr == 0 {
		return nil, err
	}
	return &wazeroAttribute{e: d.e, ptr: ptr}, nil
}

func (d *wazeroDecoder) AttributeForAllPoints(ctx context.Context, mesh Mesh, attr Attribute, out Array) (bool, error) {
	m, err := asWazero[*wazeroMesh](mesh)
	if err != nil {
		return false, err
	}
	at, err := asWazero[*wazeroAttribute](attr)
	if err != nil {
		return false, err
	}
	a, err := asWazero[*wazeroArray](out)
	if err != nil {
		return false, err
	}
	return d.e.callBool(ctx, "decoder_get_attribute_for_all_points",
		api.EncodeU32(d.ptr), api.EncodeU32(m.ptr), api.EncodeU32(at.ptr), api.EncodeU32(a.ptr))
}

type wazeroBuffer struct {
	e       *WazeroEngine
	ptr     uint32
	dataPtr uint32
}

func (b *wazeroBuffer) Release(ctx context.Context) error {
	err := b.e.destroy(ctx, "buffer_destroy", &b.ptr)
	if ferr := b.e.destroy(ctx, "free", &b.dataPtr); err == nil {
		err = ferr
	}
	return err
}

type wazeroMesh struct {
	e   *WazeroEngine
	ptr uint32
}

func (m *wazeroMesh) Release(ctx context.Context) error {
	return m.e.destroy(ctx, "mesh_destroy", &m.ptr)
}

func (m *wazeroMesh) Valid() bool {
	return m.ptr != 0
}

func (m *wazeroMesh) NumPoints(ctx context.Context) (int, error) {
	n, err := m.e.callI32(ctx, "mesh_num_points", api.EncodeU32(m.ptr))
	return int(n), err
}

func (m *wazeroMesh) NumFaces(ctx context.Context) (int, error) {
	n, err := m.e.callI32(ctx, "mesh_num_faces", api.EncodeU32(m.ptr))
	return int(n), err
}

type wazeroAttribute struct {
	e   *WazeroEngine
	ptr uint32
}

func (a *wazeroAttribute) NumComponents(ctx context.Context) (int, error) {
	n, err := a.e.callI32(ctx, "attribute_num_components", api.EncodeU32(a.ptr))
	return int(n), err
}

func (a *wazeroAttribute) ByteOffset(ctx context.Context) (int, error) {
	n, err := a.e.callI32(ctx, "attribute_byte_offset", api.EncodeU32(a.ptr))
	return int(n), err
}

func (a *wazeroAttribute) DataType(ctx context.Context) (DataType, error) {
	n, err := a.e.callI32(ctx, "attribute_data_type", api.EncodeU32(a.ptr))
	return DataType(n), err
}

func (a *wazeroAttribute) Normalized(ctx context.Context) (bool, error) {
	return a.e.callBool(ctx, "attribute_normalized", api.EncodeU32(a.ptr))
}

type wazeroArray struct {
	e   *WazeroEngine
	ptr uint32
	dt  DataType
}

func (a *wazeroArray) Release(ctx context.Context) error {
	return a.e.destroy(ctx, "array_destroy", &a.ptr)
}

func (a *wazeroArray) DataType() DataType {
	return a.dt
}

func (a *wazeroArray) Len(ctx context.Context) (int, error) {
	n, err := a.e.callI32(ctx, "array_size", api.EncodeU32(a.ptr))
	return int(n), err
}

func (a *wazeroArray) Bytes(ctx context.Context) ([]byte, error) {
	n, err := a.Len(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	data, err := a.e.callPtr(ctx, "array_data", api.EncodeU32(a.ptr))
	if err != nil {
		return nil, err
	}
	size := uint32(n * a.dt.Width())
	view, ok := a.e.memory.Read(data, size)
	if !ok {
		return nil, errors.New(errors.PhaseExtract, errors.KindEngineCall).
			Detail("array data [%d, +%d) outside guest memory", data, size).
			Build()
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

type wazeroQuantization struct {
	e   *WazeroEngine
	ptr uint32
}

func (q *wazeroQuantization) Release(ctx context.Context) error {
	return q.e.destroy(ctx, "quantization_transform_destroy", &q.ptr)
}

func (q *wazeroQuantization) InitFromAttribute(ctx context.Context, attr Attribute) (bool, error) {
	at, err := asWazero[*wazeroAttribute](attr)
	if err != nil {
		return false, err
	}
	return q.e.callBool(ctx, "quantization_transform_init_from_attribute", api.EncodeU32(q.ptr), api.EncodeU32(at.ptr))
}

func (q *wazeroQuantization) QuantizationBits(ctx context.Context) (int, error) {
	n, err := q.e.callI32(ctx, "quantization_transform_quantization_bits", api.EncodeU32(q.ptr))
	return int(n), err
}

func (q *wazeroQuantization) MinValue(ctx context.Context, component int) (float32, error) {
	r, err := q.e.call(ctx, "quantization_transform_min_value", api.EncodeU32(q.ptr), api.EncodeI32(int32(component)))
	return api.DecodeF32(r), err
}

func (q *wazeroQuantization) Range(ctx context.Context) (float32, error) {
	r, err := q.e.call(ctx, "quantization_transform_range", api.EncodeU32(q.ptr))
	return api.DecodeF32(r), err
}

type wazeroOctahedron struct {
	e   *WazeroEngine
	ptr uint32
}

func (o *wazeroOctahedron) Release(ctx context.Context) error {
	return o.e.destroy(ctx, "octahedron_transform_destroy", &o.ptr)
}

func (o *wazeroOctahedron) InitFromAttribute(ctx context.Context, attr Attribute) (bool, error) {
	at, err := asWazero[*wazeroAttribute](attr)
	if err != nil {
		return false, err
	}
	return o.e.callBool(ctx, "octahedron_transform_init_from_attribute", api.EncodeU32(o.ptr), api.EncodeU32(at.ptr))
}

func (o *wazeroOctahedron) QuantizationBits(ctx context.Context) (int, error) {
	n, err := o.e.callI32(ctx, "octahedron_transform_quantization_bits", api.EncodeU32(o.ptr))
	return int(n), err
}

// asWazero rejects objects allocated by a different engine.
func asWazero[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.InvalidInput(errors.PhaseDecode, fmt.Sprintf("object %T was not allocated by the wazero engine", v))
	}
	return t, nil
}
