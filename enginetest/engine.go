package enginetest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/wippyai/draco-worker/datatype"
	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/resource"
)

// Call names recorded by Calls and accepted by FailOn.
const (
	CallOpen                   = "Open"
	CallNewDecoder             = "NewDecoder"
	CallNewBuffer              = "NewBuffer"
	CallNewMesh                = "NewMesh"
	CallNewArray               = "NewArray"
	CallNewQuantization        = "NewQuantizationTransform"
	CallNewOctahedron          = "NewOctahedronTransform"
	CallSkipAttributeTransform = "SkipAttributeTransform"
	CallEncodedGeometryType    = "EncodedGeometryType"
	CallDecodeBufferToMesh     = "DecodeBufferToMesh"
	CallFaceFromMesh           = "FaceFromMesh"
	CallAttributeByUniqueID    = "AttributeByUniqueID"
	CallAttributeForAllPoints  = "AttributeForAllPoints"
	CallInitFromAttribute      = "InitFromAttribute"
	CallRelease                = "Release"
	CallClose                  = "Close"
)

// Call is one recorded engine call.
type Call struct {
	Name string
	Arg  string
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Name
	}
	return c.Name + "(" + c.Arg + ")"
}

// Engine is an in-memory engine.Module. Every object it hands out is
// tracked in a resource table so tests can assert nothing leaks.
//
// Engine is safe for concurrent use.
type Engine struct {
	table   *resource.Table
	counter *resource.Counter

	mu       sync.Mutex
	calls    []Call
	failures map[string]error
	nullMesh bool
	closed   bool
}

var _ engine.Module = (*Engine)(nil)

// New creates an engine with empty counters.
func New() *Engine {
	e := &Engine{
		table:    resource.NewTable(),
		counter:  resource.NewCounter(),
		failures: make(map[string]error),
	}
	e.table.Subscribe(e.counter)
	return e
}

// Factory returns an engine.Factory that always yields e.
func (e *Engine) Factory() engine.Factory {
	return func(ctx context.Context, cfg engine.Config) (engine.Module, error) {
		if err := e.enter(CallOpen, cfg.ModulePath); err != nil {
			return nil, err
		}
		return e, nil
	}
}

var registered atomic.Int64

// Register registers e under a fresh module path and returns the path.
func (e *Engine) Register() string {
	path := fmt.Sprintf("enginetest/%d", registered.Add(1))
	engine.Register(path, e.Factory())
	return path
}

// FailOn makes every later call named call fail with err. A nil err
// clears the failure.
func (e *Engine) FailOn(call string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, call)
		return
	}
	e.failures[call] = err
}

// SetNullMesh makes successful decodes leave the mesh without a live
// engine object, as a broken engine build would.
func (e *Engine) SetNullMesh(null bool) {
	e.mu.Lock()
	e.nullMesh = null
	e.mu.Unlock()
}

// Calls returns every call recorded so far, in order.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallIndex returns the position of the first call matching name and arg
// (arg "" matches any), or -1.
func (e *Engine) CallIndex(name, arg string) int {
	for i, c := range e.Calls() {
		if c.Name == name && (arg == "" || c.Arg == arg) {
			return i
		}
	}
	return -1
}

// ResetCalls clears the call log. Counters are kept.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	e.calls = nil
	e.mu.Unlock()
}

// Live returns the number of allocated, unreleased objects.
func (e *Engine) Live() int {
	return e.table.Len()
}

// Leaked returns the live objects other than decoders, which legitimately
// outlive a job.
func (e *Engine) Leaked() int {
	n := 0
	e.table.Each(func(_ resource.Handle, k resource.Kind, _ any) bool {
		if k != resource.KindDecoder {
			n++
		}
		return true
	})
	return n
}

// Allocs returns the total number of allocations.
func (e *Engine) Allocs() int { return e.counter.Allocs() }

// Frees returns the total number of releases.
func (e *Engine) Frees() int { return e.counter.Frees() }

// Created returns the number of objects of kind allocated.
func (e *Engine) Created(kind resource.Kind) int { return e.counter.Created(kind) }

// DoubleReleases returns the number of releases of already released objects.
func (e *Engine) DoubleReleases() int { return e.counter.DoubleDrops() }

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) enter(call, arg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Name: call, Arg: arg})
	return e.failures[call]
}

func (e *Engine) alloc(call string, kind resource.Kind, v any) (resource.Handle, error) {
	if err := e.enter(call, ""); err != nil {
		return 0, err
	}
	return e.table.Insert(kind, v)
}

func (e *Engine) free(kind resource.Kind, h resource.Handle) error {
	err := e.enter(CallRelease, kind.String())
	if _, ok := e.table.Remove(h); !ok {
		return fmt.Errorf("enginetest: %s handle %d released twice", kind, h)
	}
	return err
}

func (e *Engine) NewDecoder(ctx context.Context) (engine.Decoder, error) {
	d := &decoder{e: e, skipped: make(map[engine.AttributeType]bool)}
	h, err := e.alloc(CallNewDecoder, resource.KindDecoder, d)
	if err != nil {
		return nil, err
	}
	d.h = h
	return d, nil
}

func (e *Engine) NewBuffer(ctx context.Context, data []byte, byteLength int) (engine.Buffer, error) {
	if byteLength < 0 || byteLength > len(data) {
		return nil, fmt.Errorf("enginetest: byte length %d outside buffer of %d bytes", byteLength, len(data))
	}
	b := &buffer{e: e, data: append([]byte(nil), data[:byteLength]...)}
	h, err := e.alloc(CallNewBuffer, resource.KindBuffer, b)
	if err != nil {
		return nil, err
	}
	b.h = h
	return b, nil
}

func (e *Engine) NewMesh(ctx context.Context) (engine.Mesh, error) {
	m := &mesh{e: e}
	h, err := e.alloc(CallNewMesh, resource.KindMesh, m)
	if err != nil {
		return nil, err
	}
	m.h = h
	return m, nil
}

func (e *Engine) NewArray(ctx context.Context, dt engine.DataType) (engine.Array, error) {
	if dt.Width() == 0 {
		return nil, fmt.Errorf("enginetest: engine cannot surface data type %d", dt)
	}
	a := &array{e: e, dt: dt}
	h, err := e.alloc(CallNewArray, resource.KindArray, a)
	if err != nil {
		return nil, err
	}
	a.h = h
	return a, nil
}

func (e *Engine) NewQuantizationTransform(ctx context.Context) (engine.QuantizationTransform, error) {
	q := &quantization{e: e}
	h, err := e.alloc(CallNewQuantization, resource.KindQuantizationTransform, q)
	if err != nil {
		return nil, err
	}
	q.h = h
	return q, nil
}

func (e *Engine) NewOctahedronTransform(ctx context.Context) (engine.OctahedronTransform, error) {
	o := &octahedron{e: e}
	h, err := e.alloc(CallNewOctahedron, resource.KindOctahedronTransform, o)
	if err != nil {
		return nil, err
	}
	o.h = h
	return o, nil
}

// Close stops further allocations. Live objects stay countable.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.enter(CallClose, ""); err != nil {
		return err
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.table.Close()
}

type decoder struct {
	e       *Engine
	h       resource.Handle
	mu      sync.Mutex
	skipped map[engine.AttributeType]bool
}

func (d *decoder) Release(ctx context.Context) error {
	return d.e.free(resource.KindDecoder, d.h)
}

func (d *decoder) SkipAttributeTransform(ctx context.Context, t engine.AttributeType) error {
	if err := d.e.enter(CallSkipAttributeTransform, t.String()); err != nil {
		return err
	}
	d.mu.Lock()
	d.skipped[t] = true
	d.mu.Unlock()
	return nil
}

func (d *decoder) snapshot() map[engine.AttributeType]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[engine.AttributeType]bool, len(d.skipped))
	for k, v := range d.skipped {
		out[k] = v
	}
	return out
}

func (d *decoder) EncodedGeometryType(ctx context.Context, buf engine.Buffer) (engine.GeometryType, error) {
	if err := d.e.enter(CallEncodedGeometryType, ""); err != nil {
		return engine.InvalidGeometryType, err
	}
	b, err := lookup[*buffer](d.e, buf)
	if err != nil {
		return engine.InvalidGeometryType, err
	}
	spec, ok := parse(b.data)
	if !ok {
		return engine.InvalidGeometryType, nil
	}
	return spec.GeometryType, nil
}

func (d *decoder) DecodeBufferToMesh(ctx context.Context, buf engine.Buffer, m engine.Mesh) (engine.Status, error) {
	if err := d.e.enter(CallDecodeBufferToMesh, ""); err != nil {
		return engine.Status{}, err
	}
	b, err := lookup[*buffer](d.e, buf)
	if err != nil {
		return engine.Status{}, err
	}
	out, err := lookup[*mesh](d.e, m)
	if err != nil {
		return engine.Status{}, err
	}

	spec, ok := parse(b.data)
	switch {
	case !ok:
		return engine.Status{Message: notDraco}, nil
	case spec.DecodeError != "":
		return engine.Status{Message: spec.DecodeError}, nil
	case spec.GeometryType != engine.TriangularMesh:
		return engine.Status{Message: "Input is not a mesh."}, nil
	}

	d.e.mu.Lock()
	null := d.e.nullMesh
	d.e.mu.Unlock()
	if !null {
		out.spec = spec
		out.skipped = d.snapshot()
	}
	out.null = null
	return engine.Status{OK: true}, nil
}

func (d *decoder) FaceFromMesh(ctx context.Context, m engine.Mesh, face int, out engine.Array) (bool, error) {
	if err := d.e.enter(CallFaceFromMesh, ""); err != nil {
		return false, err
	}
	ms, err := lookup[*mesh](d.e, m)
	if err != nil {
		return false, err
	}
	a, err := lookup[*array](d.e, out)
	if err != nil {
		return false, err
	}
	if ms.spec == nil || face < 0 || face >= len(ms.spec.Faces) {
		return false, nil
	}
	f := ms.spec.Faces[face]
	return a.store([]float64{float64(f[0]), float64(f[1]), float64(f[2])}), nil
}

func (d *decoder) AttributeByUniqueID(ctx context.Context, m engine.Mesh, id int) (engine.Attribute, error) {
	if err := d.e.enter(CallAttributeByUniqueID, fmt.Sprint(id)); err != nil {
		return nil, err
	}
	ms, err := lookup[*mesh](d.e, m)
	if err != nil {
		return nil, err
	}
	if ms.spec == nil {
		return nil, nil
	}
	for i := range ms.spec.Attributes {
		spec := &ms.spec.Attributes[i]
		if spec.UniqueID != id {
			continue
		}
		hasTransform := spec.Quantization != nil || spec.Octahedron != nil
		return &attribute{
			spec:    spec,
			applied: hasTransform && !ms.skipped[spec.Type],
		}, nil
	}
	return nil, nil
}

func (d *decoder) AttributeForAllPoints(ctx context.Context, m engine.Mesh, attr engine.Attribute, out engine.Array) (bool, error) {
	if err := d.e.enter(CallAttributeForAllPoints, out.DataType().String()); err != nil {
		return false, err
	}
	ms, err := lookup[*mesh](d.e, m)
	if err != nil {
		return false, err
	}
	at, err := as[*attribute](attr)
	if err != nil {
		return false, err
	}
	a, err := lookup[*array](d.e, out)
	if err != nil {
		return false, err
	}
	if ms.spec == nil {
		return false, nil
	}
	values := at.values()
	if len(values) != ms.spec.NumPoints*at.components() {
		return false, nil
	}
	return a.store(values), nil
}

type buffer struct {
	e    *Engine
	h    resource.Handle
	data []byte
}

func (b *buffer) Release(ctx context.Context) error {
	return b.e.free(resource.KindBuffer, b.h)
}

// Drop discards the copied input once the handle is removed.
func (b *buffer) Drop() { b.data = nil }

type mesh struct {
	e       *Engine
	h       resource.Handle
	spec    *MeshSpec
	skipped map[engine.AttributeType]bool
	null    bool
}

func (m *mesh) Release(ctx context.Context) error {
	return m.e.free(resource.KindMesh, m.h)
}

func (m *mesh) Valid() bool {
	return !m.null
}

func (m *mesh) NumPoints(ctx context.Context) (int, error) {
	if m.spec == nil {
		return 0, nil
	}
	return m.spec.NumPoints, nil
}

func (m *mesh) NumFaces(ctx context.Context) (int, error) {
	if m.spec == nil {
		return 0, nil
	}
	return len(m.spec.Faces), nil
}

// attribute is the decoded view of an AttributeSpec. When applied is set
// the engine has already reconstructed float values from the transform.
type attribute struct {
	spec    *AttributeSpec
	applied bool
}

func (a *attribute) components() int {
	if a.applied && a.spec.Octahedron != nil {
		return 3
	}
	return a.spec.NumComponents
}

func (a *attribute) values() []float64 {
	if !a.applied {
		return a.spec.Values
	}
	if q := a.spec.Quantization; q != nil {
		out := make([]float64, len(a.spec.Values))
		nc := a.spec.NumComponents
		for i, v := range a.spec.Values {
			var min float32
			if c := i % nc; c < len(q.MinValues) {
				min = q.MinValues[c]
			}
			out[i] = float64(datatype.Dequantize(uint32(v), q.Bits, min, q.Range))
		}
		return out
	}
	bits := a.spec.Octahedron.Bits
	out := make([]float64, 0, len(a.spec.Values)/2*3)
	for i := 0; i+1 < len(a.spec.Values); i += 2 {
		v := datatype.OctDecode(uint32(a.spec.Values[i]), uint32(a.spec.Values[i+1]), bits)
		out = append(out, float64(v[0]), float64(v[1]), float64(v[2]))
	}
	return out
}

func (a *attribute) NumComponents(ctx context.Context) (int, error) {
	return a.components(), nil
}

func (a *attribute) ByteOffset(ctx context.Context) (int, error) {
	return a.spec.ByteOffset, nil
}

func (a *attribute) DataType(ctx context.Context) (engine.DataType, error) {
	if a.applied {
		return engine.DTFloat32, nil
	}
	return a.spec.DataType, nil
}

func (a *attribute) Normalized(ctx context.Context) (bool, error) {
	return a.spec.Normalized, nil
}

type array struct {
	e    *Engine
	h    resource.Handle
	dt   engine.DataType
	mu   sync.Mutex
	data []byte
	n    int
}

func (a *array) Release(ctx context.Context) error {
	return a.e.free(resource.KindArray, a.h)
}

func (a *array) Drop() {
	a.mu.Lock()
	a.data, a.n = nil, 0
	a.mu.Unlock()
}

func (a *array) DataType() engine.DataType {
	return a.dt
}

func (a *array) Len(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n, nil
}

func (a *array) Bytes(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.data...), nil
}

// store converts values to the array's datatype with Go conversion rules,
// so 64-bit sources keep their low 32 bits.
func (a *array) store(values []float64) bool {
	var out datatype.TypedArray
	switch a.dt {
	case engine.DTInt8, engine.DTBool:
		out = datatype.Int8Array(datatype.Convert[int8](toInt64(values)))
	case engine.DTUint8:
		out = datatype.Uint8Array(datatype.Convert[uint8](toInt64(values)))
	case engine.DTInt16:
		out = datatype.Int16Array(datatype.Convert[int16](toInt64(values)))
	case engine.DTUint16:
		out = datatype.Uint16Array(datatype.Convert[uint16](toInt64(values)))
	case engine.DTInt32:
		out = datatype.Int32Array(datatype.Convert[int32](toInt64(values)))
	case engine.DTUint32:
		out = datatype.Uint32Array(datatype.Convert[uint32](toUint64(values)))
	case engine.DTFloat32:
		out = datatype.Float32Array(datatype.Convert[float32](values))
	default:
		return false
	}
	a.mu.Lock()
	a.data = out.Bytes()
	a.n = out.Len()
	a.mu.Unlock()
	return true
}

func toInt64(values []float64) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(math.Round(v))
	}
	return out
}

func toUint64(values []float64) []uint64 {
	out := make([]uint64, len(values))
	for i, v := range values {
		if v < 0 {
			out[i] = uint64(int64(math.Round(v)))
			continue
		}
		out[i] = uint64(math.Round(v))
	}
	return out
}

type quantization struct {
	e    *Engine
	h    resource.Handle
	spec *QuantizationSpec
}

func (q *quantization) Release(ctx context.Context) error {
	return q.e.free(resource.KindQuantizationTransform, q.h)
}

func (q *quantization) InitFromAttribute(ctx context.Context, attr engine.Attribute) (bool, error) {
	if err := q.e.enter(CallInitFromAttribute, "quantization"); err != nil {
		return false, err
	}
	at, err := as[*attribute](attr)
	if err != nil {
		return false, err
	}
	if at.applied || at.spec.Quantization == nil {
		return false, nil
	}
	q.spec = at.spec.Quantization
	return true, nil
}

func (q *quantization) QuantizationBits(ctx context.Context) (int, error) {
	if q.spec == nil {
		return 0, nil
	}
	return q.spec.Bits, nil
}

func (q *quantization) MinValue(ctx context.Context, component int) (float32, error) {
	if q.spec == nil || component < 0 || component >= len(q.spec.MinValues) {
		return 0, nil
	}
	return q.spec.MinValues[component], nil
}

func (q *quantization) Range(ctx context.Context) (float32, error) {
	if q.spec == nil {
		return 0, nil
	}
	return q.spec.Range, nil
}

type octahedron struct {
	e    *Engine
	h    resource.Handle
	spec *OctahedronSpec
}

func (o *octahedron) Release(ctx context.Context) error {
	return o.e.free(resource.KindOctahedronTransform, o.h)
}

func (o *octahedron) InitFromAttribute(ctx context.Context, attr engine.Attribute) (bool, error) {
	if err := o.e.enter(CallInitFromAttribute, "octahedron"); err != nil {
		return false, err
	}
	at, err := as[*attribute](attr)
	if err != nil {
		return false, err
	}
	if at.applied || at.spec.Octahedron == nil {
		return false, nil
	}
	o.spec = at.spec.Octahedron
	return true, nil
}

func (o *octahedron) QuantizationBits(ctx context.Context) (int, error) {
	if o.spec == nil {
		return 0, nil
	}
	return o.spec.Bits, nil
}

func as[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("enginetest: object %T was not allocated by this engine", v)
	}
	return t, nil
}

// tracked is an engine object stored in the handle table.
type tracked interface {
	ref() (resource.Handle, resource.Kind)
}

func (b *buffer) ref() (resource.Handle, resource.Kind) { return b.h, resource.KindBuffer }
func (m *mesh) ref() (resource.Handle, resource.Kind)   { return m.h, resource.KindMesh }
func (a *array) ref() (resource.Handle, resource.Kind)  { return a.h, resource.KindArray }

// lookup resolves an argument through the handle table, so objects that
// were already released, or belong to another engine, are rejected.
func lookup[T tracked](e *Engine, v any) (T, error) {
	t, err := as[T](v)
	if err != nil {
		return t, err
	}
	h, kind := t.ref()
	if stored, ok := e.table.GetTyped(h, kind); !ok || stored != any(t) {
		var zero T
		return zero, fmt.Errorf("enginetest: %s handle %d is not live", kind, h)
	}
	return t, nil
}
