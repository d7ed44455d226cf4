package decoder

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/errors"
	"github.com/wippyai/draco-worker/resource"
)

// State is a step of the per job state machine.
type State uint8

const (
	StateStart State = iota
	StateBufferWrapped
	StateGeometryValidated
	StateMeshDecoded
	StateIndicesExtracted
	StateAttributesExtracted
	StateMeshReleased
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateBufferWrapped:
		return "buffer_wrapped"
	case StateGeometryValidated:
		return "geometry_validated"
	case StateMeshDecoded:
		return "mesh_decoded"
	case StateIndicesExtracted:
		return "indices_extracted"
	case StateAttributesExtracted:
		return "attributes_extracted"
	case StateMeshReleased:
		return "mesh_released"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Decoder runs jobs against one engine module. It keeps no state between
// jobs; every engine object a job allocates is released before Decode
// returns.
//
// Decoder is NOT safe for concurrent use with the same engine decoder.
type Decoder struct {
	module engine.Module
	logger *zap.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger. State transitions are logged at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a decoder over module.
func New(module engine.Module, opts ...Option) *Decoder {
	d := &Decoder{
		module: module,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decodes job with the engine decoder dec.
func (d *Decoder) Decode(ctx context.Context, dec engine.Decoder, job *Job) (result *Result, err error) {
	if job == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "nil job")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	byteLength, err := job.byteLength()
	if err != nil {
		return nil, err
	}

	log := d.logger.With(zap.String("job", job.ID))
	state := StateStart
	enter := func(s State) {
		state = s
		log.Debug("decode state", zap.Stringer("state", s))
	}
	enter(StateStart)

	scope := resource.NewScope()
	defer func() {
		if cerr := scope.Close(ctx); cerr != nil {
			log.Warn("release engine objects", zap.Error(cerr))
			result = nil
			err = errors.Join(err, cerr)
		}
		if err != nil {
			log.Debug("decode failed", zap.Stringer("after", state), zap.Error(err))
			enter(StateFailed)
		}
	}()

	if job.DequantizeInShader {
		for _, t := range engine.SemanticAttributeTypes {
			if err := dec.SkipAttributeTransform(ctx, t); err != nil {
				return nil, engineErr(errors.PhaseDecode, "skip attribute transform", err)
			}
		}
	}

	buf, err := d.module.NewBuffer(ctx, job.Array, byteLength)
	if err != nil {
		return nil, engineErr(errors.PhaseDecode, "create buffer", err)
	}
	buffer := resource.Own(scope, "buffer", buf)
	enter(StateBufferWrapped)

	geometryType, err := dec.EncodedGeometryType(ctx, buf)
	if err != nil {
		return nil, engineErr(errors.PhaseValidate, "get encoded geometry type", err)
	}
	if geometryType != engine.TriangularMesh {
		return nil, errors.UnsupportedGeometry(int32(geometryType))
	}
	enter(StateGeometryValidated)

	m, err := d.module.NewMesh(ctx)
	if err != nil {
		return nil, engineErr(errors.PhaseDecode, "create mesh", err)
	}
	mesh := resource.Own(scope, "mesh", m)

	status, err := dec.DecodeBufferToMesh(ctx, buf, m)
	if rerr := buffer.Release(ctx); err == nil && rerr != nil {
		err = rerr
	}
	if err != nil {
		return nil, engineErr(errors.PhaseDecode, "decode buffer to mesh", err)
	}
	if !status.OK || !m.Valid() {
		return nil, errors.DecodeFailure(status.Message)
	}
	enter(StateMeshDecoded)

	indices, err := d.decodeIndexArray(ctx, dec, m, scope)
	if err != nil {
		return nil, err
	}
	enter(StateIndicesExtracted)

	attributes, err := d.decodeAttributeData(ctx, dec, m, job.CompressedAttributes, scope)
	if err != nil {
		return nil, err
	}
	enter(StateAttributesExtracted)

	if err := mesh.Release(ctx); err != nil {
		return nil, err
	}
	enter(StateMeshReleased)

	log.Debug("decoded mesh",
		zap.Int("indices", indices.NumberOfIndices),
		zap.Int("attributes", len(attributes)))
	enter(StateDone)

	return &Result{
		IndexArray:    indices,
		AttributeData: attributes,
	}, nil
}

// engineErr tags a raw engine failure. Errors that already carry a phase
// pass through unchanged.
func engineErr(phase errors.Phase, call string, err error) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	return errors.EngineCall(phase, call, err)
}
