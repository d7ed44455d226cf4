package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/draco-worker/decoder"
	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/errors"
)

// Session holds the engine decoders reused by every job.
//
// Skip transform instructions stick to an engine decoder, so jobs that
// keep quantized values run on a separate decoder created on first use.
// The plain decoder never sees a skip.
//
// Session is NOT safe for concurrent use.
type Session struct {
	module   engine.Module
	decoder  *decoder.Decoder
	plain    engine.Decoder
	deferred engine.Decoder
	logger   *zap.Logger
}

// NewSession creates the plain engine decoder on module.
func NewSession(ctx context.Context, module engine.Module, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	plain, err := module.NewDecoder(ctx)
	if err != nil {
		return nil, errors.EngineCall(errors.PhaseBootstrap, "create decoder", err)
	}
	return &Session{
		module:  module,
		decoder: decoder.New(module, decoder.WithLogger(logger)),
		plain:   plain,
		logger:  logger,
	}, nil
}

// Decode runs job on the decoder matching its dequantization mode.
func (s *Session) Decode(ctx context.Context, job *decoder.Job) (*decoder.Result, error) {
	dec := s.plain
	if job != nil && job.DequantizeInShader {
		if s.deferred == nil {
			d, err := s.module.NewDecoder(ctx)
			if err != nil {
				return nil, errors.EngineCall(errors.PhaseBootstrap, "create deferred decoder", err)
			}
			s.deferred = d
			s.logger.Debug("created deferred dequantization decoder")
		}
		dec = s.deferred
	}
	return s.decoder.Decode(ctx, dec, job)
}

// Close releases the engine decoders and closes the module.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	for _, d := range []engine.Decoder{s.deferred, s.plain} {
		if d == nil {
			continue
		}
		if err := d.Release(ctx); err != nil {
			errs = append(errs, errors.Release("decoder", err))
		}
	}
	s.deferred, s.plain = nil, nil
	if err := s.module.Close(ctx); err != nil {
		errs = append(errs, errors.Release("engine module", err))
	}
	return errors.Join(errs...)
}
