package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/draco-worker/decoder"
	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/errors"
)

// Worker owns one engine instance and runs jobs on it one at a time.
type Worker struct {
	mu      sync.Mutex
	session *Session
	closed  bool
	ready   chan struct{}
	logger  *zap.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates an uninitialized worker.
func New(opts ...Option) *Worker {
	w := &Worker{
		ready:  make(chan struct{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Initialize instantiates the engine named by cfg and creates the decode
// session. A nil cfg is a no-op and reports false. Once a bootstrap has
// succeeded further calls fail with KindAlreadyInitialized; a failed
// bootstrap can be retried.
func (w *Worker) Initialize(ctx context.Context, cfg *WebAssemblyConfig) (bool, error) {
	if cfg == nil {
		return false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.session != nil || w.closed {
		return false, errors.AlreadyInitialized("draco worker")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	log := w.logger.With(zap.String("module_path", cfg.ModulePath))
	log.Debug("loading draco module", zap.String("wasm_binary_file", cfg.WasmBinaryFile))

	module, err := engine.Open(ctx, cfg.engineConfig())
	if err != nil {
		log.Error("load draco module", zap.Error(err))
		return false, err
	}

	session, err := NewSession(ctx, module, w.logger)
	if err != nil {
		_ = module.Close(ctx)
		log.Error("create decode session", zap.Error(err))
		return false, err
	}

	w.session = session
	close(w.ready)
	log.Info("draco worker ready")
	return true, nil
}

// Ready is closed once the worker has bootstrapped.
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

// Decode runs one job. Jobs are serialized; a panic inside the engine is
// returned as an error.
func (w *Worker) Decode(ctx context.Context, job *decoder.Job) (result *decoder.Result, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.session == nil {
		return nil, errors.NotInitialized("draco worker")
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("decode panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = nil
			err = errors.New(errors.PhaseDecode, errors.KindEngineCall).
				Detail("panic: %s", fmt.Sprint(r)).
				Build()
		}
	}()

	return w.session.Decode(ctx, job)
}

// Close releases the session. The worker cannot be bootstrapped again.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.session == nil {
		return nil
	}
	err := w.session.Close(ctx)
	w.session = nil
	return err
}
