// Package pool spreads decode jobs over several independent workers.
//
// Each worker owns its own engine instance and runs one job at a time;
// the Processor bounds the number of jobs in flight and hands each one
// to an idle worker.
package pool

import (
	"context"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wippyai/draco-worker/decoder"
	"github.com/wippyai/draco-worker/errors"
	"github.com/wippyai/draco-worker/worker"
)

// Config sizes a Processor.
type Config struct {
	// Workers is the number of engine instances. Defaults to GOMAXPROCS.
	Workers int

	// MaxActiveTasks bounds the jobs in flight, queued or running.
	// Defaults to Workers.
	MaxActiveTasks int64

	// WebAssembly bootstraps every worker.
	WebAssembly worker.WebAssemblyConfig
}

// Processor runs jobs on a fixed set of bootstrapped workers.
// Processor is safe for concurrent use.
type Processor struct {
	workers []*worker.Worker
	idle    chan *worker.Worker
	sem     *semaphore.Weighted
	limit   int64
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger handed to every worker.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New bootstraps cfg.Workers workers concurrently. If any bootstrap
// fails the ones already running are closed and the first error is
// returned.
func New(ctx context.Context, cfg Config, opts ...Option) (*Processor, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxActiveTasks <= 0 {
		cfg.MaxActiveTasks = int64(cfg.Workers)
	}

	p := &Processor{
		workers: make([]*worker.Worker, cfg.Workers),
		idle:    make(chan *worker.Worker, cfg.Workers),
		sem:     semaphore.NewWeighted(cfg.MaxActiveTasks),
		limit:   cfg.MaxActiveTasks,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.workers {
		w := worker.New(worker.WithLogger(p.logger.With(zap.Int("worker", i))))
		p.workers[i] = w
		g.Go(func() error {
			_, err := w.Initialize(gctx, &cfg.WebAssembly)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		_ = p.closeWorkers(context.WithoutCancel(ctx))
		return nil, err
	}

	for _, w := range p.workers {
		p.idle <- w
	}
	p.logger.Info("decode pool ready",
		zap.Int("workers", cfg.Workers),
		zap.Int64("max_active_tasks", cfg.MaxActiveTasks))
	return p, nil
}

// Size returns the number of workers.
func (p *Processor) Size() int {
	return len(p.workers)
}

// Submit waits for a slot and an idle worker, then decodes job on it.
// Jobs without an id get a random one so their logs can be correlated.
func (p *Processor) Submit(ctx context.Context, job *decoder.Job) (*decoder.Result, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errors.NotInitialized("decode pool")
	}
	if job == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "nil job")
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	var w *worker.Worker
	select {
	case w = <-p.idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.idle <- w }()

	if job.ID == "" {
		j := *job
		j.ID = uuid.NewString()
		job = &j
	}
	p.logger.Debug("submit job", zap.String("job", job.ID))
	return w.Decode(ctx, job)
}

// Close waits for in-flight jobs and closes every worker. Later
// submissions fail with KindNotInitialized.
func (p *Processor) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, p.limit); err != nil {
		return err
	}
	defer p.sem.Release(p.limit)
	return p.closeWorkers(ctx)
}

func (p *Processor) closeWorkers(ctx context.Context) error {
	var errs []error
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		if err := w.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
