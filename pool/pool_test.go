package pool

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/draco-worker/decoder"
	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/enginetest"
	"github.com/wippyai/draco-worker/errors"
	"github.com/wippyai/draco-worker/worker"
)

// gauge records how many buffers are being created at once.
type gauge struct {
	*enginetest.Engine
	active *atomic.Int32
	peak   *atomic.Int32
}

func (g gauge) NewBuffer(ctx context.Context, data []byte, byteLength int) (engine.Buffer, error) {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	g.active.Add(-1)
	return g.Engine.NewBuffer(ctx, data, byteLength)
}

// register makes eng available to workers and returns the module path.
func register(eng *enginetest.Engine, peak *atomic.Int32) string {
	path := fmt.Sprintf("pool-test/%p", eng)
	active := new(atomic.Int32)
	engine.Register(path, func(context.Context, engine.Config) (engine.Module, error) {
		return gauge{Engine: eng, active: active, peak: peak}, nil
	})
	return path
}

var quad = enginetest.Encode(enginetest.Quad().With(enginetest.AttributeSpec{
	UniqueID:      0,
	Type:          engine.Position,
	DataType:      engine.DTFloat32,
	NumComponents: 3,
	Values:        []float64{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0},
}))

func TestProcessor_BoundsConcurrency(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		maxActive int64
		wantPeak  int32
	}{
		{"limited by tasks", 4, 2, 2},
		{"limited by workers", 2, 8, 2},
		{"single", 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			eng := enginetest.New()
			peak := new(atomic.Int32)

			p, err := New(ctx, Config{
				Workers:        tt.workers,
				MaxActiveTasks: tt.maxActive,
				WebAssembly:    worker.WebAssemblyConfig{ModulePath: register(eng, peak)},
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if p.Size() != tt.workers {
				t.Errorf("Size = %d", p.Size())
			}

			var g errgroup.Group
			for i := 0; i < 16; i++ {
				g.Go(func() error {
					result, err := p.Submit(ctx, &decoder.Job{
						Array:                quad,
						CompressedAttributes: map[string]int{"POSITION": 0},
					})
					if err != nil {
						return err
					}
					if result.IndexArray.NumberOfIndices != 6 {
						return fmt.Errorf("got %d indices", result.IndexArray.NumberOfIndices)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}

			if got := peak.Load(); got > tt.wantPeak || got < 1 {
				t.Errorf("peak concurrency = %d, want at most %d", got, tt.wantPeak)
			}
			if n := eng.Leaked(); n != 0 {
				t.Errorf("%d engine objects leaked", n)
			}

			if err := p.Close(ctx); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
			if n := eng.Live(); n != 0 {
				t.Errorf("%d engine objects live after Close", n)
			}
		})
	}
}

func TestProcessor_BootstrapFailure(t *testing.T) {
	eng := enginetest.New()
	injected := stderrors.New("decoder unavailable")
	eng.FailOn(enginetest.CallNewDecoder, injected)

	_, err := New(context.Background(), Config{
		Workers:     3,
		WebAssembly: worker.WebAssemblyConfig{ModulePath: eng.Register()},
	})
	if !stderrors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if eng.Live() != 0 {
		t.Errorf("%d engine objects live after failed bootstrap", eng.Live())
	}
}

func TestProcessor_AssignsJobIDs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := context.Background()
	eng := enginetest.New()

	p, err := New(ctx, Config{
		Workers:     1,
		WebAssembly: worker.WebAssemblyConfig{ModulePath: eng.Register()},
	}, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	job := &decoder.Job{Array: quad}
	if _, err := p.Submit(ctx, job); err != nil {
		t.Fatal(err)
	}
	if job.ID != "" {
		t.Errorf("caller's job was modified: %q", job.ID)
	}

	entries := logs.FilterMessage("submit job").All()
	if len(entries) != 1 {
		t.Fatalf("got %d submit entries", len(entries))
	}
	id := entries[0].ContextMap()["job"].(string)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("job id %q is not a uuid: %v", id, err)
	}

	if _, err := p.Submit(ctx, &decoder.Job{ID: "given", Array: quad}); err != nil {
		t.Fatal(err)
	}
	if got := logs.FilterField(zap.String("job", "given")).Len(); got == 0 {
		t.Error("explicit job id not kept")
	}
}

func TestProcessor_SubmitErrors(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	p, err := New(ctx, Config{
		Workers:     1,
		WebAssembly: worker.WebAssemblyConfig{ModulePath: eng.Register()},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Submit(ctx, nil); err == nil {
		t.Error("nil job accepted")
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := p.Submit(canceled, &decoder.Job{Array: quad}); !stderrors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if _, err := p.Submit(ctx, &decoder.Job{Array: []byte("garbage")}); !errors.Is(err, errors.ErrUnsupportedGeometry) {
		t.Errorf("expected ErrUnsupportedGeometry, got %v", err)
	}

	if err := p.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(ctx); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := p.Submit(ctx, &decoder.Job{Array: quad}); !errors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("Submit after Close = %v", err)
	}
}
