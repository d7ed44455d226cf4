package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/draco-worker/decoder"
	"github.com/wippyai/draco-worker/internal/config"
	"github.com/wippyai/draco-worker/internal/payload"
	"github.com/wippyai/draco-worker/pool"
)

type batchResult struct {
	result      *decoder.Result
	compression payload.Compression
	err         error
}

// runBatch decodes every input on a pool sized by cfg.Pool and prints the
// summaries in input order. A failed input does not stop the others.
func runBatch(ctx context.Context, logger *zap.Logger, cfg config.Config, opts options, out io.Writer, styled bool) error {
	p, err := pool.New(ctx, pool.Config{
		Workers:        cfg.Pool.Workers,
		MaxActiveTasks: cfg.Pool.MaxActiveTasks,
		WebAssembly:    cfg.Engine,
	}, pool.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("bootstrap pool: %w", err)
	}
	defer func() {
		if cerr := p.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("close pool", zap.Error(cerr))
		}
	}()

	results := make([]batchResult, len(opts.batch))
	var g errgroup.Group
	for i, path := range opts.batch {
		g.Go(func() error {
			r, c, err := decodeFile(ctx, p.Submit, path, opts)
			results[i] = batchResult{result: r, compression: c, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, path := range opts.batch {
		r := results[i]
		if r.err != nil {
			failed++
			fmt.Fprintln(out, renderError(fmt.Errorf("%s: %w", path, r.err), styled))
			continue
		}
		fmt.Fprintln(out, renderSummary(path, r.compression, r.result, opts.rows, styled))
	}
	logger.Debug("batch decoded",
		zap.Int("inputs", len(opts.batch)),
		zap.Int("failed", failed),
		zap.Int("workers", p.Size()))
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(opts.batch))
	}
	return nil
}
