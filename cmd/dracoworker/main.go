package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/internal/config"
	"github.com/wippyai/draco-worker/worker"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to TOML config file")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		modulePath = flag.String("module", "", "Engine module path (overrides config)")
		wasmFile   = flag.String("wasm", "", "Decoder wasm binary (overrides config)")
		preload    = flag.Bool("preload", false, "Bootstrap from config instead of waiting for webAssemblyConfig")
	)
	flag.Parse()

	var cfg config.Config
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Resolve(config.Flags{
		ModulePath:     *modulePath,
		WasmBinaryFile: *wasmFile,
		LogLevel:       *logLevel,
	})

	logger, err := cfg.Log.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, cfg, *preload); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config, preload bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.SetLogger(logger.Named("engine"))
	w := worker.New(worker.WithLogger(logger))
	defer func() {
		if err := w.Close(context.Background()); err != nil {
			logger.Warn("close worker", zap.Error(err))
		}
	}()

	if preload {
		if _, err := w.Initialize(ctx, &cfg.Engine); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		if _, err := os.Stdout.WriteString("true\n"); err != nil {
			return err
		}
	}

	logger.Info("serving task protocol on stdio",
		zap.Strings("engines", engine.Registered()),
		zap.Bool("preloaded", preload))

	err := w.Serve(ctx, os.Stdin, os.Stdout)
	if err == context.Canceled {
		return nil
	}
	return err
}
