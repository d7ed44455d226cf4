package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/draco-worker/decoder"
	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/enginetest"
	"github.com/wippyai/draco-worker/internal/config"
	"github.com/wippyai/draco-worker/internal/payload"
	"github.com/wippyai/draco-worker/worker"
)

// referenceModulePath decodes containers written by enginetest.Encode,
// which is handy for trying the tool without a decoder binary.
const referenceModulePath = "enginetest"

func init() {
	engine.Register(referenceModulePath, enginetest.New().Factory())
}

// attrFlags collects repeated -attr name=id flags.
type attrFlags map[string]int

func (a attrFlags) String() string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, a[name])
	}
	return strings.Join(parts, ",")
}

func (a attrFlags) Set(v string) error {
	name, id, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=id, got %q", v)
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	a[name] = n
	return nil
}

type options struct {
	input       string
	batch       []string
	attrs       attrFlags
	dequantize  bool
	interactive bool
	watch       bool
	rows        int
}

func main() {
	opts := options{attrs: attrFlags{}}
	var (
		configFile = flag.String("config", "", "Path to TOML config file")
		modulePath = flag.String("module", "", "Engine module path (overrides config)")
		wasmFile   = flag.String("wasm", "", "Decoder wasm binary (overrides config)")
		logLevel   = flag.String("log-level", "warn", "Log level")
	)
	flag.StringVar(&opts.input, "in", "", "Compressed mesh file (.drc, .zst, .lz4)")
	flag.Var(opts.attrs, "attr", "Attribute to extract as name=uniqueId (repeatable)")
	flag.BoolVar(&opts.dequantize, "dequantize", false, "Keep quantized values (dequantize in shader)")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&opts.watch, "watch", false, "Decode again whenever the input changes")
	flag.IntVar(&opts.rows, "rows", 4, "Vertices to preview per attribute")
	workers := flag.Int("workers", 0, "Decode pool size for several inputs (overrides config)")
	flag.Parse()

	opts.batch = flag.Args()
	if opts.input != "" && len(opts.batch) > 0 {
		opts.batch = append([]string{opts.input}, opts.batch...)
	}
	if opts.input == "" && len(opts.batch) == 1 {
		opts.input, opts.batch = opts.batch[0], nil
	}
	if opts.input == "" && len(opts.batch) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: inspect -in <mesh.drc> [-attr POSITION=0 ...] [-dequantize]")
		fmt.Fprintln(os.Stderr, "       inspect -in <mesh.drc> -i      (interactive mode)")
		fmt.Fprintln(os.Stderr, "       inspect -in <mesh.drc> -watch  (decode on change)")
		fmt.Fprintln(os.Stderr, "       inspect [-workers N] a.drc b.drc ...  (decode on a pool)")
		os.Exit(1)
	}
	if len(opts.batch) > 0 && (opts.interactive || opts.watch) {
		fmt.Fprintln(os.Stderr, "Error: -i and -watch take a single input")
		os.Exit(1)
	}

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
		Workers:        *workers,
	})

	logger, err := cfg.Log.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	engine.SetLogger(logger.Named("engine"))

	if err := run(logger, cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	styled := term.IsTerminal(int(os.Stdout.Fd()))
	if len(opts.batch) > 0 {
		return runBatch(ctx, logger, cfg, opts, os.Stdout, styled)
	}

	w := worker.New(worker.WithLogger(logger))
	if _, err := w.Initialize(ctx, &cfg.Engine); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer w.Close(context.Background())

	if opts.interactive {
		return runInteractive(ctx, w, opts)
	}

	if err := decodeAndPrint(ctx, w, opts, styled); err != nil && !opts.watch {
		return err
	}
	if !opts.watch {
		return nil
	}
	return watch(ctx, opts.input, func() {
		if err := decodeAndPrint(ctx, w, opts, styled); err != nil {
			logger.Warn("decode after change", zap.Error(err))
		}
	})
}

// decodeFunc runs one job, on a single worker or on a pool.
type decodeFunc func(ctx context.Context, job *decoder.Job) (*decoder.Result, error)

func decodeFile(ctx context.Context, decode decodeFunc, path string, opts options) (*decoder.Result, payload.Compression, error) {
	data, compression, err := payload.ReadFile(path)
	if err != nil {
		return nil, compression, err
	}
	result, err := decode(ctx, &decoder.Job{
		ID:                   filepath.Base(path),
		Array:                data,
		CompressedAttributes: opts.attrs,
		DequantizeInShader:   opts.dequantize,
	})
	return result, compression, err
}

func decodeAndPrint(ctx context.Context, w *worker.Worker, opts options, styled bool) error {
	result, compression, err := decodeFile(ctx, w.Decode, opts.input, opts)
	if err != nil {
		fmt.Println(renderError(err, styled))
		return err
	}
	fmt.Println(renderSummary(opts.input, compression, result, opts.rows, styled))
	return nil
}

// watch calls onChange whenever path is written or replaced. The parent
// directory is watched so editors that rename over the file are seen.
func watch(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != abs {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
