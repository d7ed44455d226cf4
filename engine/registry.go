package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/draco-worker/errors"
)

// Config describes how to obtain an engine instance. It mirrors the
// bootstrap message: a module path naming a registered factory, an
// optional compiled binary, and engine specific options.
type Config struct {
	Options        map[string]any
	ModulePath     string
	WasmBinaryFile string
	// WasmBinary holds the binary contents. Open fills it from
	// WasmBinaryFile when empty.
	WasmBinary []byte
}

// Factory instantiates an engine from cfg.
type Factory func(ctx context.Context, cfg Config) (Module, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available under path.
// It panics if path is empty, f is nil or path is already registered.
func Register(path string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if path == "" || f == nil {
		panic("engine: Register with empty path or nil factory")
	}
	if _, dup := registry[path]; dup {
		panic(fmt.Sprintf("engine: Register called twice for %q", path))
	}
	registry[path] = f
}

// Registered returns the sorted list of registered module paths.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	paths := make([]string, 0, len(registry))
	for p := range registry {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Open resolves cfg.ModulePath and instantiates the engine.
func Open(ctx context.Context, cfg Config) (Module, error) {
	registryMu.RLock()
	f, ok := registry[cfg.ModulePath]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseBootstrap, "engine module", cfg.ModulePath)
	}

	if cfg.WasmBinaryFile != "" && len(cfg.WasmBinary) == 0 {
		data, err := os.ReadFile(cfg.WasmBinaryFile)
		if err != nil {
			return nil, errors.Load("read wasm binary", err)
		}
		cfg.WasmBinary = data
	}

	Logger().Debug("opening engine",
		zap.String("module", cfg.ModulePath),
		zap.Int("wasm_bytes", len(cfg.WasmBinary)))

	mod, err := f(ctx, cfg)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("instantiate engine %q", cfg.ModulePath), err)
	}
	return mod, nil
}

// OptionUint32 reads a numeric option, accepting the number types JSON
// and TOML decoders produce.
func (c Config) OptionUint32(name string) (uint32, bool) {
	switch v := c.Options[name].(type) {
	case float64:
		return uint32(v), v >= 0
	case int64:
		return uint32(v), v >= 0
	case int:
		return uint32(v), v >= 0
	case uint32:
		return v, true
	default:
		return 0, false
	}
}

// OptionBool reads a boolean option.
func (c Config) OptionBool(name string) bool {
	v, _ := c.Options[name].(bool)
	return v
}
