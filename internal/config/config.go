// Package config loads the TOML configuration shared by the binaries.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/worker"
)

// Config is the file layout:
//
//	[engine]
//	module_path = "wazero"
//	wasm_binary_file = "draco_decoder.wasm"
//	options = { memoryLimitPages = 256 }
//
//	[log]
//	level = "debug"
//
//	[pool]
//	workers = 4
//	max_active_tasks = 8
type Config struct {
	Engine worker.WebAssemblyConfig `toml:"engine"`
	Log    Log                      `toml:"log"`
	Pool   Pool                     `toml:"pool"`

	// dir is the directory of the loaded file; relative paths resolve
	// against it.
	dir string
}

// Log configures the zap logger.
type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Pool sizes the decode pool.
type Pool struct {
	Workers        int   `toml:"workers"`
	MaxActiveTasks int64 `toml:"max_active_tasks"`
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	ModulePath     string
	WasmBinaryFile string
	LogLevel       string
	Workers        int
}

// Load reads a TOML config file. Unknown keys are an error so typos do
// not go unnoticed.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Resolve applies flags and fills in defaults. Flags win over the file
// when non-zero.
func (c *Config) Resolve(flags Flags) {
	if flags.ModulePath != "" {
		c.Engine.ModulePath = flags.ModulePath
	}
	if flags.WasmBinaryFile != "" {
		c.Engine.WasmBinaryFile = flags.WasmBinaryFile
	} else if c.Engine.WasmBinaryFile != "" && c.dir != "" && !filepath.IsAbs(c.Engine.WasmBinaryFile) {
		c.Engine.WasmBinaryFile = filepath.Join(c.dir, c.Engine.WasmBinaryFile)
	}
	if flags.LogLevel != "" {
		c.Log.Level = flags.LogLevel
	}
	if flags.Workers > 0 {
		c.Pool.Workers = flags.Workers
	}

	if c.Engine.ModulePath == "" {
		c.Engine.ModulePath = engine.WazeroModulePath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Pool.Workers <= 0 {
		c.Pool.Workers = runtime.NumCPU()
	}
	if c.Pool.MaxActiveTasks <= 0 {
		c.Pool.MaxActiveTasks = int64(c.Pool.Workers)
	}
}

// Logger builds a logger writing to stderr, leaving stdout to the task
// protocol.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if l.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
