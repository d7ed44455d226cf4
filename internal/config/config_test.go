package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/draco-worker/engine"
	"github.com/wippyai/draco-worker/worker"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dracoworker.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[engine]
module_path = "wazero"
wasm_binary_file = "draco_decoder.wasm"
options = { memoryLimitPages = 256, wasi = true }

[log]
level = "debug"

[pool]
workers = 3
max_active_tasks = 6
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Resolve(Flags{})

	if cfg.Engine.ModulePath != "wazero" {
		t.Errorf("module path = %q", cfg.Engine.ModulePath)
	}
	if want := filepath.Join(filepath.Dir(path), "draco_decoder.wasm"); cfg.Engine.WasmBinaryFile != want {
		t.Errorf("wasm binary = %q, want %q", cfg.Engine.WasmBinaryFile, want)
	}
	if cfg.Log.Level != "debug" || cfg.Pool.Workers != 3 || cfg.Pool.MaxActiveTasks != 6 {
		t.Errorf("unexpected config %+v", cfg)
	}

	ec := engine.Config{Options: cfg.Engine.Options}
	if pages, ok := ec.OptionUint32("memoryLimitPages"); !ok || pages != 256 {
		t.Errorf("memoryLimitPages = %d, %v", pages, ok)
	}
	if !ec.OptionBool("wasi") {
		t.Error("wasi option lost")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[engine]\nmodule = \"wazero\"\n", "parse"},
		{"bad syntax", "[engine\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %s error, got %v", tt.want, err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !os.IsNotExist(unwrapAll(err)) {
		t.Errorf("expected not exist, got %v", err)
	}
}

func unwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		flags Flags
		check func(t *testing.T, c Config)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, c Config) {
				if c.Engine.ModulePath != engine.WazeroModulePath || c.Log.Level != "info" {
					t.Errorf("defaults = %+v", c)
				}
				if c.Pool.Workers <= 0 || c.Pool.MaxActiveTasks != int64(c.Pool.Workers) {
					t.Errorf("pool = %+v", c.Pool)
				}
			},
		},
		{
			name:  "flags win",
			cfg:   Config{Log: Log{Level: "warn"}, Pool: Pool{Workers: 2}, dir: "/etc/draco"},
			flags: Flags{ModulePath: "custom", WasmBinaryFile: "rel.wasm", LogLevel: "debug", Workers: 5},
			check: func(t *testing.T, c Config) {
				if c.Engine.ModulePath != "custom" || c.Log.Level != "debug" || c.Pool.Workers != 5 {
					t.Errorf("got %+v", c)
				}
				// Flag paths are relative to the working directory.
				if c.Engine.WasmBinaryFile != "rel.wasm" {
					t.Errorf("wasm binary = %q", c.Engine.WasmBinaryFile)
				}
			},
		},
		{
			name: "absolute binary kept",
			cfg:  Config{Engine: engineWith("/opt/draco.wasm"), dir: "/etc/draco"},
			check: func(t *testing.T, c Config) {
				if c.Engine.WasmBinaryFile != "/opt/draco.wasm" {
					t.Errorf("wasm binary = %q", c.Engine.WasmBinaryFile)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Resolve(tt.flags)
			tt.check(t, cfg)
		})
	}
}

func TestLogger(t *testing.T) {
	for _, l := range []Log{{Level: "debug"}, {Level: "error", Development: true}} {
		logger, err := l.Logger()
		if err != nil {
			t.Fatalf("Logger(%+v) failed: %v", l, err)
		}
		_ = logger.Sync()
	}
	if _, err := (Log{Level: "loud"}).Logger(); err == nil {
		t.Error("expected invalid level error")
	}
}

func engineWith(wasm string) worker.WebAssemblyConfig {
	return worker.WebAssemblyConfig{WasmBinaryFile: wasm}
}
