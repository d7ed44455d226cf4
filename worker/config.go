package worker

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/wippyai/draco-worker/engine"
)

// WebAssemblyConfig is the bootstrap message naming the decoding engine.
type WebAssemblyConfig struct {
	// ModulePath names a registered engine factory, e.g. "wazero".
	ModulePath string `json:"modulePath" toml:"module_path"`
	// WasmBinaryFile is the compiled decoder binary, when the engine
	// needs one.
	WasmBinaryFile string `json:"wasmBinaryFile,omitempty" toml:"wasm_binary_file"`
	// Options are passed to the factory unchanged. In JSON they are the
	// keys next to modulePath, as hosts send them:
	//
	//	{"modulePath": "wazero", "memoryLimitPages": 256, "wasi": true}
	//
	// A nested "options" object is merged too; inline keys win.
	Options map[string]any `json:"options,omitempty" toml:"options"`
}

// UnmarshalJSON collects every key other than modulePath and
// wasmBinaryFile into Options.
func (c *WebAssemblyConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out WebAssemblyConfig
	for key, value := range raw {
		var err error
		switch key {
		case "modulePath":
			err = json.Unmarshal(value, &out.ModulePath)
		case "wasmBinaryFile":
			err = json.Unmarshal(value, &out.WasmBinaryFile)
		case "options":
			var nested map[string]any
			if err = json.Unmarshal(value, &nested); err == nil {
				for k, v := range nested {
					if _, inline := raw[k]; !inline {
						out.setOption(k, v)
					}
				}
			}
		default:
			var v any
			if err = json.Unmarshal(value, &v); err == nil {
				out.setOption(key, v)
			}
		}
		if err != nil {
			return fmt.Errorf("webAssemblyConfig.%s: %w", key, err)
		}
	}
	*c = out
	return nil
}

func (c *WebAssemblyConfig) setOption(key string, value any) {
	if c.Options == nil {
		c.Options = make(map[string]any)
	}
	c.Options[key] = value
}

func (c *WebAssemblyConfig) engineConfig() engine.Config {
	return engine.Config{
		ModulePath:     c.ModulePath,
		WasmBinaryFile: c.WasmBinaryFile,
		Options:        maps.Clone(c.Options),
	}
}
