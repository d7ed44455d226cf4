// Package enginetest provides engines for tests.
//
// Engine is an in-memory engine.Module that decodes containers built with
// Encode and counts every object it allocates:
//
//	eng := enginetest.New()
//	blob := enginetest.Encode(enginetest.Quad().With(enginetest.AttributeSpec{...}))
//	...
//	if eng.Leaked() != 0 { t.Fatal("leak") }
//
// WasmDecoder assembles a small core wasm module implementing the decoder
// ABI expected by engine.WazeroEngine, for tests that exercise the wazero
// path end to end.
package enginetest
