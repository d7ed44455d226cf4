// Package dracoworker decodes Draco compressed meshes into GPU ready typed
// arrays behind a task boundary.
//
// A worker hosts a Draco decoding engine, usually a decoder compiled to
// WebAssembly and run under wazero. It is bootstrapped once with a
// webAssemblyConfig message, then turns each job (a compressed buffer plus
// the attribute ids to extract) into an index array and per attribute
// arrays with their vertex layout. Quantized attributes can be kept
// quantized so the values are reconstructed in a shader.
//
// # Architecture Overview
//
//	dracoworker/
//	├── errors/           Structured error types (phase, kind, attribute)
//	├── resource/         Engine handle table, scopes and leak accounting
//	├── datatype/         Component datatypes, typed arrays, quantization math
//	├── engine/           Engine capability, registry and the wazero engine
//	├── enginetest/       In-memory reference engine for tests and tooling
//	├── decoder/          Indices, attributes and the per job decode pipeline
//	├── worker/           Bootstrap, decode session and the stdio task protocol
//	├── pool/             Bounded pool of workers for concurrent decoding
//	├── internal/config/  TOML configuration shared by the binaries
//	├── internal/payload/ zstd and lz4 framed mesh payloads
//	└── cmd/
//	    ├── dracoworker/  Worker process speaking the task protocol
//	    └── inspect/      Decode a file and print or browse the result
//
// # Quick Start
//
// Decode one mesh in process:
//
//	w := worker.New()
//	if _, err := w.Initialize(ctx, &worker.WebAssemblyConfig{
//		ModulePath:     "wazero",
//		WasmBinaryFile: "draco_decoder.wasm",
//	}); err != nil {
//		return err
//	}
//	defer w.Close(ctx)
//
//	result, err := w.Decode(ctx, &decoder.Job{
//		Array:                data,
//		CompressedAttributes: map[string]int{"POSITION": 0, "NORMAL": 1},
//	})
//
// Decode concurrently across several engine instances:
//
//	p, err := pool.New(ctx, pool.Config{
//		Workers:     4,
//		WebAssembly: worker.WebAssemblyConfig{ModulePath: "wazero", WasmBinaryFile: wasm},
//	})
//	if err != nil {
//		return err
//	}
//	defer p.Close(ctx)
//	result, err := p.Submit(ctx, job)
//
// # Error Handling
//
// Failures are *errors.Error values carrying the phase that failed, a
// kind, and the attribute being decoded when there is one:
//
//	var de *errors.Error
//	if errors.As(err, &de) && de.Kind == errors.KindUnsupportedGeometry {
//		// not a triangular mesh
//	}
//
// Every engine object a job allocates is released before Decode returns,
// whether it succeeds or fails.
package dracoworker
