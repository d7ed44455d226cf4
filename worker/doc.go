// Package worker hosts a decoding engine behind a task boundary.
//
// A Worker is bootstrapped once with a WebAssemblyConfig naming a
// registered engine, then decodes jobs one at a time through a Session
// that reuses the engine decoders across jobs:
//
//	w := worker.New(worker.WithLogger(logger))
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
//		CompressedAttributes: map[string]int{"POSITION": 0},
//	})
//
// Serve exposes the same worker over a line-delimited JSON protocol.
// Byte payloads and typed arrays travel base64 encoded; typed arrays are
// little-endian and tagged with their WebGL component datatype:
//
//	-> {"webAssemblyConfig":{"modulePath":"wazero","wasmBinaryFile":"draco.wasm","memoryLimitPages":256}}
//	<- true
//	-> {"id":1,"parameters":{"bufferView":{"byteLength":1024},"array":"...","compressedAttributes":{"POSITION":0}}}
//	<- {"id":1,"result":{"indexArray":{...},"attributeData":{"POSITION":{...}}}}
//
// Errors are answered as {"id":n,"error":"..."}; a line that is not
// JSON is answered with id 0.
package worker
