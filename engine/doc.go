// Package engine defines the decoding engine capability and hosts engines.
//
// The decoder never talks to a concrete engine. It allocates and queries
// engine objects through the interfaces in this package:
//
//	Module                 - allocates every engine object
//	Decoder                - reads geometry type, mesh, faces and attributes
//	Buffer, Mesh, Array    - engine-side storage, each released by its owner
//	QuantizationTransform  - linear quantization probe
//	OctahedronTransform    - octahedral normal probe
//
// # Registry
//
// Engines are registered under a module path and opened from the bootstrap
// configuration:
//
//	engine.Register("my-engine", factory)
//	mod, err := engine.Open(ctx, engine.Config{ModulePath: "my-engine"})
//
// # Wazero Engine
//
// WazeroEngine hosts a decoder compiled to a core wasm module exposing a
// flat C ABI. Every engine object is an i32 guest pointer and 0 is null:
//
//	decoder_create() -> dec
//	buffer_create(ptr, len) -> buf
//	decoder_get_encoded_geometry_type(dec, buf) -> type
//	decoder_decode_buffer_to_mesh(dec, buf, mesh) -> status
//	decoder_get_face_from_mesh(dec, mesh, face, arr) -> ok
//	decoder_get_attribute_for_all_points(dec, mesh, attr, arr) -> ok
//	...
//
// It registers itself under "wazero" and takes its binary from the
// wasmBinaryFile setting. Options:
//
//	memoryLimitPages  maximum guest memory in 64KB pages
//	wasi              instantiate WASI preview1 first
//
// Missing exports are reported as *errors.MissingExportsError when the
// module is loaded.
package engine
