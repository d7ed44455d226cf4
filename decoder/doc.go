// Package decoder turns a compressed mesh into renderer ready buffers.
//
// A job runs through a fixed sequence of states:
//
//	start → buffer_wrapped → geometry_validated → mesh_decoded →
//	indices_extracted → attributes_extracted → mesh_released → done
//
// Any failure moves the job to failed. Engine objects are owned by a
// resource.Scope, so every buffer, mesh, typed array and transform the job
// allocated is released before Decode returns, on both paths.
//
// # Attributes
//
// Each requested attribute is probed for a linear quantization transform
// and then for an octahedral one; the last match wins. Quantized values
// are read through a 16-bit accessor. Others are read through the
// accessor for their source datatype, with 64-bit sources narrowed to 32
// bits:
//
//	INT8, BOOL      int8
//	UINT8           uint8
//	INT16           int16
//	UINT16          uint16
//	INT32, INT64    int32
//	UINT32, UINT64  uint32
//	FLOAT32/64      float32
//
// Any other source datatype fails the job with
// errors.ErrUnrecognizedAttributeType.
package decoder
