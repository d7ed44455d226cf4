// Package datatype describes the numeric buffers handed to a renderer:
// component datatype tags, their byte sizes, typed arrays and index
// buffer sizing.
//
// Typed arrays are plain Go slices with a datatype tag:
//
//	positions := datatype.Float32Array{0, 0, 0, 1, 0, 0}
//	positions.Datatype()             // datatype.Float
//	positions.Datatype().SizeInBytes() // 4
//
// Index buffers use 16-bit elements while every vertex is addressable
// with them and 32-bit elements otherwise:
//
//	indices := datatype.NewIndexArray(numPoints, 3*numFaces)
package datatype
