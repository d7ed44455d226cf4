// Package errors provides structured error types for the decode worker.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the attribute name involved, the offending value and a
// cause chain.
//
// The three per-job fatal decode errors are:
//
//	UnsupportedGeometry        encoded geometry is not a triangular mesh
//	DecodeFailure              engine reported a non-ok status or an invalid mesh
//	UnrecognizedAttributeType  attribute source datatype has no output mapping
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseExtract, errors.KindDecodeFailed).
//		Attribute("POSITION").
//		Detail("expected %d values, engine returned %d", 12, 9).
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
// Sentinels such as ErrDecodeFailure match any error with the same phase and kind.
package errors
