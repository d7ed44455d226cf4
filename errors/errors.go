package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap" // engine loading and session creation
	PhaseValidate  Phase = "validate"  // job input and geometry checks
	PhaseDecode    Phase = "decode"    // buffer to mesh decoding
	PhaseExtract   Phase = "extract"   // index and attribute extraction
	PhaseRelease   Phase = "release"   // engine handle release
	PhaseTransport Phase = "transport" // task protocol framing
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupportedGeometry       Kind = "unsupported_geometry"
	KindDecodeFailed              Kind = "decode_failed"
	KindUnrecognizedAttributeType Kind = "unrecognized_attribute_type"
	KindNotFound                  Kind = "not_found"
	KindInvalidInput              Kind = "invalid_input"
	KindNotInitialized            Kind = "not_initialized"
	KindAlreadyInitialized        Kind = "already_initialized"
	KindEngineCall                Kind = "engine_call"
	KindLoad                      Kind = "load"
	KindRelease                   Kind = "release"
)

// Sentinels for errors.Is. Matching uses phase and kind only.
var (
	ErrUnsupportedGeometry       = &Error{Phase: PhaseValidate, Kind: KindUnsupportedGeometry}
	ErrDecodeFailure             = &Error{Phase: PhaseDecode, Kind: KindDecodeFailed}
	ErrUnrecognizedAttributeType = &Error{Phase: PhaseExtract, Kind: KindUnrecognizedAttributeType}
	ErrNotInitialized            = &Error{Phase: PhaseBootstrap, Kind: KindNotInitialized}
	ErrAlreadyInitialized        = &Error{Phase: PhaseBootstrap, Kind: KindAlreadyInitialized}
)

// Error is the structured error type used throughout the worker
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Attribute string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Attribute != "" {
		b.WriteString(" at ")
		b.WriteString(e.Attribute)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Attribute sets the attribute name the error refers to
func (b *Builder) Attribute(name string) *Builder {
	b.err.Attribute = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Decode failure taxonomy

// UnsupportedGeometry reports an encoded geometry that is not a triangular mesh
func UnsupportedGeometry(geometryType int32) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindUnsupportedGeometry,
		Detail: "unsupported draco mesh geometry type",
		Value:  geometryType,
	}
}

// DecodeFailure reports a non-ok engine decode status or an invalid mesh.
// The engine message is kept verbatim in Value.
func DecodeFailure(engineMessage string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindDecodeFailed,
		Detail: "Error decoding draco mesh geometry: " + engineMessage,
		Value:  engineMessage,
	}
}

// EngineMessage returns the engine diagnostic carried by a decode failure.
func EngineMessage(err error) (string, bool) {
	var e *Error
	if !As(err, &e) || e.Kind != KindDecodeFailed {
		return "", false
	}
	msg, ok := e.Value.(string)
	return msg, ok
}

// UnrecognizedAttributeType reports a source datatype code with no output mapping
func UnrecognizedAttributeType(attribute string, code int32) *Error {
	return &Error{
		Phase:     PhaseExtract,
		Kind:      KindUnrecognizedAttributeType,
		Attribute: attribute,
		Detail:    fmt.Sprintf("unrecognized attribute data type %d", code),
		Value:     code,
	}
}

// Extraction reports a malformed engine answer while copying data out
func Extraction(attribute, detail string) *Error {
	return &Error{
		Phase:     PhaseExtract,
		Kind:      KindDecodeFailed,
		Attribute: attribute,
		Detail:    detail,
	}
}

// EngineCall wraps an error returned by the engine itself (e.g. a trap)
func EngineCall(phase Phase, call string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEngineCall,
		Detail: call,
		Cause:  cause,
	}
}

// Release wraps a failure to release an engine handle
func Release(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindRelease,
		Detail: "release " + what,
		Cause:  cause,
	}
}

// Worker lifecycle constructors

// NotInitialized creates a not-initialized error
func NotInitialized(component string) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// AlreadyInitialized creates an error for a repeated bootstrap
func AlreadyInitialized(component string) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindAlreadyInitialized,
		Detail: fmt.Sprintf("%s already initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load creates an engine loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindLoad,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExportsError is returned when an engine binary lacks required exports
type MissingExportsError struct {
	Module  string
	Exports []string
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[bootstrap] load: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("module %q is missing %d export(s):", e.Module, len(e.Exports)))
	for _, name := range e.Exports {
		b.WriteString("\n  - ")
		b.WriteString(name)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
