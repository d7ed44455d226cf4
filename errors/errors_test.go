package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:     PhaseExtract,
				Kind:      KindUnrecognizedAttributeType,
				Attribute: "POSITION",
				Detail:    "unrecognized attribute data type 42",
			},
			contains: []string{"[extract]", "unrecognized_attribute_type", "at POSITION", "42"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindDecodeFailed,
			},
			contains: []string{"[decode]", "decode_failed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseBootstrap,
				Kind:   KindLoad,
				Detail: "read wasm binary",
				Cause:  errors.New("no such file"),
			},
			contains: []string{"[bootstrap]", "load", "read wasm binary", "caused by", "no such file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := EngineCall(PhaseDecode, "decoder_decode_buffer_to_mesh", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := UnsupportedGeometry(0)

	if !errors.Is(err, ErrUnsupportedGeometry) {
		t.Error("Is should match sentinel with same phase and kind")
	}
	if errors.Is(err, ErrDecodeFailure) {
		t.Error("Is should not match a different sentinel")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindUnsupportedGeometry}) {
		t.Error("Is should not match different phase")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseExtract, KindDecodeFailed).
		Attribute("NORMAL").
		Value(9).
		Cause(cause).
		Detail("expected %d values, engine returned %d", 12, 9).
		Build()

	if err.Phase != PhaseExtract {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseExtract)
	}
	if err.Kind != KindDecodeFailed {
		t.Errorf("Kind = %v, want %v", err.Kind, KindDecodeFailed)
	}
	if err.Attribute != "NORMAL" {
		t.Errorf("Attribute = %q, want NORMAL", err.Attribute)
	}
	if err.Value != 9 {
		t.Errorf("Value = %v, want 9", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected 12 values, engine returned 9" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestDecodeFailure_KeepsEngineMessage(t *testing.T) {
	const msg = "Failed to decode geometry data."
	err := DecodeFailure(msg)

	if !strings.Contains(err.Error(), "Error decoding draco mesh geometry: "+msg) {
		t.Errorf("message %q does not carry engine text", err.Error())
	}

	wrapped := Join(err, errors.New("release failed"))
	got, ok := EngineMessage(wrapped)
	if !ok {
		t.Fatal("EngineMessage did not find decode failure")
	}
	if got != msg {
		t.Errorf("EngineMessage = %q, want %q", got, msg)
	}

	if _, ok := EngineMessage(UnsupportedGeometry(0)); ok {
		t.Error("EngineMessage should reject other kinds")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("UnrecognizedAttributeType", func(t *testing.T) {
		err := UnrecognizedAttributeType("_FEATURE_ID", 99)
		if !errors.Is(err, ErrUnrecognizedAttributeType) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnrecognizedAttributeType)
		}
		if err.Value != int32(99) {
			t.Errorf("Value = %v, want 99", err.Value)
		}
	})

	t.Run("NotInitialized", func(t *testing.T) {
		err := NotInitialized("worker")
		if !errors.Is(err, ErrNotInitialized) {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("AlreadyInitialized", func(t *testing.T) {
		err := AlreadyInitialized("worker")
		if !errors.Is(err, ErrAlreadyInitialized) {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseExtract, "attribute", "POSITION")
		if err.Kind != KindNotFound || !strings.Contains(err.Detail, `"POSITION"`) {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("Release", func(t *testing.T) {
		err := Release("mesh", errors.New("double free"))
		if err.Phase != PhaseRelease || err.Kind != KindRelease {
			t.Errorf("unexpected error %v", err)
		}
	})
}

func TestMissingExportsError(t *testing.T) {
	err := &MissingExportsError{Module: "draco", Exports: []string{"malloc", "mesh_create"}}
	msg := err.Error()
	for _, s := range []string{`"draco"`, "2 export(s)", "- malloc", "- mesh_create"} {
		if !strings.Contains(msg, s) {
			t.Errorf("message %q does not contain %q", msg, s)
		}
	}

	var target *MissingExportsError
	if !errors.As(Load("bind exports", err), &target) {
		t.Error("errors.As should find MissingExportsError through Load")
	}
}
