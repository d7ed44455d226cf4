package resource

import "context"

// Releaser is implemented by every engine-side object the decoder owns.
// Release must be called exactly once.
type Releaser interface {
	Release(ctx context.Context) error
}

// Handle is an opaque reference to an object in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind identifies the engine object type stored behind a handle.
type Kind uint32

const (
	KindDecoder Kind = iota + 1
	KindBuffer
	KindMesh
	KindStatus
	KindArray
	KindQuantizationTransform
	KindOctahedronTransform
)

func (k Kind) String() string {
	switch k {
	case KindDecoder:
		return "decoder"
	case KindBuffer:
		return "buffer"
	case KindMesh:
		return "mesh"
	case KindStatus:
		return "status"
	case KindArray:
		return "array"
	case KindQuantizationTransform:
		return "quantization-transform"
	case KindOctahedronTransform:
		return "octahedron-transform"
	default:
		return "unknown"
	}
}

// Event types for lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventDoubleDrop
)

// Event represents a lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by values that need cleanup when removed.
type Dropper interface {
	Drop()
}
