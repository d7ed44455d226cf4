package resource

import (
	"context"

	"github.com/wippyai/draco-worker/errors"
)

// Scope owns the engine objects allocated during one job. Objects may be
// released early through their Owned wrapper; Close releases whatever is
// still held, newest first.
//
//	scope := resource.NewScope()
//	defer scope.Close(ctx)
//
//	buf := resource.Own(scope, "buffer", engineBuffer)
//	...
//	buf.Release(ctx) // early, Close will skip it
type Scope struct {
	items []Releaser
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Owned wraps a single object tracked by a Scope.
type Owned[T Releaser] struct {
	value    T
	name     string
	released bool
}

// Own registers value with the scope and returns its owning wrapper.
func Own[T Releaser](s *Scope, name string, value T) *Owned[T] {
	o := &Owned[T]{value: value, name: name}
	s.items = append(s.items, o)
	return o
}

// Value returns the wrapped object. It must not be retained past Release.
func (o *Owned[T]) Value() T {
	return o.value
}

// Released reports whether the object has been released.
func (o *Owned[T]) Released() bool {
	return o.released
}

// Release releases the object once; later calls are no-ops.
func (o *Owned[T]) Release(ctx context.Context) error {
	if o.released {
		return nil
	}
	o.released = true
	if err := o.value.Release(ctx); err != nil {
		return errors.Release(o.name, err)
	}
	return nil
}

// Live returns the number of objects not yet released.
func (s *Scope) Live() int {
	n := 0
	for _, item := range s.items {
		if r, ok := item.(interface{ Released() bool }); ok && !r.Released() {
			n++
		}
	}
	return n
}

// Close releases every object still held. All releases are attempted even
// if some fail; the failures are joined.
func (s *Scope) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		if err := s.items[i].Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.items = nil
	return errors.Join(errs...)
}
