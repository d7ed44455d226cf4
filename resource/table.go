package resource

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("resource table closed")

// Table maps handles to engine objects and reports lifecycle events to
// observers. Handles are never reused, so a stale handle cannot alias a
// newer object.
type Table struct {
	entries   map[Handle]entry
	observers []Observer
	next      Handle
	mu        sync.Mutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value any
	kind  Kind
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[Handle]entry, 64),
	}
}

// Insert adds a value and returns its handle.
func (t *Table) Insert(kind Kind, value any) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	t.next++
	handle := t.next
	t.entries[handle] = entry{value: value, kind: kind}
	t.mu.Unlock()

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return handle, nil
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[handle]
	return e.value, ok
}

// GetTyped retrieves a value only if it was inserted with the expected kind.
func (t *Table) GetTyped(handle Handle, kind Kind) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[handle]
	if !ok || e.kind != kind {
		return nil, false
	}
	return e.value, true
}

// Remove drops an object and returns (value, true) if it was live.
// Removing an unknown or already removed handle emits EventDoubleDrop.
func (t *Table) Remove(handle Handle) (any, bool) {
	t.mu.Lock()
	e, ok := t.entries[handle]
	if ok {
		delete(t.entries, handle)
	}
	t.mu.Unlock()

	if !ok {
		t.notify(Event{Type: EventDoubleDrop, Handle: handle})
		return nil, false
	}

	if d, ok := e.value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   e.kind,
		Value:  e.value,
	})

	return e.value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live objects.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Each calls fn for every live object until fn returns false.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	t.mu.Lock()
	snapshot := make(map[Handle]entry, len(t.entries))
	for h, e := range t.entries {
		snapshot[h] = e
	}
	t.mu.Unlock()

	for h, e := range snapshot {
		if !fn(h, e.kind, e.value) {
			return
		}
	}
}

// Close stops accepting inserts. Live objects stay readable so leak
// checks can inspect them.
func (t *Table) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
