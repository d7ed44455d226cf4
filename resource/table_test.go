package resource

import (
	"context"
	"errors"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type testDropper struct {
	dropped bool
}

func (d *testDropper) Drop() {
	d.dropped = true
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h, err := table.Insert(KindMesh, "mesh")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok || val != "mesh" {
		t.Fatalf("Get = %v, %v", val, ok)
	}

	if _, ok := table.GetTyped(h, KindMesh); !ok {
		t.Fatal("GetTyped with correct kind failed")
	}
	if _, ok := table.GetTyped(h, KindArray); ok {
		t.Fatal("GetTyped with wrong kind should fail")
	}

	val, ok = table.Remove(h)
	if !ok || val != "mesh" {
		t.Fatalf("Remove = %v, %v", val, ok)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestTable_HandlesNotReused(t *testing.T) {
	table := NewTable()

	h1, _ := table.Insert(KindArray, 1)
	table.Remove(h1)
	h2, _ := table.Insert(KindArray, 2)

	if h1 == h2 {
		t.Fatalf("handle %d reused", h1)
	}
	if _, ok := table.Get(h1); ok {
		t.Fatal("stale handle should not resolve")
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h, _ := table.Insert(KindBuffer, "buf")
	if len(obs.events) != 1 || obs.events[0].Type != EventCreated {
		t.Fatalf("expected EventCreated, got %+v", obs.events)
	}
	if obs.events[0].Handle != h || obs.events[0].Kind != KindBuffer {
		t.Fatalf("wrong event payload %+v", obs.events[0])
	}

	table.Remove(h)
	if len(obs.events) != 2 || obs.events[1].Type != EventDropped {
		t.Fatalf("expected EventDropped, got %+v", obs.events)
	}

	table.Remove(h)
	if len(obs.events) != 3 || obs.events[2].Type != EventDoubleDrop {
		t.Fatalf("expected EventDoubleDrop, got %+v", obs.events)
	}
}

func TestTable_Dropper(t *testing.T) {
	table := NewTable()
	d := &testDropper{}
	h, _ := table.Insert(KindStatus, d)
	table.Remove(h)
	if !d.dropped {
		t.Fatal("Drop not called on removal")
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable()
	h, _ := table.Insert(KindMesh, "live")
	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := table.Insert(KindMesh, "late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Insert after Close = %v, want ErrClosed", err)
	}
	if _, ok := table.Get(h); !ok {
		t.Fatal("live objects should stay readable after Close")
	}
}

func TestCounter(t *testing.T) {
	table := NewTable()
	counter := NewCounter()
	table.Subscribe(counter)

	a, _ := table.Insert(KindArray, 1)
	b, _ := table.Insert(KindArray, 2)
	m, _ := table.Insert(KindMesh, 3)
	table.Remove(a)
	table.Remove(m)
	table.Remove(m)

	if got := counter.Live(KindArray); got != 1 {
		t.Errorf("Live(array) = %d, want 1", got)
	}
	if got := counter.Live(KindMesh); got != 0 {
		t.Errorf("Live(mesh) = %d, want 0", got)
	}
	if counter.Allocs() != 3 || counter.Frees() != 2 {
		t.Errorf("Allocs=%d Frees=%d, want 3 and 2", counter.Allocs(), counter.Frees())
	}
	if counter.DoubleDrops() != 1 {
		t.Errorf("DoubleDrops = %d, want 1", counter.DoubleDrops())
	}

	table.Remove(b)
	if counter.Created(KindArray) != 2 || counter.Dropped(KindArray) != 2 {
		t.Error("array counts do not balance")
	}
}

type releaseRecorder struct {
	err   error
	log   *[]string
	name  string
	calls int
}

func (r *releaseRecorder) Release(context.Context) error {
	r.calls++
	*r.log = append(*r.log, r.name)
	return r.err
}

func TestScope_EarlyReleaseAndClose(t *testing.T) {
	ctx := context.Background()
	var log []string
	scope := NewScope()

	first := &releaseRecorder{name: "first", log: &log}
	second := &releaseRecorder{name: "second", log: &log}
	third := &releaseRecorder{name: "third", log: &log}

	Own(scope, "first", first)
	o2 := Own(scope, "second", second)
	Own(scope, "third", third)

	if err := o2.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := o2.Release(ctx); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
	if scope.Live() != 2 {
		t.Fatalf("Live = %d, want 2", scope.Live())
	}

	if err := scope.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := []string{"second", "third", "first"}
	if len(log) != len(want) {
		t.Fatalf("release order = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("release order = %v, want %v", log, want)
		}
	}
	for _, r := range []*releaseRecorder{first, second, third} {
		if r.calls != 1 {
			t.Errorf("%s released %d times", r.name, r.calls)
		}
	}
}

func TestScope_CloseJoinsErrors(t *testing.T) {
	ctx := context.Background()
	var log []string
	scope := NewScope()
	boom := errors.New("boom")

	Own(scope, "bad", &releaseRecorder{name: "bad", log: &log, err: boom})
	ok := &releaseRecorder{name: "ok", log: &log}
	Own(scope, "ok", ok)

	err := scope.Close(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Close = %v, want wrapped boom", err)
	}
	if ok.calls != 1 {
		t.Fatal("release failure stopped remaining releases")
	}
}
