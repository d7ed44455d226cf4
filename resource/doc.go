// Package resource manages the lifecycle of engine-side objects.
//
// A decoding engine hands out native objects (buffers, meshes, typed
// arrays, transforms) that must each be released exactly once. Two tools
// cover that:
//
// # Scope
//
// A Scope owns everything allocated during one job:
//
//	scope := resource.NewScope()
//	defer scope.Close(ctx)
//
//	mesh := resource.Own(scope, "mesh", engineMesh)
//	values := resource.Own(scope, "attribute values", engineArray)
//	...
//	values.Release(ctx) // released right after copy-out
//
// Close releases whatever is still held, newest first, so the failure
// path frees exactly what the success path would have.
//
// # Handle Table
//
// Table maps integer handles to objects, for engines that need to hand
// out opaque handles:
//
//	table := resource.NewTable()
//	handle, _ := table.Insert(resource.KindMesh, mesh)
//	value, ok := table.GetTyped(handle, resource.KindMesh)
//	value, ok = table.Remove(handle)
//
// Handles are never reused. Removing a dead handle emits EventDoubleDrop.
//
// # Observers
//
// Counter subscribes to a table and tallies creations and releases per
// kind, which is how leak tests check that a job released everything:
//
//	counter := resource.NewCounter()
//	table.Subscribe(counter)
//	...
//	if counter.Live(resource.KindMesh) != 0 { ... }
package resource
