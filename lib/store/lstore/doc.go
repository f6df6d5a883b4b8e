// Package lstore implements a local, in-memory, single-node task store based on the
// store.ITaskStore interface. Data is stored entirely in memory and is not persisted
// between process restarts.
//
// Key Features:
//   - Pure in-memory storage without persistence
//   - Lock-free reads and per-key atomic updates on a concurrent hash map (xsync.MapOf)
//   - Id assignment with an atomic counter, the first task gets id 1
//   - Thread-safe operations for concurrent access
//
// Implementation Details:
//
//   - Snapshots: Tasks are stored by value. Every method returns a copy, so callers
//     can never modify a task without going through the store.
//
//   - Updates: MarkDone, RenameTitle and SetPriority use MapOf.Compute, which runs the
//     update function while holding the lock of the key's bucket. Concurrent updates
//     of the same task are therefore serialized, updates of different tasks are not.
//
//   - Lists: ListPending and ListCompleted iterate the map and sort the result by id.
//     Concurrent writers may or may not be visible in a list that is being built.
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//	task, err := s.Create(ctx, "Buy milk", store.PriorityLow)
//	pending, err := s.ListPending(ctx)
//
// For distributed scenarios requiring consensus across multiple nodes, consider
// using the dstore package instead, which provides a RAFT-based implementation
// of the same interface with strong consistency guarantees.
package lstore
