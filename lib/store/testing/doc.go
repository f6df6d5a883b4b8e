// Package testing provides standardised tests and benchmarks for
// task store implementations that satisfy the store.ITaskStore interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the ITaskStore contract
//     (id assignment, validation, not found errors, list ordering, snapshots and concurrent use)
//   - benchmark: Performance tests for measuring throughput of common task operations
//
// The suite is shared by the local store, the raft store and the rpc client, so
// a store behaves the same whether it is used in-process or over the network.
//
// Example usage:
//
//	factory := func(tb testing.TB) store.ITaskStore {
//		return lstore.NewLocalStore()
//	}
//
//	storetesting.RunTaskStoreTests(t, "LocalStore", factory)
//	storetesting.RunTaskStoreBenchmarks(b, "LocalStore", factory)
package testing
