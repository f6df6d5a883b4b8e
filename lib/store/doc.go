// Package store provides a high-level interface for task storage operations
// with unified error handling. It defines the task record that is owned by the
// store and copied (as a snapshot) into every rpc response.
//
// The package focuses on:
//   - A unified interface (ITaskStore) for task operations across different backends
//   - The Task entity, its Priority and id type, and their validation rules
//   - A compact binary layout for tasks shared by the rpc serializer and the
//     replicated store
//
// Key Components:
//
//   - ITaskStore Interface: The core abstraction defining operations for interacting with
//     a task store. All implementations share this common interface, allowing
//     the rpc server to switch between different storage backends without code changes.
//     All implementations must be safe for concurrent use.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     (RetCNotFound, RetCInvalidArgument, ...) and descriptive messages. Only the
//     message text of an error crosses the rpc boundary.
//
// Implementations:
//
//	The package includes two implementations of the ITaskStore interface:
//
//	- Local Store (lstore): A non-distributed, in-memory implementation based on a
//	  concurrent hash map. Ids are assigned with an atomic counter. Suitable for
//	  single-node deployments, development and tests.
//	  Available in the "github.com/ValentinKolb/dTask/lib/store/lstore" package.
//
//	- Distributed Store (dstore): An implementation built on the Dragonboat
//	  RAFT consensus library. Every write is proposed to the raft log and applied
//	  by a replicated state machine, reads are linearizable.
//	  Available in the "github.com/ValentinKolb/dTask/lib/store/dstore" package.
//
// A shared test suite for ITaskStore implementations lives in the
// "github.com/ValentinKolb/dTask/lib/store/testing" package.
package store
