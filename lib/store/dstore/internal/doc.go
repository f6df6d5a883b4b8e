// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It defines the format used to transmit operations
// between the store client and the replicated state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Command System: Defines write operations (Create, MarkDone, Rename, SetPriority)
//     that modify the task table. Commands are serialized and proposed to the RAFT cluster,
//     executed on the state machine, and produce results that are returned to the client.
//
//   - Query System: Defines read operations (GetByID, ListPending, ListCompleted) that
//     retrieve tasks without modifying the state. Queries are executed locally on the
//     state machine and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 8 bytes: Task id (uint64, big endian)
//	- 1 byte: Priority
//	- 8 bytes: Creation time, unix seconds (int64, big endian)
//	- 4 bytes: Creation time, nanoseconds (uint32, big endian)
//	- 4 bytes: Title length (uint32, big endian)
//	- N bytes: Title (utf-8)
//
//	Every command carries all fields, unused ones are zero. The creation time is
//	part of the command because the state machine must be deterministic: every
//	replica applies the same entry and must produce the same task.
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization.
package internal
