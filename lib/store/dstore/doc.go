// Package dstore implements a distributed, fault-tolerant task store using
// the Dragonboat RAFT consensus library. It provides a strongly consistent implementation
// of the store.ITaskStore interface that can operate across multiple nodes while
// maintaining linearizable consistency.
//
// Architecture:
//
// The dstore implementation consists of three main components:
//
//   - Store Client: Implements the store.ITaskStore interface and communicates with
//     the RAFT cluster. It validates input, serializes operations into commands, sends
//     them to the consensus layer, and decodes the resulting task.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine implementation (TaskStateMachine)
//     that owns the task table of one shard and applies commands to it.
//
//   - Communication Protocol: Defined in the internal package, this consists of Command
//     and Query structures with serialization logic for the RAFT log.
//
// Write Operations:
//
//	All write operations (Create, MarkDone, RenameTitle, SetPriority) follow this flow:
//
//	1. The operation is serialized into a Command structure
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. The leader node replicates the command to a majority of followers
//	4. Once committed, the command is applied by the state machine on each node
//	5. The updated task is returned to the client in the result data
//
//	Task ids are assigned by the state machine from a counter that is part of the
//	replicated state, so every replica assigns the same id to the same entry. The
//	creation time is stamped by the proposer and carried in the command.
//
// Read Operations:
//
//	Reads (GetByID, ListPending, ListCompleted) use SyncRead, which ensures that the
//	node processing the read has applied all committed log entries locally before
//	processing the request.
//
// Error Handling and Retries:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//	  after a short delay, up to 5 attempts.
//
//	- Timeouts: All operations are bounded by the configured timeout and by the
//	  context passed by the caller, whichever expires first.
//
//	- Domain errors (not found, invalid argument) are returned by the state machine
//	  as result codes and converted into *store.Error values.
//
// Snapshotting and Recovery:
//
//   - PrepareSnapshot copies the task table while updates are paused, SaveSnapshot then
//     writes the copy while the state machine keeps applying new entries.
//
//   - RecoverFromSnapshot replaces the table and the id counter. Afterwards the node
//     receives all log entries committed after the snapshot from the other nodes.
//
// Usage:
//
//	  nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	  if err != nil { ... }
//
//	  err = nh.StartConcurrentReplica(
//	      clusterMembers,
//	      false,
//	      dstore.CreateStateMachineFactory(),
//	      shardConfig)
//	  if err != nil { ... }
//
//	  s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// Deployment Recommendations:
//
//   - Node Count: Deploy with an odd number of nodes (typically 3, 5, or 7) to ensure
//     majority consensus is always possible.
//
//   - Network Quality: Ensure low-latency connections between nodes, operation latency
//     is dominated by replication.
//
// For scenarios where distributed consensus is not required, consider using the simpler
// and faster lstore package, which provides a single-node not-persistent implementation of the
// same interface.
package dstore
