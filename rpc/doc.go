// Package rpc provides the protocol layer of the task manager. It carries
// batches of task commands from clients to a server and the per command
// results back, over a length-prefixed binary framing.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the request/response protocol (commands and results),
//     configuration structures, and logging.
//
//   - transport: Stream transports with pluggable implementations (TCP and Unix
//     sockets). Every message is one frame: a 4 byte big-endian length followed
//     by the payload.
//
//   - serializer: Conversion between requests/responses and frame payloads
//     (Binary and JSON).
//
//   - client: An ITaskStore implementation that forwards every call to a remote
//     server, plus batch execution.
//
//   - server: The request handler that decodes a batch, runs its commands
//     concurrently against a task store and answers them in request order.
package rpc
