// Package base provides a foundation for transport layers of the task server,
// implementing core functionality for RPC communication independent of the specific
// network protocol (TCP, Unix sockets, etc.). It serves as a base layer that can be
// extended with protocol-specific connectors.
//
// Frame Format:
//
//	+----------------------+---------------------+
//	| length (u32, BE)     | payload (length B)  |
//	+----------------------+---------------------+
//
// A frame with a length above the configured maximum is rejected with ErrFrameTooLarge
// before the payload is allocated. A stream that ends between two frames is a clean
// close (io.EOF), a stream that ends inside a frame is an error (io.ErrUnexpectedEOF).
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Client implementation that manages a pool of connections with
//     round-robin selection. Every connection carries at most one request at a time,
//     responses are matched to requests by order. Broken connections are re-established
//     lazily on their next use. Requests are retried with exponential backoff and jitter
//     only if the request frame was not completely written, so a command is never
//     executed twice because of a retry.
//
//   - serverTransport: Server implementation that accepts connections and serves each
//     one in its own goroutine. Within a connection requests are handled sequentially
//     and responses are written in request order. Accept errors are retried with
//     backoff. Canceling the listen context closes the listener, established
//     connections are served until the peer disconnects.
//
// Metrics:
//
//	The server exposes dtask_connections_open, dtask_connections_accepted_total,
//	dtask_frames_handled_total and dtask_frames_rejected_total through the
//	VictoriaMetrics default set.
//
// Thread Safety:
//
//	All public methods are thread-safe. The client transport uses atomic operations
//	and mutexes to ensure concurrent access safety, while the server creates a
//	dedicated goroutine for each connection.
package base
