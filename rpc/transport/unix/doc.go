// Package unix implements a transport layer for the task server's RPC system using
// Unix domain sockets. It provides optimized communication for processes running on
// the same machine.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting all core functionality like framing, connection pooling and error
// handling from the base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners and accepts connections. An
//     existing socket file at the endpoint path is removed before listening.
package unix
