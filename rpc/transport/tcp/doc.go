// Package tcp implements TCP socket-based transport for the task server's RPC system.
// It provides concrete implementations of the base package's connector interfaces.
//
// Framing, connection pooling, retries and the sequential connection loop are inherited
// from the base package. See the base package documentation for details.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both connectors apply the SocketConf and TCPConf options of their configuration
// (TCP_NODELAY, socket buffer sizes, keep-alive and linger) to every connection.
package tcp
