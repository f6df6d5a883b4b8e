// Package server implements the RPC server of the task manager.
// It connects a transport, a serializer and a task store: every received frame is
// decoded into a batch of commands, the batch is executed against the store and the
// encoded response is sent back on the same connection.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that executes a request against a store.ITaskStore.
//
//   - NewDispatcherAdapter: Factory function creating the adapter that executes the
//     commands of a batch concurrently. Results are collected by index, so result i
//     always belongs to command i regardless of which command finishes first. A failing,
//     panicking or timed out command only affects its own slot.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms. The store is created from the config:
//     StoreTypeLocal creates an in-memory store, StoreTypeRaft a replicated store
//     using dragonboat (RTTMillisecond, SnapshotEntries, CompactionOverhead, DataDir,
//     ReplicaID, ShardID and ClusterMembers must be configured).
//
//   - NewRPCServerWithStore: Like NewRPCServer, but serves an existing store.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  StoreType: common.StoreTypeLocal,
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  CommandTimeoutSecond: 5,
//	  LogLevel: "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Error Handling:
//
//	A request that cannot be decoded closes the connection without a response, since
//	the stream cannot be trusted anymore. Store errors are returned as Failure results
//	with the error message.
//
// Metrics:
//
//	If MetricsEndpoint is set, /metrics exposes the request, decode failure and per
//	command counters, the batch duration histogram and the connection metrics of the
//	transport in the prometheus text format.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Each request is processed independently.
//	Serve is not thread-safe and should be called only once.
package server
