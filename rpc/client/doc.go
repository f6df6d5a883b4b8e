// Package client implements the RPC client of the task manager.
// It provides an implementation of the store.ITaskStore interface that
// communicates with a remote server via RPC.
//
// The package focuses on:
//   - Transparent RPC access to a remote task store
//   - Sending several commands in one request (batches)
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewRPCTaskStore: Factory function that creates an ITaskClient. Every store method
//     sends a request with a single command. Execute sends a batch, its results are
//     returned in command order.
//
//   - Failure results are converted into errors. Store errors keep their return code,
//     so store.IsNotFound can be used on errors returned by the client.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	c, err := client.NewRPCTaskStore(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	task, err := c.Create(ctx, "Buy milk", store.PriorityLow)
//
//	results, err := c.Execute(ctx,
//	  common.MarkDone{ID: task.ID},
//	  common.ListPending{},
//	)
//
// Performance Considerations:
//
//   - A connection carries one request at a time. Increasing ConnectionsPerEndpoint
//     allows concurrent requests from multiple goroutines.
//
//   - Batching several commands into one request saves a round trip per command,
//     the server executes the commands of a batch concurrently.
//
// Thread Safety:
//
//	The client is thread-safe and can be used concurrently from multiple goroutines
//	without additional synchronization.
package client
