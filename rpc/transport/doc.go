// Package transport defines the interfaces and abstractions for RPC communication
// of the task server. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// A transport moves opaque frame payloads. Encoding and decoding the payloads is
// the job of the serializer package, executing them the job of the server package.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and passes them to the registered handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks. Returning an
//     error closes the connection the request was received on.
package transport
