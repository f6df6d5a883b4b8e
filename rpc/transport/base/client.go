package base

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrTransportClosed is returned by Send after Close was called
var ErrTransportClosed = errors.New("transport closed")

// errConnectionRetired is returned by a connection that was removed from the pool
var errConnectionRetired = errors.New("connection retired")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientConnection represents a single net connection. The mutex is held for a
// whole request/response exchange, so at most one request is in flight.
type clientConnection struct {
	mu       sync.Mutex
	conn     net.Conn // nil until connected or after a failure
	endpoint string
	parent   *clientTransport
	retired  atomic.Bool // removed from the pool, closed once idle
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64 // Round Robin counter
	closed        atomic.Bool
}

// sendError carries whether the request frame was completely written before the
// exchange failed. Such requests may have been executed and are never retried.
type sendError struct {
	err     error
	written bool
}

func (e *sendError) Error() string { return e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()

	// Store the config
	t.config = config
	t.closed.Store(false)

	// Set default value for ConnectionsPerEndpoint
	connectionsPerEP := max(1, config.Transport.ConnectionsPerEndpoint)

	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)
	connected := 0

	// Initialize client connections. Connections that fail now are kept in the
	// pool and reconnect lazily on their next use.
	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint: endpoint,
				parent:   t,
			}

			clientConn.mu.Lock()
			err := clientConn.reconnectLocked()
			clientConn.mu.Unlock()

			if err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
			} else {
				connected++
			}
			connections = append(connections, clientConn)
		}
	}

	// Check if we have at least one connection
	if connected == 0 {
		for _, c := range connections {
			c.close()
		}
		return fmt.Errorf("failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		connected, len(connections), len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(ctx context.Context, req []byte) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	maxFrame := t.config.Transport.FrameLimit()
	if len(req) > maxFrame {
		return nil, fmt.Errorf("%w: request of %d bytes exceeds limit of %d bytes", ErrFrameTooLarge, len(req), maxFrame)
	}

	// We always try at least once, and up to maxRetries times
	maxRetries := max(1, t.config.Transport.RetryCount)

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		conn := t.getNextConnection()
		if conn == nil {
			return nil, fmt.Errorf("no connections available")
		}

		data, err := conn.roundTrip(ctx, req)
		if err == nil {
			return data, nil
		}
		lastErr = err

		// The server may have executed the request, a retry could apply it twice
		var se *sendError
		if errors.As(err, &se) && se.written {
			return nil, fmt.Errorf("connection to %s lost after sending request: %w", conn.endpoint, se.err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			select {
			case <-time.After(time.Duration(jitter) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoffMs *= 2
		}
	}

	// All attempts failed
	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.closed.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}

	// optimize for single connection
	if len(t.connections) == 1 {
		return t.connections[0]
	}
	index := t.nextConnIndex.Add(1) % uint64(len(t.connections))
	return t.connections[index]
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, c := range connections {
		c.close()
	}
}

// roundTrip writes one request frame and reads the matching response frame.
// Any failure drops the connection, it is re-established on the next use.
func (c *clientConnection) roundTrip(ctx context.Context, req []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		if c.retired.Load() || c.parent.closed.Load() {
			c.dropLocked()
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// picked just before the pool was replaced, nothing was sent yet
	if c.retired.Load() {
		return nil, &sendError{err: errConnectionRetired}
	}

	if c.conn == nil {
		if err := c.reconnectLocked(); err != nil {
			return nil, &sendError{err: err}
		}
	}
	conn := c.conn

	var deadline time.Time
	if timeout := c.parent.config.Timeout(); timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		c.dropLocked()
		return nil, &sendError{err: err}
	}

	// Cancellation and context deadlines unblock pending reads and writes
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	maxFrame := c.parent.config.Transport.FrameLimit()

	if err := writeFrame(conn, req, maxFrame); err != nil {
		c.dropLocked()
		return nil, &sendError{err: fmt.Errorf("failed to write request: %w", err)}
	}

	resp, err := readFrame(conn, maxFrame)
	if err != nil {
		c.dropLocked()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &sendError{err: fmt.Errorf("failed to read response: %w", err), written: true}
	}
	return resp, nil
}

// reconnectLocked establishes or restores the connection to the endpoint, c.mu must be held
func (c *clientConnection) reconnectLocked() error {
	c.dropLocked()

	// Connect to the endpoint
	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", c.endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %v", c.endpoint, err)
	}

	c.conn = conn
	return nil
}

// dropLocked closes the connection if it exists, c.mu must be held
func (c *clientConnection) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// close retires the connection and closes it if it is idle. A connection with
// a request in flight is dropped by that request once it completes.
func (c *clientConnection) close() {
	c.retired.Store(true)
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()
	c.dropLocked()
}
