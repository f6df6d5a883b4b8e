package base

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Metrics
// -----------------------------------------------------------

var (
	openConnections atomic.Int64

	_ = metrics.GetOrCreateGauge(`dtask_connections_open`, func() float64 {
		return float64(openConnections.Load())
	})
	acceptedConnections = metrics.GetOrCreateCounter(`dtask_connections_accepted_total`)
	handledFrames       = metrics.GetOrCreateCounter(`dtask_frames_handled_total`)
	rejectedFrames      = metrics.GetOrCreateCounter(`dtask_frames_rejected_total`)
)

// accept errors are retried with an exponential backoff between these bounds
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	handler   transport.ServerHandleFunc
	config    common.ServerConfig
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport that serves
// every connection sequentially in its own goroutine
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(ctx context.Context, config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}

	// Closing the listener unblocks Accept
	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()
	defer listener.Close()

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	// Connections are not bound to the listen context. Shutting down only stops
	// accepting, requests on established connections still complete.
	connCtx := context.WithoutCancel(ctx)

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				Logger.Infof("Stopped accepting connections on %s", listener.Addr())
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			Logger.Errorf("Accept error: %v; retrying in %s", err, backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		acceptedConnections.Inc()

		// Handle the connection in a goroutine
		go t.handleConnection(connCtx, conn)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection serves the requests of one connection. Requests are read, handled
// and answered strictly one after another, so responses are written in request order.
func (t *serverTransport) handleConnection(ctx context.Context, conn net.Conn) {
	openConnections.Add(1)
	defer openConnections.Add(-1)
	defer conn.Close()

	remote := conn.RemoteAddr()
	maxFrame := t.config.Transport.FrameLimit()
	idleTimeout := time.Duration(t.config.Transport.IdleTimeoutSecond) * time.Second
	writeTimeout := time.Duration(t.config.Transport.WriteTimeoutSecond) * time.Second

	Logger.Debugf("Accepted connection from %s", remote)

	for {
		if idleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				Logger.Errorf("Failed to set read deadline: %v", err)
				return
			}
		}

		req, err := readFrame(conn, maxFrame)

		// Case EOF: Connection closed by client between two frames
		if errors.Is(err, io.EOF) {
			Logger.Debugf("Connection closed by client %s", remote)
			return
		}

		// Case error: log and close connection
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				rejectedFrames.Inc()
			}
			Logger.Warningf("Closing connection to %s: failed to read request: %v", remote, err)
			return
		}

		start := time.Now()
		resp, err := t.handler(ctx, req)
		if err != nil {
			rejectedFrames.Inc()
			Logger.Warningf("Closing connection to %s: %v", remote, err)
			return
		}
		handledFrames.Inc()
		Logger.Debugf("Processed request from %s (%d bytes) in %s", remote, len(req), time.Since(start))

		if writeTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		if err := writeFrame(conn, resp, maxFrame); err != nil {
			Logger.Errorf("Closing connection to %s: failed to write response: %v", remote, err)
			return
		}
	}
}
