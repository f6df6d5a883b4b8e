package base

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Test connectors
// --------------------------------------------------------------------------

// testServerConnector hands out a listener that is already bound
type testServerConnector struct {
	listener net.Listener
}

func (c *testServerConnector) Listen(common.ServerConfig) (net.Listener, error) {
	return c.listener, nil
}

func (c *testServerConnector) GetName() string { return "test" }

func (c *testServerConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

type testClientConnector struct{}

func (c *testClientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

func (c *testClientConnector) GetName() string { return "test" }

func (c *testClientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type testServer struct {
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, config common.ServerConfig, handler transport.ServerHandleFunc) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewBaseServerTransport(&testServerConnector{listener: ln})
	srv.RegisterHandler(handler)

	ctx, cancel := context.WithCancel(context.Background())
	s := &testServer{addr: ln.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- srv.Listen(ctx, config) }()
	t.Cleanup(cancel)

	return s
}

func newClient(t *testing.T, connections int, endpoints ...string) transport.IRPCClientTransport {
	t.Helper()

	client := NewBaseClientTransport(&testClientConnector{})
	err := client.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              endpoints,
			RetryCount:             3,
			ConnectionsPerEndpoint: connections,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// echoHandler answers every request with "echo:" + request
func echoHandler(_ context.Context, req []byte) ([]byte, error) {
	return append([]byte("echo:"), req...), nil
}

// exchange writes one frame on a raw connection and reads the answer
func exchange(t *testing.T, conn net.Conn, payload string) string {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, writeFrame(conn, []byte(payload), common.DefaultMaxFrameBytes))
	resp, err := readFrame(conn, common.DefaultMaxFrameBytes)
	require.NoError(t, err)
	return string(resp)
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestSendReceive(t *testing.T) {
	srv := startServer(t, common.ServerConfig{}, echoHandler)
	client := newClient(t, 4, srv.addr)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				msg := fmt.Sprintf("g%d-%d", g, i)
				resp, err := client.Send(context.Background(), []byte(msg))
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, "echo:"+msg, string(resp))
			}
		}(g)
	}
	wg.Wait()
}

func TestEmptyPayload(t *testing.T) {
	srv := startServer(t, common.ServerConfig{}, func(_ context.Context, req []byte) ([]byte, error) {
		return []byte{}, nil
	})
	client := newClient(t, 1, srv.addr)

	resp, err := client.Send(context.Background(), []byte{})
	require.NoError(t, err)
	assert.Empty(t, resp)
}

func TestResponsesInRequestOrder(t *testing.T) {
	// the first request is slow, later requests on the same connection must wait
	srv := startServer(t, common.ServerConfig{}, func(_ context.Context, req []byte) ([]byte, error) {
		if string(req) == "slow" {
			time.Sleep(100 * time.Millisecond)
		}
		return req, nil
	})

	conn, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer conn.Close()

	// pipeline two requests before reading any response
	require.NoError(t, writeFrame(conn, []byte("slow"), 1024))
	require.NoError(t, writeFrame(conn, []byte("fast"), 1024))

	first, err := readFrame(conn, 1024)
	require.NoError(t, err)
	second, err := readFrame(conn, 1024)
	require.NoError(t, err)

	assert.Equal(t, "slow", string(first))
	assert.Equal(t, "fast", string(second))
}

func TestHandlerErrorClosesConnection(t *testing.T) {
	srv := startServer(t, common.ServerConfig{}, func(ctx context.Context, req []byte) ([]byte, error) {
		if string(req) == "bad" {
			return nil, errors.New("cannot decode")
		}
		return echoHandler(ctx, req)
	})

	bad, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer bad.Close()

	good, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer good.Close()

	assert.Equal(t, "echo:before", exchange(t, good, "before"))

	require.NoError(t, bad.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, writeFrame(bad, []byte("bad"), 1024))
	_, err = readFrame(bad, 1024)
	assert.ErrorIs(t, err, io.EOF, "the server must close the connection without a response")

	// other connections are not affected
	assert.Equal(t, "echo:after", exchange(t, good, "after"))
}

func TestDisconnectMidFrame(t *testing.T) {
	srv := startServer(t, common.ServerConfig{}, echoHandler)

	other, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer other.Close()
	assert.Equal(t, "echo:1", exchange(t, other, "1"))

	broken, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	// announce 10 bytes but send only 3
	_, err = broken.Write([]byte{0, 0, 0, 10, 'a', 'b', 'c'})
	require.NoError(t, err)
	require.NoError(t, broken.Close())

	assert.Equal(t, "echo:2", exchange(t, other, "2"))
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	srv := startServer(t, common.ServerConfig{Transport: common.ServerTransportConfig{MaxFrameBytes: 8}}, echoHandler)

	conn, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Write([]byte{0x7f, 0xff, 0xff, 0xff})
	require.NoError(t, err)

	_, err = readFrame(conn, 1024)
	assert.Error(t, err)
}

func TestIdleTimeout(t *testing.T) {
	srv := startServer(t, common.ServerConfig{Transport: common.ServerTransportConfig{IdleTimeoutSecond: 1}}, echoHandler)

	conn, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "echo:x", exchange(t, conn, "x"))

	// the server closes the idle connection
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = readFrame(conn, 1024)
	assert.ErrorIs(t, err, io.EOF)
}

func TestListenShutdown(t *testing.T) {
	srv := startServer(t, common.ServerConfig{}, echoHandler)

	conn, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "echo:a", exchange(t, conn, "a"))

	srv.cancel()
	select {
	case err := <-srv.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}

	// established connections are still served
	assert.Equal(t, "echo:b", exchange(t, conn, "b"))

	// new connections are refused
	_, err = net.DialTimeout("tcp", srv.addr, time.Second)
	assert.Error(t, err)
}

func TestListenWithoutHandler(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewBaseServerTransport(&testServerConnector{listener: ln})
	assert.Error(t, srv.Listen(context.Background(), common.ServerConfig{}))
}

func TestClientNoRetryAfterWrite(t *testing.T) {
	var calls atomic.Int32
	srv := startServer(t, common.ServerConfig{}, func(ctx context.Context, req []byte) ([]byte, error) {
		calls.Add(1)
		if string(req) == "drop" {
			return nil, errors.New("drop connection")
		}
		return echoHandler(ctx, req)
	})
	client := newClient(t, 1, srv.addr)

	_, err := client.Send(context.Background(), []byte("drop"))
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "a written request must not be retried")

	// the connection is re-established lazily
	resp, err := client.Send(context.Background(), []byte("again"))
	require.NoError(t, err)
	assert.Equal(t, "echo:again", string(resp))
}

func TestClientRetryOnConnectFailure(t *testing.T) {
	srv := startServer(t, common.ServerConfig{}, echoHandler)

	// an endpoint nobody listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := newClient(t, 1, deadAddr, srv.addr)

	for i := 0; i < 10; i++ {
		resp, err := client.Send(context.Background(), []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, "echo:x", string(resp))
	}
}

func TestClientConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := NewBaseClientTransport(&testClientConnector{})
	assert.Error(t, client.Connect(common.ClientConfig{Transport: common.ClientTransportConfig{Endpoints: []string{deadAddr}}}))
	assert.Error(t, client.Connect(common.ClientConfig{}))
}

func TestClientContextDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	srv := startServer(t, common.ServerConfig{}, func(_ context.Context, req []byte) ([]byte, error) {
		<-release
		return req, nil
	})
	client := newClient(t, 1, srv.addr)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Send(ctx, []byte("hang"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestClientFrameTooLarge(t *testing.T) {
	srv := startServer(t, common.ServerConfig{}, echoHandler)

	client := NewBaseClientTransport(&testClientConnector{})
	require.NoError(t, client.Connect(common.ClientConfig{Transport: common.ClientTransportConfig{
		Endpoints:     []string{srv.addr},
		MaxFrameBytes: 8,
	}}))
	defer client.Close()

	_, err := client.Send(context.Background(), bytes.Repeat([]byte("a"), 9))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// the response "echo:" + 4 bytes exceeds the limit as well
	_, err = client.Send(context.Background(), []byte("abcd"))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	resp, err := client.Send(context.Background(), []byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, "echo:ab", string(resp))
}

func TestSendAfterClose(t *testing.T) {
	srv := startServer(t, common.ServerConfig{}, echoHandler)
	client := newClient(t, 2, srv.addr)

	require.NoError(t, client.Close())
	_, err := client.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestReconnectReleasesBusyConnections(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := startServer(t, common.ServerConfig{}, func(ctx context.Context, req []byte) ([]byte, error) {
		if string(req) == "slow" {
			entered <- struct{}{}
			<-release
		}
		return echoHandler(ctx, req)
	})
	client := newClient(t, 1, srv.addr)

	ct := client.(*clientTransport)
	ct.connectionsMu.RLock()
	old := ct.connections[0]
	ct.connectionsMu.RUnlock()

	done := make(chan error, 1)
	go func() {
		resp, err := client.Send(context.Background(), []byte("slow"))
		if err == nil && string(resp) != "echo:slow" {
			err = fmt.Errorf("unexpected response %q", resp)
		}
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not reach the server")
	}

	// replace the pool while the old connection is busy
	require.NoError(t, client.Connect(ct.config))
	assert.True(t, old.retired.Load())

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
	}

	old.mu.Lock()
	assert.Nil(t, old.conn, "retired connection must be closed once idle")
	old.mu.Unlock()

	// a request that picked the old connection is sent over the new pool
	resp, err := old.roundTrip(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, errConnectionRetired)
	assert.Nil(t, resp)

	resp, err = client.Send(context.Background(), []byte("fast"))
	require.NoError(t, err)
	assert.Equal(t, "echo:fast", string(resp))
}
