package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/lib/store/lstore"
	storetesting "github.com/ValentinKolb/dTask/lib/store/testing"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/serializer"
	"github.com/ValentinKolb/dTask/rpc/server"
	"github.com/ValentinKolb/dTask/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddress(tb testing.TB) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)
	defer l.Close()
	return l.Addr().String()
}

// startClient starts a tcp server with a local store and returns a connected client
func startClient(tb testing.TB, ser serializer.IRPCSerializer) ITaskClient {
	tb.Helper()

	addr := freeAddress(tb)
	srv := server.NewRPCServerWithStore(common.ServerConfig{
		Transport: common.ServerTransportConfig{
			Endpoint: addr,
			TCPConf:  common.TCPConf{TCPNoDelay: true},
		},
	}, tcp.NewTCPServerTransport(), ser, lstore.NewLocalStore())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()
	tb.Cleanup(cancel)

	require.Eventually(tb, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	c, err := NewRPCTaskStore(common.ClientConfig{
		TimeoutSecond: 10,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{addr},
			RetryCount:             3,
			ConnectionsPerEndpoint: 4,
			TCPConf:                common.TCPConf{TCPNoDelay: true},
		},
	}, tcp.NewTCPClientTransport(), ser)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = c.Close() })

	return c
}

func TestRPCTaskStore(t *testing.T) {
	serializers := map[string]func() serializer.IRPCSerializer{
		"Binary": serializer.NewBinarySerializer,
		"JSON":   serializer.NewJSONSerializer,
	}

	for name, factory := range serializers {
		storetesting.RunTaskStoreTests(t, "RPCTaskStore/"+name, func(tb testing.TB) store.ITaskStore {
			return startClient(tb, factory())
		})
	}
}

func TestExecuteBatch(t *testing.T) {
	c := startClient(t, serializer.NewBinarySerializer())
	ctx := context.Background()

	results, err := c.Execute(ctx,
		common.CreateTask{Title: "Buy milk", Priority: store.PriorityLow},
		common.GetByID{ID: 1000},
	)
	require.NoError(t, err)
	require.Len(t, results, 2)

	success, ok := results[0].(common.Success)
	require.True(t, ok)
	created := success.Value.(common.TaskValue).Task
	assert.Equal(t, "Buy milk", created.Title)

	_, ok = results[1].(common.Failure)
	assert.True(t, ok)

	// empty batch
	results, err = c.Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	pending, err := c.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Task{created}, pending)
}

func TestErrorConversion(t *testing.T) {
	c := startClient(t, serializer.NewBinarySerializer())
	ctx := context.Background()

	_, err := c.GetByID(ctx, 42)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err), "expected a not found error, got %v", err)

	_, err = c.Create(ctx, "", store.PriorityLow)
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr), "expected a store error, got %v", err)
	assert.Equal(t, store.RetCInvalidArgument, storeErr.Code)

	// an unknown priority cannot be encoded and never reaches the server
	_, err = c.Create(ctx, "x", store.Priority(9))
	assert.ErrorIs(t, err, serializer.ErrEncode)
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError(common.Success{Value: common.AckValue{}}))
	assert.ErrorIs(t, resultError(common.Failure{Message: "get: context deadline exceeded"}), ErrCommandFailed)

	_, err := successValue(nil)
	assert.Error(t, err)
}

func TestConnectFailure(t *testing.T) {
	_, err := NewRPCTaskStore(common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{freeAddress(t)}},
	}, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
	assert.Error(t, err)
}

// scriptedTransport answers every request with a fixed response or error
type scriptedTransport struct {
	resp []byte
	err  error
}

func (s *scriptedTransport) Connect(common.ClientConfig) error { return nil }
func (s *scriptedTransport) Close() error                      { return nil }
func (s *scriptedTransport) Send(context.Context, []byte) ([]byte, error) {
	return s.resp, s.err
}

func TestInvokeRPCRequestErrors(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	req := &common.ClientRequest{Commands: []common.Command{common.ListPending{}, common.ListCompleted{}}}
	sendErr := errors.New("connection lost")

	_, err := invokeRPCRequest(context.Background(), req, &scriptedTransport{err: sendErr}, ser)
	assert.ErrorIs(t, err, sendErr)

	_, err = invokeRPCRequest(context.Background(), req, &scriptedTransport{resp: []byte{0, 0}}, ser)
	assert.ErrorIs(t, err, serializer.ErrDecode)

	oneResult, err := ser.SerializeResponse(common.ServerResponse{Results: []common.Result{common.Failure{Message: "x"}}})
	require.NoError(t, err)
	_, err = invokeRPCRequest(context.Background(), req, &scriptedTransport{resp: oneResult}, ser)
	assert.ErrorContains(t, err, "expected 2 results, got 1")

	c, err := NewRPCTaskStore(common.ClientConfig{}, &scriptedTransport{err: sendErr}, ser)
	require.NoError(t, err)
	_, err = c.ListPending(context.Background())
	assert.ErrorIs(t, err, sendErr)
}
