package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/lib/store/lstore"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/serializer"
	"github.com/ValentinKolb/dTask/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runningServer struct {
	socket string
	cancel context.CancelFunc
	done   chan error
}

// startTestServer serves the store on a unix socket and waits until it accepts connections
func startTestServer(t *testing.T, config common.ServerConfig, s store.ITaskStore) *runningServer {
	t.Helper()

	// unix socket paths are limited in length, so t.TempDir is avoided
	dir, err := os.MkdirTemp("", "dtask")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	config.Transport.Endpoint = filepath.Join(dir, "s.sock")
	srv := NewRPCServerWithStore(config, unix.NewUnixServerTransport(), serializer.NewBinarySerializer(), s)

	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningServer{socket: config.Transport.Endpoint, cancel: cancel, done: make(chan error, 1)}
	go func() { rs.done <- srv.Serve(ctx) }()
	t.Cleanup(cancel)

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", rs.socket)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	return rs
}

func dial(t *testing.T, rs *runningServer) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", rs.socket)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeRaw(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	frame := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	_, err := conn.Write(append(frame, payload...))
	require.NoError(t, err)
}

func readRaw(conn net.Conn) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(header[:]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// call sends one request over the connection and decodes the response
func call(t *testing.T, conn net.Conn, cmds ...common.Command) []common.Result {
	t.Helper()
	s := serializer.NewBinarySerializer()

	data, err := s.SerializeRequest(common.ClientRequest{Commands: cmds})
	require.NoError(t, err)
	writeRaw(t, conn, data)

	payload, err := readRaw(conn)
	require.NoError(t, err)

	var resp common.ServerResponse
	require.NoError(t, s.DeserializeResponse(payload, &resp))
	require.Len(t, resp.Results, len(cmds))
	return resp.Results
}

func TestServerBuyMilk(t *testing.T) {
	rs := startTestServer(t, common.ServerConfig{MaxConcurrentCommands: 1}, lstore.NewLocalStore())
	conn := dial(t, rs)

	results := call(t, conn,
		common.CreateTask{Title: "Buy milk", Priority: store.PriorityLow},
		common.ListPending{},
	)

	created := requireTask(t, results[0])
	assert.Equal(t, store.TaskID(1), created.ID)
	assert.Equal(t, "Buy milk", created.Title)
	assert.Equal(t, store.PriorityLow, created.Priority)
	assert.False(t, created.Completed)

	pending := requireTaskList(t, results[1])
	require.Len(t, pending, 1)
	assert.Equal(t, created, pending[0])
}

func TestServerSequentialRequests(t *testing.T) {
	rs := startTestServer(t, common.ServerConfig{}, lstore.NewLocalStore())
	conn := dial(t, rs)

	// empty batch
	assert.Empty(t, call(t, conn))

	created := requireTask(t, call(t, conn, common.CreateTask{Title: "a", Priority: store.PriorityUrgent})[0])
	done := requireTask(t, call(t, conn, common.MarkDone{ID: created.ID})[0])
	assert.True(t, done.Completed)

	results := call(t, conn, common.ListCompleted{}, common.GetByID{ID: 99})
	assert.Equal(t, []store.Task{done}, requireTaskList(t, results[0]))
	assert.Contains(t, requireFailure(t, results[1]), "not found")
}

func TestServerSharedStore(t *testing.T) {
	rs := startTestServer(t, common.ServerConfig{}, lstore.NewLocalStore())
	first := dial(t, rs)
	second := dial(t, rs)

	created := requireTask(t, call(t, first, common.CreateTask{Title: "shared", Priority: store.PriorityLow})[0])
	got := requireTask(t, call(t, second, common.GetByID{ID: created.ID})[0])
	assert.Equal(t, created, got)
}

func TestServerDecodeErrorClosesConnection(t *testing.T) {
	rs := startTestServer(t, common.ServerConfig{}, lstore.NewLocalStore())
	bad := dial(t, rs)
	good := dial(t, rs)

	// one command with an unknown tag
	writeRaw(t, bad, []byte{0, 0, 0, 1, 42})
	_, err := readRaw(bad)
	assert.ErrorIs(t, err, io.EOF)

	assert.Empty(t, requireTaskList(t, call(t, good, common.ListPending{})[0]))
}

func TestServerDisconnectMidFrame(t *testing.T) {
	rs := startTestServer(t, common.ServerConfig{}, lstore.NewLocalStore())
	other := dial(t, rs)

	broken := dial(t, rs)
	_, err := broken.Write([]byte{0, 0, 0, 20, 0, 0})
	require.NoError(t, err)
	require.NoError(t, broken.Close())

	requireTask(t, call(t, other, common.CreateTask{Title: "after", Priority: store.PriorityLow})[0])

	// the server still accepts new connections
	requireTaskList(t, call(t, dial(t, rs), common.ListPending{})[0])
}

func TestServerShutdown(t *testing.T) {
	rs := startTestServer(t, common.ServerConfig{}, lstore.NewLocalStore())
	conn := dial(t, rs)
	requireTaskList(t, call(t, conn, common.ListPending{})[0])

	rs.cancel()
	select {
	case err := <-rs.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	// established connections keep working
	requireTaskList(t, call(t, conn, common.ListPending{})[0])
}

func TestServerInvalidStoreType(t *testing.T) {
	srv := NewRPCServer(common.ServerConfig{StoreType: "nope"}, unix.NewUnixServerTransport(), serializer.NewBinarySerializer())
	assert.Error(t, srv.Serve(context.Background()))
}

func TestServerInvalidLogLevel(t *testing.T) {
	srv := NewRPCServer(common.ServerConfig{LogLevel: "loud"}, unix.NewUnixServerTransport(), serializer.NewBinarySerializer())
	assert.Error(t, srv.Serve(context.Background()))
}

func TestServerLocalStoreFromConfig(t *testing.T) {
	srv := NewRPCServer(common.ServerConfig{StoreType: common.StoreTypeLocal}, unix.NewUnixServerTransport(), serializer.NewBinarySerializer())
	require.NoError(t, srv.init())
	require.NotNil(t, srv.store)

	out, err := srv.handle(context.Background(), []byte{0, 0, 0, 1, 2}) // [ListPending]
	require.NoError(t, err)

	var resp common.ServerResponse
	require.NoError(t, serializer.NewBinarySerializer().DeserializeResponse(out, &resp))
	require.Len(t, resp.Results, 1)
	assert.Empty(t, requireTaskList(t, resp.Results[0]))

	_, err = srv.handle(context.Background(), []byte{1})
	assert.ErrorIs(t, err, serializer.ErrDecode)
}

func TestServerEmptyListRoundTrip(t *testing.T) {
	for name, ser := range map[string]serializer.IRPCSerializer{
		"Binary": serializer.NewBinarySerializer(),
		"JSON":   serializer.NewJSONSerializer(),
	} {
		t.Run(name, func(t *testing.T) {
			srv := NewRPCServerWithStore(common.ServerConfig{}, unix.NewUnixServerTransport(), ser, lstore.NewLocalStore())
			require.NoError(t, srv.init())

			req := common.ClientRequest{Commands: []common.Command{common.ListPending{}, common.ListCompleted{}}}
			direct := srv.adapter.Handle(context.Background(), &req, srv.store)

			payload, err := ser.SerializeRequest(req)
			require.NoError(t, err)
			out, err := srv.handle(context.Background(), payload)
			require.NoError(t, err)

			var resp common.ServerResponse
			require.NoError(t, ser.DeserializeResponse(out, &resp))
			assert.Equal(t, *direct, resp)
			assert.Equal(t, common.Success{Value: common.TaskListValue{}}, resp.Results[0])
		})
	}
}

func TestServerOversizedResponse(t *testing.T) {
	st := lstore.NewLocalStore()
	for i := 0; i < 20; i++ {
		_, err := st.Create(context.Background(), fmt.Sprintf("%03d-%s", i, strings.Repeat("x", 96)), store.PriorityRegular)
		require.NoError(t, err)
	}

	config := common.ServerConfig{}
	config.Transport.MaxFrameBytes = 1024
	rs := startTestServer(t, config, st)
	conn := dial(t, rs)

	// the list does not fit into a frame, the small result next to it does
	results := call(t, conn, common.ListPending{}, common.GetByID{ID: 1})
	failure, ok := results[0].(common.Failure)
	require.True(t, ok, "expected a failure, got %#v", results[0])
	assert.Contains(t, failure.Message, "frame limit")
	assert.Equal(t, store.TaskID(1), requireTask(t, results[1]).ID)

	// the connection stays usable
	results = call(t, conn, common.GetByID{ID: 2})
	assert.Equal(t, store.TaskID(2), requireTask(t, results[0]).ID)
}
