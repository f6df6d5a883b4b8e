package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/rpc/common"
	"github.com/ValentinKolb/dTask/rpc/serializer"
	"github.com/ValentinKolb/dTask/rpc/transport"
)

// ITaskClient is a task store backed by a remote server.
// Every store method sends a request with a single command, Execute sends a whole batch.
type ITaskClient interface {
	store.ITaskStore

	// Execute sends all commands in one request and returns their results in command order.
	// The error is only set if the request as a whole failed, failed commands are
	// reported as common.Failure results.
	Execute(ctx context.Context, cmds ...common.Command) ([]common.Result, error)

	// Close closes the underlying transport
	Close() error
}

// NewRPCTaskStore creates a new RPC task store
// The function takes a config, a transport and a serializer as parameters
// It connects the transport and returns the client
func NewRPCTaskStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (ITaskClient, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcTaskStore{
		rpcClientAdapter{
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcTaskStore struct {
	rpcClientAdapter
}

func (c *rpcTaskStore) Execute(ctx context.Context, cmds ...common.Command) ([]common.Result, error) {
	resp, err := invokeRPCRequest(ctx, &common.ClientRequest{Commands: cmds}, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *rpcTaskStore) Close() error {
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (c *rpcTaskStore) Create(ctx context.Context, title string, priority store.Priority) (store.Task, error) {
	return c.task(ctx, common.CreateTask{Title: title, Priority: priority})
}

func (c *rpcTaskStore) ListPending(ctx context.Context) ([]store.Task, error) {
	return c.taskList(ctx, common.ListPending{})
}

func (c *rpcTaskStore) ListCompleted(ctx context.Context) ([]store.Task, error) {
	return c.taskList(ctx, common.ListCompleted{})
}

func (c *rpcTaskStore) MarkDone(ctx context.Context, id store.TaskID) (store.Task, error) {
	return c.task(ctx, common.MarkDone{ID: id})
}

func (c *rpcTaskStore) RenameTitle(ctx context.Context, id store.TaskID, title string) (store.Task, error) {
	return c.task(ctx, common.RenameTask{ID: id, Title: title})
}

func (c *rpcTaskStore) SetPriority(ctx context.Context, id store.TaskID, priority store.Priority) (store.Task, error) {
	return c.task(ctx, common.SetPriority{ID: id, Priority: priority})
}

func (c *rpcTaskStore) GetByID(ctx context.Context, id store.TaskID) (store.Task, error) {
	return c.task(ctx, common.GetByID{ID: id})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// single executes one command and returns the value of its result
func (c *rpcTaskStore) single(ctx context.Context, cmd common.Command) (common.Value, error) {
	results, err := c.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return successValue(results[0])
}

// task executes a command that returns a task. An acknowledgement returns the zero Task.
func (c *rpcTaskStore) task(ctx context.Context, cmd common.Command) (store.Task, error) {
	value, err := c.single(ctx, cmd)
	if err != nil {
		return store.Task{}, err
	}
	switch v := value.(type) {
	case common.TaskValue:
		return v.Task, nil
	case common.AckValue:
		return store.Task{}, nil
	default:
		return store.Task{}, fmt.Errorf("RPC client - unexpected value %T for %s", value, cmd.Type())
	}
}

// taskList executes a command that returns a list of tasks
func (c *rpcTaskStore) taskList(ctx context.Context, cmd common.Command) ([]store.Task, error) {
	value, err := c.single(ctx, cmd)
	if err != nil {
		return nil, err
	}
	v, ok := value.(common.TaskListValue)
	if !ok {
		return nil, fmt.Errorf("RPC client - unexpected value %T for %s", value, cmd.Type())
	}
	return v.Tasks, nil
}
