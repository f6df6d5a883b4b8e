package dstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the distributed ITaskStore.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	now     func() time.Time
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The shard must have been started on the node host with a state machine
// created by CreateStateMachineFactory.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.ITaskStore {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
		now:     time.Now,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes a Command via SyncPropose and decodes the task returned by the state machine.
// It returns a *store.Error if an error occurs.
func (s *storeImpl) write(ctx context.Context, cmd internal.Command) (store.Task, error) {
	data := cmd.Serialize()

	for i := 0; i < retries; i++ {
		proposeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err := s.nh.SyncPropose(proposeCtx, s.cs, data)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			select {
			case <-ctx.Done():
				return store.Task{}, store.NewError(store.RetCInternalError, ctx.Err().Error())
			case <-time.After(s.timeout / 10):
			}
			continue
		}

		if err != nil {
			return store.Task{}, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return store.Task{}, store.NewError(store.RetCode(res.Value), string(res.Data))
		}

		var task store.Task
		if _, err := task.ReadBinary(res.Data); err != nil {
			return store.Task{}, store.NewError(store.RetCInternalError, err.Error())
		}
		return task, nil
	}
	return store.Task{}, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) to Query the state machine,
// so every read observes all writes that completed before it started.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](s *storeImpl, ctx context.Context, q internal.Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		readCtx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err := s.nh.SyncRead(readCtx, s.shardID, q)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			select {
			case <-ctx.Done():
				return zero, store.NewError(store.RetCInternalError, ctx.Err().Error())
			case <-time.After(s.timeout / 10):
			}
			continue
		}

		if err != nil {
			var storeErr *store.Error
			if errors.As(err, &storeErr) {
				return zero, storeErr
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Create(ctx context.Context, title string, priority store.Priority) (store.Task, error) {
	// validate before proposing, so invalid commands never reach the raft log
	if err := store.ValidateTitle(title); err != nil {
		return store.Task{}, err
	}
	if err := store.ValidatePriority(priority); err != nil {
		return store.Task{}, err
	}
	return s.write(ctx, internal.Command{
		Type:      internal.CommandTCreate,
		Title:     title,
		Priority:  priority,
		CreatedAt: s.now().UTC(),
	})
}

func (s *storeImpl) ListPending(ctx context.Context) ([]store.Task, error) {
	return read[[]store.Task](s, ctx, internal.Query{Type: internal.QueryTListPending})
}

func (s *storeImpl) ListCompleted(ctx context.Context) ([]store.Task, error) {
	return read[[]store.Task](s, ctx, internal.Query{Type: internal.QueryTListCompleted})
}

func (s *storeImpl) MarkDone(ctx context.Context, id store.TaskID) (store.Task, error) {
	return s.write(ctx, internal.Command{
		Type: internal.CommandTMarkDone,
		ID:   id,
	})
}

func (s *storeImpl) RenameTitle(ctx context.Context, id store.TaskID, title string) (store.Task, error) {
	if err := store.ValidateTitle(title); err != nil {
		return store.Task{}, err
	}
	return s.write(ctx, internal.Command{
		Type:  internal.CommandTRename,
		ID:    id,
		Title: title,
	})
}

func (s *storeImpl) SetPriority(ctx context.Context, id store.TaskID, priority store.Priority) (store.Task, error) {
	if err := store.ValidatePriority(priority); err != nil {
		return store.Task{}, err
	}
	return s.write(ctx, internal.Command{
		Type:     internal.CommandTSetPriority,
		ID:       id,
		Priority: priority,
	})
}

func (s *storeImpl) GetByID(ctx context.Context, id store.TaskID) (store.Task, error) {
	res, err := read[internal.QueryResult](s, ctx, internal.Query{
		Type: internal.QueryTGetByID,
		ID:   id,
	})
	if err != nil {
		return store.Task{}, err
	}
	if !res.Ok {
		return store.Task{}, store.NewError(store.RetCNotFound, fmt.Sprintf("task %d not found", id))
	}
	return res.Task, nil
}
