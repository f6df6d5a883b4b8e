package dstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// TaskStateMachine is a state machine implementation for Dragonboat RAFT.
// It holds the task table of one shard. Update and Lookup may be called
// concurrently, the table is guarded by a RWMutex.
type TaskStateMachine struct {
	replicaID uint64
	shardID   uint64

	mu     sync.RWMutex
	tasks  map[store.TaskID]store.Task
	lastID uint64
}

// taskTable is the point in time copy of the state created by PrepareSnapshot
type taskTable struct {
	lastID uint64
	tasks  []store.Task
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return newTaskStateMachine(shardID, replicaID)
	}
}

func newTaskStateMachine(shardID, replicaID uint64) *TaskStateMachine {
	return &TaskStateMachine{
		replicaID: replicaID,
		shardID:   shardID,
		tasks:     make(map[store.TaskID]store.Task),
	}
}

// Lookup handles read-only queries
func (fsm *TaskStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	switch q.Type {
	case internal.QueryTGetByID:
		task, ok := fsm.tasks[q.ID]
		return internal.QueryResult{Ok: ok, Task: task}, nil
	case internal.QueryTListPending:
		return fsm.list(false), nil
	case internal.QueryTListCompleted:
		return fsm.list(true), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// list must be called with at least the read lock held
func (fsm *TaskStateMachine) list(completed bool) []store.Task {
	var res []store.Task
	for _, task := range fsm.tasks {
		if task.Completed == completed {
			res = append(res, task)
		}
	}
	store.SortByID(res)
	return res
}

func failure(code store.RetCode, msg string) sm.Result {
	return sm.Result{Value: uint64(code), Data: []byte(msg)}
}

func success(task store.Task) sm.Result {
	return sm.Result{Value: uint64(store.RetCSuccess), Data: task.AppendBinary(nil)}
}

// Update handles write commands on the task table.
// All write operations are serialized into []byte and are accessible via the entries struct.
// On success the result data holds the binary encoded task, otherwise the error message.
func (fsm *TaskStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = failure(store.RetCInvalidOperation, "empty command ignored")
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = failure(store.RetCInternalError, fmt.Sprintf("failed to deserialize command: %v", err))
			continue
		}

		entries[idx].Result = fsm.apply(cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single command, the write lock must be held
func (fsm *TaskStateMachine) apply(cmd internal.Command) sm.Result {
	if cmd.Type == internal.CommandTCreate {
		if err := store.ValidateTitle(cmd.Title); err != nil {
			return failure(store.RetCInvalidArgument, err.(*store.Error).Msg)
		}
		if err := store.ValidatePriority(cmd.Priority); err != nil {
			return failure(store.RetCInvalidArgument, err.(*store.Error).Msg)
		}
		fsm.lastID++
		task := store.Task{
			ID:        store.TaskID(fsm.lastID),
			Title:     cmd.Title,
			Priority:  cmd.Priority,
			CreatedAt: cmd.CreatedAt,
		}
		fsm.tasks[task.ID] = task
		return success(task)
	}

	task, ok := fsm.tasks[cmd.ID]
	if !ok {
		return failure(store.RetCNotFound, fmt.Sprintf("task %d not found", cmd.ID))
	}

	switch cmd.Type {
	case internal.CommandTMarkDone:
		task.Completed = true
	case internal.CommandTRename:
		if err := store.ValidateTitle(cmd.Title); err != nil {
			return failure(store.RetCInvalidArgument, err.(*store.Error).Msg)
		}
		task.Title = cmd.Title
	case internal.CommandTSetPriority:
		if err := store.ValidatePriority(cmd.Priority); err != nil {
			return failure(store.RetCInvalidArgument, err.(*store.Error).Msg)
		}
		task.Priority = cmd.Priority
	default:
		return failure(store.RetCInvalidOperation, fmt.Sprintf("unknown Command operation: %s", cmd.Type))
	}

	fsm.tasks[task.ID] = task
	return success(task)
}

// PrepareSnapshot copies the task table. Dragonboat guarantees that Update is not
// running concurrently, SaveSnapshot may then run while new entries are applied.
func (fsm *TaskStateMachine) PrepareSnapshot() (interface{}, error) {
	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	table := taskTable{
		lastID: fsm.lastID,
		tasks:  make([]store.Task, 0, len(fsm.tasks)),
	}
	for _, task := range fsm.tasks {
		table.tasks = append(table.tasks, task)
	}
	store.SortByID(table.tasks)
	return table, nil
}

// SaveSnapshot writes the table copied by PrepareSnapshot with the format:
// 8 bytes last assigned id, 8 bytes task count, followed by the binary encoded tasks
func (fsm *TaskStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, done <-chan struct{}) error {
	table, ok := ctx.(taskTable)
	if !ok {
		return fmt.Errorf("invalid snapshot context type: %T", ctx)
	}

	header := make([]byte, 16)
	binary.BigEndian.PutUint64(header[0:8], table.lastID)
	binary.BigEndian.PutUint64(header[8:16], uint64(len(table.tasks)))
	if _, err := writer.Write(header); err != nil {
		return err
	}

	buf := make([]byte, 0, 256)
	for i, task := range table.tasks {
		if i%1024 == 0 {
			select {
			case <-done:
				return sm.ErrSnapshotStopped
			default:
			}
		}
		buf = task.AppendBinary(buf[:0])
		if _, err := writer.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// RecoverFromSnapshot replaces the task table with the one read from r.
func (fsm *TaskStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, done <-chan struct{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(data) < 16 {
		return fmt.Errorf("snapshot too short")
	}

	lastID := binary.BigEndian.Uint64(data[0:8])
	count := binary.BigEndian.Uint64(data[8:16])
	pos := 16

	tasks := make(map[store.TaskID]store.Task)
	for i := uint64(0); i < count; i++ {
		if i%1024 == 0 {
			select {
			case <-done:
				return sm.ErrSnapshotStopped
			default:
			}
		}
		var task store.Task
		n, err := task.ReadBinary(data[pos:])
		if err != nil {
			return fmt.Errorf("failed to read task %d from snapshot: %w", i, err)
		}
		pos += n
		tasks[task.ID] = task
	}
	if pos != len(data) {
		return fmt.Errorf("snapshot has %d trailing bytes", len(data)-pos)
	}

	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	fsm.tasks = tasks
	fsm.lastID = lastID
	return nil
}

// Close performs any necessary cleanup.
func (fsm *TaskStateMachine) Close() error {
	return nil
}
