package common

import (
	"github.com/ValentinKolb/dTask/lib/store"
)

// --------------------------------------------------------------------------
// Request Structure
// --------------------------------------------------------------------------

// ClientRequest is the batch of commands sent in a single frame.
// The position of a command in Commands is the slot of its result in the ServerResponse.
type ClientRequest struct {
	Commands []Command
}

// ServerResponse holds one result per command of the originating ClientRequest.
// Results[i] is the result of ClientRequest.Commands[i].
type ServerResponse struct {
	Results []Result
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Command is a single operation within a ClientRequest.
// The set of commands is closed: only the types in this package implement it.
type Command interface {
	// Type returns the wire tag of the command
	Type() CommandType
	isCommand()
}

// CreateTask creates a new task
type CreateTask struct {
	Title    string
	Priority store.Priority
}

// ListPending lists all tasks that are not completed
type ListPending struct{}

// ListCompleted lists all completed tasks
type ListCompleted struct{}

// MarkDone marks a task as completed
type MarkDone struct {
	ID store.TaskID
}

// RenameTask replaces the title of a task
type RenameTask struct {
	ID    store.TaskID
	Title string
}

// SetPriority replaces the priority of a task
type SetPriority struct {
	ID       store.TaskID
	Priority store.Priority
}

// GetByID queries a single task
type GetByID struct {
	ID store.TaskID
}

func (CreateTask) Type() CommandType    { return CmdTCreateTask }
func (ListPending) Type() CommandType   { return CmdTListPending }
func (ListCompleted) Type() CommandType { return CmdTListCompleted }
func (MarkDone) Type() CommandType      { return CmdTMarkDone }
func (RenameTask) Type() CommandType    { return CmdTRenameTask }
func (SetPriority) Type() CommandType   { return CmdTSetPriority }
func (GetByID) Type() CommandType       { return CmdTGetByID }

func (CreateTask) isCommand()    {}
func (ListPending) isCommand()   {}
func (ListCompleted) isCommand() {}
func (MarkDone) isCommand()      {}
func (RenameTask) isCommand()    {}
func (SetPriority) isCommand()   {}
func (GetByID) isCommand()       {}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

// Result is the outcome of a single command: either Success or Failure.
type Result interface {
	isResult()
}

// Success wraps the value returned by the store
type Success struct {
	Value Value
}

// Failure carries the error message of a failed command
type Failure struct {
	Message string
}

func (Success) isResult() {}
func (Failure) isResult() {}

// Value is the payload of a Success. Its shape depends on the command.
type Value interface {
	isValue()
}

// TaskValue is a single task snapshot (CreateTask, GetByID and mutations)
type TaskValue struct {
	Task store.Task
}

// TaskListValue is a list of task snapshots (ListPending, ListCompleted)
type TaskListValue struct {
	Tasks []store.Task
}

// AckValue acknowledges a mutation for which the store returned no task
type AckValue struct{}

func (TaskValue) isValue()     {}
func (TaskListValue) isValue() {}
func (AckValue) isValue()      {}

// --------------------------------------------------------------------------
// Result Factory Functions
// --------------------------------------------------------------------------

// NewTaskResult creates the result for an operation returning a single task.
// If err is not nil a Failure with the error message is returned.
func NewTaskResult(task store.Task, err error) Result {
	if err != nil {
		return NewFailure(err.Error())
	}
	return Success{Value: TaskValue{Task: task}}
}

// NewMutationResult creates the result for a mutation. Stores that do not return
// the updated task (zero id) are acknowledged with an AckValue.
func NewMutationResult(task store.Task, err error) Result {
	if err != nil {
		return NewFailure(err.Error())
	}
	if task.ID == 0 {
		return Success{Value: AckValue{}}
	}
	return Success{Value: TaskValue{Task: task}}
}

// NewTaskListResult creates the result for an operation returning a list of tasks.
// An empty list is stored as nil, the form every serializer decodes it to.
func NewTaskListResult(tasks []store.Task, err error) Result {
	if err != nil {
		return NewFailure(err.Error())
	}
	if len(tasks) == 0 {
		tasks = nil
	}
	return Success{Value: TaskListValue{Tasks: tasks}}
}

// NewFailure creates a failed result with the given message
func NewFailure(msg string) Result {
	return Failure{Message: msg}
}

// --------------------------------------------------------------------------
// Command Type Definition
// --------------------------------------------------------------------------

// CommandType is the wire tag of a Command.
type CommandType uint8

const (
	CmdTUnknown       CommandType = iota
	CmdTCreateTask                // Create a new task
	CmdTListPending               // List all pending tasks
	CmdTListCompleted             // List all completed tasks
	CmdTMarkDone                  // Mark a task as completed
	CmdTRenameTask                // Rename a task
	CmdTSetPriority               // Change the priority of a task
	CmdTGetByID                   // Get a task by id
)

// String returns the string representation of a CommandType.
func (t CommandType) String() string {
	switch t {
	case CmdTCreateTask:
		return "create"
	case CmdTListPending:
		return "pending"
	case CmdTListCompleted:
		return "completed"
	case CmdTMarkDone:
		return "done"
	case CmdTRenameTask:
		return "rename"
	case CmdTSetPriority:
		return "priority"
	case CmdTGetByID:
		return "get"
	default:
		return "unknown"
	}
}

// AllCommandTypes lists every valid command type, in tag order
var AllCommandTypes = []CommandType{
	CmdTCreateTask,
	CmdTListPending,
	CmdTListCompleted,
	CmdTMarkDone,
	CmdTRenameTask,
	CmdTSetPriority,
	CmdTGetByID,
}
