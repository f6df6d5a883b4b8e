package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ITaskStore is the generic interface for interacting with a task store.
// Every method returns a snapshot (copy) of the affected task(s), never a reference into the store.
// Implementations must be safe for concurrent use: the rpc server issues unordered concurrent calls.
type ITaskStore interface {
	// Create inserts a new, not completed task and returns it with its assigned id and creation time.
	Create(ctx context.Context, title string, priority Priority) (task Task, err error)
	// ListPending returns all tasks that are not completed, ordered by id (nil if there are none).
	ListPending(ctx context.Context) (tasks []Task, err error)
	// ListCompleted returns all completed tasks, ordered by id (nil if there are none).
	ListCompleted(ctx context.Context) (tasks []Task, err error)
	// MarkDone marks the task as completed and returns the updated task.
	// A store that cannot return the updated task may return the zero Task (acknowledgement only).
	MarkDone(ctx context.Context, id TaskID) (task Task, err error)
	// RenameTitle replaces the title of a task and returns the updated task (or the zero Task).
	RenameTitle(ctx context.Context, id TaskID, title string) (task Task, err error)
	// SetPriority replaces the priority of a task and returns the updated task (or the zero Task).
	SetPriority(ctx context.Context, id TaskID, priority Priority) (task Task, err error)
	// GetByID returns the task with the given id. If no such task exists an error with RetCNotFound is returned.
	GetByID(ctx context.Context, id TaskID) (task Task, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("TaskStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new TaskStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// ParseError converts the text of an Error back into an Error.
// It is used by clients that only receive the error message over the wire.
func ParseError(msg string) (*Error, bool) {
	rest, ok := strings.CutPrefix(msg, "TaskStoreError (code ")
	if !ok {
		return nil, false
	}
	name, text, ok := strings.Cut(rest, "): ")
	if !ok {
		return nil, false
	}
	for code := RetCSuccess; code <= RetCInvalidArgument; code++ {
		if code.String() == name {
			return NewError(code, text), true
		}
	}
	return nil, false
}

// IsNotFound reports whether err is a store error with the RetCNotFound code.
func IsNotFound(err error) bool {
	var storeErr *Error
	return errors.As(err, &storeErr) && storeErr.Code == RetCNotFound
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCNotFound                            // 4: The referenced task does not exist.
	RetCInvalidArgument                     // 5: A field failed validation (empty title, unknown priority, ...).
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}
