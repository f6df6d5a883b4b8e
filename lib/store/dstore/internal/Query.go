package internal

import "github.com/ValentinKolb/dTask/lib/store"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGetByID       QueryType = iota // Retrieve a task by id.
	QueryTListPending                    // List all tasks that are not completed.
	QueryTListCompleted                  // List all completed tasks.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGetByID:
		return "GetByID"
	case QueryTListPending:
		return "ListPending"
	case QueryTListCompleted:
		return "ListCompleted"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType    // The type of Query to perform.
	ID   store.TaskID // The task id for the Query (zero for list queries).
}

// QueryResult is the result of a QueryTGetByID operation.
// List queries return a []store.Task ordered by id.
type QueryResult struct {
	Ok   bool
	Task store.Task
}
