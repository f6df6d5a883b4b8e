package dstore

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/ValentinKolb/dTask/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func entry(index uint64, cmd internal.Command) sm.Entry {
	return sm.Entry{Index: index, Cmd: cmd.Serialize()}
}

func resultTask(t *testing.T, r sm.Result) store.Task {
	t.Helper()
	if r.Value != uint64(store.RetCSuccess) {
		t.Fatalf("expected success, got code %s: %s", store.RetCode(r.Value), r.Data)
	}
	var task store.Task
	if _, err := task.ReadBinary(r.Data); err != nil {
		t.Fatalf("failed to decode task from result: %v", err)
	}
	return task
}

func TestUpdateAssignsIDs(t *testing.T) {
	fsm := newTaskStateMachine(1, 1)
	createdAt := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	entries, err := fsm.Update([]sm.Entry{
		entry(1, internal.Command{Type: internal.CommandTCreate, Title: "first", Priority: store.PriorityLow, CreatedAt: createdAt}),
		entry(2, internal.Command{Type: internal.CommandTCreate, Title: "second", Priority: store.PriorityUrgent, CreatedAt: createdAt}),
		entry(3, internal.Command{Type: internal.CommandTCreate, Title: "", Priority: store.PriorityUrgent, CreatedAt: createdAt}),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	first := resultTask(t, entries[0].Result)
	second := resultTask(t, entries[1].Result)
	if first.ID != 1 || second.ID != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
	if !first.CreatedAt.Equal(createdAt) {
		t.Errorf("expected CreatedAt from the command, got %v", first.CreatedAt)
	}
	if entries[2].Result.Value != uint64(store.RetCInvalidArgument) {
		t.Errorf("expected invalid argument for empty title, got %s", store.RetCode(entries[2].Result.Value))
	}

	// a rejected create must not consume an id
	entries, _ = fsm.Update([]sm.Entry{
		entry(4, internal.Command{Type: internal.CommandTCreate, Title: "third", CreatedAt: createdAt}),
	})
	if third := resultTask(t, entries[0].Result); third.ID != 3 {
		t.Errorf("expected id 3, got %d", third.ID)
	}
}

func TestUpdateMutations(t *testing.T) {
	fsm := newTaskStateMachine(1, 1)
	_, _ = fsm.Update([]sm.Entry{
		entry(1, internal.Command{Type: internal.CommandTCreate, Title: "task", Priority: store.PriorityLow}),
	})

	entries, err := fsm.Update([]sm.Entry{
		entry(2, internal.Command{Type: internal.CommandTRename, ID: 1, Title: "renamed"}),
		entry(3, internal.Command{Type: internal.CommandTSetPriority, ID: 1, Priority: store.PriorityRegular}),
		entry(4, internal.Command{Type: internal.CommandTMarkDone, ID: 1}),
		entry(5, internal.Command{Type: internal.CommandTMarkDone, ID: 2}),
		entry(6, internal.Command{Type: internal.CommandTSetPriority, ID: 1, Priority: store.Priority(9)}),
		entry(7, internal.Command{Type: internal.CommandType(99), ID: 1}),
		{Index: 8},
		{Index: 9, Cmd: []byte{1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	final := resultTask(t, entries[2].Result)
	want := store.Task{ID: 1, Title: "renamed", Priority: store.PriorityRegular, Completed: true}
	if !reflect.DeepEqual(final, want) {
		t.Errorf("unexpected task after mutations:\nGot: %+v\nWant: %+v", final, want)
	}

	expectCodes := map[int]store.RetCode{
		3: store.RetCNotFound,
		4: store.RetCInvalidArgument,
		5: store.RetCInvalidOperation,
		6: store.RetCInvalidOperation,
		7: store.RetCInternalError,
	}
	for i, code := range expectCodes {
		if got := store.RetCode(entries[i].Result.Value); got != code {
			t.Errorf("entry %d: expected code %s, got %s (%s)", i, code, got, entries[i].Result.Data)
		}
	}
}

func TestLookup(t *testing.T) {
	fsm := newTaskStateMachine(1, 1)
	_, _ = fsm.Update([]sm.Entry{
		entry(1, internal.Command{Type: internal.CommandTCreate, Title: "a"}),
		entry(2, internal.Command{Type: internal.CommandTCreate, Title: "b"}),
		entry(3, internal.Command{Type: internal.CommandTCreate, Title: "c"}),
		entry(4, internal.Command{Type: internal.CommandTMarkDone, ID: 2}),
	})

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGetByID, ID: 3})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if qr := res.(internal.QueryResult); !qr.Ok || qr.Task.Title != "c" {
		t.Errorf("unexpected GetByID result: %+v", qr)
	}

	res, _ = fsm.Lookup(internal.Query{Type: internal.QueryTGetByID, ID: 42})
	if qr := res.(internal.QueryResult); qr.Ok {
		t.Errorf("expected missing task, got %+v", qr)
	}

	res, _ = fsm.Lookup(internal.Query{Type: internal.QueryTListPending})
	if pending := res.([]store.Task); len(pending) != 2 || pending[0].ID != 1 || pending[1].ID != 3 {
		t.Errorf("unexpected pending list: %+v", pending)
	}

	res, _ = fsm.Lookup(internal.Query{Type: internal.QueryTListCompleted})
	if completed := res.([]store.Task); len(completed) != 1 || completed[0].ID != 2 {
		t.Errorf("unexpected completed list: %+v", completed)
	}

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("expected error for invalid query type")
	}
	if _, err := fsm.Lookup(internal.Query{Type: internal.QueryType(77)}); err == nil {
		t.Errorf("expected error for unknown query")
	}
}

func TestSnapshotSaveRecover(t *testing.T) {
	fsm := newTaskStateMachine(1, 1)
	createdAt := time.Date(2023, 7, 8, 9, 10, 11, 12, time.UTC)
	_, _ = fsm.Update([]sm.Entry{
		entry(1, internal.Command{Type: internal.CommandTCreate, Title: "keep", Priority: store.PriorityUrgent, CreatedAt: createdAt}),
		entry(2, internal.Command{Type: internal.CommandTCreate, Title: "done", CreatedAt: createdAt}),
		entry(3, internal.Command{Type: internal.CommandTMarkDone, ID: 2}),
	})

	snapshotCtx, err := fsm.PrepareSnapshot()
	if err != nil {
		t.Fatalf("PrepareSnapshot failed: %v", err)
	}

	// changes after PrepareSnapshot are not part of the snapshot
	_, _ = fsm.Update([]sm.Entry{
		entry(4, internal.Command{Type: internal.CommandTCreate, Title: "later"}),
	})

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(snapshotCtx, &buf, nil, make(chan struct{})); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	recovered := newTaskStateMachine(1, 2)
	if err := recovered.RecoverFromSnapshot(bytes.NewReader(buf.Bytes()), nil, make(chan struct{})); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	if len(recovered.tasks) != 2 {
		t.Fatalf("expected 2 tasks after recovery, got %d", len(recovered.tasks))
	}
	if !reflect.DeepEqual(recovered.tasks[1], fsm.tasks[1]) {
		t.Errorf("task 1 doesn't match after recovery:\nOriginal: %+v\nResult: %+v", fsm.tasks[1], recovered.tasks[1])
	}
	if !recovered.tasks[2].Completed {
		t.Errorf("expected task 2 to be completed after recovery")
	}

	// the id counter is part of the snapshot
	entries, _ := recovered.Update([]sm.Entry{
		entry(4, internal.Command{Type: internal.CommandTCreate, Title: "next"}),
	})
	if next := resultTask(t, entries[0].Result); next.ID != 3 {
		t.Errorf("expected id 3 after recovery, got %d", next.ID)
	}

	// corrupted snapshots are rejected
	corrupted := buf.Bytes()[:buf.Len()-1]
	if err := newTaskStateMachine(1, 3).RecoverFromSnapshot(bytes.NewReader(corrupted), nil, make(chan struct{})); err == nil {
		t.Errorf("expected error for truncated snapshot")
	}
}
