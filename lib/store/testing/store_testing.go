package testing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
)

// StoreFactory creates a new, empty ITaskStore instance.
// Implementations that own resources should release them with tb.Cleanup.
type StoreFactory func(tb testing.TB) store.ITaskStore

// RunTaskStoreTests runs a comprehensive test suite for an ITaskStore implementation.
func RunTaskStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Create&Get", func(t *testing.T) {
			testCreateGet(t, factory(t))
		})

		t.Run("Validation", func(t *testing.T) {
			testValidation(t, factory(t))
		})

		t.Run("NotFound", func(t *testing.T) {
			testNotFound(t, factory(t))
		})

		t.Run("ListPending&Completed", func(t *testing.T) {
			testLists(t, factory(t))
		})

		t.Run("MarkDone", func(t *testing.T) {
			testMarkDone(t, factory(t))
		})

		t.Run("Rename&SetPriority", func(t *testing.T) {
			testRenameSetPriority(t, factory(t))
		})

		t.Run("Snapshots", func(t *testing.T) {
			testSnapshots(t, factory(t))
		})

		t.Run("ConcurrentCreate", func(t *testing.T) {
			testConcurrentCreate(t, factory(t))
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustCreate(t testing.TB, s store.ITaskStore, title string, priority store.Priority) store.Task {
	t.Helper()
	task, err := s.Create(context.Background(), title, priority)
	if err != nil {
		t.Fatalf("Create(%q, %s) failed: %v", title, priority, err)
	}
	return task
}

func mustGet(t testing.TB, s store.ITaskStore, id store.TaskID) store.Task {
	t.Helper()
	task, err := s.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d) failed: %v", id, err)
	}
	return task
}

func ids(tasks []store.Task) []store.TaskID {
	res := make([]store.TaskID, len(tasks))
	for i, task := range tasks {
		res[i] = task.ID
	}
	return res
}

func equalIDs(a, b []store.TaskID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkMutationResult verifies the task returned by a mutation. A store may
// acknowledge a mutation with the zero task, otherwise it must match want.
func checkMutationResult(t *testing.T, op string, got, want store.Task) {
	t.Helper()
	if got.ID == 0 {
		return
	}
	if got.ID != want.ID || got.Title != want.Title || got.Priority != want.Priority || got.Completed != want.Completed {
		t.Errorf("%s returned %+v, expected %+v", op, got, want)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCreateGet(t *testing.T, s store.ITaskStore) {
	before := time.Now().Add(-time.Second)

	task := mustCreate(t, s, "Buy milk", store.PriorityLow)
	if task.ID == 0 {
		t.Errorf("Expected a non-zero id, got %d", task.ID)
	}
	if task.Title != "Buy milk" || task.Priority != store.PriorityLow || task.Completed {
		t.Errorf("Unexpected task after Create: %+v", task)
	}
	if task.CreatedAt.Before(before) || task.CreatedAt.After(time.Now().Add(time.Second)) {
		t.Errorf("CreatedAt %v is not close to now", task.CreatedAt)
	}

	got := mustGet(t, s, task.ID)
	if got.ID != task.ID || got.Title != task.Title || got.Priority != task.Priority || got.Completed != task.Completed {
		t.Errorf("GetByID returned %+v, expected %+v", got, task)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("GetByID returned CreatedAt %v, expected %v", got.CreatedAt, task.CreatedAt)
	}

	second := mustCreate(t, s, "Walk the dog", store.PriorityUrgent)
	if second.ID <= task.ID {
		t.Errorf("Expected ids to increase, got %d after %d", second.ID, task.ID)
	}
}

func testValidation(t *testing.T, s store.ITaskStore) {
	ctx := context.Background()

	invalid := []struct {
		title    string
		priority store.Priority
	}{
		{"", store.PriorityLow},
		{"   ", store.PriorityLow},
		{strings.Repeat("x", store.MaxTitleBytes+1), store.PriorityLow},
		{"valid", store.Priority(42)},
	}

	for _, tt := range invalid {
		if _, err := s.Create(ctx, tt.title, tt.priority); err == nil {
			t.Errorf("Expected Create(%.16q, %d) to fail", tt.title, tt.priority)
		}
	}

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no tasks after rejected creates, got %d", len(pending))
	}

	task := mustCreate(t, s, strings.Repeat("x", store.MaxTitleBytes), store.PriorityRegular)
	if _, err := s.RenameTitle(ctx, task.ID, ""); err == nil {
		t.Errorf("Expected RenameTitle with empty title to fail")
	}
	if _, err := s.SetPriority(ctx, task.ID, store.Priority(3)); err == nil {
		t.Errorf("Expected SetPriority with unknown priority to fail")
	}

	got := mustGet(t, s, task.ID)
	if got.Title != task.Title || got.Priority != task.Priority {
		t.Errorf("Rejected mutations modified the task: %+v", got)
	}
}

func testNotFound(t *testing.T, s store.ITaskStore) {
	ctx := context.Background()
	missing := store.TaskID(999_999)

	if _, err := s.GetByID(ctx, missing); err == nil {
		t.Errorf("Expected GetByID of a missing task to fail")
	}
	if _, err := s.MarkDone(ctx, missing); err == nil {
		t.Errorf("Expected MarkDone of a missing task to fail")
	}
	if _, err := s.RenameTitle(ctx, missing, "new"); err == nil {
		t.Errorf("Expected RenameTitle of a missing task to fail")
	}
	if _, err := s.SetPriority(ctx, missing, store.PriorityUrgent); err == nil {
		t.Errorf("Expected SetPriority of a missing task to fail")
	}
	if _, err := s.GetByID(ctx, 0); err == nil {
		t.Errorf("Expected GetByID(0) to fail")
	}
}

func testLists(t *testing.T, s store.ITaskStore) {
	ctx := context.Background()

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	completed, err := s.ListCompleted(ctx)
	if err != nil {
		t.Fatalf("ListCompleted failed: %v", err)
	}
	if pending != nil || completed != nil {
		t.Errorf("Expected nil lists for a new store, got %#v pending and %#v completed", pending, completed)
	}

	var created []store.Task
	for i := 0; i < 6; i++ {
		created = append(created, mustCreate(t, s, fmt.Sprintf("task-%d", i), store.Priority(i%3)))
	}

	for _, i := range []int{4, 1} {
		if _, err := s.MarkDone(ctx, created[i].ID); err != nil {
			t.Fatalf("MarkDone(%d) failed: %v", created[i].ID, err)
		}
	}

	pending, err = s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	completed, err = s.ListCompleted(ctx)
	if err != nil {
		t.Fatalf("ListCompleted failed: %v", err)
	}

	wantPending := []store.TaskID{created[0].ID, created[2].ID, created[3].ID, created[5].ID}
	wantCompleted := []store.TaskID{created[1].ID, created[4].ID}

	if !equalIDs(ids(pending), wantPending) {
		t.Errorf("ListPending returned %v, expected %v", ids(pending), wantPending)
	}
	if !equalIDs(ids(completed), wantCompleted) {
		t.Errorf("ListCompleted returned %v, expected %v", ids(completed), wantCompleted)
	}
	for _, task := range pending {
		if task.Completed {
			t.Errorf("ListPending returned completed task %+v", task)
		}
	}
	for _, task := range completed {
		if !task.Completed {
			t.Errorf("ListCompleted returned pending task %+v", task)
		}
	}
}

func testMarkDone(t *testing.T, s store.ITaskStore) {
	ctx := context.Background()
	task := mustCreate(t, s, "Write report", store.PriorityRegular)

	res, err := s.MarkDone(ctx, task.ID)
	if err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	want := task
	want.Completed = true
	checkMutationResult(t, "MarkDone", res, want)

	if got := mustGet(t, s, task.ID); !got.Completed {
		t.Errorf("Expected task to be completed after MarkDone, got %+v", got)
	}

	// marking a completed task again is allowed
	if _, err := s.MarkDone(ctx, task.ID); err != nil {
		t.Errorf("Second MarkDone failed: %v", err)
	}
	if got := mustGet(t, s, task.ID); !got.Completed {
		t.Errorf("Expected task to stay completed, got %+v", got)
	}
}

func testRenameSetPriority(t *testing.T, s store.ITaskStore) {
	ctx := context.Background()
	task := mustCreate(t, s, "old title", store.PriorityLow)
	other := mustCreate(t, s, "other", store.PriorityLow)

	res, err := s.RenameTitle(ctx, task.ID, "new title")
	if err != nil {
		t.Fatalf("RenameTitle failed: %v", err)
	}
	want := task
	want.Title = "new title"
	checkMutationResult(t, "RenameTitle", res, want)

	res, err = s.SetPriority(ctx, task.ID, store.PriorityUrgent)
	if err != nil {
		t.Fatalf("SetPriority failed: %v", err)
	}
	want.Priority = store.PriorityUrgent
	checkMutationResult(t, "SetPriority", res, want)

	got := mustGet(t, s, task.ID)
	if got.Title != "new title" || got.Priority != store.PriorityUrgent || got.Completed {
		t.Errorf("Unexpected task after mutations: %+v", got)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("Mutations changed CreatedAt from %v to %v", task.CreatedAt, got.CreatedAt)
	}

	if got := mustGet(t, s, other.ID); got.Title != "other" || got.Priority != store.PriorityLow {
		t.Errorf("Mutations modified an unrelated task: %+v", got)
	}
}

func testSnapshots(t *testing.T, s store.ITaskStore) {
	ctx := context.Background()
	task := mustCreate(t, s, "snapshot", store.PriorityRegular)

	got := mustGet(t, s, task.ID)
	got.Title = "modified"
	got.Completed = true

	list, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected one pending task, got %d", len(list))
	}
	list[0].Title = "modified too"

	again := mustGet(t, s, task.ID)
	if again.Title != "snapshot" || again.Completed {
		t.Errorf("Modifying a returned task changed the store: %+v", again)
	}
}

func testConcurrentCreate(t *testing.T, s store.ITaskStore) {
	ctx := context.Background()
	numWorkers := 8
	perWorker := 50

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		seen     = make(map[store.TaskID]bool)
		errCount atomic.Int32
	)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				task, err := s.Create(ctx, fmt.Sprintf("worker-%d-task-%d", worker, i), store.PriorityRegular)
				if err != nil {
					errCount.Add(1)
					continue
				}
				mu.Lock()
				if seen[task.ID] {
					t.Errorf("Duplicate id %d", task.ID)
				}
				seen[task.ID] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if n := errCount.Load(); n > 0 {
		t.Fatalf("Test had %d errors during parallel creates", n)
	}

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != numWorkers*perWorker {
		t.Errorf("Expected %d pending tasks, got %d", numWorkers*perWorker, len(pending))
	}
	if !sort.SliceIsSorted(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID }) {
		t.Errorf("ListPending is not ordered by id")
	}
}

func testRealisticUsage(t *testing.T, s store.ITaskStore) {
	ctx := context.Background()

	var created []store.Task
	for i := 0; i < 40; i++ {
		created = append(created, mustCreate(t, s, fmt.Sprintf("task-%d", i), store.Priority(i%3)))
	}

	numWorkers := 4
	var wg sync.WaitGroup
	var errCount atomic.Int32
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < len(created); i += numWorkers {
				id := created[i].ID
				var err error
				switch i % 4 {
				case 0:
					_, err = s.MarkDone(ctx, id)
				case 1:
					_, err = s.RenameTitle(ctx, id, fmt.Sprintf("renamed-%d", i))
				case 2:
					_, err = s.SetPriority(ctx, id, store.PriorityUrgent)
				case 3:
					_, err = s.ListPending(ctx)
				}
				if err != nil {
					errCount.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	if n := errCount.Load(); n > 0 {
		t.Fatalf("Test had %d errors during parallel operations", n)
	}

	for i, orig := range created {
		got := mustGet(t, s, orig.ID)
		switch i % 4 {
		case 0:
			if !got.Completed {
				t.Errorf("Task %d should be completed", got.ID)
			}
		case 1:
			if got.Title != fmt.Sprintf("renamed-%d", i) {
				t.Errorf("Task %d has title %q", got.ID, got.Title)
			}
		case 2:
			if got.Priority != store.PriorityUrgent {
				t.Errorf("Task %d has priority %s", got.ID, got.Priority)
			}
		case 3:
			if got.Completed || got.Title != orig.Title || got.Priority != orig.Priority {
				t.Errorf("Task %d should be unchanged, got %+v", got.ID, got)
			}
		}
	}

	completed, err := s.ListCompleted(ctx)
	if err != nil {
		t.Fatalf("ListCompleted failed: %v", err)
	}
	if len(completed) != len(created)/4 {
		t.Errorf("Expected %d completed tasks, got %d", len(created)/4, len(completed))
	}
}
