package lstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

type storeImpl struct {
	tasks  *xsync.MapOf[store.TaskID, store.Task]
	lastID atomic.Uint64
	now    func() time.Time
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// Tasks are kept in a concurrent hash map and are lost when the process exits.
func NewLocalStore() store.ITaskStore {
	return &storeImpl{
		tasks: xsync.NewMapOf[store.TaskID, store.Task](),
		now:   time.Now,
	}
}

// nextID increments the id counter and returns the new value.
// The first id handed out is 1.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) nextID() store.TaskID {
	return store.TaskID(s.lastID.Add(1))
}

func notFound(id store.TaskID) error {
	return store.NewError(store.RetCNotFound, fmt.Sprintf("task %d not found", id))
}

// update applies fn to the task with the given id atomically and returns the updated task.
func (s *storeImpl) update(id store.TaskID, fn func(task *store.Task)) (store.Task, error) {
	var found bool
	task, _ := s.tasks.Compute(id, func(old store.Task, loaded bool) (store.Task, bool) {
		if !loaded {
			// delete=true on a missing key keeps the map unchanged
			return old, true
		}
		found = true
		fn(&old)
		return old, false
	})
	if !found {
		return store.Task{}, notFound(id)
	}
	return task, nil
}

// list returns a snapshot of all tasks with the given completion state, ordered by id.
// No matching task yields nil.
func (s *storeImpl) list(completed bool) []store.Task {
	var res []store.Task
	s.tasks.Range(func(_ store.TaskID, task store.Task) bool {
		if task.Completed == completed {
			res = append(res, task)
		}
		return true
	})
	store.SortByID(res)
	return res
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Create(ctx context.Context, title string, priority store.Priority) (store.Task, error) {
	if err := ctx.Err(); err != nil {
		return store.Task{}, err
	}
	if err := store.ValidateTitle(title); err != nil {
		return store.Task{}, err
	}
	if err := store.ValidatePriority(priority); err != nil {
		return store.Task{}, err
	}

	task := store.Task{
		ID:        s.nextID(),
		Title:     title,
		Priority:  priority,
		CreatedAt: s.now().UTC(),
	}
	s.tasks.Store(task.ID, task)
	return task, nil
}

func (s *storeImpl) ListPending(ctx context.Context) ([]store.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.list(false), nil
}

func (s *storeImpl) ListCompleted(ctx context.Context) ([]store.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.list(true), nil
}

func (s *storeImpl) MarkDone(ctx context.Context, id store.TaskID) (store.Task, error) {
	if err := ctx.Err(); err != nil {
		return store.Task{}, err
	}
	return s.update(id, func(task *store.Task) {
		task.Completed = true
	})
}

func (s *storeImpl) RenameTitle(ctx context.Context, id store.TaskID, title string) (store.Task, error) {
	if err := ctx.Err(); err != nil {
		return store.Task{}, err
	}
	if err := store.ValidateTitle(title); err != nil {
		return store.Task{}, err
	}
	return s.update(id, func(task *store.Task) {
		task.Title = title
	})
}

func (s *storeImpl) SetPriority(ctx context.Context, id store.TaskID, priority store.Priority) (store.Task, error) {
	if err := ctx.Err(); err != nil {
		return store.Task{}, err
	}
	if err := store.ValidatePriority(priority); err != nil {
		return store.Task{}, err
	}
	return s.update(id, func(task *store.Task) {
		task.Priority = priority
	})
}

func (s *storeImpl) GetByID(ctx context.Context, id store.TaskID) (store.Task, error) {
	if err := ctx.Err(); err != nil {
		return store.Task{}, err
	}
	task, ok := s.tasks.Load(id)
	if !ok {
		return store.Task{}, notFound(id)
	}
	return task, nil
}
