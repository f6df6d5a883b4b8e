package lstore

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	storetesting "github.com/ValentinKolb/dTask/lib/store/testing"
)

func TestLocalStore(t *testing.T) {
	storetesting.RunTaskStoreTests(t, "LocalStore", func(tb testing.TB) store.ITaskStore {
		return NewLocalStore()
	})
}

func BenchmarkLocalStore(b *testing.B) {
	storetesting.RunTaskStoreBenchmarks(b, "LocalStore", func(tb testing.TB) store.ITaskStore {
		return NewLocalStore()
	})
}

func TestCreatedAtIsUTC(t *testing.T) {
	s := NewLocalStore().(*storeImpl)
	berlin := time.FixedZone("CEST", 2*60*60)
	s.now = func() time.Time {
		return time.Date(2024, 6, 1, 14, 0, 0, 0, berlin)
	}

	task, err := s.Create(context.Background(), "zone", store.PriorityLow)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.CreatedAt.Location() != time.UTC {
		t.Errorf("Expected CreatedAt in UTC, got %v", task.CreatedAt.Location())
	}
	if want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC); !task.CreatedAt.Equal(want) {
		t.Errorf("Expected CreatedAt %v, got %v", want, task.CreatedAt)
	}
}

func TestCanceledContext(t *testing.T) {
	s := NewLocalStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Create(ctx, "never", store.PriorityLow); err == nil {
		t.Errorf("Expected Create with canceled context to fail")
	}
	pending, err := s.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no tasks, got %d", len(pending))
	}
}

func TestNotFoundCode(t *testing.T) {
	s := NewLocalStore()
	_, err := s.MarkDone(context.Background(), 42)
	if !store.IsNotFound(err) {
		t.Errorf("Expected a not found error, got %v", err)
	}
}
