package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dTask/lib/store"
)

// RunTaskStoreBenchmarks runs all benchmarks for an ITaskStore implementation
func RunTaskStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Create", func(b *testing.B) {
			benchmarkCreate(b, factory(b))
		})

		b.Run("GetByID", func(b *testing.B) {
			benchmarkGetByID(b, factory(b))
		})

		b.Run("ListPending", func(b *testing.B) {
			benchmarkListPending(b, factory(b))
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory(b))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func prepareTasks(b *testing.B, s store.ITaskStore, n int) []store.TaskID {
	res := make([]store.TaskID, n)
	for i := 0; i < n; i++ {
		task, err := s.Create(context.Background(), fmt.Sprintf("task-%d", i), store.Priority(i%3))
		if err != nil {
			b.Fatalf("Create failed: %v", err)
		}
		res[i] = task.ID
	}
	return res
}

func benchmarkCreate(b *testing.B, s store.ITaskStore) {
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = s.Create(ctx, fmt.Sprintf("task-%d", counter), store.PriorityRegular)
			counter++
		}
	})
}

func benchmarkGetByID(b *testing.B, s store.ITaskStore) {
	ctx := context.Background()
	ids := prepareTasks(b, s, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = s.GetByID(ctx, ids[counter%len(ids)])
			counter++
		}
	})
}

func benchmarkListPending(b *testing.B, s store.ITaskStore) {
	ctx := context.Background()
	prepareTasks(b, s, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.ListPending(ctx)
	}
}

func benchmarkMixedUsage(b *testing.B, s store.ITaskStore) {
	ctx := context.Background()
	ids := prepareTasks(b, s, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			id := ids[counter%len(ids)]
			switch counter % 10 {
			case 0, 1:
				_, _ = s.Create(ctx, fmt.Sprintf("mixed-%d", counter), store.PriorityLow)
			case 2:
				_, _ = s.MarkDone(ctx, id)
			case 3:
				_, _ = s.RenameTitle(ctx, id, fmt.Sprintf("renamed-%d", counter))
			case 4:
				_, _ = s.SetPriority(ctx, id, store.PriorityUrgent)
			default:
				_, _ = s.GetByID(ctx, id)
			}
			counter++
		}
	})
}
