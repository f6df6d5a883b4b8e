package dstore

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTask/lib/store"
	storetesting "github.com/ValentinKolb/dTask/lib/store/testing"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/config"
)

var shardCounter atomic.Uint64

func freeAddress(tb testing.TB) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().String()
}

// startSingleNode starts a one replica raft shard and waits until it has a leader
func startSingleNode(tb testing.TB) store.ITaskStore {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping raft store in short mode")
	}

	dir := tb.TempDir()
	addr := freeAddress(tb)
	shardID := shardCounter.Add(1)

	nh, err := dragonboat.NewNodeHost(config.NodeHostConfig{
		WALDir:         dir,
		NodeHostDir:    dir,
		RTTMillisecond: 5,
		RaftAddress:    addr,
	})
	if err != nil {
		tb.Fatalf("failed to create node host: %v", err)
	}
	tb.Cleanup(nh.Close)

	err = nh.StartConcurrentReplica(map[uint64]string{1: addr}, false, CreateStateMachineFactory(), config.Config{
		ReplicaID:    1,
		ShardID:      shardID,
		ElectionRTT:  10,
		HeartbeatRTT: 1,
		CheckQuorum:  true,
	})
	if err != nil {
		tb.Fatalf("failed to start replica: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, _, ok, err := nh.GetLeaderID(shardID); err == nil && ok {
			break
		}
		if time.Now().After(deadline) {
			tb.Fatalf("no leader elected for shard %d", shardID)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return NewDistributedStore(nh, shardID, 5*time.Second)
}

func TestDistributedStore(t *testing.T) {
	storetesting.RunTaskStoreTests(t, "DistributedStore", func(tb testing.TB) store.ITaskStore {
		return startSingleNode(tb)
	})
}

func BenchmarkDistributedStore(b *testing.B) {
	storetesting.RunTaskStoreBenchmarks(b, "DistributedStore", func(tb testing.TB) store.ITaskStore {
		return startSingleNode(tb)
	})
}

func TestCreatedAtStampedByProposer(t *testing.T) {
	s := startSingleNode(t)
	impl := s.(*storeImpl)
	fixed := time.Date(2025, 2, 3, 4, 5, 6, 7, time.FixedZone("X", 3600))
	impl.now = func() time.Time { return fixed }

	task, err := s.Create(context.Background(), "stamped", store.PriorityLow)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !task.CreatedAt.Equal(fixed) || task.CreatedAt.Location() != time.UTC {
		t.Errorf("expected CreatedAt %v in UTC, got %v", fixed.UTC(), task.CreatedAt)
	}

	got, err := s.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("stored CreatedAt %v differs from returned %v", got.CreatedAt, task.CreatedAt)
	}
}
