package executor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/executor"
	"github.com/tonimelisma/treesync/internal/ledger"
	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/opgraph"
	"github.com/tonimelisma/treesync/internal/planner"
	"github.com/tonimelisma/treesync/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func fileNode(uid node.UID, name string, parent node.UID) *node.LocalFileNode {
	return &node.LocalFileNode{BaseNode: node.BaseNode{
		UID: uid, Kind: node.KindLocalFile, Name: name, ParentUIDs: []node.UID{parent},
		PathList: []string{"/" + name},
	}}
}

// fakeCommander records every op it executes and can be configured to fail
// a specific op_uid once or permanently.
type fakeCommander struct {
	mu       sync.Mutex
	executed []uint64
	failUIDs map[uint64]error
}

func (f *fakeCommander) Execute(ctx context.Context, op *planner.Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.executed = append(f.executed, op.OpUID)

	if err, ok := f.failUIDs[op.OpUID]; ok {
		return err
	}

	return nil
}

func (f *fakeCommander) ranOp(uid uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.executed {
		if u == uid {
			return true
		}
	}

	return false
}

func TestExecutorRunsSubmittedTasksByPriority(t *testing.T) {
	db := openTestDB(t)
	led, err := ledger.New(context.Background(), db, nil)
	require.NoError(t, err)

	graph := opgraph.New(nil)
	cmd := &fakeCommander{failUIDs: map[uint64]error{}}

	ex := executor.New(executor.Config{MaxConcurrentUserOpTasks: 1, MaxConcurrentNonUserOpTasks: 2}, graph, led, cmd, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Start(ctx)
	defer ex.Shutdown()

	var ran atomic.Int32
	done := make(chan struct{}, 1)

	ex.Submit(&executor.Task{Priority: executor.P1UserLoad, Fn: func() error {
		ran.Add(1)
		done <- struct{}{}
		return nil
	}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task to run")
	}

	require.Equal(t, int32(1), ran.Load())
}

func TestExecutorDispatchesReadyOpAndArchivesOnSuccess(t *testing.T) {
	db := openTestDB(t)
	led, err := ledger.New(context.Background(), db, nil)
	require.NoError(t, err)

	graph := opgraph.New(nil)
	cmd := &fakeCommander{failUIDs: map[uint64]error{}}

	ex := executor.New(executor.Config{MaxConcurrentUserOpTasks: 1, MaxConcurrentNonUserOpTasks: 1}, graph, led, cmd, nil, nil)

	op := &planner.Op{OpUID: 1, BatchUID: "b1", Type: planner.OpRM, SrcNode: fileNode(10, "a.txt", 1)}
	require.NoError(t, led.Persist(context.Background(), op, 5))

	_, err = graph.EnqueueBatch([]*planner.Op{op})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ex.Start(ctx)

	require.Eventually(t, func() bool { return cmd.ranOp(1) }, 2*time.Second, 10*time.Millisecond)

	cancel()
	ex.Shutdown()

	rows, err := led.LoadPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows, "successful op should be archived out of pending")
}

func TestExecutorBlocksBatchOnFatalOpError(t *testing.T) {
	db := openTestDB(t)
	led, err := ledger.New(context.Background(), db, nil)
	require.NoError(t, err)

	graph := opgraph.New(nil)
	cmd := &fakeCommander{failUIDs: map[uint64]error{1: errors.New("permission denied")}}

	ex := executor.New(executor.Config{MaxConcurrentUserOpTasks: 1, MaxConcurrentNonUserOpTasks: 1}, graph, led, cmd, nil, nil)

	op := &planner.Op{OpUID: 1, BatchUID: "b1", Type: planner.OpRM, SrcNode: fileNode(10, "a.txt", 1)}
	require.NoError(t, led.Persist(context.Background(), op, 5))

	_, err = graph.EnqueueBatch([]*planner.Op{op})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ex.Start(ctx)

	require.Eventually(t, func() bool { return cmd.ranOp(1) }, 2*time.Second, 10*time.Millisecond)

	cancel()
	ex.Shutdown()

	require.Nil(t, graph.TryGet(), "failed op stays checked out, not re-offered")

	rows, err := led.LoadPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows, "stopped-on-error op is no longer PENDING")
}

func TestExecutorPauseStopsOpDispatch(t *testing.T) {
	db := openTestDB(t)
	led, err := ledger.New(context.Background(), db, nil)
	require.NoError(t, err)

	graph := opgraph.New(nil)
	cmd := &fakeCommander{failUIDs: map[uint64]error{}}

	ex := executor.New(executor.Config{MaxConcurrentUserOpTasks: 1, MaxConcurrentNonUserOpTasks: 1}, graph, led, cmd, nil, nil)
	ex.Pause()

	op := &planner.Op{OpUID: 1, BatchUID: "b1", Type: planner.OpRM, SrcNode: fileNode(10, "a.txt", 1)}
	require.NoError(t, led.Persist(context.Background(), op, 5))

	_, err = graph.EnqueueBatch([]*planner.Op{op})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ex.Start(ctx)

	time.Sleep(300 * time.Millisecond)
	require.False(t, cmd.ranOp(1), "paused executor must not dispatch op commands")

	ex.Resume()
	require.Eventually(t, func() bool { return cmd.ranOp(1) }, 2*time.Second, 10*time.Millisecond)

	cancel()
	ex.Shutdown()
}

func TestExecutorNextTaskRunsAfterChildrenComplete(t *testing.T) {
	db := openTestDB(t)
	led, err := ledger.New(context.Background(), db, nil)
	require.NoError(t, err)

	graph := opgraph.New(nil)
	cmd := &fakeCommander{failUIDs: map[uint64]error{}}

	ex := executor.New(executor.Config{MaxConcurrentUserOpTasks: 1, MaxConcurrentNonUserOpTasks: 2}, graph, led, cmd, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Start(ctx)
	defer ex.Shutdown()

	var order []string
	var mu sync.Mutex
	nextDone := make(chan struct{})

	ex.Submit(&executor.Task{
		Priority: executor.P4LongRunningUserTask,
		Fn: func() error {
			mu.Lock()
			order = append(order, "parent")
			mu.Unlock()
			return nil
		},
		Children: []*executor.Task{{
			Priority: executor.P4LongRunningUserTask,
			Fn: func() error {
				time.Sleep(100 * time.Millisecond)
				mu.Lock()
				order = append(order, "child")
				mu.Unlock()
				return nil
			},
		}},
		NextTask: &executor.Task{Priority: executor.P4LongRunningUserTask, Fn: func() error {
			mu.Lock()
			order = append(order, "next")
			mu.Unlock()
			close(nextDone)
			return nil
		}},
	})

	select {
	case <-nextDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for next task")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"parent", "child", "next"}, order)
}
