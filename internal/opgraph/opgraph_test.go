package opgraph_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/opgraph"
	"github.com/tonimelisma/treesync/internal/planner"
)

func fileNode(uid node.UID, parent node.UID) *node.LocalFileNode {
	return &node.LocalFileNode{BaseNode: node.BaseNode{UID: uid, Kind: node.KindLocalFile, ParentUIDs: []node.UID{parent}}}
}

func TestTryGetReturnsSingleOpImmediatelyReady(t *testing.T) {
	g := opgraph.New(nil)

	op := &planner.Op{OpUID: 1, Type: planner.OpRM, SrcNode: fileNode(10, 1)}

	res, err := g.EnqueueBatch([]*planner.Op{op})
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)

	got := g.TryGet()
	require.NotNil(t, got)
	require.Equal(t, uint64(1), got.OpUID)

	require.Nil(t, g.TryGet(), "op is checked out, should not be returned twice")
}

func TestDuplicateRMDiscarded(t *testing.T) {
	g := opgraph.New(nil)

	target := fileNode(10, 1)
	op1 := &planner.Op{OpUID: 1, Type: planner.OpRM, SrcNode: target}
	op2 := &planner.Op{OpUID: 2, Type: planner.OpRM, SrcNode: target}

	res, err := g.EnqueueBatch([]*planner.Op{op1, op2})
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)
	require.Len(t, res.Discarded, 1)
}

func TestSequentialOpsOnSameTargetOrdered(t *testing.T) {
	g := opgraph.New(nil)

	target := fileNode(10, 1)
	dst1 := fileNode(20, 1)
	dst2 := fileNode(21, 1)

	op1 := &planner.Op{OpUID: 1, Type: planner.OpCP, SrcNode: target, DstNode: dst1}
	op2 := &planner.Op{OpUID: 2, Type: planner.OpCP, SrcNode: target, DstNode: dst2}

	_, err := g.EnqueueBatch([]*planner.Op{op1, op2})
	require.NoError(t, err)

	first := g.TryGet()
	require.NotNil(t, first)
	require.Equal(t, uint64(1), first.OpUID)

	require.Nil(t, g.TryGet(), "second op on same src should not be ready until first pops")

	g.Pop(first)

	second := g.TryGet()
	require.NotNil(t, second)
	require.Equal(t, uint64(2), second.OpUID)
}

func TestTwoSidedOpReadyOnlyWhenBothSidesAtRoot(t *testing.T) {
	g := opgraph.New(nil)

	src := fileNode(1, 100)
	dst := fileNode(2, 200)

	blockingSrcOp := &planner.Op{OpUID: 1, Type: planner.OpRM, SrcNode: fileNode(1, 100)}
	twoSided := &planner.Op{OpUID: 2, Type: planner.OpCP, SrcNode: src, DstNode: dst}

	_, err := g.EnqueueBatch([]*planner.Op{blockingSrcOp, twoSided})
	require.NoError(t, err)

	ready := g.TryGet()
	require.NotNil(t, ready)
	require.Equal(t, uint64(1), ready.OpUID)
}

func TestRMBlockedByPendingNonRMChild(t *testing.T) {
	parent := fileNode(1, 0)
	child := fileNode(2, 1)

	lookup := func(deviceUID node.DeviceUID, uid node.UID) []node.Node {
		if uid == 1 {
			return []node.Node{child}
		}
		return nil
	}

	g := opgraph.New(lookup)

	childOp := &planner.Op{OpUID: 1, Type: planner.OpCP, SrcNode: child, DstNode: fileNode(3, 1)}
	_, err := g.EnqueueBatch([]*planner.Op{childOp})
	require.NoError(t, err)

	rmOp := &planner.Op{OpUID: 2, Type: planner.OpRM, SrcNode: parent}
	_, err = g.EnqueueBatch([]*planner.Op{rmOp})
	require.ErrorIs(t, err, opgraph.ErrRMBlockedByNonRM)
}

func TestGetNextOpBlocksUntilEnqueued(t *testing.T) {
	g := opgraph.New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := make(chan *planner.Op, 1)

	go func() {
		op, err := g.GetNextOp(ctx)
		require.NoError(t, err)
		result <- op
	}()

	time.Sleep(50 * time.Millisecond)

	_, err := g.EnqueueBatch([]*planner.Op{{OpUID: 1, Type: planner.OpRM, SrcNode: fileNode(5, 1)}})
	require.NoError(t, err)

	select {
	case op := <-result:
		require.Equal(t, uint64(1), op.OpUID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for GetNextOp")
	}
}

func TestPopClearsQueueSoNextRMIsNotDuplicate(t *testing.T) {
	g := opgraph.New(nil)

	target := fileNode(10, 1)
	op1 := &planner.Op{OpUID: 1, Type: planner.OpRM, SrcNode: target}

	_, err := g.EnqueueBatch([]*planner.Op{op1})
	require.NoError(t, err)

	got := g.TryGet()
	require.NotNil(t, got)
	g.Pop(got)

	op2 := &planner.Op{OpUID: 2, Type: planner.OpRM, SrcNode: target}
	_, err = g.EnqueueBatch([]*planner.Op{op2})
	require.NoError(t, err)

	got2 := g.TryGet()
	require.NotNil(t, got2)
	require.Equal(t, uint64(2), got2.OpUID)
}

func TestDebugStringTagsQueuedOps(t *testing.T) {
	g := opgraph.New(nil)

	op := &planner.Op{OpUID: 7, Type: planner.OpRM, SrcNode: fileNode(10, 1)}

	_, err := g.EnqueueBatch([]*planner.Op{op})
	require.NoError(t, err)

	dump := g.DebugString()
	require.Contains(t, dump, op.String())
	require.Contains(t, dump, "uid=10")
}
