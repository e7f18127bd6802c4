package planner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/planner"
)

// fakeTree is a minimal in-memory planner.Tree for tests.
type fakeTree struct {
	nodes map[node.UID]node.Node
}

func newFakeTree() *fakeTree { return &fakeTree{nodes: make(map[node.UID]node.Node)} }

func (f *fakeTree) add(n node.Node) { f.nodes[n.GetUID()] = n }

func (f *fakeTree) ChildrenOf(parentUID node.UID) []node.Node {
	var out []node.Node

	for _, n := range f.nodes {
		for _, p := range n.GetParentUIDs() {
			if p == parentUID {
				out = append(out, n)
			}
		}
	}

	return out
}

func (f *fakeTree) GetForNameAndParent(parentUID node.UID, name string) (node.Node, bool) {
	for _, n := range f.ChildrenOf(parentUID) {
		if n.GetName() == name {
			return n, true
		}
	}

	return nil, false
}

func (f *fakeTree) SubtreeBFS(rootUID node.UID) []node.Node {
	root, ok := f.nodes[rootUID]
	if !ok {
		return nil
	}

	result := []node.Node{root}
	queue := []node.UID{rootUID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, child := range f.ChildrenOf(cur) {
			result = append(result, child)
			queue = append(queue, child.GetUID())
		}
	}

	return result
}

type fakeAlloc struct{ next node.UID }

func (a *fakeAlloc) AllocateUID(ctx context.Context, path string) (node.UID, error) {
	a.next++
	return a.next, nil
}

func dir(uid node.UID, name string, parent node.UID) *node.LocalDirNode {
	return &node.LocalDirNode{BaseNode: node.BaseNode{
		UID: uid, Kind: node.KindLocalDir, Name: name, ParentUIDs: []node.UID{parent}, IsLive: true,
		PathList: []string{"/" + name},
	}}
}

func file(uid node.UID, name string, parent node.UID) *node.LocalFileNode {
	return &node.LocalFileNode{BaseNode: node.BaseNode{
		UID: uid, Kind: node.KindLocalFile, Name: name, ParentUIDs: []node.UID{parent}, IsLive: true,
	}}
}

func contentEqual(a, b node.ContentUID) bool { return a != node.NullContentUID && a == b }

func TestPlanCopyFileNoConflict(t *testing.T) {
	src := newFakeTree()
	dst := newFakeTree()

	dstParent := dir(1, "root", 0)
	dst.add(dstParent)

	srcFile := file(2, "a.txt", 1)
	src.add(srcFile)

	p := planner.New(src, dst, &fakeAlloc{next: 100}, contentEqual, nil, nil)

	batch, err := p.Plan(context.Background(), planner.Request{
		BatchUID: "b1", SrcNodes: []node.Node{srcFile}, DstParent: dstParent, DragOp: planner.DragCopy,
	})
	require.NoError(t, err)
	require.Len(t, batch.OpList, 1)
	require.Equal(t, planner.OpCP, batch.OpList[0].Type)
	require.Len(t, batch.ToSelectInUI, 1)
}

func TestPlanMoveEmitsMVNotCP(t *testing.T) {
	src := newFakeTree()
	dst := newFakeTree()

	dstParent := dir(1, "root", 0)
	dst.add(dstParent)
	srcFile := file(2, "a.txt", 1)
	src.add(srcFile)

	p := planner.New(src, dst, &fakeAlloc{}, contentEqual, nil, nil)

	batch, err := p.Plan(context.Background(), planner.Request{
		SrcNodes: []node.Node{srcFile}, DstParent: dstParent, DragOp: planner.DragMove,
	})
	require.NoError(t, err)
	require.Equal(t, planner.OpMV, batch.OpList[0].Type)
}

func TestPlanFileRenameAlwaysIncrementsName(t *testing.T) {
	tree := newFakeTree()

	dstParent := dir(1, "root", 0)
	tree.add(dstParent)
	tree.add(file(2, "a.txt", 1))

	srcTree := newFakeTree()
	srcFile := file(3, "a.txt", 99)
	srcTree.add(srcFile)

	p := planner.New(srcTree, tree, &fakeAlloc{next: 100}, contentEqual, nil, nil)

	batch, err := p.Plan(context.Background(), planner.Request{
		SrcNodes: []node.Node{srcFile}, DstParent: dstParent, DragOp: planner.DragCopy,
		FileConflictPolicy: planner.FileRenameAlways,
	})
	require.NoError(t, err)
	require.Len(t, batch.OpList, 1)
	require.Equal(t, "a.txt 2", batch.OpList[0].DstNode.GetName())
}

func TestPlanFileSkip(t *testing.T) {
	tree := newFakeTree()
	dstParent := dir(1, "root", 0)
	tree.add(dstParent)
	tree.add(file(2, "a.txt", 1))

	srcTree := newFakeTree()
	srcFile := file(3, "a.txt", 99)
	srcTree.add(srcFile)

	p := planner.New(srcTree, tree, &fakeAlloc{}, contentEqual, nil, nil)

	batch, err := p.Plan(context.Background(), planner.Request{
		SrcNodes: []node.Node{srcFile}, DstParent: dstParent, DragOp: planner.DragCopy,
		FileConflictPolicy: planner.FileSkip,
	})
	require.NoError(t, err)
	require.Empty(t, batch.OpList)
}

func TestPlanFileSkipMoveDeletesSrcAlways(t *testing.T) {
	tree := newFakeTree()
	dstParent := dir(1, "root", 0)
	tree.add(dstParent)
	tree.add(file(2, "a.txt", 1))

	srcTree := newFakeTree()
	srcFile := file(3, "a.txt", 99)
	srcTree.add(srcFile)

	p := planner.New(srcTree, tree, &fakeAlloc{}, contentEqual, nil, nil)

	batch, err := p.Plan(context.Background(), planner.Request{
		SrcNodes: []node.Node{srcFile}, DstParent: dstParent, DragOp: planner.DragMove,
		FileConflictPolicy: planner.FileSkip, SrcNodeMovePolicy: planner.DeleteSrcAlways,
	})
	require.NoError(t, err)
	require.Len(t, batch.OpList, 1)
	require.Equal(t, planner.OpRM, batch.OpList[0].Type)
	require.Equal(t, srcFile.GetUID(), batch.OpList[0].SrcNode.GetUID())
}

func TestPlanPromptPolicyNotImplemented(t *testing.T) {
	tree := newFakeTree()
	dstParent := dir(1, "root", 0)
	tree.add(dstParent)

	p := planner.New(tree, tree, &fakeAlloc{}, contentEqual, nil, nil)

	_, err := p.Plan(context.Background(), planner.Request{
		SrcNodes: []node.Node{file(2, "a.txt", 1)}, DstParent: dstParent,
		FileConflictPolicy: planner.FilePrompt,
	})
	require.ErrorIs(t, err, planner.ErrNotImplemented)
}

func TestPlanDirReplaceAmbiguousConflict(t *testing.T) {
	tree := newFakeTree()
	dstParent := dir(1, "root", 0)
	tree.add(dstParent)
	tree.add(dir(2, "sub", 1))
	tree.add(dir(3, "sub", 1)) // duplicate name, pathological but must be rejected

	srcTree := newFakeTree()
	srcDir := dir(10, "sub", 99)
	srcTree.add(srcDir)

	p := planner.New(srcTree, tree, &fakeAlloc{}, contentEqual, nil, nil)

	_, err := p.Plan(context.Background(), planner.Request{
		SrcNodes: []node.Node{srcDir}, DstParent: dstParent, DirConflictPolicy: planner.DirReplace,
	})
	require.ErrorIs(t, err, planner.ErrAmbiguousConflict)
}

func TestPlanDirReplaceDirVsDirRecurses(t *testing.T) {
	tree := newFakeTree()
	dstParent := dir(1, "root", 0)
	tree.add(dstParent)
	dstSub := dir(2, "sub", 1)
	tree.add(dstSub)
	tree.add(file(3, "keep.txt", 2))

	srcTree := newFakeTree()
	srcSub := dir(20, "sub", 99)
	srcTree.add(srcSub)
	srcTree.add(file(21, "new.txt", 20))

	p := planner.New(srcTree, tree, &fakeAlloc{next: 100}, contentEqual, nil, nil)

	batch, err := p.Plan(context.Background(), planner.Request{
		SrcNodes: []node.Node{srcSub}, DstParent: dstParent, DirConflictPolicy: planner.DirReplace,
	})
	require.NoError(t, err)

	var sawCP bool
	for _, op := range batch.OpList {
		if op.Type == planner.OpCP && op.SrcNode.GetName() == "new.txt" {
			sawCP = true
		}
	}
	require.True(t, sawCP)
}

func TestDeleteSubtreeEmitsRM(t *testing.T) {
	tree := newFakeTree()
	p := planner.New(tree, tree, &fakeAlloc{}, contentEqual, nil, nil)

	root := dir(1, "gone", 0)
	tree.add(root)

	batch := p.DeleteSubtree("b2", []node.Node{root})

	require.Len(t, batch.OpList, 1)
	require.Equal(t, planner.OpRM, batch.OpList[0].Type)
	require.Equal(t, node.UID(1), batch.OpList[0].SrcNode.GetUID())
}

func TestDeleteSubtreeEmitsRMForEveryDescendant(t *testing.T) {
	tree := newFakeTree()
	p := planner.New(tree, tree, &fakeAlloc{}, contentEqual, nil, nil)

	root := dir(1, "gone", 0)
	child := dir(2, "inner", 1)
	grandchild := file(3, "deep.txt", 2)
	sibling := file(4, "shallow.txt", 1)

	tree.add(root)
	tree.add(child)
	tree.add(grandchild)
	tree.add(sibling)

	batch := p.DeleteSubtree("b2", []node.Node{root})

	require.Len(t, batch.OpList, 4)

	order := make(map[node.UID]int, len(batch.OpList))
	for i, op := range batch.OpList {
		require.Equal(t, planner.OpRM, op.Type)
		order[op.SrcNode.GetUID()] = i
	}

	// Every node's RM op must be emitted after its ancestors' so the op
	// graph's dependency wiring ends up children-before-parent.
	require.Less(t, order[node.UID(1)], order[node.UID(2)])
	require.Less(t, order[node.UID(1)], order[node.UID(4)])
	require.Less(t, order[node.UID(2)], order[node.UID(3)])
}
