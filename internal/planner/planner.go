package planner

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/tonimelisma/treesync/internal/events"
	"github.com/tonimelisma/treesync/internal/node"
)

// Tree is the subset of treestore.Store the planner needs to read. Both the
// source and destination side may be the same Tree (an in-device move) or
// two different ones (a cross-device drag).
type Tree interface {
	ChildrenOf(parentUID node.UID) []node.Node
	GetForNameAndParent(parentUID node.UID, name string) (node.Node, bool)
	SubtreeBFS(rootUID node.UID) []node.Node
}

// Allocator hands out a fresh UID for a not-yet-existing node at path, on
// whichever device the destination tree belongs to.
type Allocator interface {
	AllocateUID(ctx context.Context, path string) (node.UID, error)
}

// ContentEqual reports whether two content references name identical bytes.
type ContentEqual func(a, b node.ContentUID) bool

// Planner plans batches against a source and destination Tree.
type Planner struct {
	srcTree      Tree
	dstTree      Tree
	alloc        Allocator
	contentEqual ContentEqual
	bus          *events.Bus
	logger       *slog.Logger
}

// New constructs a Planner. srcTree and dstTree may be the same Tree.
func New(srcTree, dstTree Tree, alloc Allocator, contentEqual ContentEqual, bus *events.Bus, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Planner{srcTree: srcTree, dstTree: dstTree, alloc: alloc, contentEqual: contentEqual, bus: bus, logger: logger}
}

// planState carries the bookkeeping threaded through one Plan call.
type planState struct {
	opUID       uint64
	willExist   map[node.UID]bool // dst UIDs this batch will create
	scheduledRM map[node.UID]bool // src/dst UIDs this batch will remove
}

func (s *planState) nextOpUID() uint64 {
	v := s.opUID
	s.opUID++

	return v
}

// Plan turns req into a Batch, or fails with one of the sentinel errors in
// errors.go.
func (p *Planner) Plan(ctx context.Context, req Request) (*Batch, error) {
	if req.DirConflictPolicy == DirPrompt || req.FileConflictPolicy == FilePrompt {
		return nil, ErrNotImplemented
	}

	st := &planState{opUID: 1, willExist: make(map[node.UID]bool), scheduledRM: make(map[node.UID]bool)}
	batch := &Batch{BatchUID: req.BatchUID}

	dstChildrenByName := indexByName(p.dstTree.ChildrenOf(req.DstParent.GetUID()))

	for _, src := range req.SrcNodes {
		var (
			ops []*Op
			err error
		)

		if existing := dstChildrenByName[src.GetName()]; len(existing) > 0 {
			if src.IsDir() {
				ops, err = p.planDirConflict(ctx, src, req.DstParent, existing, req, st)
			} else {
				ops, err = p.planFileConflict(ctx, src, req.DstParent, existing, req, st)
			}
		} else {
			ops, err = p.planCreate(ctx, src, req.DstParent, req.DragOp, st)
		}

		if err != nil {
			return nil, err
		}

		batch.OpList = append(batch.OpList, ops...)
	}

	for _, op := range batch.OpList {
		if op.DstNode == nil {
			continue
		}

		parents := op.DstNode.GetParentUIDs()
		if len(parents) > 0 && parents[0] == req.DstParent.GetUID() {
			batch.ToSelectInUI = append(batch.ToSelectInUI,
				node.MakeGUID(op.DstNode.GetDeviceUID(), op.DstNode.GetUID(), req.DstParent.GetUID()))
		}
	}

	if err := p.validate(batch, st); err != nil {
		return nil, err
	}

	return batch, nil
}

// DeleteSubtree plans a batch of RM ops for a deletion gesture: one RM per
// node in each root's subtree, not just the root itself. Ops are emitted in
// SubtreeBFS order (root, then its children, then their children, ...) so
// the op graph's existing parent-lookup rule in enqueueRMLocked links each
// descendant RM as a dependency of its already-queued ancestor RM, giving
// the executor a children-before-parent run order without any op-graph
// changes: a directory's RM only becomes ready once every descendant under
// it has already been removed.
func (p *Planner) DeleteSubtree(batchUID string, roots []node.Node) *Batch {
	batch := &Batch{BatchUID: batchUID}
	opUID := uint64(1)

	for _, root := range roots {
		for _, n := range p.srcTree.SubtreeBFS(root.GetUID()) {
			batch.OpList = append(batch.OpList, &Op{OpUID: opUID, Type: OpRM, SrcNode: n})
			opUID++
		}
	}

	return batch
}

func (p *Planner) planCreate(ctx context.Context, src node.Node, dstParent node.Node, dragOp DragOp, st *planState) ([]*Op, error) {
	if src.IsDir() {
		return p.copyDirSubtree(ctx, src, dstParent, dragOp, st)
	}

	dst, err := p.buildDstNode(ctx, src, dstParent, src.GetName())
	if err != nil {
		return nil, err
	}

	st.willExist[dst.GetUID()] = true

	opType := OpCP
	if dragOp == DragMove {
		opType = OpMV
	}

	return []*Op{{OpUID: st.nextOpUID(), Type: opType, SrcNode: src, DstNode: dst}}, nil
}

// copyDirSubtree walks src's subtree breadth-first, building a matching
// destination subtree under dstParent and a START_DIR/FINISH_DIR pair per
// directory so execution order can be expressed: every FINISH_DIR for a
// directory is emitted only after all of its descendants' ops.
func (p *Planner) copyDirSubtree(ctx context.Context, src, dstParent node.Node, dragOp DragOp, st *planState) ([]*Op, error) {
	startType, finishType := OpStartDirCP, OpFinishDirCP
	fileType := OpCP

	if dragOp == DragMove {
		startType, finishType = OpStartDirMV, OpFinishDirMV
		fileType = OpMV
	}

	srcNodes := p.srcTree.SubtreeBFS(src.GetUID())
	if len(srcNodes) == 0 {
		srcNodes = []node.Node{src}
	}

	dstByUID := make(map[node.UID]node.Node, len(srcNodes))
	var ops []*Op
	var dirOpsInOrder []*Op

	for i, sn := range srcNodes {
		var parentDst node.Node
		if i == 0 {
			parentDst = dstParent
		} else {
			parentUID := node.NullUID
			if parents := sn.GetParentUIDs(); len(parents) > 0 {
				parentUID = parents[0]
			}

			parentDst = dstByUID[parentUID]
			if parentDst == nil {
				return nil, fmt.Errorf("%w: descendant %d has no planned parent", ErrInvalidBatch, sn.GetUID())
			}
		}

		name := sn.GetName()
		if i == 0 {
			name = src.GetName() // keeps the new name given by copyDirSubtreeNamed
		}

		dst, err := p.buildDstNode(ctx, sn, parentDst, name)
		if err != nil {
			return nil, err
		}

		dstByUID[sn.GetUID()] = dst
		st.willExist[dst.GetUID()] = true

		if sn.IsDir() {
			startOp := &Op{OpUID: st.nextOpUID(), Type: startType, SrcNode: sn, DstNode: dst}
			ops = append(ops, startOp)
			dirOpsInOrder = append(dirOpsInOrder, &Op{OpUID: st.nextOpUID(), Type: finishType, SrcNode: sn, DstNode: dst})
		} else {
			ops = append(ops, &Op{OpUID: st.nextOpUID(), Type: fileType, SrcNode: sn, DstNode: dst})
		}
	}

	for i := len(dirOpsInOrder) - 1; i >= 0; i-- {
		ops = append(ops, dirOpsInOrder[i])
	}

	return ops, nil
}

func (p *Planner) buildDstNode(ctx context.Context, src node.Node, dstParent node.Node, name string) (node.Node, error) {
	dstPath := ""
	if parentPaths := dstParent.GetPathList(); len(parentPaths) > 0 {
		dstPath = joinPath(parentPaths[0], name)
	}

	uid, err := p.alloc.AllocateUID(ctx, dstPath)
	if err != nil {
		return nil, fmt.Errorf("allocate destination uid: %w", err)
	}

	dst := node.Clone(src)
	if dst == nil {
		return nil, fmt.Errorf("%w: unknown source node kind", ErrInvalidBatch)
	}

	node.MutateBase(dst, func(b *node.BaseNode) {
		b.UID = uid
		b.DeviceUID = dstParent.GetDeviceUID()
		b.Name = name
		b.ParentUIDs = []node.UID{dstParent.GetUID()}
		b.IsLive = false
		b.GoogID = ""
		b.PathList = nil

		if dstPath != "" {
			b.PathList = []string{dstPath}
		}
	})

	return dst, nil
}

func joinPath(parent, name string) string {
	return path.Join(parent, name)
}

func indexByName(nodes []node.Node) map[string][]node.Node {
	m := make(map[string][]node.Node, len(nodes))
	for _, n := range nodes {
		m[n.GetName()] = append(m[n.GetName()], n)
	}

	return m
}
