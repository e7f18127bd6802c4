package planner

import (
	"context"

	"github.com/tonimelisma/treesync/internal/node"
)

// planDirConflict applies req.DirConflictPolicy to a source directory whose
// name collides with one or more existing destination children.
func (p *Planner) planDirConflict(ctx context.Context, src, dstParent node.Node, existing []node.Node, req Request, st *planState) ([]*Op, error) {
	switch req.DirConflictPolicy {
	case DirSkip:
		return p.moveSkipOps(src, req, st), nil

	case DirRename:
		name := src.GetName()
		for {
			if _, conflict := p.dstTree.GetForNameAndParent(dstParent.GetUID(), name); !conflict {
				break
			}

			name = incrementName(name)
		}

		return p.copyDirSubtreeNamed(ctx, src, dstParent, req.DragOp, name, st)

	case DirReplace, DirMerge:
		if len(existing) != 1 {
			return nil, ErrAmbiguousConflict
		}

		target := existing[0]

		if !target.IsDir() {
			var ops []*Op
			ops = append(ops, &Op{OpUID: st.nextOpUID(), Type: OpRM, SrcNode: target})
			st.scheduledRM[target.GetUID()] = true

			childOps, err := p.copyDirSubtree(ctx, src, dstParent, req.DragOp, st)
			if err != nil {
				return nil, err
			}

			return append(ops, childOps...), nil
		}

		return p.replaceOrMergeDir(ctx, src, target, req, st, req.DirConflictPolicy == DirReplace)

	default:
		return nil, ErrNotImplemented
	}
}

// replaceOrMergeDir walks src's children and dst's existing children in
// lockstep, matching by name. deleteUnmatched selects REPLACE semantics
// (unmatched dst children are removed) vs MERGE semantics (left alone).
func (p *Planner) replaceOrMergeDir(ctx context.Context, src, dst node.Node, req Request, st *planState, deleteUnmatched bool) ([]*Op, error) {
	dstChildByName := indexByName(p.dstTree.ChildrenOf(dst.GetUID()))
	matched := make(map[string]bool)

	var ops []*Op

	for _, sc := range p.srcTree.ChildrenOf(src.GetUID()) {
		matches := dstChildByName[sc.GetName()]

		switch {
		case len(matches) == 0:
			childOps, err := p.planCreate(ctx, sc, dst, req.DragOp, st)
			if err != nil {
				return nil, err
			}

			ops = append(ops, childOps...)

		case len(matches) > 1:
			return nil, ErrAmbiguousConflict

		case sc.IsDir() && matches[0].IsDir():
			matched[sc.GetName()] = true

			childOps, err := p.replaceOrMergeDir(ctx, sc, matches[0], req, st, deleteUnmatched)
			if err != nil {
				return nil, err
			}

			ops = append(ops, childOps...)

		case sc.IsDir() && !matches[0].IsDir():
			matched[sc.GetName()] = true
			ops = append(ops, &Op{OpUID: st.nextOpUID(), Type: OpRM, SrcNode: matches[0]})
			st.scheduledRM[matches[0].GetUID()] = true

			childOps, err := p.copyDirSubtree(ctx, sc, dst, req.DragOp, st)
			if err != nil {
				return nil, err
			}

			ops = append(ops, childOps...)

		default: // file vs * — apply the file conflict policy
			matched[sc.GetName()] = true

			childOps, err := p.planFileConflict(ctx, sc, dst, matches, req, st)
			if err != nil {
				return nil, err
			}

			ops = append(ops, childOps...)
		}
	}

	if deleteUnmatched {
		for name, group := range dstChildByName {
			if matched[name] {
				continue
			}

			for _, dc := range group {
				ops = append(ops, &Op{OpUID: st.nextOpUID(), Type: OpRM, SrcNode: dc})
				st.scheduledRM[dc.GetUID()] = true
			}
		}
	}

	return ops, nil
}

// planFileConflict applies req.FileConflictPolicy to a source file whose
// name collides with one or more existing destination children.
func (p *Planner) planFileConflict(ctx context.Context, src, dstParent node.Node, existing []node.Node, req Request, st *planState) ([]*Op, error) {
	switch req.FileConflictPolicy {
	case FileSkip:
		return p.moveSkipOps(src, req, st), nil

	case FileReplaceAlways:
		return p.planFileReplace(ctx, src, dstParent, existing, req, st, false)

	case FileReplaceIfOlderAndDifferent:
		if len(existing) == 1 && p.skipPredicate(src, existing[0]) {
			return p.moveSkipOps(src, req, st), nil
		}

		return p.planFileReplace(ctx, src, dstParent, existing, req, st, false)

	case FileRenameAlways:
		return p.planFileRename(ctx, src, dstParent, req, st, nil)

	case FileRenameIfOlderAndDifferent:
		return p.planFileRename(ctx, src, dstParent, req, st, p.skipPredicate)

	case FileRenameIfDifferent:
		return p.planFileRename(ctx, src, dstParent, req, st, p.contentsEqual)

	default:
		return nil, ErrNotImplemented
	}
}

// planFileReplace emits the REPLACE_ALWAYS-family ops: CP_ONTO/MV_ONTO when
// the single conflicting destination is a file, or a subtree RM+CP/MV when
// it is a directory and the policy says to follow the file policy for
// directories.
func (p *Planner) planFileReplace(ctx context.Context, src, dstParent node.Node, existing []node.Node, req Request, st *planState, _ bool) ([]*Op, error) {
	if len(existing) != 1 {
		return nil, ErrAmbiguousConflict
	}

	target := existing[0]

	if target.IsDir() {
		switch req.ReplaceDirWithFilePolicy {
		case ReplaceDirWithFileFail:
			return nil, ErrReplaceDirWithFile
		case ReplaceDirWithFilePrompt:
			return nil, ErrNotImplemented
		case ReplaceDirWithFileFollowFilePolicy:
			var ops []*Op
			ops = append(ops, &Op{OpUID: st.nextOpUID(), Type: OpRM, SrcNode: target})
			st.scheduledRM[target.GetUID()] = true

			dst, err := p.buildDstNode(ctx, src, dstParent, src.GetName())
			if err != nil {
				return nil, err
			}

			st.willExist[dst.GetUID()] = true

			opType := OpCP
			if req.DragOp == DragMove {
				opType = OpMV
			}

			return append(ops, &Op{OpUID: st.nextOpUID(), Type: opType, SrcNode: src, DstNode: dst}), nil
		default:
			return nil, ErrNotImplemented
		}
	}

	opType := OpCPOnto
	if req.DragOp == DragMove {
		opType = OpMVOnto
	}

	return []*Op{{OpUID: st.nextOpUID(), Type: opType, SrcNode: src, DstNode: target}}, nil
}

// planFileRename implements the RENAME_* family: loop incrementing the
// name until either no conflict remains under the current name, or (when a
// skip predicate is supplied) the predicate says to skip instead of
// renaming.
func (p *Planner) planFileRename(ctx context.Context, src, dstParent node.Node, req Request, st *planState, skipIf func(src, dst node.Node) bool) ([]*Op, error) {
	name := src.GetName()

	for {
		conflict, ok := p.dstTree.GetForNameAndParent(dstParent.GetUID(), name)
		if !ok {
			break
		}

		if skipIf != nil && skipIf(src, conflict) {
			return p.moveSkipOps(src, req, st), nil
		}

		name = incrementName(name)
	}

	dst, err := p.buildDstNode(ctx, src, dstParent, name)
	if err != nil {
		return nil, err
	}

	st.willExist[dst.GetUID()] = true

	opType := OpCP
	if req.DragOp == DragMove {
		opType = OpMV
	}

	return []*Op{{OpUID: st.nextOpUID(), Type: opType, SrcNode: src, DstNode: dst}}, nil
}

// copyDirSubtreeNamed is copyDirSubtree for a source directory planted
// under a new name (the RENAME policy never reuses the source's own name).
func (p *Planner) copyDirSubtreeNamed(ctx context.Context, src, dstParent node.Node, dragOp DragOp, name string, st *planState) ([]*Op, error) {
	renamed := node.Clone(src)
	node.MutateBase(renamed, func(b *node.BaseNode) { b.Name = name })

	return p.copyDirSubtree(ctx, renamed, dstParent, dragOp, st)
}

// skipPredicate implements REPLACE_IF_OLDER_AND_DIFFERENT / the
// RENAME_IF_OLDER_AND_DIFFERENT guard: true when content is identical AND
// src is not newer than dst, meaning the copy would be a no-op.
func (p *Planner) skipPredicate(src, dst node.Node) bool {
	return p.contentsEqual(src, dst) && modifyTSOf(src) <= modifyTSOf(dst)
}

func (p *Planner) contentsEqual(a, b node.Node) bool {
	return p.contentEqual(contentUIDOf(a), contentUIDOf(b))
}

// moveSkipOps implements "Rule for MOVE with a skip decision": a skipped
// MOVE source is still removed if the policy is DELETE_SRC_ALWAYS.
func (p *Planner) moveSkipOps(src node.Node, req Request, st *planState) []*Op {
	if req.DragOp == DragMove && req.SrcNodeMovePolicy == DeleteSrcAlways {
		st.scheduledRM[src.GetUID()] = true
		return []*Op{{OpUID: st.nextOpUID(), Type: OpRM, SrcNode: src}}
	}

	return nil
}

// validate enforces the batch-seal checks from the planner contract: every
// op's src must exist or be scheduled for creation; every create-type op's
// parent must exist or be scheduled for creation; no op may target a node
// already scheduled for removal by an earlier op.
func (p *Planner) validate(batch *Batch, st *planState) error {
	// Destination parents are always either the caller-supplied dst_parent
	// (already live) or a node this same batch just built via buildDstNode
	// (recorded in willExist), so construction alone satisfies the
	// create-type parent check. The one check worth re-verifying here is
	// that no op still references a node an earlier op in the batch
	// scheduled for removal.
	for _, op := range batch.OpList {
		if op.SrcNode == nil || op.Type == OpRM {
			continue
		}

		if st.scheduledRM[op.SrcNode.GetUID()] {
			return ErrInvalidBatch
		}
	}

	return nil
}

func contentUIDOf(n node.Node) node.ContentUID {
	var uid node.ContentUID

	node.MutateBase(n, func(b *node.BaseNode) { uid = b.ContentUID })

	return uid
}

func modifyTSOf(n node.Node) int64 {
	var ts int64

	node.MutateBase(n, func(b *node.BaseNode) { ts = b.ModifyTS })

	return ts
}
