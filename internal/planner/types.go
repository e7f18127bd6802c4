// Package planner turns a drag-and-drop or deletion gesture into a Batch of
// ops against one or two tree-stores, applying directory/file conflict
// policies, the name-increment rule, and move skip/delete-source
// interactions, then validates the batch before returning it.
package planner

import (
	"fmt"

	"github.com/tonimelisma/treesync/internal/node"
)

// OpType names one of the planner's op primitives.
type OpType string

const (
	OpCP           OpType = "CP"
	OpCPOnto       OpType = "CP_ONTO"
	OpMV           OpType = "MV"
	OpMVOnto       OpType = "MV_ONTO"
	OpStartDirCP   OpType = "START_DIR_CP"
	OpFinishDirCP  OpType = "FINISH_DIR_CP"
	OpStartDirMV   OpType = "START_DIR_MV"
	OpFinishDirMV  OpType = "FINISH_DIR_MV"
	OpRM           OpType = "RM"
	OpMKDIR        OpType = "MKDIR"
)

// DragOp distinguishes a copy-gesture batch from a move-gesture batch.
type DragOp int

const (
	DragCopy DragOp = iota
	DragMove
)

// DirConflictPolicy governs what happens when a source directory's name
// collides with an existing destination child.
type DirConflictPolicy int

const (
	DirSkip DirConflictPolicy = iota
	DirReplace
	DirRename
	DirMerge
	DirPrompt
)

// FileConflictPolicy governs what happens when a source file's name
// collides with an existing destination child.
type FileConflictPolicy int

const (
	FileSkip FileConflictPolicy = iota
	FileReplaceAlways
	FileReplaceIfOlderAndDifferent
	FileRenameAlways
	FileRenameIfOlderAndDifferent
	FileRenameIfDifferent
	FilePrompt
)

// ReplaceDirWithFilePolicy governs a REPLACE_ALWAYS file op landing on an
// existing destination directory of the same name.
type ReplaceDirWithFilePolicy int

const (
	ReplaceDirWithFileFail ReplaceDirWithFilePolicy = iota
	ReplaceDirWithFilePrompt
	ReplaceDirWithFileFollowFilePolicy
)

// SrcNodeMovePolicy governs whether a skipped MOVE source is deleted
// anyway.
type SrcNodeMovePolicy int

const (
	DeleteSrcIfNotSkipped SrcNodeMovePolicy = iota
	DeleteSrcAlways
)

// Op is one planned action against src/dst trees.
type Op struct {
	OpUID    uint64
	BatchUID string
	Type     OpType
	SrcNode  node.Node
	DstNode  node.Node // nil for RM
}

// String renders a one-line tag identifying op for logs and debug dumps:
// its UID, type, and the node(s) it targets.
func (op *Op) String() string {
	if op.DstNode == nil {
		return fmt.Sprintf("op[%d %s src=%s]", op.OpUID, op.Type, op.SrcNode.GetName())
	}

	return fmt.Sprintf("op[%d %s src=%s dst=%s]", op.OpUID, op.Type, op.SrcNode.GetName(), op.DstNode.GetName())
}

// Batch is the planner's output: an ordered list of ops plus a UI selection
// hint.
type Batch struct {
	BatchUID        string
	OpList          []*Op
	ToSelectInUI    []node.GUID
}

// Request is the planner's input, corresponding to one drag-and-drop or
// deletion gesture.
type Request struct {
	BatchUID                 string
	SrcNodes                 []node.Node
	DstParent                node.Node
	DragOp                   DragOp
	DirConflictPolicy        DirConflictPolicy
	FileConflictPolicy       FileConflictPolicy
	ReplaceDirWithFilePolicy ReplaceDirWithFilePolicy
	SrcNodeMovePolicy        SrcNodeMovePolicy
}
