package events

// Signal names published by the tree cache substrate and executor.
const (
	NodeUpserted               Name = "NODE_UPSERTED"
	NodeRemoved                Name = "NODE_REMOVED"
	SubtreeNodesChanged         Name = "SUBTREE_NODES_CHANGED"
	DisplayTreeChanged          Name = "DISPLAY_TREE_CHANGED"
	DiffTreesDone               Name = "DIFF_TREES_DONE"
	OpExecutionPlayStateChanged Name = "OP_EXECUTION_PLAY_STATE_CHANGED"
	BatchFailed                 Name = "BATCH_FAILED"
	DeviceUpserted              Name = "DEVICE_UPSERTED"
	ErrorOccurred               Name = "ERROR_OCCURRED"
)

// NodeUpsertedPayload is published whenever a tree-store upsert changes or
// creates a node.
type NodeUpsertedPayload struct {
	DeviceUID uint32
	NodeUID   uint64
}

// NodeRemovedPayload is published whenever a tree-store remove deletes a
// node.
type NodeRemovedPayload struct {
	DeviceUID uint32
	NodeUID   uint64
}

// SubtreeNodesChangedPayload is published after a batch of related upserts
// or removals under a common ancestor (e.g. a subtree scan) completes.
type SubtreeNodesChangedPayload struct {
	DeviceUID  uint32
	SubtreeUID uint64
}

// BatchFailedPayload is published when one of a batch's ops stops on an
// unrecoverable error mid-execution. A batch rejected before any op runs
// does not publish it.
type BatchFailedPayload struct {
	BatchUID string
	OpUID    uint64
	Reason   string
}

// OpExecutionPlayStatePayload reports whether op execution is paused.
type OpExecutionPlayStatePayload struct {
	Paused bool
}

// ErrorOccurredPayload carries a user-facing error surfaced outside a normal
// return path (e.g. from a background scan goroutine).
type ErrorOccurredPayload struct {
	Source string
	Err    error
}
