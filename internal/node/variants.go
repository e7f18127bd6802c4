package node

// LocalFileNode is a regular file on the local POSIX filesystem.
type LocalFileNode struct {
	BaseNode
	Size int64
}

// LocalDirNode is a directory on the local POSIX filesystem.
type LocalDirNode struct {
	BaseNode
}

// GDriveFileNode is a file-shaped object in the GDrive tree-store.
type GDriveFileNode struct {
	BaseNode
	Size int64
}

// GDriveFolderNode is a folder-shaped object in the GDrive tree-store.
type GDriveFolderNode struct {
	BaseNode
}

// CategoryNode is a synthetic grouping node used by the display tree (e.g.
// "Added", "Deleted", "Moved" categories in a diff view). Never persisted.
type CategoryNode struct {
	BaseNode
}

// RootTypeNode represents the root of one tree-type view (e.g. "Local Disk",
// "Google Drive") in a mixed display tree.
type RootTypeNode struct {
	BaseNode
}

// ContainerNode is a generic non-leaf grouping node with no backing artifact.
type ContainerNode struct {
	BaseNode
}

// NonexistentDirNode stands in for a directory the planner needs to
// reference before it has been materialized on the backend (is_live=false
// until the corresponding MKDIR/START_DIR op completes).
type NonexistentDirNode struct {
	BaseNode
}

// Compile-time interface checks.
var (
	_ Node = (*LocalFileNode)(nil)
	_ Node = (*LocalDirNode)(nil)
	_ Node = (*GDriveFileNode)(nil)
	_ Node = (*GDriveFolderNode)(nil)
	_ Node = (*CategoryNode)(nil)
	_ Node = (*RootTypeNode)(nil)
	_ Node = (*ContainerNode)(nil)
	_ Node = (*NonexistentDirNode)(nil)
)

// GetSize returns the byte size for file-shaped nodes, 0 otherwise.
func GetSize(n Node) int64 {
	switch v := n.(type) {
	case *LocalFileNode:
		return v.Size
	case *GDriveFileNode:
		return v.Size
	default:
		return 0
	}
}

// MutateBase gives fn write access to the BaseNode embedded in whichever
// concrete variant n is. Used by callers (the planner building destination
// nodes, the tree-store decoding persisted rows) that need to adjust common
// fields without a type switch of their own.
func MutateBase(n Node, fn func(*BaseNode)) {
	switch v := n.(type) {
	case *LocalFileNode:
		fn(&v.BaseNode)
	case *LocalDirNode:
		fn(&v.BaseNode)
	case *GDriveFileNode:
		fn(&v.BaseNode)
	case *GDriveFolderNode:
		fn(&v.BaseNode)
	case *CategoryNode:
		fn(&v.BaseNode)
	case *RootTypeNode:
		fn(&v.BaseNode)
	case *ContainerNode:
		fn(&v.BaseNode)
	case *NonexistentDirNode:
		fn(&v.BaseNode)
	}
}

// Clone performs a shallow copy of a node, suitable for the planner building
// a destination node from a source node (new UID, new parent, same content
// reference). Callers overwrite UID/DeviceUID/ParentUIDs/PathList/Name/IsLive
// on the result.
func Clone(n Node) Node {
	switch v := n.(type) {
	case *LocalFileNode:
		c := *v
		return &c
	case *LocalDirNode:
		c := *v
		return &c
	case *GDriveFileNode:
		c := *v
		return &c
	case *GDriveFolderNode:
		c := *v
		return &c
	case *CategoryNode:
		c := *v
		return &c
	case *RootTypeNode:
		c := *v
		return &c
	case *ContainerNode:
		c := *v
		return &c
	case *NonexistentDirNode:
		c := *v
		return &c
	default:
		return nil
	}
}
