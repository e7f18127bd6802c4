// Package node defines the shared node, identifier, and tree-statistics
// types used across the tree cache substrate (identifier layer, tree-store,
// cache registry, content-meta manager), the transfer planner, and the
// operation dependency graph. It holds only types and pure helpers — no I/O.
package node

import (
	"fmt"
	"strings"
)

// UID is a monotonically assigned integer, never reassigned while the node
// it names exists. Each device's identifier map keeps its own counter, so a
// UID is unique within its device; the same value can name nodes on two
// different devices.
type UID uint64

// NullUID is the zero value, meaning "no node" / "not yet assigned".
const NullUID UID = 0

// DeviceUID selects which tree-store owns a node. A handful of values are
// reserved for well-known singleton devices.
type DeviceUID uint32

// Well-known singleton devices, constructed once by the cache registry.
const (
	DeviceSuperRoot DeviceUID = 1
	DeviceLocalDisk DeviceUID = 2
	DeviceGDrive    DeviceUID = 3
)

// TrashedStatus mirrors the three-state trash model: live, explicitly
// trashed, or trashed because an ancestor was.
type TrashedStatus int

const (
	NotTrashed TrashedStatus = iota
	ExplicitlyTrashed
	ImplicitlyTrashed
)

func (t TrashedStatus) String() string {
	switch t {
	case NotTrashed:
		return "not_trashed"
	case ExplicitlyTrashed:
		return "explicitly_trashed"
	case ImplicitlyTrashed:
		return "implicitly_trashed"
	default:
		return "unknown"
	}
}

// Kind enumerates the node variants tracked across both devices.
type Kind int

const (
	KindLocalFile Kind = iota
	KindLocalDir
	KindGDriveFile
	KindGDriveFolder
	KindCategory
	KindRootType
	KindContainer
	KindNonexistentDir
)

func (k Kind) String() string {
	switch k {
	case KindLocalFile:
		return "local_file"
	case KindLocalDir:
		return "local_dir"
	case KindGDriveFile:
		return "gdrive_file"
	case KindGDriveFolder:
		return "gdrive_folder"
	case KindCategory:
		return "category"
	case KindRootType:
		return "root_type"
	case KindContainer:
		return "container"
	case KindNonexistentDir:
		return "nonexistent_dir"
	default:
		return "unknown"
	}
}

// IsDir reports whether this kind is a directory-shaped node (can have
// children and carries DirStats).
func (k Kind) IsDir() bool {
	switch k {
	case KindLocalDir, KindGDriveFolder, KindCategory, KindRootType, KindContainer, KindNonexistentDir:
		return true
	default:
		return false
	}
}

// IsGDrive reports whether this kind lives in the GDrive tree-store, where
// multi-parenting is permitted.
func (k Kind) IsGDrive() bool {
	return k == KindGDriveFile || k == KindGDriveFolder
}

// ContentUID identifies an interned (size, md5, sha256) triple.
type ContentUID uint64

// NullContentUID means "no content reference" (directories, live-but-empty files).
const NullContentUID ContentUID = 0

// DirStats is the recursive aggregate stored on directory nodes: total
// descendant file count and byte size.
type DirStats struct {
	FileCount        int64
	DirCount         int64
	SizeBytes        int64
	TrashedFileCount int64
	TrashedDirCount  int64
}

// Add accumulates child stats into the receiver, folding in one child node
// (file or dir) whose own DirStats (if any) have already been finalized.
func (d *DirStats) Add(child *DirStats, isFile, isDir bool, trashed bool, size int64) {
	switch {
	case isFile:
		d.FileCount++
		d.SizeBytes += size

		if trashed {
			d.TrashedFileCount++
		}
	case isDir:
		d.DirCount++

		if trashed {
			d.TrashedDirCount++
		}

		if child != nil {
			d.FileCount += child.FileCount
			d.DirCount += child.DirCount
			d.SizeBytes += child.SizeBytes
			d.TrashedFileCount += child.TrashedFileCount
			d.TrashedDirCount += child.TrashedDirCount
		}
	}
}

// BaseNode carries the attributes common to every node variant. Variant
// structs embed BaseNode.
type BaseNode struct {
	UID            UID
	DeviceUID      DeviceUID
	Kind           Kind
	Name           string
	ParentUIDs     []UID // len==1 for local non-root nodes; may be >1 for GDrive
	Trashed        TrashedStatus
	IconID         string
	IsShared       bool
	IsLive         bool // false for planner-created destinations that don't yet exist on the backend
	ContentUID     ContentUID
	CreateTS       int64 // Unix nanoseconds
	ModifyTS       int64
	ChangeTS       int64
	SyncTS         int64
	GoogID      string // GDrive only: the remote's opaque id
	AllChildren bool   // GDrive folders only: all_children_fetched
	Stats       *DirStats
	PathList    []string // materialized absolute path(s); >1 only for multi-parent GDrive nodes
}

// Node is the common interface satisfied by every node variant.
type Node interface {
	GetUID() UID
	GetDeviceUID() DeviceUID
	GetKind() Kind
	GetName() string
	GetParentUIDs() []UID
	IsDir() bool
	GetPathList() []string
}

func (b *BaseNode) GetUID() UID             { return b.UID }
func (b *BaseNode) GetDeviceUID() DeviceUID { return b.DeviceUID }
func (b *BaseNode) GetKind() Kind           { return b.Kind }
func (b *BaseNode) GetName() string         { return b.Name }
func (b *BaseNode) GetParentUIDs() []UID    { return b.ParentUIDs }
func (b *BaseNode) IsDir() bool             { return b.Kind.IsDir() }
func (b *BaseNode) GetPathList() []string   { return b.PathList }

// SinglePathNode (SPID in the glossary) pins a node reference to exactly one
// absolute path plus, for local nodes, the path_uid obtained from the
// process-wide path-UID map.
type SinglePathNode struct {
	DeviceUID DeviceUID
	NodeUID   UID
	Path      string
	PathUID   UID // local nodes only; NullUID for GDrive
}

func (s SinglePathNode) String() string {
	return fmt.Sprintf("SPID(dev=%d,uid=%d,path=%q)", s.DeviceUID, s.NodeUID, s.Path)
}

// GUID is the externally-visible composite key the UI addresses nodes by:
// device_uid + node_uid + parent context, so the same node reached through
// different parents has distinct GUIDs.
type GUID string

// MakeGUID composes a GUID from a node's identity and the parent it was
// reached through (NullUID if the node has no meaningful parent context,
// e.g. a device root).
func MakeGUID(deviceUID DeviceUID, nodeUID UID, parentUID UID) GUID {
	return GUID(fmt.Sprintf("%d:%d:%d", deviceUID, nodeUID, parentUID))
}

// ParseGUID splits a GUID back into its components. Returns false if the
// format is unrecognized.
func ParseGUID(g GUID) (deviceUID DeviceUID, nodeUID UID, parentUID UID, ok bool) {
	parts := strings.SplitN(string(g), ":", 3)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}

	var d, n, p uint64

	if _, err := fmt.Sscanf(parts[0], "%d", &d); err != nil {
		return 0, 0, 0, false
	}

	if _, err := fmt.Sscanf(parts[1], "%d", &n); err != nil {
		return 0, 0, 0, false
	}

	if _, err := fmt.Sscanf(parts[2], "%d", &p); err != nil {
		return 0, 0, 0, false
	}

	return DeviceUID(d), UID(n), UID(p), true
}
