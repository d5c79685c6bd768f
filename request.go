package memfs

import "time"

// NodeRequest has common fields embedded in concrete request types
type NodeRequest struct {
	Path     string // Relative paths are taken from the filesystem root
	Type     NodeCreateRequestType
	UUID     string // Optional UUID identifying the created node for later hard links
	Size     uint64
	Atime    time.Time // Last Accessed at
	Mtime    time.Time // Last Modified at
	Ctime    time.Time // Created at (Default current time)
	Perms    uint32    // i.e. 0755
	OwnerUID uint32
	OwnerGID uint32
	// Blksize is the preferred size for file system operations.
	Blksize uint32
}

// NodeCreateRequestType valid types are FileNodeType "file", DirNodeType "dir",
// SymlinkNodeType "symlink" and HardlinkNodeType "hardlink"
type NodeCreateRequestType string

const (
	FileNodeType     NodeCreateRequestType = "file"
	DirNodeType      NodeCreateRequestType = "dir"
	SymlinkNodeType  NodeCreateRequestType = "symlink"
	HardlinkNodeType NodeCreateRequestType = "hardlink"
)

type FileCreateRequest struct {
	NodeRequest
	Sources []FileSource
}

type DirCreateRequest struct {
	NodeRequest
}

// SymlinkCreateRequest creates a symbolic link at Path whose content is Target.
// Target is stored verbatim and resolved only when the link is followed.
type SymlinkCreateRequest struct {
	NodeRequest
	Target string
}

// HardlinkCreateRequest adds another directory entry at Path for an existing
// non-directory node, named either by TargetUUID or by TargetPath.
type HardlinkCreateRequest struct {
	NodeRequest
	TargetPath string
	TargetUUID string
}
