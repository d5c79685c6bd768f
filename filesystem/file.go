package filesystem

import (
	"sync/atomic"
	"syscall"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/pathname"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FileKind tags what a [File] node is
type FileKind int

const (
	RegularFile FileKind = iota
	Directory
	SymbolicLink
)

func (k FileKind) String() string {
	switch k {
	case RegularFile:
		return "file"
	case Directory:
		return "dir"
	case SymbolicLink:
		return "symlink"
	default:
		return "unknown"
	}
}

// typeBits returns the S_IFMT bits of the kind
func (k FileKind) typeBits() uint32 {
	switch k {
	case Directory:
		return syscall.S_IFDIR
	case SymbolicLink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// File is a node of the tree: a directory, a symbolic link or a regular
// file. A File has no name of its own; names only exist as entries of the
// directory tables referencing it, and several entries may reference the
// same File.
//
// The kind-specific payload (table, target) is fixed at creation. The
// directory table contents are guarded by the owning tree's lock.
type File struct {
	id     uuid.UUID
	kind   FileKind
	nodeID atomic.Uint64 // Active registry ID; 0 if not registered
	table  *DirectoryTable
	target pathname.Path
	*Inode

	// replies carrying nodeID the kernel has not forgotten; guarded by the
	// FileSystem's nodeMu
	lookups uint64
}

func newFile(kind FileKind, ino uint64, perms uint32, adapters []memfs.FileAdapter) *File {
	attr := newDefaultAttr(ino)
	attr.Mode = kind.typeBits() | perms&0o7777
	return &File{
		id:    uuid.New(),
		kind:  kind,
		Inode: NewInode(attr, adapters),
	}
}

// NewDirectory creates a detached directory with "." linked to itself.
// Its ".." entry is set once it gets linked into a parent.
func NewDirectory(ino uint64, perms uint32) *File {
	f := newFile(Directory, ino, perms, nil)
	f.table = newDirectoryTable(f)
	return f
}

// NewSymbolicLink creates a detached symbolic link to target
func NewSymbolicLink(ino uint64, target pathname.Path) *File {
	f := newFile(SymbolicLink, ino, 0o777, nil)
	f.target = target
	f.UpdateAttr(func(a *fuse.Attr) {
		a.Size = uint64(len(target.String()))
	})
	return f
}

// NewRegularFile creates a detached regular file whose content is served by
// adapters in the given order
func NewRegularFile(ino uint64, perms uint32, adapters []memfs.FileAdapter) *File {
	return newFile(RegularFile, ino, perms, adapters)
}

// ID returns the node's stable identity
func (f *File) ID() uuid.UUID {
	return f.id
}

// NodeID returns the nodeID of the node (Thread-safe); 0 if not registered
func (f *File) NodeID() uint64 {
	return f.nodeID.Load()
}

func (f *File) Kind() FileKind {
	return f.kind
}

func (f *File) IsDirectory() bool {
	return f != nil && f.kind == Directory
}

func (f *File) IsSymbolicLink() bool {
	return f != nil && f.kind == SymbolicLink
}

func (f *File) IsRegular() bool {
	return f != nil && f.kind == RegularFile
}

// DirectoryTable returns the table of a directory; nil for other kinds
func (f *File) DirectoryTable() *DirectoryTable {
	return f.table
}

// LinkTarget returns the stored target of a symbolic link; the zero Path for
// other kinds
func (f *File) LinkTarget() pathname.Path {
	return f.target
}

// Mode returns the full st_mode of the node
func (f *File) Mode() uint32 {
	return f.CopyAttr().Mode
}
