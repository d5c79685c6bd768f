package core

import (
	"context"
	"syscall"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// NodeFS is the part of [filesystem.FileSystem] the FUSE bridge drives.
// Context-based methods are thread-safe wrappers whose ctx.Close()
// must be called when finished to unlock all associated locks
type NodeFS interface {
	GetNodeCtx(nodeID uint64) *filesystem.NodeContext
	// GetChildCtx resolves name in the directory parentID without following
	// a final symbolic link
	GetChildCtx(parentID uint64, name string) *filesystem.NodeContext
	// LookupNodeID takes one kernel reference to f's NodeID
	LookupNodeID(f *filesystem.File) uint64
	ForgetNodeID(id, nlookup uint64)

	MkdirAt(parentID uint64, name string, perms uint32) (*filesystem.File, error)
	SymlinkAt(parentID uint64, target, name string) (*filesystem.File, error)
	LinkAt(nodeID, parentID uint64, name string) (*filesystem.File, error)
	UnlinkAt(parentID uint64, name string) error
	RmdirAt(parentID uint64, name string) error
	RenameAt(oldParentID uint64, oldName string, newParentID uint64, newName string) error
	ReadNode(ctx context.Context, f *filesystem.File, offset, size int64) ([]byte, error)
}

// FuseRaw implements the low-level FUSE wire protocol
// It serves as protocol adapter between the FUSE and core filesystem
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	fs      NodeFS
	cfg     *config.Config
	handles *handleTable
	server  *fuse.Server
}

func NewFuseRaw(fs NodeFS, cfg *config.Config) *FuseRaw {
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		cfg:           cfg,
		handles:       newHandleTable(uint64(cfg.MaxFH)),
	}
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "FuseRaw"
}

// Access called when the kernel wants to know if the user has permission to access the node.
// If the 'default_permissions' mount option is given, this method is not called.
// Permissions are not enforced.
func (r *FuseRaw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	return fuse.OK
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory. Many lookup calls can
// occur in parallel, but only one call happens for each (dir,
// name) pair.
// Lookup resolves the child without following it if it is a symbolic link
// and registers it in the node registry
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	ctx := r.fs.GetChildCtx(header.NodeId, name)
	if ctx == nil {
		return fuse.ENOENT
	}
	defer ctx.Close()

	r.fillEntry(ctx.NodeID(), ctx.Attr(), out)
	return fuse.OK
}

// Forget is called when the kernel discards entries from its
// dentry cache. This happens on unmount, and when the kernel
// is short on memory. Since it is not guaranteed to occur at
// any moment, and since there is no return value, Forget
// should not do I/O, as there is no channel to report back
// I/O errors.
func (r *FuseRaw) Forget(nodeid, nlookup uint64) {
	r.fs.ForgetNodeID(nodeid, nlookup)
}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	ctx := r.fs.GetNodeCtx(input.NodeId)
	if ctx == nil {
		return fuse.ENOENT
	}
	defer ctx.Close()

	out.Attr = ctx.Attr()
	out.SetTimeout(r.cfg.AttrTimeoutDuration())
	return fuse.OK
}

func (r *FuseRaw) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	ctx := r.fs.GetNodeCtx(header.NodeId)
	if ctx == nil {
		return nil, fuse.ENOENT
	}
	defer ctx.Close()

	if ctx.Kind() != filesystem.SymbolicLink {
		return nil, fuse.EINVAL
	}
	return []byte(ctx.LinkTarget().String()), fuse.OK
}

func (r *FuseRaw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	f, err := r.fs.MkdirAt(input.NodeId, name, input.Mode&0o7777)
	if err != nil {
		return toStatus("Fuse.Mkdir", err)
	}
	r.fillEntry(r.fs.LookupNodeID(f), f.CopyAttr(), out)
	return fuse.OK
}

func (r *FuseRaw) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo string, linkName string, out *fuse.EntryOut) fuse.Status {
	f, err := r.fs.SymlinkAt(header.NodeId, pointedTo, linkName)
	if err != nil {
		return toStatus("Fuse.Symlink", err)
	}
	r.fillEntry(r.fs.LookupNodeID(f), f.CopyAttr(), out)
	return fuse.OK
}

func (r *FuseRaw) Link(cancel <-chan struct{}, input *fuse.LinkIn, filename string, out *fuse.EntryOut) fuse.Status {
	f, err := r.fs.LinkAt(input.Oldnodeid, input.NodeId, filename)
	if err != nil {
		return toStatus("Fuse.Link", err)
	}
	r.fillEntry(r.fs.LookupNodeID(f), f.CopyAttr(), out)
	return fuse.OK
}

func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return toStatus("Fuse.Unlink", r.fs.UnlinkAt(header.NodeId, name))
}

func (r *FuseRaw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return toStatus("Fuse.Rmdir", r.fs.RmdirAt(header.NodeId, name))
}

func (r *FuseRaw) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	// RENAME_NOREPLACE and RENAME_EXCHANGE are not supported
	if input.Flags != 0 {
		return fuse.Status(syscall.EINVAL)
	}
	return toStatus("Fuse.Rename", r.fs.RenameAt(input.NodeId, oldName, input.Newdir, newName))
}

// Open hands out a file handle that keeps the file readable even if its
// last name is removed while open
func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.Flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC) != 0 {
		return fuse.EROFS
	}
	ctx := r.fs.GetNodeCtx(input.NodeId)
	if ctx == nil {
		return fuse.ENOENT
	}
	defer ctx.Close()

	switch ctx.Kind() {
	case filesystem.Directory:
		return fuse.Status(syscall.EISDIR)
	case filesystem.SymbolicLink:
		return fuse.Status(syscall.ELOOP)
	}
	fh, ok := r.handles.open(ctx.File())
	if !ok {
		return fuse.Status(syscall.ENFILE)
	}
	out.Fh = fh
	if r.cfg.DirectIO {
		out.OpenFlags |= fuse.FOPEN_DIRECT_IO
	}
	return fuse.OK
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	logger := util.GetLogger("Fuse.Read")

	f, ok := r.handles.get(input.Fh)
	if !ok {
		return nil, fuse.EBADF
	}
	ctx, stop := cancelContext(cancel)
	defer stop()

	size := min(int64(input.Size), int64(len(buf)))
	data, err := r.fs.ReadNode(ctx, f, int64(input.Offset), size)
	if err != nil {
		logger.Error().Err(err).Uint64("ino", f.CopyAttr().Ino).Uint64("offset", input.Offset).Msg("Read failed")
		return nil, toStatus("Fuse.Read", err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	r.handles.release(input.Fh)
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	ctx := r.fs.GetNodeCtx(input.NodeId)
	if ctx == nil {
		return fuse.ENOENT
	}
	defer ctx.Close()

	if ctx.Kind() != filesystem.Directory {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

// ReadDir lists ".", ".." and the directory's entries in name order;
// input.Offset counts the entries already returned.
func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	ctx := r.fs.GetNodeCtx(input.NodeId)
	if ctx == nil {
		return fuse.ENOENT
	}
	defer ctx.Close()

	if ctx.Kind() != filesystem.Directory {
		return fuse.ENOTDIR
	}

	self := ctx.Attr()
	parent := self
	if p := ctx.Parent(); p != nil {
		parent = p.CopyAttr()
	}
	list := []fuse.DirEntry{
		{Name: ".", Mode: self.Mode, Ino: self.Ino},
		{Name: "..", Mode: parent.Mode, Ino: parent.Ino},
	}
	for _, e := range ctx.Entries() {
		attr := e.File.CopyAttr()
		list = append(list, fuse.DirEntry{Name: e.Name.String(), Mode: attr.Mode, Ino: attr.Ino})
	}

	for i := input.Offset; i < uint64(len(list)); i++ {
		e := list[i]
		e.Off = i + 1
		if !out.AddDirEntry(e) {
			// The buffer is full; the kernel calls again with a new offset.
			break
		}
	}
	return fuse.OK
}

func (r *FuseRaw) fillEntry(nodeID uint64, attr fuse.Attr, out *fuse.EntryOut) {
	out.NodeId = nodeID
	out.Attr = attr
	out.SetEntryTimeout(r.cfg.EntryTimeoutDuration())
	out.SetAttrTimeout(r.cfg.AttrTimeoutDuration())
}

// toStatus converts filesystem errors to FUSE statuses
func toStatus(component string, err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	logger := util.GetLogger(component)
	logger.Debug().Err(err).Msg("Operation failed")
	return fuse.Status(filesystem.Errno(err))
}

// cancelContext returns a context canceled once the kernel interrupts the
// request
func cancelContext(cancel <-chan struct{}) (context.Context, func()) {
	ctx, stop := context.WithCancel(context.Background())
	go func() {
		select {
		case <-cancel:
			stop()
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}
