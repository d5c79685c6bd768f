package filesystem

import (
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/pathname"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// NodeContext wraps a [File] while holding the tree's read lock, so the
// directory entries seen through it form one consistent snapshot.
// Calling NodeContext.Close() unwinds all unlocking/cleanup callbacks in reverse order.
// Do NOT call FileSystem methods that modify the tree while the context is
// open; the tree lock is not reentrant.
//
// NOTE: NodeContext itself is **not** thread-safe meaning references
// to it should not be shared between goroutines
type NodeContext struct {
	file     *File
	closeFns []func()
}

// newNodeContext RLocks the tree and returns a new NodeContext for safe access
func newNodeContext(tree *FileTree, f *File) *NodeContext {
	tree.RLock()
	ctx := &NodeContext{file: f}
	ctx.AddClose(tree.RUnlock)
	return ctx
}

func (ctx *NodeContext) File() *File {
	return ctx.file
}

func (ctx *NodeContext) NodeID() uint64 {
	return ctx.file.NodeID()
}

func (ctx *NodeContext) Kind() FileKind {
	return ctx.file.Kind()
}

// Attr returns a snapshot of the fuse attributes.
func (ctx *NodeContext) Attr() fuse.Attr {
	return ctx.file.CopyAttr()
}

// UpdateAttr runs fn under the Inode write-lock for atomic modifications.
func (ctx *NodeContext) UpdateAttr(fn func(attr *fuse.Attr)) {
	ctx.file.UpdateAttr(fn)
}

// LinkTarget returns the stored target of a symbolic link
func (ctx *NodeContext) LinkTarget() pathname.Path {
	return ctx.file.LinkTarget()
}

// Entries returns the directory's entries sorted by name; nil for other kinds
func (ctx *NodeContext) Entries() []DirEntry {
	if table := tableOf(ctx.file); table != nil {
		return table.Entries()
	}
	return nil
}

// Parent returns the directory's ".." file; nil for other kinds or while detached
func (ctx *NodeContext) Parent() *File {
	if table := tableOf(ctx.file); table != nil {
		return table.Parent()
	}
	return nil
}

// HardLinkCount returns the number of hard links (Nlink).
func (ctx *NodeContext) HardLinkCount() uint64 {
	return uint64(ctx.Attr().Nlink)
}

// AddClose pushes a cleanup callback (e.g., unlock) onto the end of the stack.
func (ctx *NodeContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call even if ctx is nil, so you can `defer ctx.Close()`
// unconditionally.
//
// Example:
//
//	ctx := fs.GetChildCtx(parentID, name)
//	defer ctx.Close()
func (ctx *NodeContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
}

/* Node registry used by the FUSE bridge */

// GetNodeCtx returns a locked NodeContext with its Close() wired up
// If the node does not exist, returns nil
func (fs *FileSystem) GetNodeCtx(nodeID uint64) *NodeContext {
	logger := util.GetLogger("GetNodeCtx")
	logger.Trace().Uint64("nodeID", nodeID).Msg("GetNodeCtx called")

	if f, ok := fs.nodeRegistry.Load(nodeID); ok {
		return newNodeContext(fs.superTree, f)
	}
	logger.Debug().Uint64("nodeID", nodeID).Msg("No node found")
	return nil
}

// GetChildCtx looks up name in the directory parentID without following a
// final symbolic link and returns a locked NodeContext with its Close()
// wired up. The child's NodeID is taken with LookupNodeID, so each
// successful call must be matched by a forget. If the parent or child do not
// exist, returns nil.
//
// Caller is responsible for closing the context when done `defer ctx.Close()`.
func (fs *FileSystem) GetChildCtx(parentID uint64, name string) *NodeContext {
	logger := util.GetLogger("FS.GetChildCtx")
	logger.Trace().Uint64("parentID", parentID).Str("name", name).Msg("GetChildCtx called")

	parent, ok := fs.nodeRegistry.Load(parentID)
	if !ok {
		logger.Debug().Uint64("parentID", parentID).Str("name", name).Msg("No parent found")
		return nil
	}

	tree := fs.superTree.WithBase(parent)
	tree.RLock()
	res, err := fs.lookupLocked(tree, pathname.NewPath(fs.parser.Name(name)), NoFollowLinks)
	if err != nil || !res.Found() {
		tree.RUnlock()
		return nil
	}
	fs.LookupNodeID(res.File())
	ctx := &NodeContext{file: res.File()}
	ctx.AddClose(tree.RUnlock)
	return ctx
}

// LookupNodeID is EnsureNodeID for a NodeID handed to the kernel: each call
// takes one lookup reference that ForgetNodeID gives back.
func (fs *FileSystem) LookupNodeID(f *File) uint64 {
	fs.nodeMu.Lock()
	defer fs.nodeMu.Unlock()
	id := fs.EnsureNodeID(f)
	f.lookups++
	return id
}

// ForgetNodeID drops nlookup references to id and removes the registry entry
// once none remain. The root is never forgotten.
func (fs *FileSystem) ForgetNodeID(id, nlookup uint64) {
	logger := util.GetLogger("FS.ForgetNodeID")
	logger.Trace().Uint64("id", id).Uint64("nlookup", nlookup).Msg("ForgetNodeID called")

	if id == fuse.FUSE_ROOT_ID {
		return
	}
	fs.nodeMu.Lock()
	defer fs.nodeMu.Unlock()
	f, ok := fs.nodeRegistry.Load(id)
	if !ok {
		logger.Debug().Uint64("id", id).Msg("No node found")
		return
	}
	if f.lookups > nlookup {
		f.lookups -= nlookup
		return
	}
	f.lookups = 0
	fs.nodeRegistry.Delete(id)
	f.nodeID.CompareAndSwap(id, 0)
}

// EnsureNodeID retrieves or allocates & sets NodeID; safe with or without held locks.
// returns NodeID
func (fs *FileSystem) EnsureNodeID(f *File) uint64 {
	// fast path
	if id := f.nodeID.Load(); id != 0 {
		return id
	}
	newID := fs.lastNodeID.Add(1)
	// only one CAS will succeed
	if f.nodeID.CompareAndSwap(0, newID) {
		fs.nodeRegistry.Store(newID, f)
		return newID
	}
	// someone else won the race, load the real value
	return f.nodeID.Load()
}
