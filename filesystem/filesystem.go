package filesystem

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/metrics"
	"github.com/brettbedarf/memfs/pathname"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// FileSystem is the in-memory tree plus the operations built on lookup.
// Path arguments are parsed with the configured name normalization;
// relative paths start at the working directory, except for node requests
// whose relative paths start at the root.
type FileSystem struct {
	cfg          *config.Config
	parser       *pathname.Parser
	superRoot    *File     // Directory holding the root entry "/"
	root         *File     // Root of the tree
	superTree    *FileTree // Base is superRoot
	rootTree     *FileTree // Base is root; node requests resolve here
	tree         *FileTree // Base is the working directory
	lastIno      atomic.Uint64
	lastNodeID   atomic.Uint64
	nodeMu       sync.Mutex                   // guards File.lookups
	nodeRegistry *xsync.Map[uint64, *File]    // maps registry NodeIDs to files
	uuidRegistry *xsync.Map[uuid.UUID, *File] // maps node identities to files
	metrics      metrics.LookupMetrics
}

// Option configures optional FileSystem collaborators
type Option func(*FileSystem)

// WithMetrics records every lookup made by the FileSystem with m
func WithMetrics(m metrics.LookupMetrics) Option {
	return func(fs *FileSystem) {
		fs.metrics = m
	}
}

func NewFS(cfg *config.Config, opts ...Option) (*FileSystem, error) {
	parser, err := cfg.NewParser()
	if err != nil {
		return nil, fmt.Errorf("invalid name normalization: %w", err)
	}

	fs := &FileSystem{
		cfg:          cfg,
		parser:       parser,
		nodeRegistry: xsync.NewMap[uint64, *File](),
		uuidRegistry: xsync.NewMap[uuid.UUID, *File](),
	}
	for _, opt := range opts {
		opt(fs)
	}

	fs.superRoot = NewDirectory(0, 0o555)
	fs.root = NewDirectory(fuse.FUSE_ROOT_ID, cfg.DirPerms)
	fs.root.table.setParent(fs.root) // root's ".." is itself
	if err := fs.superRoot.table.Link(parser.Root(), fs.root); err != nil {
		return nil, err
	}
	fs.root.nodeID.Store(fuse.FUSE_ROOT_ID)

	// initialize attribute inode and registry counters
	fs.lastIno.Store(fuse.FUSE_ROOT_ID)
	fs.lastNodeID.Store(fuse.FUSE_ROOT_ID)
	fs.nodeRegistry.Store(fuse.FUSE_ROOT_ID, fs.root)
	fs.uuidRegistry.Store(fs.root.id, fs.root)

	fs.superTree = NewSuperRoot(fs.superRoot)
	fs.rootTree = fs.superTree.WithBase(fs.root)
	fs.tree = fs.superTree.WithBase(fs.root)

	wd, err := parser.Parse(cfg.WorkingDirectory)
	if err != nil || !wd.IsAbsolute() {
		return nil, fmt.Errorf("working directory must be an absolute path: %q", cfg.WorkingDirectory)
	}
	fs.superTree.Lock()
	dir, err := fs.mkdirAllLocked(fs.superTree, wd, cfg.DirPerms)
	fs.superTree.Unlock()
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	fs.tree.SetBase(dir)

	return fs, nil
}

// Root returns the root directory
func (fs *FileSystem) Root() *File {
	return fs.root
}

// Parser returns the parser paths are read with
func (fs *FileSystem) Parser() *pathname.Parser {
	return fs.parser
}

// Tree returns the working tree
func (fs *FileSystem) Tree() *FileTree {
	return fs.tree
}

// RootCtx returns a read-locked context on the root
func (fs *FileSystem) RootCtx() *NodeContext {
	return newNodeContext(fs.superTree, fs.root)
}

func (fs *FileSystem) nextIno() uint64 {
	return fs.lastIno.Add(1)
}

func (fs *FileSystem) parse(op, s string) (pathname.Path, error) {
	p, err := fs.parser.Parse(s)
	if err != nil {
		return pathname.Path{}, pathError(op, s, err)
	}
	return p, nil
}

// lookupLocked runs the lookup engine and records the outcome
func (fs *FileSystem) lookupLocked(tree *FileTree, p pathname.Path, lh LinkHandling) (LookupResult, error) {
	res, err := LookupLocked(tree, p, lh)
	if fs.metrics != nil {
		if errors.Is(err, ErrTooManyLinks) {
			fs.metrics.RecordTooManyLinks()
		} else if err == nil {
			fs.metrics.ObserveLookup(res.Status().String(), res.LinkHops())
		}
	}
	return res, err
}

func (fs *FileSystem) lookup(tree *FileTree, p pathname.Path, lh LinkHandling) (LookupResult, error) {
	tree.RLock()
	defer tree.RUnlock()
	return fs.lookupLocked(tree, p, lh)
}

// lookupFileLocked resolves p and requires it to exist
func (fs *FileSystem) lookupFileLocked(op string, tree *FileTree, p pathname.Path, lh LinkHandling) (LookupResult, error) {
	res, err := fs.lookupLocked(tree, p, lh)
	if err != nil {
		return res, pathError(op, p.String(), err)
	}
	if !res.Found() {
		return res, pathError(op, p.String(), syscall.ENOENT)
	}
	return res, nil
}

// Lookup resolves path from the working directory
func (fs *FileSystem) Lookup(path string, lh LinkHandling) (LookupResult, error) {
	p, err := fs.parse("lookup", path)
	if err != nil {
		return LookupResult{}, err
	}
	res, err := fs.lookup(fs.tree, p, lh)
	if err != nil {
		return LookupResult{}, pathError("lookup", path, err)
	}
	return res, nil
}

// Stat returns the attributes of the file path names, following links
func (fs *FileSystem) Stat(path string) (fuse.Attr, error) {
	return fs.stat("stat", path, FollowLinks)
}

// Lstat is Stat without following a final symbolic link
func (fs *FileSystem) Lstat(path string) (fuse.Attr, error) {
	return fs.stat("lstat", path, NoFollowLinks)
}

func (fs *FileSystem) stat(op, path string, lh LinkHandling) (fuse.Attr, error) {
	p, err := fs.parse(op, path)
	if err != nil {
		return fuse.Attr{}, err
	}
	fs.tree.RLock()
	defer fs.tree.RUnlock()
	res, err := fs.lookupFileLocked(op, fs.tree, p, lh)
	if err != nil {
		return fuse.Attr{}, err
	}
	return res.File().CopyAttr(), nil
}

// Mkdir creates a single directory whose parent must exist
func (fs *FileSystem) Mkdir(path string, perms uint32) (*File, error) {
	p, err := fs.parse("mkdir", path)
	if err != nil {
		return nil, err
	}
	fs.tree.Lock()
	defer fs.tree.Unlock()
	return fs.createLocked("mkdir", fs.tree, p, func() *File {
		return NewDirectory(fs.nextIno(), perms)
	})
}

// MkdirAll creates path and any missing parents like `mkdir -p`, returning
// the leaf. Existing directories, or links to them, are not an error.
func (fs *FileSystem) MkdirAll(path string, perms uint32) (*File, error) {
	p, err := fs.parse("mkdir", path)
	if err != nil {
		return nil, err
	}
	fs.tree.Lock()
	defer fs.tree.Unlock()
	return fs.mkdirAllLocked(fs.tree, p, perms)
}

func (fs *FileSystem) mkdirAllLocked(tree *FileTree, p pathname.Path, perms uint32) (*File, error) {
	logger := util.GetLogger("FS.MkdirAll")

	if p.IsEmpty() {
		return tree.Base(), nil
	}
	names := p.Names()
	var cur *File
	created := 0
	for i := 0; i <= len(names); i++ {
		if i == 0 && !p.IsAbsolute() {
			continue
		}
		prefix := subPath(p, names[:i])
		res, err := fs.lookupLocked(tree, prefix, FollowLinks)
		if err != nil {
			return nil, pathError("mkdir", prefix.String(), err)
		}
		switch res.Status() {
		case Found:
			if !res.File().IsDirectory() {
				return nil, pathError("mkdir", prefix.String(), syscall.ENOTDIR)
			}
			cur = res.File()
		case ParentFound:
			// a dangling link also ends in ParentFound when followed
			if res, err = fs.lookupLocked(tree, prefix, NoFollowLinks); err != nil || res.Status() != ParentFound {
				return nil, pathError("mkdir", prefix.String(), syscall.EEXIST)
			}
			if fs.detachedLocked(res.Parent()) {
				return nil, pathError("mkdir", prefix.String(), syscall.ENOENT)
			}
			dir := NewDirectory(fs.nextIno(), perms)
			if err := res.Parent().table.Link(names[i-1], dir); err != nil {
				return nil, pathError("mkdir", prefix.String(), err)
			}
			fs.uuidRegistry.Store(dir.id, dir)
			created++
			cur = dir
		default:
			return nil, pathError("mkdir", prefix.String(), syscall.ENOENT)
		}
	}
	if created > 0 {
		logger.Debug().Str("path", p.String()).Int("created", created).Msg("Created directories")
	}
	return cur, nil
}

// subPath returns the path made of p's root, if any, and names
func subPath(p pathname.Path, names []pathname.Name) pathname.Path {
	if root, ok := p.Root(); ok {
		return pathname.NewAbsolutePath(root, names...)
	}
	return pathname.NewPath(names...)
}

// createLocked links the file built by mk at p, which must not exist while
// its parent must
func (fs *FileSystem) createLocked(op string, tree *FileTree, p pathname.Path, mk func() *File) (*File, error) {
	res, err := fs.lookupLocked(tree, p, NoFollowLinks)
	if err != nil {
		return nil, pathError(op, p.String(), err)
	}
	switch res.Status() {
	case Found:
		return nil, pathError(op, p.String(), syscall.EEXIST)
	case NotFound:
		return nil, pathError(op, p.String(), syscall.ENOENT)
	}
	if fs.detachedLocked(res.Parent()) {
		return nil, pathError(op, p.String(), syscall.ENOENT)
	}
	name, ok := p.FileName()
	if !ok {
		return nil, pathError(op, p.String(), syscall.EEXIST)
	}
	f := mk()
	if err := res.Parent().table.Link(name, f); err != nil {
		return nil, pathError(op, p.String(), err)
	}
	fs.uuidRegistry.Store(f.id, f)
	return f, nil
}

// detachedLocked reports whether dir was removed from the tree. A removed
// directory keeps no ".." entry and takes no new entries.
func (fs *FileSystem) detachedLocked(dir *File) bool {
	return dir != fs.root && dir != fs.superRoot && dir.table.Parent() == nil
}

// Symlink creates a symbolic link at path whose target is stored unresolved
func (fs *FileSystem) Symlink(target, path string) (*File, error) {
	t, err := fs.parse("symlink", target)
	if err != nil {
		return nil, err
	}
	p, err := fs.parse("symlink", path)
	if err != nil {
		return nil, err
	}
	fs.tree.Lock()
	defer fs.tree.Unlock()
	return fs.createLocked("symlink", fs.tree, p, func() *File {
		return NewSymbolicLink(fs.nextIno(), t)
	})
}

// Link adds newPath as another name for the non-directory existing names.
// A final symbolic link in existing is linked itself, not its target.
func (fs *FileSystem) Link(existing, newPath string) (*File, error) {
	src, err := fs.parse("link", existing)
	if err != nil {
		return nil, err
	}
	dst, err := fs.parse("link", newPath)
	if err != nil {
		return nil, err
	}
	fs.tree.Lock()
	defer fs.tree.Unlock()

	res, err := fs.lookupFileLocked("link", fs.tree, src, NoFollowLinks)
	if err != nil {
		return nil, err
	}
	return fs.linkLocked(fs.tree, res.File(), dst)
}

func (fs *FileSystem) linkLocked(tree *FileTree, f *File, dst pathname.Path) (*File, error) {
	if f.IsDirectory() {
		return nil, pathError("link", dst.String(), syscall.EPERM)
	}
	return fs.createLocked("link", tree, dst, func() *File { return f })
}

type removeMode int

const (
	removeAny removeMode = iota
	removeFile
	removeDir
)

// Remove deletes the entry path names. Directories must be empty.
func (fs *FileSystem) Remove(path string) error {
	p, err := fs.parse("remove", path)
	if err != nil {
		return err
	}
	fs.tree.Lock()
	defer fs.tree.Unlock()
	return fs.removeLocked("remove", fs.tree, p, removeAny)
}

func (fs *FileSystem) removeLocked(op string, tree *FileTree, p pathname.Path, mode removeMode) error {
	logger := util.GetLogger("FS.Remove")

	res, err := fs.lookupFileLocked(op, tree, p, NoFollowLinks)
	if err != nil {
		return err
	}
	if err := fs.checkDetachable(res); err != nil {
		return pathError(op, p.String(), err)
	}
	f := res.File()
	switch {
	case mode == removeFile && f.IsDirectory():
		return pathError(op, p.String(), syscall.EISDIR)
	case mode == removeDir && !f.IsDirectory():
		return pathError(op, p.String(), syscall.ENOTDIR)
	case f.IsDirectory() && !f.table.IsEmpty():
		return pathError(op, p.String(), syscall.ENOTEMPTY)
	}

	if _, err := res.Parent().table.Unlink(res.Name()); err != nil {
		return pathError(op, p.String(), err)
	}
	fs.releaseLocked(f)
	logger.Debug().Str("path", p.String()).Stringer("kind", f.Kind()).Msg("Removed entry")
	return nil
}

// checkDetachable refuses unlinking the root and the "." and ".." entries
func (fs *FileSystem) checkDetachable(res LookupResult) error {
	if res.File() == fs.root {
		return syscall.EBUSY
	}
	switch res.Name().Key() {
	case pathname.SelfName, pathname.ParentName:
		return syscall.EINVAL
	}
	return nil
}

// releaseLocked drops the identity of a file no entry references anymore
func (fs *FileSystem) releaseLocked(f *File) {
	if f.IsDirectory() || f.CopyAttr().Nlink == 0 {
		fs.uuidRegistry.Delete(f.id)
	}
}

// Rename moves the entry src to dst. An existing dst is replaced if it is
// of a compatible kind; a directory cannot be moved below itself.
func (fs *FileSystem) Rename(src, dst string) error {
	sp, err := fs.parse("rename", src)
	if err != nil {
		return err
	}
	dp, err := fs.parse("rename", dst)
	if err != nil {
		return err
	}
	fs.tree.Lock()
	defer fs.tree.Unlock()
	return fs.renameLocked(fs.tree, sp, fs.tree, dp)
}

func (fs *FileSystem) renameLocked(srcTree *FileTree, src pathname.Path, dstTree *FileTree, dst pathname.Path) error {
	const op = "rename"

	sres, err := fs.lookupFileLocked(op, srcTree, src, NoFollowLinks)
	if err != nil {
		return err
	}
	if err := fs.checkDetachable(sres); err != nil {
		return pathError(op, src.String(), err)
	}
	dres, err := fs.lookupLocked(dstTree, dst, NoFollowLinks)
	if err != nil {
		return pathError(op, dst.String(), err)
	}
	if dres.Status() == NotFound || fs.detachedLocked(dres.Parent()) {
		return pathError(op, dst.String(), syscall.ENOENT)
	}
	name, ok := dst.FileName()
	if !ok {
		return pathError(op, dst.String(), syscall.EBUSY)
	}

	f := sres.File()
	if dres.Found() {
		if err := fs.checkDetachable(dres); err != nil {
			return pathError(op, dst.String(), err)
		}
		target := dres.File()
		if target == f {
			if dres.Parent() != sres.Parent() || dres.Name().Key() != sres.Name().Key() {
				// two names for the same file
				return nil
			}
		} else {
			switch {
			case target.IsDirectory() && !f.IsDirectory():
				return pathError(op, dst.String(), syscall.EISDIR)
			case !target.IsDirectory() && f.IsDirectory():
				return pathError(op, dst.String(), syscall.ENOTDIR)
			case target.IsDirectory() && !target.table.IsEmpty():
				return pathError(op, dst.String(), syscall.ENOTEMPTY)
			}
		}
	}
	if f.IsDirectory() && isAncestor(f, dres.Parent()) {
		return pathError(op, dst.String(), syscall.EINVAL)
	}

	if dres.Found() && dres.File() != f {
		if _, err := dres.Parent().table.Unlink(dres.Name()); err != nil {
			return pathError(op, dst.String(), err)
		}
		fs.releaseLocked(dres.File())
	}
	if _, err := sres.Parent().table.Unlink(sres.Name()); err != nil {
		return pathError(op, src.String(), err)
	}
	if err := dres.Parent().table.Link(name, f); err != nil {
		return pathError(op, dst.String(), err)
	}
	return nil
}

// isAncestor reports whether dir is d or one of its ancestors
func isAncestor(dir, d *File) bool {
	for cur := d; cur != nil; {
		if cur == dir {
			return true
		}
		parent := cur.table.Parent()
		if parent == cur {
			return false
		}
		cur = parent
	}
	return false
}

// ReadLink returns the stored target of the symbolic link path names
func (fs *FileSystem) ReadLink(path string) (string, error) {
	p, err := fs.parse("readlink", path)
	if err != nil {
		return "", err
	}
	fs.tree.RLock()
	defer fs.tree.RUnlock()
	res, err := fs.lookupFileLocked("readlink", fs.tree, p, NoFollowLinks)
	if err != nil {
		return "", err
	}
	if !res.File().IsSymbolicLink() {
		return "", pathError("readlink", path, syscall.EINVAL)
	}
	return res.File().LinkTarget().String(), nil
}

// ReadDir returns the entries of the directory path names, sorted by name
// and without "." and ".."
func (fs *FileSystem) ReadDir(path string) ([]DirEntry, error) {
	p, err := fs.parse("readdir", path)
	if err != nil {
		return nil, err
	}
	fs.tree.RLock()
	defer fs.tree.RUnlock()
	res, err := fs.lookupFileLocked("readdir", fs.tree, p, FollowLinks)
	if err != nil {
		return nil, err
	}
	if !res.File().IsDirectory() {
		return nil, pathError("readdir", path, syscall.ENOTDIR)
	}
	return res.File().table.Entries(), nil
}

// ReadFile returns the whole content of the regular file path names
func (fs *FileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	p, err := fs.parse("read", path)
	if err != nil {
		return nil, err
	}
	res, err := func() (LookupResult, error) {
		fs.tree.RLock()
		defer fs.tree.RUnlock()
		return fs.lookupFileLocked("read", fs.tree, p, FollowLinks)
	}()
	if err != nil {
		return nil, err
	}
	data, err := fs.readFile(ctx, res.File(), 0, int64(res.File().CopyAttr().Size))
	if err != nil {
		return nil, pathError("read", path, err)
	}
	return data, nil
}

// Read reads up to size bytes at offset from the registered node nodeID
func (fs *FileSystem) Read(ctx context.Context, nodeID uint64, offset, size int64) ([]byte, error) {
	f, ok := fs.nodeRegistry.Load(nodeID)
	if !ok {
		return nil, syscall.ENOENT
	}
	return fs.readFile(ctx, f, offset, size)
}

// ReadNode reads up to size bytes at offset from f, which need not be
// reachable from the tree anymore
func (fs *FileSystem) ReadNode(ctx context.Context, f *File, offset, size int64) ([]byte, error) {
	return fs.readFile(ctx, f, offset, size)
}

func (fs *FileSystem) readFile(ctx context.Context, f *File, offset, size int64) ([]byte, error) {
	switch f.Kind() {
	case Directory:
		return nil, syscall.EISDIR
	case SymbolicLink:
		return nil, syscall.EINVAL
	}
	if size == 0 {
		return []byte{}, nil
	}
	return f.Read(ctx, offset, size)
}

// Chdir changes the working directory. Absolute lookups are unaffected.
func (fs *FileSystem) Chdir(path string) error {
	p, err := fs.parse("chdir", path)
	if err != nil {
		return err
	}
	fs.tree.RLock()
	defer fs.tree.RUnlock()
	res, err := fs.lookupFileLocked("chdir", fs.tree, p, FollowLinks)
	if err != nil {
		return err
	}
	if !res.File().IsDirectory() {
		return pathError("chdir", path, syscall.ENOTDIR)
	}
	fs.tree.SetBase(res.File())
	return nil
}

// Getwd returns the absolute path of the working directory
func (fs *FileSystem) Getwd() (string, error) {
	fs.tree.RLock()
	defer fs.tree.RUnlock()
	dir, err := fs.pathOfLocked(fs.tree.Base())
	if err != nil {
		return "", pathError("getwd", ".", err)
	}
	return dir, nil
}

// PathOf returns the absolute path of directory dir
func (fs *FileSystem) PathOf(dir *File) (string, error) {
	fs.tree.RLock()
	defer fs.tree.RUnlock()
	return fs.pathOfLocked(dir)
}

// pathOfLocked walks ".." entries up to the root; ENOENT if dir is detached
func (fs *FileSystem) pathOfLocked(dir *File) (string, error) {
	if !dir.IsDirectory() {
		return "", syscall.ENOTDIR
	}
	var names []string
	for cur := dir; cur != fs.root; {
		parent := cur.table.Parent()
		if parent == nil {
			return "", syscall.ENOENT
		}
		entries := parent.table.Entries()
		idx := slices.IndexFunc(entries, func(e DirEntry) bool { return e.File == cur })
		if idx < 0 {
			return "", syscall.ENOENT
		}
		names = append(names, entries[idx].Name.String())
		cur = parent
	}
	slices.Reverse(names)
	return pathname.RootName + strings.Join(names, "/"), nil
}

/* Node requests */

// AddDirNode recursively adds all missing directories in the request's path
// and returns the leaf. It is equivalent to `mkdir -p` and will not error if
// the leaf already exists.
func (fs *FileSystem) AddDirNode(req *memfs.DirCreateRequest) (*File, error) {
	logger := util.GetLogger("AddDirNode")

	p, err := fs.parse("mkdir", req.Path)
	if err != nil {
		return nil, err
	}
	fs.superTree.Lock()
	defer fs.superTree.Unlock()

	if err := fs.mkdirParentLocked(p); err != nil {
		logger.Error().Err(err).Str("path", req.Path).Msg("Failed to create parent directories")
		return nil, err
	}
	dir, err := fs.mkdirAllLocked(fs.rootTree, p, fs.permsOr(req.Perms, fs.cfg.DirPerms))
	if err != nil {
		logger.Error().Err(err).Str("path", req.Path).Msg("Failed to create directory")
		return nil, err
	}
	if dir != fs.root {
		applyRequestAttr(dir, &req.NodeRequest)
	}
	return dir, nil
}

// AddFileNode adds a regular file backed by the request's sources, creating
// any missing parent directories. It fails if the name already exists.
func (fs *FileSystem) AddFileNode(req *memfs.FileCreateRequest) (*File, error) {
	logger := util.GetLogger("AddFileNode")

	sources := slices.Clone(req.Sources)
	slices.SortStableFunc(sources, func(a, b memfs.FileSource) int { return a.Priority - b.Priority })
	adapters := make([]memfs.FileAdapter, 0, len(sources))
	for _, source := range sources {
		a, err := source.Provider.NewAdapter(source.Config)
		if err != nil {
			logger.Error().Err(err).Str("path", req.Path).Int("priority", source.Priority).Msg("Failed to create adapter")
			continue
		}
		adapters = append(adapters, a)
	}
	if len(adapters) == 0 {
		logger.Error().Str("path", req.Path).Msg("No valid adapters")
		return nil, pathError("create", req.Path, errors.New("no valid adapters"))
	}

	f, err := fs.addNode("create", &req.NodeRequest, func() *File {
		return NewRegularFile(fs.nextIno(), fs.permsOr(req.Perms, fs.cfg.FilePerms), adapters)
	})
	if err != nil {
		logger.Error().Err(err).Str("path", req.Path).Msg("Failed to create file")
		return nil, err
	}

	if req.Size == 0 {
		if err := f.RefreshMeta(context.Background()); err != nil {
			logger.Warn().Err(err).Str("path", req.Path).Msg("Failed to refresh file metadata")
		}
	}
	logger.Debug().Str("path", req.Path).Msg("Added new file node")
	return f, nil
}

// AddSymlinkNode adds a symbolic link, creating any missing parent
// directories
func (fs *FileSystem) AddSymlinkNode(req *memfs.SymlinkCreateRequest) (*File, error) {
	target, err := fs.parse("symlink", req.Target)
	if err != nil {
		return nil, err
	}
	if target.IsEmpty() {
		return nil, pathError("symlink", req.Path, syscall.EINVAL)
	}
	return fs.addNode("symlink", &req.NodeRequest, func() *File {
		return NewSymbolicLink(fs.nextIno(), target)
	})
}

// AddHardlinkNode adds another entry for an existing non-directory node
// named by UUID or by path
func (fs *FileSystem) AddHardlinkNode(req *memfs.HardlinkCreateRequest) (*File, error) {
	p, err := fs.parse("link", req.Path)
	if err != nil {
		return nil, err
	}
	fs.superTree.Lock()
	defer fs.superTree.Unlock()

	var target *File
	switch {
	case req.TargetUUID != "":
		id, err := uuid.Parse(req.TargetUUID)
		if err != nil {
			return nil, pathError("link", req.Path, fmt.Errorf("invalid target uuid: %w", err))
		}
		f, ok := fs.uuidRegistry.Load(id)
		if !ok {
			return nil, pathError("link", req.TargetUUID, syscall.ENOENT)
		}
		target = f
	case req.TargetPath != "":
		tp, err := fs.parse("link", req.TargetPath)
		if err != nil {
			return nil, err
		}
		res, err := fs.lookupFileLocked("link", fs.rootTree, tp, NoFollowLinks)
		if err != nil {
			return nil, err
		}
		target = res.File()
	default:
		return nil, pathError("link", req.Path, syscall.EINVAL)
	}

	if err := fs.mkdirParentLocked(p); err != nil {
		return nil, err
	}
	return fs.linkLocked(fs.rootTree, target, p)
}

// addNode creates the request's parents and links the file built by mk
func (fs *FileSystem) addNode(op string, req *memfs.NodeRequest, mk func() *File) (*File, error) {
	p, err := fs.parse(op, req.Path)
	if err != nil {
		return nil, err
	}
	var id uuid.UUID
	if req.UUID != "" {
		if id, err = uuid.Parse(req.UUID); err != nil {
			return nil, pathError(op, req.Path, fmt.Errorf("invalid uuid: %w", err))
		}
	}

	fs.superTree.Lock()
	defer fs.superTree.Unlock()

	// registry writes happen under the tree lock, so the check holds until
	// createLocked stores the new file
	if id != uuid.Nil {
		if _, ok := fs.uuidRegistry.Load(id); ok {
			return nil, pathError(op, req.Path, fmt.Errorf("uuid %s: %w", id, syscall.EEXIST))
		}
	}

	if err := fs.mkdirParentLocked(p); err != nil {
		return nil, err
	}
	f, err := fs.createLocked(op, fs.rootTree, p, func() *File {
		f := mk()
		if id != uuid.Nil {
			f.id = id
		}
		return f
	})
	if err != nil {
		return nil, err
	}
	applyRequestAttr(f, req)
	return f, nil
}

func (fs *FileSystem) mkdirParentLocked(p pathname.Path) error {
	parent, ok := p.Parent()
	if !ok || parent.NameCount() == 0 {
		return nil
	}
	_, err := fs.mkdirAllLocked(fs.rootTree, parent, fs.cfg.DirPerms)
	return err
}

func (fs *FileSystem) permsOr(perms, def uint32) uint32 {
	if perms == 0 {
		return def
	}
	return perms
}

// applyRequestAttr copies the explicitly set request attributes onto f
func applyRequestAttr(f *File, req *memfs.NodeRequest) {
	f.UpdateAttr(func(attr *fuse.Attr) {
		if req.Perms != 0 {
			attr.Mode = f.kind.typeBits() | req.Perms&0o7777
		}
		if req.Size != 0 && f.IsRegular() {
			attr.Size = req.Size
			attr.Blocks = (req.Size + 511) / 512
		}
		if !req.Atime.IsZero() {
			attr.Atime = uint64(req.Atime.Unix())
			attr.Atimensec = uint32(req.Atime.Nanosecond())
		}
		if !req.Mtime.IsZero() {
			attr.Mtime = uint64(req.Mtime.Unix())
			attr.Mtimensec = uint32(req.Mtime.Nanosecond())
		}
		if !req.Ctime.IsZero() {
			attr.Ctime = uint64(req.Ctime.Unix())
			attr.Ctimensec = uint32(req.Ctime.Nanosecond())
		}
		if req.OwnerUID != 0 {
			attr.Uid = req.OwnerUID
		}
		if req.OwnerGID != 0 {
			attr.Gid = req.OwnerGID
		}
		if req.Blksize != 0 {
			attr.Blksize = req.Blksize
		}
	})
}
