package filesystem

import (
	"syscall"

	"github.com/brettbedarf/memfs/pathname"
)

/* Operations addressed by registry NodeID and entry name, as the FUSE bridge sees them */

// atParent returns a tree based at the directory parentID and the single
// name path for name
func (fs *FileSystem) atParent(op string, parentID uint64, name string) (*FileTree, pathname.Path, error) {
	parent, ok := fs.nodeRegistry.Load(parentID)
	if !ok {
		return nil, pathname.Path{}, pathError(op, name, syscall.ENOENT)
	}
	if !parent.IsDirectory() {
		return nil, pathname.Path{}, pathError(op, name, syscall.ENOTDIR)
	}
	return fs.superTree.WithBase(parent), pathname.NewPath(fs.parser.Name(name)), nil
}

// MkdirAt creates directory name in the directory parentID
func (fs *FileSystem) MkdirAt(parentID uint64, name string, perms uint32) (*File, error) {
	tree, p, err := fs.atParent("mkdir", parentID, name)
	if err != nil {
		return nil, err
	}
	tree.Lock()
	defer tree.Unlock()
	return fs.createLocked("mkdir", tree, p, func() *File {
		return NewDirectory(fs.nextIno(), perms)
	})
}

// SymlinkAt creates the symbolic link name to target in the directory parentID
func (fs *FileSystem) SymlinkAt(parentID uint64, target, name string) (*File, error) {
	t, err := fs.parse("symlink", target)
	if err != nil {
		return nil, err
	}
	tree, p, err := fs.atParent("symlink", parentID, name)
	if err != nil {
		return nil, err
	}
	tree.Lock()
	defer tree.Unlock()
	return fs.createLocked("symlink", tree, p, func() *File {
		return NewSymbolicLink(fs.nextIno(), t)
	})
}

// LinkAt adds name in the directory parentID for the registered node nodeID
func (fs *FileSystem) LinkAt(nodeID, parentID uint64, name string) (*File, error) {
	f, ok := fs.nodeRegistry.Load(nodeID)
	if !ok {
		return nil, pathError("link", name, syscall.ENOENT)
	}
	tree, p, err := fs.atParent("link", parentID, name)
	if err != nil {
		return nil, err
	}
	tree.Lock()
	defer tree.Unlock()
	return fs.linkLocked(tree, f, p)
}

// UnlinkAt removes the non-directory name from the directory parentID
func (fs *FileSystem) UnlinkAt(parentID uint64, name string) error {
	tree, p, err := fs.atParent("unlink", parentID, name)
	if err != nil {
		return err
	}
	tree.Lock()
	defer tree.Unlock()
	return fs.removeLocked("unlink", tree, p, removeFile)
}

// RmdirAt removes the empty directory name from the directory parentID
func (fs *FileSystem) RmdirAt(parentID uint64, name string) error {
	tree, p, err := fs.atParent("rmdir", parentID, name)
	if err != nil {
		return err
	}
	tree.Lock()
	defer tree.Unlock()
	return fs.removeLocked("rmdir", tree, p, removeDir)
}

// RenameAt moves oldName of the directory oldParentID to newName of the
// directory newParentID
func (fs *FileSystem) RenameAt(oldParentID uint64, oldName string, newParentID uint64, newName string) error {
	srcTree, src, err := fs.atParent("rename", oldParentID, oldName)
	if err != nil {
		return err
	}
	dstTree, dst, err := fs.atParent("rename", newParentID, newName)
	if err != nil {
		return err
	}
	// both trees share the lock of the super-root tree
	srcTree.Lock()
	defer srcTree.Unlock()
	return fs.renameLocked(srcTree, src, dstTree, dst)
}
