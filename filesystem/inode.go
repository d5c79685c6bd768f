package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// ErrNoAdapters is returned when reading a file without content adapters
var ErrNoAdapters = errors.New("no content adapters")

// Inode holds the attributes of a file node and, for regular files, the
// adapters backing its content. Attributes have their own lock so they can
// be read and touched without the tree lock.
type Inode struct {
	// Low-level fuse wire protocol attributes; Only access directly if
	// handling locks manually
	fuseAttr *fuse.Attr
	adapters []memfs.FileAdapter // Ordered by source priority
	mu       sync.RWMutex
}

func NewInode(attr *fuse.Attr, adapters []memfs.FileAdapter) *Inode {
	return &Inode{
		fuseAttr: attr,
		adapters: adapters,
	}
}

// addLinkLocked records one more directory entry referencing the inode.
// Caller must hold n.mu.Lock().
func (n *Inode) addLinkLocked() {
	n.fuseAttr.Nlink++
	n.touchCtimeLocked(time.Now())
}

// AddLink records one more directory entry referencing the inode
func (n *Inode) AddLink() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.addLinkLocked()
}

// DropLink records the removal of a directory entry and returns the
// remaining link count
func (n *Inode) DropLink() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fuseAttr.Nlink > 0 {
		n.fuseAttr.Nlink--
	}
	n.touchCtimeLocked(time.Now())
	return n.fuseAttr.Nlink
}

// CopyAttr returns a thread-safe copy of the inode's attributes
func (n *Inode) CopyAttr() fuse.Attr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return *n.fuseAttr
}

// UpdateAttr runs fn under the Inode write-lock for atomic modifications.
func (n *Inode) UpdateAttr(fn func(attr *fuse.Attr)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(n.fuseAttr)
}

// TouchMtime sets the modification and change times to now.
// Directories call this whenever an entry is linked or unlinked.
func (n *Inode) TouchMtime() {
	now := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fuseAttr.Mtime = uint64(now.Unix())
	n.fuseAttr.Mtimensec = uint32(now.Nanosecond())
	n.touchCtimeLocked(now)
}

func (n *Inode) touchCtimeLocked(now time.Time) {
	n.fuseAttr.Ctime = uint64(now.Unix())
	n.fuseAttr.Ctimensec = uint32(now.Nanosecond())
}

// RefreshMeta asks the highest priority adapter that answers for the
// content metadata and updates size and modification time from it.
func (n *Inode) RefreshMeta(ctx context.Context) error {
	logger := util.GetLogger("Inode.RefreshMeta")

	var lastErr error
	for i, a := range n.adapters {
		meta, err := a.GetMeta(ctx)
		if err != nil {
			logger.Debug().Err(err).Int("adapter", i).Msg("Adapter metadata failed")
			lastErr = err
			continue
		}
		if meta == nil {
			continue
		}
		n.UpdateAttr(func(attr *fuse.Attr) {
			attr.Size = meta.Size
			attr.Blocks = (meta.Size + 511) / 512
			if meta.LastModified != nil {
				attr.Mtime = uint64(meta.LastModified.Unix())
				attr.Mtimensec = uint32(meta.LastModified.Nanosecond())
			}
		})
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("no adapter returned metadata: %w", lastErr)
	}
	return nil
}

// Read returns up to size bytes starting at offset. Adapters are tried in
// priority order and the first one that succeeds wins.
func (n *Inode) Read(ctx context.Context, offset, size int64) ([]byte, error) {
	logger := util.GetLogger("Inode.Read")

	if len(n.adapters) == 0 {
		return nil, ErrNoAdapters
	}
	if fileSize := int64(n.CopyAttr().Size); fileSize > 0 && offset+size > fileSize {
		size = max(fileSize-offset, 0)
	}
	if size == 0 {
		return []byte{}, nil
	}

	var lastErr error
	for i, a := range n.adapters {
		buf := make([]byte, size)
		cnt, err := a.Read(ctx, offset, size, buf)
		if err != nil && !errors.Is(err, io.EOF) {
			logger.Debug().Err(err).Int("adapter", i).Int64("offset", offset).Msg("Adapter read failed; trying next")
			lastErr = err
			continue
		}
		return buf[:cnt], nil
	}
	return nil, fmt.Errorf("all adapters failed: %w", lastErr)
}

// newDefaultAttr returns the default attributes for a new node
// NOTE: Make sure to set the Mode field appropriately
func newDefaultAttr(ino uint64) *fuse.Attr {
	now := time.Now()
	return &fuse.Attr{
		Ino:   ino,
		Nlink: 0, // incremented as entries are linked
		Owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
		Atime:     uint64(now.Unix()),
		Mtime:     uint64(now.Unix()),
		Ctime:     uint64(now.Unix()),
		Atimensec: uint32(now.Nanosecond()),
		Mtimensec: uint32(now.Nanosecond()),
		Ctimensec: uint32(now.Nanosecond()),
		Blksize:   4096, // preferred size for fs ops
		// Only non-zero for device files (see S_IFCHR and S_IFBLK) (N/A)
		Rdev: 0,
	}
}
