package core

import (
	"sync/atomic"

	"github.com/brettbedarf/memfs/filesystem"
	"github.com/puzpuzpuz/xsync/v4"
)

// handleTable maps open file handles to their files. A handle keeps its
// file readable after the last name is removed. Released handle values are
// handed out again once the counter wraps.
type handleTable struct {
	max     uint64
	last    atomic.Uint64
	handles *xsync.Map[uint64, *filesystem.File]
}

func newHandleTable(limit uint64) *handleTable {
	return &handleTable{
		max:     limit,
		handles: xsync.NewMap[uint64, *filesystem.File](),
	}
}

// open allocates a handle in [1, max] for f; false when all are in use
func (t *handleTable) open(f *filesystem.File) (uint64, bool) {
	if t.max == 0 || uint64(t.handles.Size()) >= t.max {
		return 0, false
	}
	for range t.max {
		fh := (t.last.Add(1)-1)%t.max + 1
		if _, loaded := t.handles.LoadOrStore(fh, f); !loaded {
			return fh, true
		}
	}
	return 0, false
}

func (t *handleTable) get(fh uint64) (*filesystem.File, bool) {
	return t.handles.Load(fh)
}

func (t *handleTable) release(fh uint64) {
	t.handles.Delete(fh)
}

func (t *handleTable) len() int {
	return t.handles.Size()
}
