package filesystem

import (
	"sync"
	"sync/atomic"
)

// FileTree is a view of the file hierarchy rooted at a base directory, the
// working directory relative paths are resolved from. All trees derived
// from the same super-root share a single reader/writer lock guarding
// every directory table reachable from it.
type FileTree struct {
	base      atomic.Pointer[File]
	superRoot *File
	mu        *sync.RWMutex
}

// NewSuperRoot creates a tree whose base is superRoot. superRoot must be a
// directory holding the root directories as entries.
func NewSuperRoot(superRoot *File) *FileTree {
	t := &FileTree{
		superRoot: superRoot,
		mu:        &sync.RWMutex{},
	}
	t.base.Store(superRoot)
	return t
}

// WithBase derives a tree sharing t's super-root and lock but resolving
// relative paths from base
func (t *FileTree) WithBase(base *File) *FileTree {
	nt := &FileTree{
		superRoot: t.superRoot,
		mu:        t.mu,
	}
	nt.base.Store(base)
	return nt
}

// Base returns the directory relative paths start from
func (t *FileTree) Base() *File {
	return t.base.Load()
}

// SetBase changes the working directory of this tree only
func (t *FileTree) SetBase(base *File) {
	t.base.Store(base)
}

// SuperRoot returns the directory absolute paths start from
func (t *FileTree) SuperRoot() *File {
	return t.superRoot
}

func (t *FileTree) RLock()   { t.mu.RLock() }
func (t *FileTree) RUnlock() { t.mu.RUnlock() }
func (t *FileTree) Lock()    { t.mu.Lock() }
func (t *FileTree) Unlock()  { t.mu.Unlock() }
