package filesystem

import (
	"slices"
	"strings"
	"syscall"

	"github.com/brettbedarf/memfs/pathname"
)

// DirEntry is a single (name, file) pair of a directory table. Name carries
// the spelling stored when the entry was linked.
type DirEntry struct {
	Name pathname.Name
	File *File
}

// DirectoryTable maps names to the files a directory contains. Entries are
// keyed by canonical form. Every table holds a "." entry for its own
// directory and, once linked into a parent, a ".." entry.
//
// NOTE: tables are not synchronized; callers hold the tree lock.
type DirectoryTable struct {
	self    *File
	entries map[string]DirEntry
}

func newDirectoryTable(self *File) *DirectoryTable {
	t := &DirectoryTable{
		self:    self,
		entries: make(map[string]DirEntry),
	}
	t.entries[pathname.SelfName] = DirEntry{Name: pathname.Self(), File: self}
	self.AddLink()
	return t
}

// Self returns the directory owning the table
func (t *DirectoryTable) Self() *File {
	return t.self
}

// Parent returns the file of the ".." entry; nil while detached
func (t *DirectoryTable) Parent() *File {
	return t.entries[pathname.ParentName].File
}

// Get returns the entry matching name's canonical form
func (t *DirectoryTable) Get(name pathname.Name) (DirEntry, bool) {
	e, ok := t.entries[name.Key()]
	return e, ok
}

// Canonicalize returns the stored spelling of the entry matching name, or
// name itself if there is none
func (t *DirectoryTable) Canonicalize(name pathname.Name) pathname.Name {
	if e, ok := t.entries[name.Key()]; ok {
		return e.Name
	}
	return name
}

// Link adds an entry for f. Linking a directory sets its ".." entry to this
// table's directory unless it already has one.
func (t *DirectoryTable) Link(name pathname.Name, f *File) error {
	if isReserved(name) {
		return syscall.EINVAL
	}
	if _, ok := t.entries[name.Key()]; ok {
		return syscall.EEXIST
	}
	t.entries[name.Key()] = DirEntry{Name: name, File: f}
	f.AddLink()
	if table := tableOf(f); table != nil {
		if _, ok := table.entries[pathname.ParentName]; !ok {
			table.setParent(t.self)
		}
	}
	t.self.TouchMtime()
	return nil
}

// Unlink removes the entry matching name and returns it. An unlinked
// directory loses its ".." entry.
func (t *DirectoryTable) Unlink(name pathname.Name) (DirEntry, error) {
	if isReserved(name) {
		return DirEntry{}, syscall.EINVAL
	}
	e, ok := t.entries[name.Key()]
	if !ok {
		return DirEntry{}, syscall.ENOENT
	}
	delete(t.entries, name.Key())
	e.File.DropLink()
	if table := tableOf(e.File); table != nil && table.Parent() == t.self {
		delete(table.entries, pathname.ParentName)
		t.self.DropLink()
	}
	t.self.TouchMtime()
	return e, nil
}

// setParent points ".." at dir
func (t *DirectoryTable) setParent(dir *File) {
	t.entries[pathname.ParentName] = DirEntry{Name: pathname.Parent(), File: dir}
	dir.AddLink()
}

// Len returns the number of entries other than "." and ".."
func (t *DirectoryTable) Len() int {
	n := len(t.entries) - 1
	if _, ok := t.entries[pathname.ParentName]; ok {
		n--
	}
	return n
}

func (t *DirectoryTable) IsEmpty() bool {
	return t.Len() == 0
}

// Entries returns a snapshot of the entries other than "." and "..",
// sorted by stored spelling
func (t *DirectoryTable) Entries() []DirEntry {
	out := make([]DirEntry, 0, t.Len())
	for key, e := range t.entries {
		if key == pathname.SelfName || key == pathname.ParentName {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b DirEntry) int {
		return strings.Compare(a.Name.String(), b.Name.String())
	})
	return out
}

func isReserved(name pathname.Name) bool {
	switch name.Key() {
	case "", pathname.SelfName, pathname.ParentName:
		return true
	}
	return false
}
