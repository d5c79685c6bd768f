package filesystem

import (
	"syscall"

	"github.com/brettbedarf/memfs/pathname"
)

// MaxSymbolicLinkDepth bounds the number of nested symbolic links a single
// lookup follows
const MaxSymbolicLinkDepth = 10

// LinkHandling controls whether a symbolic link named by the last component
// of a path is followed. Links in other positions are always followed.
type LinkHandling int

const (
	FollowLinks LinkHandling = iota
	NoFollowLinks
)

func (lh LinkHandling) String() string {
	if lh == NoFollowLinks {
		return "nofollow"
	}
	return "follow"
}

type linkDepthError struct{}

func (linkDepthError) Error() string { return "too many levels of symbolic links" }

func (linkDepthError) Unwrap() error { return syscall.ELOOP }

// ErrTooManyLinks is returned when a lookup exceeds MaxSymbolicLinkDepth.
// It unwraps to syscall.ELOOP.
var ErrTooManyLinks error = linkDepthError{}

// LookupStatus is the outcome of a lookup
type LookupStatus int

const (
	// NotFound: an intermediate component is missing or not a directory
	NotFound LookupStatus = iota
	// ParentFound: only the last component is missing
	ParentFound
	Found
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case ParentFound:
		return "parent-found"
	default:
		return "not-found"
	}
}

// LookupResult is the outcome of resolving a path. Accessors return zero
// values for fields the status does not carry.
type LookupResult struct {
	status LookupStatus
	parent *File
	file   *File
	name   pathname.Name
	hops   int
}

func notFound() LookupResult {
	return LookupResult{status: NotFound}
}

func parentFound(parent *File) LookupResult {
	return LookupResult{status: ParentFound, parent: parent}
}

func found(parent, file *File, name pathname.Name) LookupResult {
	return LookupResult{status: Found, parent: parent, file: file, name: name}
}

func (r LookupResult) Status() LookupStatus { return r.status }

func (r LookupResult) Found() bool { return r.status == Found }

// Parent returns the containing directory for Found and ParentFound
func (r LookupResult) Parent() *File { return r.parent }

// File returns the resolved node for Found
func (r LookupResult) File() *File { return r.file }

// Name returns the stored spelling of the entry for Found
func (r LookupResult) Name() pathname.Name { return r.name }

// LinkHops returns how many symbolic links were followed in total
func (r LookupResult) LinkHops() int { return r.hops }

// Lookup resolves path in tree. Relative paths start at the tree's base,
// absolute ones at its super-root. The tree's read lock is held for the
// whole call.
func Lookup(tree *FileTree, path pathname.Path, lh LinkHandling) (LookupResult, error) {
	tree.RLock()
	defer tree.RUnlock()
	return LookupLocked(tree, path, lh)
}

// LookupLocked is Lookup for callers already holding the tree lock.
func LookupLocked(tree *FileTree, path pathname.Path, lh LinkHandling) (LookupResult, error) {
	r := resolver{superRoot: tree.SuperRoot()}
	res, err := r.lookup(tree.Base(), path, lh, 0)
	if err != nil {
		return LookupResult{}, err
	}
	res.hops = r.hops
	return res, nil
}

// resolver carries the per-call state of a single lookup
type resolver struct {
	superRoot *File
	hops      int
}

func (r *resolver) lookup(dir *File, path pathname.Path, lh LinkHandling, depth int) (LookupResult, error) {
	var names []pathname.Name
	switch {
	case path.IsAbsolute():
		dir = r.superRoot
		names = path.AllNames()
	case path.IsEmpty():
		names = []pathname.Name{pathname.Self()}
	default:
		names = path.Names()
	}

	last := len(names) - 1
	for _, name := range names[:last] {
		table := tableOf(dir)
		if table == nil {
			return notFound(), nil
		}
		entry, ok := table.Get(name)
		if !ok {
			return notFound(), nil
		}
		if !entry.File.IsSymbolicLink() {
			dir = entry.File
			continue
		}
		res, err := r.followLink(table, entry.File, depth)
		if err != nil {
			return LookupResult{}, err
		}
		// a ParentFound target leaves nothing to continue through
		dir = res.File()
	}
	return r.lookupLast(dir, names[last], lh, depth)
}

func (r *resolver) lookupLast(dir *File, name pathname.Name, lh LinkHandling, depth int) (LookupResult, error) {
	table := tableOf(dir)
	if table == nil {
		return notFound(), nil
	}
	entry, ok := table.Get(name)
	if !ok {
		return parentFound(dir), nil
	}
	if lh == FollowLinks && entry.File.IsSymbolicLink() {
		return r.followLink(table, entry.File, depth)
	}
	return found(dir, entry.File, entry.Name), nil
}

// followLink resolves link's target from the directory holding the link
func (r *resolver) followLink(table *DirectoryTable, link *File, depth int) (LookupResult, error) {
	depth++
	if depth >= MaxSymbolicLinkDepth {
		return LookupResult{}, ErrTooManyLinks
	}
	r.hops++
	return r.lookup(table.Self(), link.LinkTarget(), FollowLinks, depth)
}

// tableOf returns f's table, or nil when f is nil or not a directory
func tableOf(f *File) *DirectoryTable {
	if !f.IsDirectory() {
		return nil
	}
	return f.table
}
