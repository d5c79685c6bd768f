package pathname

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for path strings that cannot name a file.
var ErrInvalidPath = errors.New("invalid path")

// Path is an immutable sequence of names with an optional root.
// A path is absolute iff it has a root.
type Path struct {
	root  *Name
	names []Name
}

// NewPath builds a relative path from already constructed names.
func NewPath(names ...Name) Path {
	return Path{names: append([]Name(nil), names...)}
}

// NewAbsolutePath builds an absolute path below root.
func NewAbsolutePath(root Name, names ...Name) Path {
	r := root
	return Path{root: &r, names: append([]Name(nil), names...)}
}

// IsAbsolute reports whether the path has a root.
func (p Path) IsAbsolute() bool {
	return p.root != nil
}

// Root returns the root name; ok is false for relative paths.
func (p Path) Root() (root Name, ok bool) {
	if p.root == nil {
		return Name{}, false
	}
	return *p.root, true
}

// NameCount returns the number of names, excluding the root.
func (p Path) NameCount() int {
	return len(p.names)
}

// Name returns the i-th name, excluding the root.
func (p Path) Name(i int) Name {
	return p.names[i]
}

// Names returns a copy of the names, excluding the root.
func (p Path) Names() []Name {
	return append([]Name(nil), p.names...)
}

// AllNames returns the names in root-to-leaf order with the root, if any,
// as the first element.
func (p Path) AllNames() []Name {
	all := make([]Name, 0, len(p.names)+1)
	if p.root != nil {
		all = append(all, *p.root)
	}
	return append(all, p.names...)
}

// IsEmpty reports whether the path is relative and has no names, or only
// the single empty name.
func (p Path) IsEmpty() bool {
	if p.root != nil {
		return false
	}
	return len(p.names) == 0 || (len(p.names) == 1 && p.names[0].IsEmpty())
}

// FileName returns the last name; ok is false if the path has no names.
func (p Path) FileName() (name Name, ok bool) {
	if len(p.names) == 0 {
		return Name{}, false
	}
	return p.names[len(p.names)-1], true
}

// Parent returns the path without its last name; ok is false if the path
// has no names.
func (p Path) Parent() (parent Path, ok bool) {
	if len(p.names) == 0 {
		return Path{}, false
	}
	return Path{root: p.root, names: p.names[:len(p.names)-1]}, true
}

// String renders the path with display spellings.
func (p Path) String() string {
	var sb strings.Builder
	if p.root != nil {
		sb.WriteString(p.root.String())
	}
	for i, n := range p.names {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(n.String())
	}
	return sb.String()
}

// Parser turns path strings into paths using Unix syntax, deriving each
// name's display and canonical spellings from its normalization forms.
type Parser struct {
	display   []Normalization
	canonical []Normalization
}

// NewParser creates a parser. Display forms shape the stored spelling,
// canonical forms shape the lookup key (the display forms are applied first).
func NewParser(display, canonical []Normalization) (*Parser, error) {
	if err := checkForms(display); err != nil {
		return nil, fmt.Errorf("display normalization: %w", err)
	}
	if err := checkForms(canonical); err != nil {
		return nil, fmt.Errorf("canonical normalization: %w", err)
	}
	return &Parser{
		display:   append([]Normalization(nil), display...),
		canonical: append([]Normalization(nil), canonical...),
	}, nil
}

// DefaultParser parses without any normalization.
func DefaultParser() *Parser {
	return &Parser{}
}

// Name builds a name from raw component text.
func (ps *Parser) Name(s string) Name {
	switch s {
	case "", SelfName, ParentName, RootName:
		return NewName(s)
	}
	display := Normalize(s, ps.display...)
	return Name{display: display, canonical: Normalize(display, ps.canonical...)}
}

// Root returns the root name used for absolute paths.
func (ps *Parser) Root() Name {
	return NewName(RootName)
}

// Parse parses a Unix-style path. Repeated slashes collapse and a trailing
// slash is ignored. The empty string yields the empty relative path.
func (ps *Parser) Parse(s string) (Path, error) {
	if strings.ContainsRune(s, '\x00') {
		return Path{}, fmt.Errorf("%w: path contains a null byte", ErrInvalidPath)
	}

	var p Path
	if strings.HasPrefix(s, "/") {
		root := ps.Root()
		p.root = &root
	}
	for _, part := range strings.Split(s, "/") {
		if part == "" {
			continue
		}
		p.names = append(p.names, ps.Name(part))
	}
	return p, nil
}

// MustParse is identical to Parse, except that it panics upon failure.
func (ps *Parser) MustParse(s string) Path {
	p, err := ps.Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}
