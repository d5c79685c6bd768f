// Package pathname models the names and paths resolved by the filesystem.
//
// A [Name] carries two spellings: the display string that gets stored in a
// directory entry and the canonical key that entries are matched by. Both are
// derived from the raw component text by the [Normalization] forms the
// [Parser] was configured with.
package pathname

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Well-known component names
const (
	SelfName   = "."
	ParentName = ".."
	RootName   = "/"
)

// Name is a single path component. The zero value is the empty name.
type Name struct {
	display   string
	canonical string
}

// NewName creates a name whose display and canonical spelling are both s.
func NewName(s string) Name {
	return Name{display: s, canonical: s}
}

// Self is the "." name which every directory table links to itself.
func Self() Name { return NewName(SelfName) }

// Parent is the ".." name which every directory table links to its parent.
func Parent() Name { return NewName(ParentName) }

// String returns the display spelling.
func (n Name) String() string {
	return n.display
}

// Key returns the canonical spelling used for equality and table lookups.
func (n Name) Key() string {
	return n.canonical
}

// IsEmpty reports whether the name is the empty string.
func (n Name) IsEmpty() bool {
	return n.display == ""
}

// Equal compares canonical spellings.
func (n Name) Equal(o Name) bool {
	return n.canonical == o.canonical
}

// Normalization is a transformation applied to a name's spelling.
type Normalization string

const (
	NormalizeNone   Normalization = "none"
	NormalizeNFC    Normalization = "nfc"
	NormalizeNFD    Normalization = "nfd"
	CaseFoldASCII   Normalization = "case_fold_ascii"
	CaseFoldUnicode Normalization = "case_fold_unicode"
)

// ParseNormalization validates a textual normalization form such as those
// found in configuration files.
func ParseNormalization(s string) (Normalization, error) {
	switch n := Normalization(strings.ToLower(strings.TrimSpace(s))); n {
	case NormalizeNone, NormalizeNFC, NormalizeNFD, CaseFoldASCII, CaseFoldUnicode:
		return n, nil
	case "":
		return NormalizeNone, nil
	default:
		return "", fmt.Errorf("unknown name normalization: %q", s)
	}
}

// ParseNormalizations parses a list of forms; see [ParseNormalization].
func ParseNormalizations(forms []string) ([]Normalization, error) {
	out := make([]Normalization, 0, len(forms))
	for _, f := range forms {
		n, err := ParseNormalization(f)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := checkForms(out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkForms rejects combinations that contradict each other.
func checkForms(forms []Normalization) error {
	var nfc, nfd, ascii, unicode bool
	for _, f := range forms {
		switch f {
		case NormalizeNFC:
			nfc = true
		case NormalizeNFD:
			nfd = true
		case CaseFoldASCII:
			ascii = true
		case CaseFoldUnicode:
			unicode = true
		}
	}
	if nfc && nfd {
		return fmt.Errorf("normalizations %q and %q are mutually exclusive", NormalizeNFC, NormalizeNFD)
	}
	if ascii && unicode {
		return fmt.Errorf("normalizations %q and %q are mutually exclusive", CaseFoldASCII, CaseFoldUnicode)
	}
	return nil
}

// Normalize applies forms to s in order.
func Normalize(s string, forms ...Normalization) string {
	for _, f := range forms {
		switch f {
		case NormalizeNFC:
			s = norm.NFC.String(s)
		case NormalizeNFD:
			s = norm.NFD.String(s)
		case CaseFoldASCII:
			s = foldASCII(s)
		case CaseFoldUnicode:
			s = cases.Fold().String(s)
		}
	}
	return s
}

func foldASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
