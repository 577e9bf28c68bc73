package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/oid"
)

// Mode is a Unix-style file mode as stored in a tree entry: an octal
// number of at most six digits. Git supports only a fixed subset of
// values.
type Mode uint32

// The recognized modes for Git tree entries.
const (
	ModeTree    Mode = 0040000 // tree, directory
	ModeBlob    Mode = 0100644 // blob, file
	ModeExec    Mode = 0100755 // blob, executable file
	ModeSymlink Mode = 0120000 // blob, symlink
	ModeGitlink Mode = 0160000 // commit, submodule
)

// Kind returns the object kind a mode is expected to reference.
// KindUnknown is returned for a mode Git doesn't define.
func (m Mode) Kind() Kind {
	switch m {
	case ModeTree:
		return KindTree
	case ModeBlob, ModeExec, ModeSymlink:
		return KindBlob
	case ModeGitlink:
		return KindCommit
	default:
		return KindUnknown
	}
}

// TreeEntry is one line of a Tree: a name, its mode, and the digest of
// the object it names.
type TreeEntry struct {
	Mode Mode
	Name string
	ID   oid.ID
}

// sortName is the string a tree entry is ordered by: its name, with a
// trailing slash appended for subtrees, so that e.g. "foo.c" sorts
// before the subtree "foo/" ('.' < '/' in byte order), whereas without
// the suffix "foo" would sort first as a prefix of "foo.c".
func (e TreeEntry) sortName() string {
	if e.Mode == ModeTree {
		return e.Name + "/"
	}
	return e.Name
}

// Tree is an ordered sequence of tree entries, analogous to a
// filesystem directory. Order is significant: it is exactly the order
// entries are serialized in, which must be the canonical sort order
// (see Validate) for the tree's digest to be reproducible.
type Tree []TreeEntry

// SortEntries orders entries in place in canonical tree order. Callers
// building a Tree from scratch should call this before marshaling;
// Unmarshal, by contrast, requires the input to already be sorted (see
// Validate) since accepting and silently re-sorting a malformed tree
// would hide a digest-stability bug at the point it's introduced.
func SortEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].sortName() < entries[j].sortName()
	})
}

// Validate checks that a tree's invariants hold: every name is
// non-empty and contains neither '/' nor NUL, names are unique, and
// entries are in canonical sort order.
func (t Tree) Validate() error {
	seen := make(map[string]bool, len(t))
	for i, e := range t {
		if e.Name == "" {
			return dberr.New(dberr.InvalidInput, "object.Tree.Validate", xerrors.Errorf("empty entry name"))
		}
		if bytes.ContainsAny([]byte(e.Name), "/\x00") {
			return dberr.New(dberr.InvalidInput, "object.Tree.Validate", xerrors.Errorf("illegal character in entry name %q", e.Name))
		}
		if seen[e.Name] {
			return dberr.New(dberr.InvalidInput, "object.Tree.Validate", xerrors.Errorf("duplicate entry name %q", e.Name))
		}
		seen[e.Name] = true
		if i > 0 && !(t[i-1].sortName() < e.sortName()) {
			return dberr.New(dberr.Corruption, "object.Tree.Validate", xerrors.Errorf("entries out of canonical order at %q", e.Name))
		}
	}
	return nil
}

func (t Tree) MarshalPayload() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	for _, e := range t {
		fmt.Fprintf(buf, "%o %s\x00", e.Mode, e.Name)
		buf.Write(e.ID[:])
	}
	return buf.Bytes(), nil
}

func (t *Tree) UnmarshalPayload(data []byte) error {
	var entries Tree
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return dberr.New(dberr.Corruption, "object.Tree.Unmarshal", xerrors.Errorf("missing mode separator"))
		}
		mode, err := strconv.ParseUint(string(data[:sp]), 8, 32)
		if err != nil {
			return dberr.New(dberr.Corruption, "object.Tree.Unmarshal", xerrors.Errorf("bad mode %q: %w", data[:sp], err))
		}
		data = data[sp+1:]
		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return dberr.New(dberr.Corruption, "object.Tree.Unmarshal", xerrors.Errorf("missing name terminator"))
		}
		name := string(data[:nul])
		data = data[nul+1:]
		if len(data) < oid.Size {
			return dberr.New(dberr.Corruption, "object.Tree.Unmarshal", xerrors.Errorf("truncated entry id"))
		}
		var id oid.ID
		copy(id[:], data[:oid.Size])
		data = data[oid.Size:]
		entries = append(entries, TreeEntry{Mode: Mode(mode), Name: name, ID: id})
	}
	if err := entries.Validate(); err != nil {
		return err
	}
	*t = entries
	return nil
}
