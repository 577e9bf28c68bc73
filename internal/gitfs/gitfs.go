// Package gitfs is the filesystem seam the core reads and writes
// through: open/create/rename/remove/mkdir/stat/readdir, abstracted so
// that the loose and pack backends never call os.* directly. The
// default implementation is backed by billy's local OS filesystem;
// tests substitute an in-memory one.
package gitfs

import (
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// FS is the capability set the core requires of a filesystem.
type FS interface {
	Open(path string) (billy.File, error)
	Create(path string) (billy.File, error)
	// TempFile creates a new temporary file in dir with a name
	// beginning with prefix, for the loose backend's write-then-
	// rename sequence.
	TempFile(dir, prefix string) (billy.File, error)
	Rename(oldpath, newpath string) error
	Remove(path string) error
	MkdirAll(path string, perm os.FileMode) error
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
}

// billyFS adapts a billy.Filesystem to FS; the two interfaces already
// agree on every method used here except naming, so this is a thin
// forwarding shim.
type billyFS struct {
	billy.Filesystem
}

// Local returns an FS rooted at dir on the local OS filesystem.
func Local(dir string) FS {
	return billyFS{osfs.New(dir)}
}

// Memory returns an in-memory FS, for tests that need atomic rename
// semantics without touching disk.
func Memory() FS {
	return billyFS{memfs.New()}
}

// ReadFull reads f to EOF. It exists because billy.File satisfies
// io.Reader but not io.ReaderFrom-friendly helpers callers would
// otherwise have to reimplement at every call site.
func ReadFull(f billy.File) ([]byte, error) {
	defer f.Close()
	return io.ReadAll(f)
}
