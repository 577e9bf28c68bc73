// Package loose implements the one-file-per-object backend: each
// object lives as a deflate-compressed "<kind> <len>\0<payload>"
// stream at objects/ab/cdef…, written atomically via a temp file and
// rename.
package loose

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path"

	"github.com/apex/log"
	"github.com/klauspost/compress/zlib"

	"github.com/embervcs/odb/backend"
	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/internal/gitfs"
	"github.com/embervcs/odb/object"
	"github.com/embervcs/odb/oid"
)

// Backend is a loose object store rooted at an objects directory.
type Backend struct {
	fs  gitfs.FS
	dir string
}

// New returns a loose backend rooted at dir (a repository's "objects"
// directory).
func New(fs gitfs.FS, dir string) *Backend {
	return &Backend{fs: fs, dir: dir}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Name() string { return "loose" }

func (b *Backend) path(id oid.ID) string {
	return path.Join(b.dir, id.Path())
}

func (b *Backend) Exists(ctx context.Context, id oid.ID) (bool, error) {
	_, err := b.fs.Stat(b.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, dberr.New(dberr.IOError, "loose.Exists", err)
}

func (b *Backend) ReadHeader(ctx context.Context, id oid.ID) (backend.Header, error) {
	raw, err := b.Read(ctx, id)
	if err != nil {
		return backend.Header{}, err
	}
	return backend.Header{Kind: raw.Kind, Length: len(raw.Bytes)}, nil
}

func (b *Backend) Read(ctx context.Context, id oid.ID) (object.Raw, error) {
	const op = "loose.Read"
	f, err := b.fs.Open(b.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return object.Raw{}, dberr.New(dberr.NotFound, op, fmt.Errorf("object %s not present", id))
		}
		return object.Raw{}, dberr.New(dberr.IOError, op, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return object.Raw{}, dberr.New(dberr.Corruption, op, fmt.Errorf("bad deflate stream: %w", err))
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return object.Raw{}, dberr.New(dberr.Corruption, op, fmt.Errorf("inflate failed: %w", err))
	}
	kind, payload, err := object.ParseHeader(data)
	if err != nil {
		return object.Raw{}, err
	}
	return object.Raw{Kind: kind, Bytes: payload}, nil
}

func (b *Backend) Writable() bool { return true }

// Write frames and compresses raw, then writes it to a uniquely-named
// temp file under dir and renames it into place. If an object file for
// id already exists, Write returns a Conflict error without writing a
// temp file: content-addressed storage means the existing file already
// holds these bytes.
func (b *Backend) Write(ctx context.Context, id oid.ID, raw object.Raw) error {
	const op = "loose.Write"
	if ok, err := b.Exists(ctx, id); err != nil {
		return err
	} else if ok {
		return dberr.New(dberr.Conflict, op, fmt.Errorf("object %s already present", id))
	}

	framed, err := object.Frame(raw.Kind, raw.Bytes)
	if err != nil {
		return err
	}

	destDir := path.Join(b.dir, id.String()[:2])
	if err := b.fs.MkdirAll(destDir, 0o755); err != nil {
		return dberr.New(dberr.IOError, op, err)
	}

	tmpName := fmt.Sprintf("tmp_%016x", rand.Uint64())
	tmp, err := b.fs.TempFile(b.dir, tmpName)
	if err != nil {
		return dberr.New(dberr.IOError, op, err)
	}
	tmpPath := tmp.Name()

	zw := zlib.NewWriter(tmp)
	if _, err := zw.Write(framed); err != nil {
		tmp.Close()
		b.fs.Remove(tmpPath)
		return dberr.New(dberr.IOError, op, err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		b.fs.Remove(tmpPath)
		return dberr.New(dberr.IOError, op, err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmpPath)
		return dberr.New(dberr.IOError, op, err)
	}

	dest := b.path(id)
	if err := b.fs.Rename(tmpPath, dest); err != nil {
		b.fs.Remove(tmpPath)
		return dberr.New(dberr.IOError, op, err)
	}
	log.WithField("id", id.String()).Debug("loose: wrote object")
	return nil
}

func (b *Backend) Close() error { return nil }
