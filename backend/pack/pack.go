// Package pack implements read-only access to Git pack files: fan-out
// index lookup (both .idx v1 and v2), variable-length entry headers,
// and offset/reference delta resolution.
package pack

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/embervcs/odb/backend"
	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/internal/gitfs"
	"github.com/embervcs/odb/object"
	"github.com/embervcs/odb/oid"
)

var packMagic = [4]byte{'P', 'A', 'C', 'K'}

// maxDeltaDepth bounds offset/reference delta resolution recursion. A
// chain deeper than this, or one that cycles back on itself, fails
// with Corruption rather than recursing indefinitely.
const maxDeltaDepth = 64

// kind codes used inside a pack entry header, in addition to the four
// standard object.Kind values.
const (
	kindOffsetDelta    = 6
	kindReferenceDelta = 7
)

// Backend is a read-only pack/index pair. Write always fails with
// Unsupported.
type Backend struct {
	name string
	idx  *Index
	file readerAtCloser
	size int64
}

type readerAtCloser interface {
	io.ReaderAt
	io.Closer
}

var _ backend.Backend = (*Backend)(nil)

// Open parses the index at idxPath fully into memory and opens the
// pack file at packPath for random-access reads of individual entries.
func Open(fs gitfs.FS, packPath, idxPath string) (*Backend, error) {
	const op = "pack.Open"
	idxFile, err := fs.Open(idxPath)
	if err != nil {
		return nil, dberr.New(dberr.IOError, op, err)
	}
	idxData, err := gitfs.ReadFull(idxFile)
	if err != nil {
		return nil, dberr.New(dberr.IOError, op, err)
	}
	idx, err := ParseIndex(idxData)
	if err != nil {
		return nil, err
	}

	f, err := fs.Open(packPath)
	if err != nil {
		return nil, dberr.New(dberr.IOError, op, err)
	}
	ra, ok := f.(readerAtCloser)
	if !ok {
		return nil, dberr.New(dberr.Unsupported, op, fmt.Errorf("pack filesystem does not support random access reads"))
	}
	info, err := fs.Stat(packPath)
	if err != nil {
		return nil, dberr.New(dberr.IOError, op, err)
	}

	var hdr [8]byte
	if _, err := ra.ReadAt(hdr[:], 0); err != nil {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("reading pack header: %w", err))
	}
	if !bytes.Equal(hdr[:4], packMagic[:]) {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("bad pack signature"))
	}
	version := be32(hdr[4:8])
	_ = version // accepted without being load-bearing: entries are self-describing

	return &Backend{name: packPath, idx: idx, file: ra, size: info.Size()}, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (b *Backend) Name() string { return "pack:" + b.name }

func (b *Backend) Exists(ctx context.Context, id oid.ID) (bool, error) {
	_, ok := b.idx.Find(id)
	return ok, nil
}

func (b *Backend) ReadHeader(ctx context.Context, id oid.ID) (backend.Header, error) {
	raw, err := b.Read(ctx, id)
	if err != nil {
		return backend.Header{}, err
	}
	return backend.Header{Kind: raw.Kind, Length: len(raw.Bytes)}, nil
}

func (b *Backend) Read(ctx context.Context, id oid.ID) (object.Raw, error) {
	const op = "pack.Read"
	offset, ok := b.idx.Find(id)
	if !ok {
		return object.Raw{}, dberr.New(dberr.NotFound, op, fmt.Errorf("object %s not in pack %s", id, b.name))
	}
	kind, payload, err := b.resolve(offset, 0)
	if err != nil {
		return object.Raw{}, err
	}
	return object.Raw{Kind: kind, Bytes: payload}, nil
}

// resolve reads the entry at offset, recursively applying delta chains
// until a base object of a real kind is reached.
func (b *Backend) resolve(offset int64, depth int) (object.Kind, []byte, error) {
	const op = "pack.resolve"
	if depth > maxDeltaDepth {
		return 0, nil, dberr.New(dberr.Corruption, op, fmt.Errorf("delta chain exceeds max depth %d", maxDeltaDepth))
	}

	sr := io.NewSectionReader(b.file, offset, b.size-offset)
	br := newByteReader(sr)

	typ, size, err := readEntryHeader(br)
	if err != nil {
		return 0, nil, dberr.New(dberr.Corruption, op, err)
	}

	switch typ {
	case kindOffsetDelta:
		negOfs, err := readBase128MBE(br)
		if err != nil {
			return 0, nil, dberr.New(dberr.Corruption, op, err)
		}
		baseOffset := offset - int64(negOfs)
		if baseOffset <= 0 || baseOffset >= offset {
			return 0, nil, dberr.New(dberr.Corruption, op, fmt.Errorf("offset-delta base %d out of range", baseOffset))
		}
		baseKind, baseData, err := b.resolve(baseOffset, depth+1)
		if err != nil {
			return 0, nil, err
		}
		deltaData, err := inflateAt(br, int(size))
		if err != nil {
			return 0, nil, err
		}
		result, err := applyDelta(baseData, deltaData)
		if err != nil {
			return 0, nil, err
		}
		return baseKind, result, nil

	case kindReferenceDelta:
		var baseID oid.ID
		if _, err := io.ReadFull(br, baseID[:]); err != nil {
			return 0, nil, dberr.New(dberr.Corruption, op, err)
		}
		baseOffset, ok := b.idx.Find(baseID)
		if !ok {
			return 0, nil, dberr.New(dberr.Corruption, op, fmt.Errorf("reference-delta base %s not in pack", baseID))
		}
		baseKind, baseData, err := b.resolve(int64(baseOffset), depth+1)
		if err != nil {
			return 0, nil, err
		}
		deltaData, err := inflateAt(br, int(size))
		if err != nil {
			return 0, nil, err
		}
		result, err := applyDelta(baseData, deltaData)
		if err != nil {
			return 0, nil, err
		}
		return baseKind, result, nil

	default:
		kind := object.Kind(typ)
		if !kind.Valid() {
			return 0, nil, dberr.New(dberr.Corruption, op, fmt.Errorf("pack entry has unknown kind code %d", typ))
		}
		data, err := inflateAt(br, int(size))
		if err != nil {
			return 0, nil, err
		}
		return kind, data, nil
	}
}

// inflateAt zlib-inflates exactly size bytes of payload from r, which
// is already positioned at the start of the deflate stream.
func inflateAt(r io.Reader, size int) ([]byte, error) {
	const op = "pack.inflate"
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("bad deflate stream: %w", err))
	}
	defer zr.Close()
	data := make([]byte, size)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("inflate failed: %w", err))
	}
	return data, nil
}

// readEntryHeader decodes a pack entry's variable-length header: the
// first byte carries a continuation bit, a 3-bit type, and the low 4
// bits of the size; each continuation byte contributes 7 more bits.
func readEntryHeader(r io.ByteReader) (typ int, size uint64, err error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	typ = int(c >> 4 & 0x7)
	size = uint64(c & 0x0F)
	shift := uint(4)
	for c&0x80 != 0 {
		c, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= uint64(c&0x7F) << shift
		shift += 7
	}
	return typ, size, nil
}

func (b *Backend) Writable() bool { return false }

func (b *Backend) Write(ctx context.Context, id oid.ID, raw object.Raw) error {
	return dberr.New(dberr.Unsupported, "pack.Write", fmt.Errorf("pack backend is read-only"))
}

func (b *Backend) Close() error {
	return b.file.Close()
}
