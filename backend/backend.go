// Package backend defines the capability interface every object store
// implements (loose files, packs, or anything else) and the ODB that
// composes an ordered list of them behind one read/write surface.
package backend

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/object"
	"github.com/embervcs/odb/oid"
)

// Header is the {kind, length} pair ReadHeader returns. The loose and
// pack backends in this module compute it from a full Read of the
// object; neither decodes the header alone.
type Header struct {
	Kind   object.Kind
	Length int
}

// Backend is the capability set a store advertises. Writable is queried
// by the ODB when it needs to pick the single write target; a
// read-only store (the pack backend) reports false and its Write is
// never called.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Exists reports whether id is present, without reading it.
	Exists(ctx context.Context, id oid.ID) (bool, error)
	// ReadHeader decodes just the kind and length of id.
	ReadHeader(ctx context.Context, id oid.ID) (Header, error)
	// Read returns the full raw object for id.
	Read(ctx context.Context, id oid.ID) (object.Raw, error)
	// Writable reports whether Write is implemented.
	Writable() bool
	// Write stores a raw object under the digest the ODB computed for
	// it. Backends that are not Writable return an Unsupported error.
	Write(ctx context.Context, id oid.ID, raw object.Raw) error
	// Close releases any resources (open files, mmaps) the backend
	// holds.
	Close() error
}

// ODB composes an ordered list of backends into one read/write object
// store. Reads try each backend in order and return the first hit;
// writes go only to the single writable backend.
type ODB struct {
	backends []Backend
	writable Backend
}

// ErrMultipleWritable is returned by New when more than one backend in
// the list reports Writable() true. The core requires exactly one
// write target so that a write's destination is never ambiguous.
var ErrMultipleWritable = fmt.Errorf("backend: more than one writable backend registered")

// New builds an ODB from backends, tried in the given order for reads.
// It is an error for more than one backend to be writable; zero
// writable backends is allowed (a read-only ODB, e.g. over packs only).
func New(backends ...Backend) (*ODB, error) {
	odb := &ODB{backends: backends}
	for _, b := range backends {
		if !b.Writable() {
			continue
		}
		if odb.writable != nil {
			return nil, dberr.New(dberr.Conflict, "backend.New", ErrMultipleWritable)
		}
		odb.writable = b
	}
	return odb, nil
}

// Exists reports whether any backend has id, trying each in order and
// stopping at the first hit.
func (o *ODB) Exists(ctx context.Context, id oid.ID) (bool, error) {
	for _, b := range o.backends {
		ok, err := b.Exists(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ReadHeader tries each backend in order, returning the first
// successful header. NotFound at one backend is not surfaced until
// every backend has reported it.
func (o *ODB) ReadHeader(ctx context.Context, id oid.ID) (Header, error) {
	var last error
	for _, b := range o.backends {
		h, err := b.ReadHeader(ctx, id)
		if err == nil {
			return h, nil
		}
		if kind, ok := dberr.Of(err); ok && kind != dberr.NotFound {
			return Header{}, err
		}
		last = err
	}
	return Header{}, notFoundOrLast(id, last)
}

// Read tries each backend in order, returning the first successful raw
// object and verifying it hashes to id.
func (o *ODB) Read(ctx context.Context, id oid.ID) (object.Raw, error) {
	var last error
	for _, b := range o.backends {
		raw, err := b.Read(ctx, id)
		if err == nil {
			got, derr := object.Digest(raw.Kind, raw.Bytes)
			if derr != nil {
				return object.Raw{}, derr
			}
			if got != id {
				return object.Raw{}, dberr.New(dberr.Corruption, "backend.ODB.Read",
					fmt.Errorf("backend %s: object %s hashes to %s", b.Name(), id, got))
			}
			return raw, nil
		}
		if kind, ok := dberr.Of(err); ok && kind != dberr.NotFound {
			return object.Raw{}, err
		}
		last = err
	}
	return object.Raw{}, notFoundOrLast(id, last)
}

// ReadConcurrent issues Read against every backend concurrently, waits
// for all of them to finish, and returns the success of the earliest
// backend in registration order, as Read would. Probes still running
// when another backend succeeds are not cancelled. It exists for
// repository stacks with many pack backends, where probing them
// serially would be the dominant cost of a cold lookup.
func (o *ODB) ReadConcurrent(ctx context.Context, id oid.ID) (object.Raw, error) {
	if len(o.backends) <= 1 {
		return o.Read(ctx, id)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		raw object.Raw
		err error
	}
	results := make([]result, len(o.backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range o.backends {
		i, b := i, b
		g.Go(func() error {
			raw, err := b.Read(gctx, id)
			results[i] = result{raw, err}
			return nil
		})
	}
	_ = g.Wait()

	var last error
	for i, b := range o.backends {
		r := results[i]
		if r.err == nil {
			got, derr := object.Digest(r.raw.Kind, r.raw.Bytes)
			if derr != nil {
				return object.Raw{}, derr
			}
			if got != id {
				return object.Raw{}, dberr.New(dberr.Corruption, "backend.ODB.ReadConcurrent",
					fmt.Errorf("backend %s: object %s hashes to %s", b.Name(), id, got))
			}
			return r.raw, nil
		}
		if kind, ok := dberr.Of(r.err); ok && kind != dberr.NotFound {
			return object.Raw{}, r.err
		}
		last = r.err
	}
	return object.Raw{}, notFoundOrLast(id, last)
}

// Write computes the digest of raw (kind, bytes) and stores it in the
// writable backend, returning the digest. If no backend is writable,
// it fails with Unsupported.
func (o *ODB) Write(ctx context.Context, raw object.Raw) (oid.ID, error) {
	if o.writable == nil {
		return oid.Zero, dberr.New(dberr.Unsupported, "backend.ODB.Write", fmt.Errorf("no writable backend registered"))
	}
	id, err := object.Digest(raw.Kind, raw.Bytes)
	if err != nil {
		return oid.Zero, err
	}
	if ok, err := o.writable.Exists(ctx, id); err == nil && ok {
		log.WithField("id", id.String()).Debug("backend: write skipped, content already present")
		return id, nil
	}
	if err := o.writable.Write(ctx, id, raw); err != nil {
		if kind, ok := dberr.Of(err); ok && kind == dberr.Conflict {
			return id, nil
		}
		return oid.Zero, err
	}
	return id, nil
}

// Close frees every backend in reverse registration order, matching
// the order their dependencies (e.g. a pack backend's mmap of a file
// the loose backend's directory handle might also reference) were
// acquired in.
func (o *ODB) Close() error {
	var firstErr error
	for i := len(o.backends) - 1; i >= 0; i-- {
		if err := o.backends[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func notFoundOrLast(id oid.ID, last error) error {
	if last == nil {
		return dberr.New(dberr.NotFound, "backend.ODB", fmt.Errorf("object %s not found in any backend", id))
	}
	if kind, ok := dberr.Of(last); ok && kind == dberr.NotFound {
		return dberr.New(dberr.NotFound, "backend.ODB", fmt.Errorf("object %s not found in any backend", id))
	}
	return last
}
