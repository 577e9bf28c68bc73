// Package object implements the Git object model: the raw
// {kind, length, bytes} framing every object shares on the wire and on
// disk, and the four typed object variants (blob, tree, commit, tag)
// parsed and reserialized from it.
package object

import (
	"bytes"
	"fmt"

	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/oid"
)

// Interface is implemented by the four standard Git object types. An
// object knows how to serialize itself to and parse itself from its
// canonical payload (the bytes that follow the "<kind> <len>\x00"
// header, not including the header itself — see Raw for the framed
// form).
//
// External types are not expected to satisfy this interface
// meaningfully: it exists for the four concrete types below and is
// exported for documentation purposes.
type Interface interface {
	// MarshalPayload returns the canonical payload bytes (no header).
	MarshalPayload() ([]byte, error)
	// UnmarshalPayload parses the canonical payload bytes (no
	// header) into the receiver, which must be its zero value.
	UnmarshalPayload(data []byte) error
}

// Raw is the {kind, length, bytes} form a backend deals in: bytes are
// the payload only, framing is implicit in Kind and len(Bytes).
type Raw struct {
	Kind  Kind
	Bytes []byte
}

// Header returns the canonical "<kind> <len>\x00" header for a raw
// object of the given kind and payload length.
func Header(kind Kind, length int) ([]byte, error) {
	if !kind.Valid() {
		return nil, &TypeError{Value: kind}
	}
	return []byte(fmt.Sprintf("%s %d\x00", kind, length)), nil
}

// Frame prepends the canonical header to payload, returning the bytes
// whose hash is the object's ID.
func Frame(kind Kind, payload []byte) ([]byte, error) {
	h, err := Header(kind, len(payload))
	if err != nil {
		return nil, err
	}
	return append(h, payload...), nil
}

// Digest computes the ID of a raw object: the hash of its framed
// bytes. It streams the header and payload through oid.Hasher so the
// two never need to be concatenated into one buffer.
func Digest(kind Kind, payload []byte) (oid.ID, error) {
	h, err := Header(kind, len(payload))
	if err != nil {
		return oid.Zero, err
	}
	hasher := oid.NewHasher()
	hasher.Write(h)
	hasher.Write(payload)
	return hasher.Sum(), nil
}

// ParseHeader splits a framed byte slice into its declared kind and
// the payload bytes that follow the header, verifying that the
// header's declared length matches the payload's actual length.
func ParseHeader(data []byte) (kind Kind, payload []byte, err error) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return KindUnknown, nil, dberr.New(dberr.Corruption, "object.ParseHeader", fmt.Errorf("no header terminator"))
	}
	head := data[:i]
	sp := bytes.IndexByte(head, ' ')
	if sp < 0 {
		return KindUnknown, nil, dberr.New(dberr.Corruption, "object.ParseHeader", fmt.Errorf("malformed header %q", head))
	}
	kind, err = KindFromString(string(head[:sp]))
	if err != nil {
		return KindUnknown, nil, dberr.New(dberr.Corruption, "object.ParseHeader", err)
	}
	var length int
	if _, err := fmt.Sscanf(string(head[sp+1:]), "%d", &length); err != nil {
		return KindUnknown, nil, dberr.New(dberr.Corruption, "object.ParseHeader", fmt.Errorf("malformed length %q", head[sp+1:]))
	}
	payload = data[i+1:]
	if length != len(payload) {
		return KindUnknown, nil, dberr.New(dberr.Corruption, "object.ParseHeader", fmt.Errorf("declared length %d, got %d", length, len(payload)))
	}
	return kind, payload, nil
}

// New allocates a zero-valued object of the given kind.
func New(kind Kind) (Interface, error) {
	switch kind {
	case KindCommit:
		return new(Commit), nil
	case KindTree:
		return new(Tree), nil
	case KindBlob:
		return new(Blob), nil
	case KindTag:
		return new(Tag), nil
	default:
		return nil, &TypeError{Value: kind}
	}
}

// KindOf returns the Kind of a typed object, or KindUnknown if obj is
// not one of the four standard types.
func KindOf(obj Interface) Kind {
	switch obj.(type) {
	case *Commit:
		return KindCommit
	case *Tree:
		return KindTree
	case *Blob:
		return KindBlob
	case *Tag:
		return KindTag
	default:
		return KindUnknown
	}
}

// Marshal returns the canonical framed bytes and ID of obj.
func Marshal(obj Interface) ([]byte, oid.ID, error) {
	kind := KindOf(obj)
	if kind == KindUnknown {
		return nil, oid.Zero, &TypeError{Value: obj}
	}
	payload, err := obj.MarshalPayload()
	if err != nil {
		return nil, oid.Zero, err
	}
	framed, err := Frame(kind, payload)
	if err != nil {
		return nil, oid.Zero, err
	}
	id, err := Digest(kind, payload)
	return framed, id, err
}

// Unmarshal decodes a typed object from its framed canonical bytes,
// verifying that the header names one of the four standard kinds.
func Unmarshal(data []byte) (Interface, error) {
	kind, payload, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	obj, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := obj.UnmarshalPayload(payload); err != nil {
		return nil, err
	}
	return obj, nil
}

// Hash computes the ID of obj without keeping its serialized bytes
// around.
func Hash(obj Interface) (oid.ID, error) {
	_, id, err := Marshal(obj)
	return id, err
}
