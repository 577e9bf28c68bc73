// Package oid implements the content identifier used throughout the
// object database: a 20-byte digest, its hexadecimal and path forms,
// and the streaming hash used to derive it from an object's canonical
// bytes.
package oid

import (
	"encoding/hex"
	"fmt"
	"hash"
	"sort"

	"github.com/pjbgf/sha1cd"
)

// Size is the length in bytes of an ID.
const Size = 20

// An ID names an object by the hash of its canonical serialized form.
type ID [Size]byte

// Zero is used to designate a nonexistent object (e.g. the "old" side
// of a ref creation, or the "new" side of a ref deletion).
var Zero ID

// IsZero reports whether id is the all-zero ID.
func (id ID) IsZero() bool {
	return id == Zero
}

// String returns the ID as a lowercase 40-digit hexadecimal string.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Path returns the on-disk loose-object path for id, relative to an
// objects directory: the first two hex digits, a slash, and the
// remaining 38.
func (id ID) Path() string {
	s := id.String()
	return s[:2] + "/" + s[2:]
}

// Compare returns -1, 0 or +1 as id is byte-lexicographically less
// than, equal to, or greater than other.
func (id ID) Compare(other ID) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether id sorts before other. It is provided for use
// with sort.Slice and friends.
func Less(id, other ID) bool { return id.Compare(other) < 0 }

// Sort sorts ids in ascending byte-lexicographic order.
func Sort(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })
}

// ErrMalformed is returned by FromHex when the input is not exactly 40
// hexadecimal characters.
type ErrMalformed struct {
	Input string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("oid: malformed hex id %q", e.Input)
}

// FromHex parses a 40-character lowercase (or uppercase) hexadecimal
// string into an ID.
func FromHex(s string) (ID, error) {
	var id ID
	if len(s) != 2*Size {
		return id, &ErrMalformed{s}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, &ErrMalformed{s}
	}
	copy(id[:], b)
	return id, nil
}

// New returns a hash.Hash producing 20-byte IDs. The core core uses
// this single seam for all digest computation, so that swapping the
// underlying algorithm (e.g. for collision detection) touches one
// place.
func New() hash.Hash {
	return sha1cd.New()
}

// Of hashes data directly and returns its ID. It is a convenience
// wrapper for callers that already have the full canonical bytes in
// memory.
func Of(data []byte) ID {
	var id ID
	sum := sha1cd.Sum(data)
	copy(id[:], sum[:])
	return id
}

// Hasher incrementally computes an ID over a header prefix followed by
// a payload, without requiring the two to be concatenated into a
// single buffer first. This supports the commit/tree serialization
// path, which can be large: the header is a handful of bytes
// ("<kind> <len>\x00") and the payload can be arbitrarily long.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a ready-to-use Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: New()}
}

// Write feeds more payload bytes into the hash. It never returns an
// error (hash.Hash.Write never does).
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the hash and returns the resulting ID. The Hasher must
// not be used afterwards.
func (h *Hasher) Sum() ID {
	var id ID
	copy(id[:], h.h.Sum(nil))
	return id
}
