package loose_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/embervcs/odb/backend/loose"
	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/internal/gitfs"
	"github.com/embervcs/odb/object"
	"github.com/embervcs/odb/oid"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	fs := gitfs.Memory()
	b := loose.New(fs, "objects")
	ctx := context.Background()

	raw := object.Raw{Kind: object.KindBlob, Bytes: []byte("abc")}
	id, err := object.Digest(raw.Kind, raw.Bytes)
	require.NoError(t, err)

	require.NoError(t, b.Write(ctx, id, raw))

	ok, err := b.Exists(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := b.Read(ctx, id)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	require.Equal(t, "f2ba8f84ab5c1bce84a7b441cb1959cfc7093b7f", id.String())
}

func TestWriteIsIdempotentOnDuplicateContent(t *testing.T) {
	fs := gitfs.Memory()
	b := loose.New(fs, "objects")
	ctx := context.Background()

	raw := object.Raw{Kind: object.KindBlob, Bytes: []byte("dup")}
	id, err := object.Digest(raw.Kind, raw.Bytes)
	require.NoError(t, err)

	require.NoError(t, b.Write(ctx, id, raw))

	// A second write of the same content leaves the stored object as it
	// is and reports Conflict, which backend.ODB treats as success.
	err = b.Write(ctx, id, raw)
	require.Error(t, err)
	kind, ok := dberr.Of(err)
	require.True(t, ok)
	require.Equal(t, dberr.Conflict, kind)

	got, err := b.Read(ctx, id)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestReadMissingObjectIsNotFound(t *testing.T) {
	fs := gitfs.Memory()
	b := loose.New(fs, "objects")

	_, err := b.Read(context.Background(), oid.Zero)
	require.Error(t, err)
}

// A loose backend does not itself verify digests on read — that check
// lives in backend.ODB.Read, which can compare against every backend
// uniformly. This confirms a bit-flipped object still decodes (so the
// corruption is only caught one layer up) rather than failing inside
// the loose backend itself.
func TestReadOfBitFlippedObjectDecodesToDifferentBytes(t *testing.T) {
	fs := gitfs.Memory()
	b := loose.New(fs, "objects")
	ctx := context.Background()

	raw := object.Raw{Kind: object.KindBlob, Bytes: []byte("abc")}
	id, err := object.Digest(raw.Kind, raw.Bytes)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, id, raw))

	objPath := "objects/" + id.Path()
	f, err := fs.Open(objPath)
	require.NoError(t, err)
	zr, err := zlib.NewReader(f)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(zr)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	framed := buf.Bytes()
	framed[len(framed)-1] ^= 0xFF

	corruptFile, err := fs.Create(objPath)
	require.NoError(t, err)
	zw := zlib.NewWriter(corruptFile)
	_, err = zw.Write(framed)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, corruptFile.Close())

	got, err := b.Read(ctx, id)
	require.NoError(t, err)
	reDigest, err := object.Digest(got.Kind, got.Bytes)
	require.NoError(t, err)
	require.NotEqual(t, id, reDigest)
}
