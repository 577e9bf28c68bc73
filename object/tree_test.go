package object

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/embervcs/odb/oid"
)

func TestTreeSortOrderTrailingSlash(t *testing.T) {
	// "foo.c" must sort before the subtree "foo", since the canonical
	// order treats the subtree as "foo/" for comparison purposes and
	// '.' < '/'; compared as plain "foo", the subtree would sort first.
	entries := []TreeEntry{
		{Mode: ModeTree, Name: "foo", ID: oid.Of([]byte("t"))},
		{Mode: ModeBlob, Name: "foo.c", ID: oid.Of([]byte("b"))},
	}
	SortEntries(entries)
	require.Equal(t, "foo.c", entries[0].Name)
	require.Equal(t, "foo", entries[1].Name)
}

func TestTreeValidateRejectsUnsorted(t *testing.T) {
	tr := Tree{
		{Mode: ModeBlob, Name: "b", ID: oid.Of([]byte("1"))},
		{Mode: ModeBlob, Name: "a", ID: oid.Of([]byte("2"))},
	}
	require.Error(t, tr.Validate())
}

func TestTreeValidateRejectsDuplicateName(t *testing.T) {
	tr := Tree{
		{Mode: ModeBlob, Name: "a", ID: oid.Of([]byte("1"))},
		{Mode: ModeTree, Name: "a", ID: oid.Of([]byte("2"))},
	}
	require.Error(t, tr.Validate())
}

func TestTreeValidateRejectsIllegalName(t *testing.T) {
	tr := Tree{{Mode: ModeBlob, Name: "a/b", ID: oid.Of([]byte("1"))}}
	require.Error(t, tr.Validate())
}

func TestTreeMarshalUnmarshalRoundTrip(t *testing.T) {
	entries := []TreeEntry{
		{Mode: ModeBlob, Name: "a", ID: oid.Of([]byte("a"))},
		{Mode: ModeTree, Name: "b", ID: oid.Of([]byte("b"))},
	}
	SortEntries(entries)
	tr := Tree(entries)

	payload, err := tr.MarshalPayload()
	require.NoError(t, err)

	var got Tree
	require.NoError(t, got.UnmarshalPayload(payload))
	if diff := cmp.Diff(tr, got); diff != "" {
		t.Errorf("round trip changed tree entries (-want +got):\n%s", diff)
	}
}

func TestModeKind(t *testing.T) {
	require.Equal(t, KindTree, ModeTree.Kind())
	require.Equal(t, KindBlob, ModeBlob.Kind())
	require.Equal(t, KindBlob, ModeExec.Kind())
	require.Equal(t, KindBlob, ModeSymlink.Kind())
	require.Equal(t, KindCommit, ModeGitlink.Kind())
	require.Equal(t, KindUnknown, Mode(0).Kind())
}
