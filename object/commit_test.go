package object

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embervcs/odb/oid"
)

func TestCommitMarshalUnmarshalRoundTrip(t *testing.T) {
	treeID, err := oid.FromHex("504094bacb51b85f453161900acc5989f2f38680")
	require.NoError(t, err)

	sig := Signature{Name: "A U Thor", Email: "author@example.com", Seconds: 1356355981, TZOffsetMinutes: 60}
	c := &Commit{
		Tree:      treeID,
		Author:    sig,
		Committer: sig,
		Message:   "Hello!\n",
	}

	payload, err := c.MarshalPayload()
	require.NoError(t, err)

	var got Commit
	require.NoError(t, got.UnmarshalPayload(payload))
	require.Equal(t, *c, got)
}

func TestCommitMultipleParentsOrderPreserved(t *testing.T) {
	tree := oid.Of([]byte("tree"))
	p1 := oid.Of([]byte("p1"))
	p2 := oid.Of([]byte("p2"))
	sig := Signature{Name: "A", Email: "a@example.com", Seconds: 1, TZOffsetMinutes: 0}
	c := &Commit{Tree: tree, Parents: []oid.ID{p1, p2}, Author: sig, Committer: sig, Message: "m"}

	payload, err := c.MarshalPayload()
	require.NoError(t, err)

	var got Commit
	require.NoError(t, got.UnmarshalPayload(payload))
	require.Equal(t, []oid.ID{p1, p2}, got.Parents)
}

func TestCommitRejectsMissingTree(t *testing.T) {
	c := &Commit{}
	_, err := c.MarshalPayload()
	require.Error(t, err)
}

func TestCommitUnmarshalRejectsMissingCommitter(t *testing.T) {
	data := []byte("tree " + oid.Of([]byte("t")).String() + "\n" +
		"author A <a@example.com> 1 +0000\n\nmsg")
	var c Commit
	require.Error(t, c.UnmarshalPayload(data))
}

func TestCommitHashDeterministic(t *testing.T) {
	tree := oid.Of([]byte("tree-chain"))
	sig := Signature{Name: "Tagger", Email: "tagger@example.com", Seconds: 1234567890, TZOffsetMinutes: 0}
	c := &Commit{Tree: tree, Author: sig, Committer: sig, Message: "initial\n"}
	id, err := Hash(c)
	require.NoError(t, err)
	id2, err := Hash(c)
	require.NoError(t, err)
	require.Equal(t, id, id2)
}
