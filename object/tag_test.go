package object

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embervcs/odb/oid"
)

func TestTagMarshalUnmarshalRoundTrip(t *testing.T) {
	target := oid.Of([]byte("target"))
	sig := Signature{Name: "Tagger", Email: "tagger@example.com", Seconds: 1356355981, TZOffsetMinutes: -420}
	tag := &Tag{
		Object:    target,
		Kind:      KindCommit,
		Name:      "test",
		Tagger:    sig,
		HasTagger: true,
		Message:   "a test tag\n",
	}

	payload, err := tag.MarshalPayload()
	require.NoError(t, err)

	var got Tag
	require.NoError(t, got.UnmarshalPayload(payload))
	require.Equal(t, *tag, got)
}

func TestTagWithoutTagger(t *testing.T) {
	tag := &Tag{Object: oid.Of([]byte("x")), Kind: KindCommit, Name: "lightweight", Message: "m\n"}
	payload, err := tag.MarshalPayload()
	require.NoError(t, err)

	var got Tag
	require.NoError(t, got.UnmarshalPayload(payload))
	require.False(t, got.HasTagger)
	require.Equal(t, *tag, got)
}

func TestTagRewriteChangesDigest(t *testing.T) {
	// Rewriting a tag's name changes its digest but preserves every
	// other field when re-parsed.
	original := &Tag{
		Object:    oid.Of([]byte("target")),
		Kind:      KindTag,
		Name:      "test",
		Tagger:    Signature{Name: "T", Email: "t@example.com", Seconds: 1, TZOffsetMinutes: 0},
		HasTagger: true,
		Message:   "m\n",
	}
	originalID, err := Hash(original)
	require.NoError(t, err)

	rewritten := *original
	rewritten.Name = "This is a different tag LOL"
	rewrittenID, err := Hash(&rewritten)
	require.NoError(t, err)

	require.NotEqual(t, originalID, rewrittenID)

	payload, err := rewritten.MarshalPayload()
	require.NoError(t, err)
	var got Tag
	require.NoError(t, got.UnmarshalPayload(payload))
	require.Equal(t, "This is a different tag LOL", got.Name)
}

func TestTagUnmarshalRejectsMissingName(t *testing.T) {
	data := []byte("object " + oid.Of([]byte("x")).String() + "\ntype commit\n\nm")
	var tag Tag
	require.Error(t, tag.UnmarshalPayload(data))
}

func TestTagUnmarshalRejectsBadType(t *testing.T) {
	data := []byte("object " + oid.Of([]byte("x")).String() + "\ntype bogus\ntag t\n\nm")
	var tag Tag
	require.Error(t, tag.UnmarshalPayload(data))
}
