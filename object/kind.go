package object

import "fmt"

// Kind enumerates the standard Git object types. The two delta kinds
// exist only inside packfile streams and are never surfaced outside
// package backend/pack.
type Kind byte

const (
	KindUnknown Kind = iota
	KindCommit
	KindTree
	KindBlob
	KindTag
)

// kindOffsetDelta and kindReferenceDelta are the pack entry type codes
// for the two ways a packed delta entry can reference its base.
// backend/pack decodes them with its own constants of the same values.
const (
	kindOffsetDelta    Kind = 6
	kindReferenceDelta Kind = 7
)

// String returns "commit", "tree", "blob" or "tag". It returns an
// empty string for any other Kind, including the two delta kinds.
func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	case KindTag:
		return "tag"
	default:
		return ""
	}
}

// KindFromString parses the four standard type names. It returns a
// *TypeError wrapping the input string if it is not recognized.
func KindFromString(s string) (Kind, error) {
	switch s {
	case "commit":
		return KindCommit, nil
	case "tree":
		return KindTree, nil
	case "blob":
		return KindBlob, nil
	case "tag":
		return KindTag, nil
	default:
		return KindUnknown, &TypeError{Value: s}
	}
}

// Valid reports whether k is one of the four standard kinds.
func (k Kind) Valid() bool {
	return k.String() != ""
}

// TypeError reports an invalid or unexpected Git object type. Value
// holds either a Kind or the object/string that triggered the error.
type TypeError struct {
	Value interface{}
}

func (e *TypeError) Error() string {
	if k, ok := e.Value.(Kind); ok {
		return fmt.Sprintf("object: bad kind code %#x", byte(k))
	}
	return fmt.Sprintf("object: unexpected object type: %v", e.Value)
}
