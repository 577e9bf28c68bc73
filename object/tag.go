package object

import (
	"bytes"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/oid"
)

// Tag is a named, optionally signed label for another object, usually
// a Commit. Unlike Commit, the tagger line is optional: a
// "lightweight" annotated tag has no signature at all.
type Tag struct {
	Object oid.ID
	Kind   Kind
	Name   string
	// Tagger is the zero Signature when the tag carries no tagger line.
	Tagger    Signature
	HasTagger bool
	Message   string
}

// header grammar:
//
//	object <40-hex>\n
//	type <commit|tree|blob|tag>\n
//	tag <name>\n
//	tagger <name> <email> <t> <tz>\n   -- optional
//	\n
//	<message>

func (t *Tag) MarshalPayload() ([]byte, error) {
	const op = "object.Tag.Marshal"
	if t.Object.IsZero() {
		return nil, dberr.New(dberr.InvalidInput, op, xerrors.Errorf("missing object"))
	}
	if !t.Kind.Valid() {
		return nil, dberr.New(dberr.InvalidInput, op, xerrors.Errorf("missing or invalid type"))
	}
	if t.Name == "" {
		return nil, dberr.New(dberr.InvalidInput, op, xerrors.Errorf("missing tag name"))
	}
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "object %s\n", t.Object)
	fmt.Fprintf(buf, "type %s\n", t.Kind)
	fmt.Fprintf(buf, "tag %s\n", t.Name)
	if t.HasTagger {
		fmt.Fprintf(buf, "tagger %s\n", t.Tagger)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes(), nil
}

func (t *Tag) UnmarshalPayload(data []byte) error {
	const op = "object.Tag.Unmarshal"
	hs := newHeaderScanner(data)
	var haveObject, haveType, haveName bool
	for {
		key, rest, ok := hs.next()
		if !ok {
			break
		}
		switch key {
		case "object":
			if haveObject {
				return dberr.New(dberr.Corruption, op, xerrors.Errorf("duplicate object line"))
			}
			id, err := oid.FromHex(string(rest))
			if err != nil {
				return dberr.New(dberr.Corruption, op, err)
			}
			t.Object = id
			haveObject = true
		case "type":
			kind, err := KindFromString(string(rest))
			if err != nil {
				return dberr.New(dberr.Corruption, op, err)
			}
			t.Kind = kind
			haveType = true
		case "tag":
			t.Name = string(rest)
			haveName = true
		case "tagger":
			sig, err := parseSignature(rest)
			if err != nil {
				return err
			}
			t.Tagger = sig
			t.HasTagger = true
		default:
			// Unrecognized lines tolerated, same rationale as Commit.
		}
	}
	if !haveObject {
		return dberr.New(dberr.Corruption, op, xerrors.Errorf("missing object line"))
	}
	if !haveType {
		return dberr.New(dberr.Corruption, op, xerrors.Errorf("missing type line"))
	}
	if !haveName {
		return dberr.New(dberr.Corruption, op, xerrors.Errorf("missing tag line"))
	}
	t.Message = string(hs.message())
	return nil
}
