package object

import (
	"bytes"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/oid"
)

// Commit is a signed label for a Tree, representing a snapshot of the
// repository state at a point in time, with zero or more parent
// commits.
type Commit struct {
	Tree      oid.ID
	Parents   []oid.ID
	Author    Signature
	Committer Signature
	// Encoding names the message's character encoding, e.g. "ISO-8859-1".
	// It is empty when the header was omitted, which real Git treats
	// as UTF-8.
	Encoding string
	Message  string
}

// header grammar:
//
//	tree <40-hex>\n                  -- exactly once, first
//	parent <40-hex>\n                -- zero or more, order preserved
//	author <name> <email> <t> <tz>\n -- exactly once
//	committer <...>\n                -- exactly once, same grammar
//	encoding <label>\n               -- optional
//	\n
//	<message>                        -- raw bytes to EOF

func (c *Commit) MarshalPayload() ([]byte, error) {
	if c.Tree.IsZero() {
		return nil, dberr.New(dberr.InvalidInput, "object.Commit.Marshal", xerrors.Errorf("missing tree"))
	}
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(buf, "parent %s\n", p)
	}
	fmt.Fprintf(buf, "author %s\n", c.Author)
	fmt.Fprintf(buf, "committer %s\n", c.Committer)
	if c.Encoding != "" {
		fmt.Fprintf(buf, "encoding %s\n", c.Encoding)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes(), nil
}

func (c *Commit) UnmarshalPayload(data []byte) error {
	const op = "object.Commit.Unmarshal"
	hs := newHeaderScanner(data)
	var haveTree, haveAuthor, haveCommitter bool
	for {
		key, rest, ok := hs.next()
		if !ok {
			break
		}
		switch key {
		case "tree":
			if haveTree {
				return dberr.New(dberr.Corruption, op, xerrors.Errorf("duplicate tree line"))
			}
			id, err := oid.FromHex(string(rest))
			if err != nil {
				return dberr.New(dberr.Corruption, op, err)
			}
			c.Tree = id
			haveTree = true
		case "parent":
			id, err := oid.FromHex(string(rest))
			if err != nil {
				return dberr.New(dberr.Corruption, op, err)
			}
			c.Parents = append(c.Parents, id)
		case "author":
			sig, err := parseSignature(rest)
			if err != nil {
				return err
			}
			c.Author = sig
			haveAuthor = true
		case "committer":
			sig, err := parseSignature(rest)
			if err != nil {
				return err
			}
			c.Committer = sig
			haveCommitter = true
		case "encoding":
			c.Encoding = string(rest)
		default:
			// Unrecognized header lines (e.g. "gpgsig", "mergetag")
			// are tolerated and dropped: this layer doesn't model them,
			// and rejecting them would make ordinary upstream
			// commits unreadable. They are lost on re-serialization,
			// same as the rest of the header grammar not covered.
		}
	}
	if !haveTree {
		return dberr.New(dberr.Corruption, op, xerrors.Errorf("missing tree line"))
	}
	if !haveAuthor {
		return dberr.New(dberr.Corruption, op, xerrors.Errorf("missing author line"))
	}
	if !haveCommitter {
		return dberr.New(dberr.Corruption, op, xerrors.Errorf("missing committer line"))
	}
	c.Message = string(hs.message())
	return nil
}
