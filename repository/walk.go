package repository

import (
	"context"
	"errors"

	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/object"
	"github.com/embervcs/odb/oid"
)

// GetCommit recursively dereferences id to a commit object (following
// a tag chain if necessary) and returns it along with the commit's own
// digest. If id cannot be dereferenced into a commit, it returns a
// *object.TypeError wrapping the object actually found.
func GetCommit(ctx context.Context, r *Repository, id oid.ID) (*object.Commit, oid.ID, error) {
	h, err := r.GetObject(ctx, id)
	if err != nil {
		return nil, id, err
	}
	defer h.Release()
	switch obj := h.Object().(type) {
	case *object.Commit:
		return obj, id, nil
	case *object.Tag:
		if obj.Kind != object.KindCommit && obj.Kind != object.KindTag {
			return nil, id, &object.TypeError{Value: obj}
		}
		return GetCommit(ctx, r, obj.Object)
	default:
		return nil, id, &object.TypeError{Value: obj}
	}
}

// GetTag recursively dereferences id to a tag object that itself
// points to a non-tag object (the end of a tag chain), returning it
// and its own digest.
func GetTag(ctx context.Context, r *Repository, id oid.ID) (*object.Tag, oid.ID, error) {
	h, err := r.GetObject(ctx, id)
	if err != nil {
		return nil, id, err
	}
	defer h.Release()
	tag, ok := h.Object().(*object.Tag)
	if !ok {
		return nil, id, &object.TypeError{Value: h.Object()}
	}
	if tag.Kind == object.KindTag {
		return GetTag(ctx, r, tag.Object)
	}
	return tag, id, nil
}

// GetTree recursively dereferences id to a tree object, following
// commit.Tree and a tag chain as needed.
func GetTree(ctx context.Context, r *Repository, id oid.ID) (object.Tree, oid.ID, error) {
	h, err := r.GetObject(ctx, id)
	if err != nil {
		return nil, id, err
	}
	defer h.Release()
	switch obj := h.Object().(type) {
	case *object.Tree:
		return *obj, id, nil
	case *object.Commit:
		return GetTree(ctx, r, obj.Tree)
	case *object.Tag:
		switch obj.Kind {
		case object.KindTree, object.KindCommit, object.KindTag:
			return GetTree(ctx, r, obj.Object)
		default:
			return nil, id, &object.TypeError{Value: obj}
		}
	default:
		return nil, id, &object.TypeError{Value: obj}
	}
}

// ErrNoSuchEntry is returned by GetPath when a path component is
// missing from a tree encountered during the walk.
var ErrNoSuchEntry = errors.New("repository: no such tree entry")

// GetPath retrieves the object at name within the tree hierarchy
// rooted at id (which may be a tree, commit, or tag). A name of "/"
// returns the root tree itself.
func GetPath(ctx context.Context, r *Repository, id oid.ID, name string) (object.Interface, oid.ID, error) {
	tree, treeID, err := GetTree(ctx, r, id)
	if err != nil {
		return nil, treeID, err
	}
	comps := splitPath(name)
	if len(comps) == 0 {
		return &tree, treeID, nil
	}

	var cur object.Interface = &tree
	var curID = treeID
	for _, comp := range comps {
		t, ok := cur.(*object.Tree)
		if !ok {
			return nil, curID, &object.TypeError{Value: cur}
		}
		var found *object.TreeEntry
		for i := range *t {
			if (*t)[i].Name == comp {
				found = &(*t)[i]
				break
			}
		}
		if found == nil {
			return nil, curID, dberr.New(dberr.NotFound, "repository.GetPath", ErrNoSuchEntry)
		}
		h, err := r.GetObject(ctx, found.ID)
		if err != nil {
			return nil, curID, err
		}
		cur = h.Object()
		curID = found.ID
		h.Release()
	}
	return cur, curID, nil
}

func splitPath(name string) []string {
	var comps []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '/' {
			if i > start {
				comps = append(comps, name[start:i])
			}
			start = i + 1
		}
	}
	return comps
}

// SkipObject, returned by a WalkFunc, tells Walk to skip the subgraph
// rooted at the object just visited.
var SkipObject = errors.New("repository: skip this object")

// WalkFunc is called once per object visited by Walk.
type WalkFunc func(id oid.ID, obj object.Interface, err error) error

// Walk traverses the object graph depth-first from the start digests
// (inclusive) up to the end digests (exclusive), calling walkFn for
// each object encountered. It stops at the first error walkFn returns,
// unless that error is SkipObject, in which case the subgraph rooted
// at the current object is not explored further.
func Walk(ctx context.Context, r *Repository, start, end []oid.ID, walkFn WalkFunc) error {
	visited := make(map[oid.ID]bool)
	for _, id := range end {
		visited[id] = true
	}
	pending := append([]oid.ID(nil), start...)
	for len(pending) > 0 {
		n := len(pending) - 1
		id := pending[n]
		pending = pending[:n]
		if visited[id] {
			continue
		}
		visited[id] = true

		h, err := r.GetObject(ctx, id)
		var obj object.Interface
		if err == nil {
			obj = h.Object()
		}
		werr := walkFn(id, obj, err)
		if h != nil {
			h.Release()
		}
		if werr == SkipObject {
			continue
		} else if werr != nil {
			return werr
		}

		switch obj := obj.(type) {
		case *object.Commit:
			pending = append(pending, obj.Tree)
			pending = append(pending, obj.Parents...)
		case *object.Tree:
			for _, e := range *obj {
				pending = append(pending, e.ID)
			}
		case *object.Tag:
			pending = append(pending, obj.Object)
		case *object.Blob:
			// holds no references
		}
	}
	return nil
}
