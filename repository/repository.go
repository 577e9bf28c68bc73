// Package repository aggregates the pieces a caller actually opens: a
// directory layout, the ODB (loose backend plus every pack discovered
// under objects/pack/), the object cache, and a minimal ref seam.
// Reference resolution beyond flat-name lookup, the working tree, and
// the index are intentionally out of scope — they are external
// collaborators this package only provides a seam for.
package repository

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/apex/log"
	"gopkg.in/ini.v1"

	"github.com/embervcs/odb/backend"
	"github.com/embervcs/odb/backend/loose"
	"github.com/embervcs/odb/backend/pack"
	"github.com/embervcs/odb/cache"
	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/internal/gitfs"
	"github.com/embervcs/odb/object"
	"github.com/embervcs/odb/oid"
)

// Repository is the aggregate root: paths, the ODB, the object cache,
// and config. The zero value is not usable; construct with Open.
type Repository struct {
	fs gitfs.FS

	PathRepository string // the ".git" directory, or the bare repository root
	PathObjects    string
	PathIndex      string
	PathWorkdir    string // empty for bare repositories
	IsBare         bool

	config *ini.File

	odb   *backend.ODB
	cache *cache.Cache
}

// Open discovers a repository's layout rooted at dir: whether it is
// bare (no working tree; dir itself holds objects/refs/HEAD) or not
// (dir/.git holds them), loads config, and builds the standard backend
// stack (loose first, then every discovered pack).
func Open(fs gitfs.FS, dir string) (*Repository, error) {
	const op = "repository.Open"

	repoPath := path.Join(dir, ".git")
	bare := false
	if _, err := fs.Stat(repoPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, dberr.New(dberr.IOError, op, err)
		}
		// No .git subdirectory: treat dir itself as a bare repository
		// if it looks like one (has an objects directory), matching
		// how real Git distinguishes the two layouts.
		if _, err := fs.Stat(path.Join(dir, "objects")); err != nil {
			return nil, dberr.New(dberr.InvalidInput, op, fmt.Errorf("%s is not a git repository", dir))
		}
		repoPath = dir
		bare = true
	}

	r := &Repository{
		fs:             fs,
		PathRepository: repoPath,
		PathObjects:    path.Join(repoPath, "objects"),
		PathIndex:      path.Join(repoPath, "index"),
		IsBare:         bare,
	}
	if !bare {
		r.PathWorkdir = dir
	}

	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	r.config = cfg
	if cfg.Section("core").HasKey("bare") {
		r.IsBare = cfg.Section("core").Key("bare").MustBool(r.IsBare)
	}

	odb, err := r.buildODB()
	if err != nil {
		return nil, err
	}
	r.odb = odb
	r.cache = cache.New(0)
	return r, nil
}

func (r *Repository) loadConfig() (*ini.File, error) {
	const op = "repository.loadConfig"
	f, err := r.fs.Open(path.Join(r.PathRepository, "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return ini.Empty(), nil
		}
		return nil, dberr.New(dberr.IOError, op, err)
	}
	defer f.Close()
	data, err := gitfs.ReadFull(f)
	if err != nil {
		return nil, dberr.New(dberr.IOError, op, err)
	}
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("malformed config: %w", err))
	}
	return cfg, nil
}

// buildODB assembles the standard backend stack: the loose backend
// (writable) first, then a read-only pack backend for each pack/index
// pair found under objects/pack/.
func (r *Repository) buildODB() (*backend.ODB, error) {
	const op = "repository.buildODB"
	backends := []backend.Backend{loose.New(r.fs, r.PathObjects)}

	packDir := path.Join(r.PathObjects, "pack")
	entries, err := r.fs.ReadDir(packDir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return nil, dberr.New(dberr.IOError, op, err)
		}
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".pack") {
			continue
		}
		base := strings.TrimSuffix(name, ".pack")
		idxPath := path.Join(packDir, base+".idx")
		if _, err := r.fs.Stat(idxPath); err != nil {
			log.WithField("pack", name).Warn("repository: pack has no matching index, skipping")
			continue
		}
		pb, err := pack.Open(r.fs, path.Join(packDir, name), idxPath)
		if err != nil {
			return nil, err
		}
		backends = append(backends, pb)
	}
	return backend.New(backends...)
}

// GetObject looks up id in the cache, falling back to the ODB and
// parsing into a typed object on a miss. Repeated lookups of the same
// digest return handles to the same underlying instance.
func (r *Repository) GetObject(ctx context.Context, id oid.ID) (*cache.Handle, error) {
	if h, ok := r.cache.Lookup(id); ok {
		return h, nil
	}
	raw, err := r.odb.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	obj, err := object.New(raw.Kind)
	if err != nil {
		return nil, err
	}
	if err := obj.UnmarshalPayload(raw.Bytes); err != nil {
		return nil, err
	}
	return r.cache.Insert(id, obj), nil
}

// PutObject serializes obj, writes it through the ODB, and interns the
// result in the cache under its digest.
func (r *Repository) PutObject(ctx context.Context, obj object.Interface) (oid.ID, error) {
	framed, id, err := object.Marshal(obj)
	if err != nil {
		return oid.Zero, err
	}
	kind, payload, err := object.ParseHeader(framed)
	if err != nil {
		return oid.Zero, err
	}
	gotID, err := r.odb.Write(ctx, object.Raw{Kind: kind, Bytes: payload})
	if err != nil {
		return oid.Zero, err
	}
	r.cache.Insert(gotID, obj).Release()
	return gotID, nil
}

// GetRef reads the object ID a flat ref name currently points to, by
// reading its file directly under the repository's refs tree (or HEAD
// itself, if name is "HEAD"). A symbolic ref ("ref: <name>") is
// followed by calling GetRef on its target, so a chain of symbolic refs
// is followed to its end. It does not implement refname disambiguation
// (refs/heads/<name> vs refs/tags/<name> vs ...): callers pass a fully
// qualified name.
func (r *Repository) GetRef(name string) (oid.ID, error) {
	const op = "repository.GetRef"
	if name != "HEAD" && !isValidRefName(name) {
		return oid.Zero, dberr.New(dberr.InvalidInput, op, fmt.Errorf("invalid ref name %q", name))
	}
	f, err := r.fs.Open(path.Join(r.PathRepository, name))
	if err != nil {
		if os.IsNotExist(err) {
			return oid.Zero, dberr.New(dberr.NotFound, op, fmt.Errorf("ref %q not found", name))
		}
		return oid.Zero, dberr.New(dberr.IOError, op, err)
	}
	data, err := gitfs.ReadFull(f)
	if err != nil {
		return oid.Zero, dberr.New(dberr.IOError, op, err)
	}
	line := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(line, "ref: "); ok {
		return r.GetRef(strings.TrimSpace(target))
	}
	id, err := oid.FromHex(line)
	if err != nil {
		return oid.Zero, dberr.New(dberr.Corruption, op, err)
	}
	return id, nil
}

// SetRef writes name to point directly at id, overwriting any
// existing content (including a symbolic ref). This write is not
// atomic via rename; a caller that needs crash-safe ref updates
// should front this with a real ref-store collaborator.
func (r *Repository) SetRef(name string, id oid.ID) error {
	const op = "repository.SetRef"
	if name != "HEAD" && !isValidRefName(name) {
		return dberr.New(dberr.InvalidInput, op, fmt.Errorf("invalid ref name %q", name))
	}
	full := path.Join(r.PathRepository, name)
	if err := r.fs.MkdirAll(path.Dir(full), 0o755); err != nil {
		return dberr.New(dberr.IOError, op, err)
	}
	f, err := r.fs.Create(full)
	if err != nil {
		return dberr.New(dberr.IOError, op, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n", id); err != nil {
		return dberr.New(dberr.IOError, op, err)
	}
	return nil
}

// Close releases the ODB's backends (closing pack file handles). The
// cache has no resources of its own beyond Go-managed memory.
func (r *Repository) Close() error {
	return r.odb.Close()
}

// isValidRefName reports whether name follows the git-check-ref-format
// rules closely enough to be safely joined onto a repository path:
// rooted under "refs/", no ".." or "/." components, no control
// characters or the handful of shell/glob-special characters real Git
// also rejects in ref names.
func isValidRefName(name string) bool {
	if !strings.HasPrefix(name, "refs/") {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/.") {
		return false
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") || strings.HasSuffix(name, ".lock") {
		return false
	}
	if strings.Contains(name, "//") || strings.Contains(name, "@{") || strings.Contains(name, `\`) {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7F || r == ' ' || r == '~' || r == '^' || r == ':' || r == '?' || r == '[' {
			return false
		}
	}
	return true
}
