// Package locator resolves user-supplied paths against a workload's
// declared mounts and performs file operations on the resolved host
// paths. A resolved path can never escape the union of allowed roots.
package locator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/workload"
)

// Inspector is the slice of the workload driver the locator needs.
type Inspector interface {
	Inspect(ctx context.Context, id string) (*workload.Detail, error)
}

type Locator struct {
	Inspector Inspector
	// EnableRootFS additionally allows the workload's merged overlay
	// root as a path root.
	EnableRootFS bool
}

// Resolved is the outcome of a path resolution.
type Resolved struct {
	// Path is the absolute, symlink-collapsed host path.
	Path string
	// Roots are the canonical allowed roots the path is contained in.
	Roots []string
}

// Entry is one directory listing row.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"isDir"`
	ModTime time.Time `json:"modTime"`
}

// Resolve maps (workload, user path) to a host path. The user path is
// interpreted relative to the primary mount's destination; the fully
// resolved candidate must stay inside an allowed root or the resolution
// fails with path_traversal.
func (l *Locator) Resolve(ctx context.Context, id, userPath string) (*Resolved, error) {
	detail, err := l.Inspector.Inspect(ctx, id)
	if err != nil {
		return nil, err
	}

	var primary *workload.Mount
	roots := make([]string, 0, len(detail.Mounts)+1)
	for i, m := range detail.Mounts {
		if m.Source == "" || m.Destination == "" {
			continue
		}
		if primary == nil {
			primary = &detail.Mounts[i]
		}
		root, err := canonical(m.Source)
		if err != nil {
			return nil, common.Wrap(common.KindInfrastructure, err, "canonicalize mount %s", m.Source)
		}
		roots = append(roots, root)
	}
	if l.EnableRootFS && detail.RootFS != "" {
		if root, err := canonical(detail.RootFS); err == nil {
			roots = append(roots, root)
		}
	}
	if primary == nil || len(roots) == 0 {
		return nil, common.New(common.KindNotFound, "workload %s declares no usable mounts", id)
	}

	// Join the raw user path first and normalize the joined candidate,
	// so ".." segments walk out of the mount and fail containment
	// instead of being collapsed away beforehand.
	candidate := filepath.Join(primary.Source, userPath)
	resolved, err := resolveSymlinks(candidate)
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "resolve %s", candidate)
	}

	for _, root := range roots {
		if within(root, resolved) {
			return &Resolved{Path: resolved, Roots: roots}, nil
		}
	}
	return nil, common.New(common.KindPathTraversal, "path %q escapes the workload mounts", userPath)
}

// canonical resolves a root through its own symlinks so containment is
// compared on real paths.
func canonical(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(path), nil
		}
		return "", err
	}
	return resolved, nil
}

// resolveSymlinks collapses symlinks on the deepest existing ancestor of
// path and rejoins the non-existing remainder, so targets that do not
// exist yet (writes) still resolve deterministically.
func resolveSymlinks(path string) (string, error) {
	path = filepath.Clean(path)

	existing := path
	var remainder []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			if len(remainder) == 0 {
				return resolved, nil
			}
			parts := append([]string{resolved}, remainder...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return path, nil
		}
		remainder = append([]string{filepath.Base(existing)}, remainder...)
		existing = parent
	}
}

// within reports whether candidate equals root or lives under it.
func within(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// List returns directory entries for the resolved path.
func (l *Locator) List(ctx context.Context, id, userPath string) ([]Entry, error) {
	res, err := l.Resolve(ctx, id, userPath)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(res.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.Wrap(common.KindNotFound, err, "list %s", userPath)
		}
		return nil, common.Wrap(common.KindInfrastructure, err, "list %s", userPath)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		entry := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil {
			entry.Size = info.Size()
			entry.ModTime = info.ModTime()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Open opens the resolved path for streamed reading. The caller closes
// the file.
func (l *Locator) Open(ctx context.Context, id, userPath string) (*os.File, os.FileInfo, error) {
	res, err := l.Resolve(ctx, id, userPath)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(res.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, common.Wrap(common.KindNotFound, err, "open %s", userPath)
		}
		return nil, nil, common.Wrap(common.KindInfrastructure, err, "open %s", userPath)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, common.Wrap(common.KindInfrastructure, err, "stat %s", userPath)
	}
	return f, info, nil
}

// Write creates or replaces the resolved path atomically: the content
// lands in a sibling temp file which is renamed over the target.
func (l *Locator) Write(ctx context.Context, id, userPath string, content io.Reader) error {
	res, err := l.Resolve(ctx, id, userPath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(res.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return common.Wrap(common.KindInfrastructure, err, "create parent for %s", userPath)
	}

	tmp, err := os.CreateTemp(dir, ".modix-write-*")
	if err != nil {
		return common.Wrap(common.KindInfrastructure, err, "temp file for %s", userPath)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return common.Wrap(common.KindInfrastructure, err, "write %s", userPath)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return common.Wrap(common.KindInfrastructure, err, "flush %s", userPath)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return common.Wrap(common.KindInfrastructure, err, "chmod %s", userPath)
	}
	if err := os.Rename(tmpPath, res.Path); err != nil {
		_ = os.Remove(tmpPath)
		return common.Wrap(common.KindInfrastructure, err, "replace %s", userPath)
	}
	return nil
}

// Delete removes the resolved path. Removing an allowed root itself is
// refused; directories require the recursive flag unless empty.
func (l *Locator) Delete(ctx context.Context, id, userPath string, recursive bool) error {
	res, err := l.Resolve(ctx, id, userPath)
	if err != nil {
		return err
	}

	for _, root := range res.Roots {
		if res.Path == root {
			return common.New(common.KindInvalidArgument, "refusing to delete the workload root")
		}
	}

	info, err := os.Lstat(res.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return common.Wrap(common.KindNotFound, err, "delete %s", userPath)
		}
		return common.Wrap(common.KindInfrastructure, err, "delete %s", userPath)
	}

	if info.IsDir() {
		if recursive {
			if err := os.RemoveAll(res.Path); err != nil {
				return common.Wrap(common.KindInfrastructure, err, "delete %s", userPath)
			}
			return nil
		}
		entries, err := os.ReadDir(res.Path)
		if err != nil {
			return common.Wrap(common.KindInfrastructure, err, "delete %s", userPath)
		}
		if len(entries) > 0 {
			return common.New(common.KindConflict, "directory %s is not empty", userPath)
		}
	}

	if err := os.Remove(res.Path); err != nil {
		return common.Wrap(common.KindInfrastructure, err, "delete %s", userPath)
	}
	return nil
}
