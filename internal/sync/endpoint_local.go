package sync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/peersync/peersync/internal/utils"
)

// LocalAccessor serves a directory on the local filesystem.
type LocalAccessor struct {
	id   string
	root string
}

func NewLocalAccessor(id, root string) (*LocalAccessor, error) {
	resolved, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(resolved); err != nil {
		return nil, &IOError{Endpoint: id, Op: "mkdir", Path: resolved, Err: err}
	}
	return &LocalAccessor{id: id, root: resolved}, nil
}

func (a *LocalAccessor) ID() string {
	return a.id
}

func (a *LocalAccessor) Root() string {
	return a.root
}

func (a *LocalAccessor) List(ctx context.Context) (map[string]*Entry, error) {
	entries := make(map[string]*Entry)

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &IOError{Endpoint: a.id, Op: "list", Path: path, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == a.root {
			return nil
		}

		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return err
		}
		relPath, err := NormalizeRelPath(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			// entry vanished between list and stat
			return nil
		}

		entry := &Entry{Path: relPath, Mtime: info.ModTime()}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			entry.Kind = KindSymlink
			target, err := os.Readlink(path)
			if err != nil {
				return &IOError{Endpoint: a.id, Op: "readlink", Path: relPath, Err: err}
			}
			entry.LinkTarget = target
		case d.IsDir():
			entry.Kind = KindDir
		default:
			entry.Kind = KindFile
			entry.Size = info.Size()
		}
		entries[relPath] = entry
		return nil
	}

	if err := filepath.WalkDir(a.root, walkFn); err != nil {
		return nil, err
	}
	return entries, nil
}

func (a *LocalAccessor) Read(_ context.Context, relPath string) ([]byte, error) {
	data, err := os.ReadFile(a.abs(relPath))
	if err != nil {
		return nil, &IOError{Endpoint: a.id, Op: "read", Path: relPath, Err: err}
	}
	return data, nil
}

func (a *LocalAccessor) Write(_ context.Context, relPath string, data []byte, mtime time.Time) error {
	target := a.abs(relPath)
	if err := utils.EnsureParent(target); err != nil {
		return &IOError{Endpoint: a.id, Op: "write", Path: relPath, Err: err}
	}
	// a file replacing a directory or symlink needs the old entry gone first
	if info, err := os.Lstat(target); err == nil && (info.IsDir() || info.Mode()&fs.ModeSymlink != 0) {
		if err := os.RemoveAll(target); err != nil {
			return &IOError{Endpoint: a.id, Op: "write", Path: relPath, Err: err}
		}
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return &IOError{Endpoint: a.id, Op: "write", Path: relPath, Err: err}
	}
	if err := os.Chtimes(target, mtime, mtime); err != nil {
		return &IOError{Endpoint: a.id, Op: "write", Path: relPath, Err: err}
	}
	return nil
}

func (a *LocalAccessor) Delete(_ context.Context, relPath string) error {
	target := a.abs(relPath)
	if _, err := os.Lstat(target); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(target); err != nil {
		return &IOError{Endpoint: a.id, Op: "delete", Path: relPath, Err: err}
	}
	return nil
}

func (a *LocalAccessor) Mkdir(_ context.Context, relPath string) error {
	if err := os.MkdirAll(a.abs(relPath), 0o755); err != nil {
		return &IOError{Endpoint: a.id, Op: "mkdir", Path: relPath, Err: err}
	}
	return nil
}

func (a *LocalAccessor) Symlink(_ context.Context, target, relPath string) error {
	link := a.abs(relPath)
	if err := utils.EnsureParent(link); err != nil {
		return &IOError{Endpoint: a.id, Op: "symlink", Path: relPath, Err: err}
	}
	if err := os.RemoveAll(link); err != nil {
		return &IOError{Endpoint: a.id, Op: "symlink", Path: relPath, Err: err}
	}
	if err := os.Symlink(target, link); err != nil {
		return &IOError{Endpoint: a.id, Op: "symlink", Path: relPath, Err: err}
	}
	return nil
}

func (a *LocalAccessor) abs(relPath string) string {
	return filepath.Join(a.root, filepath.FromSlash(relPath))
}
