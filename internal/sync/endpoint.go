package sync

import (
	"context"
	"time"
)

// Accessor is the uniform capability surface over one endpoint's directory
// tree. Implementations normalize every path they return; callers never see
// host-specific separators. The planner and merge engine only ever talk to
// this interface and never branch on endpoint type.
type Accessor interface {
	// ID is the endpoint's profile-declared name.
	ID() string

	// List returns metadata for every entry under the root, keyed by
	// normalized relative path. Content fingerprints are not filled here.
	List(ctx context.Context) (map[string]*Entry, error)

	// Read returns the full content of a file.
	Read(ctx context.Context, relPath string) ([]byte, error)

	// Write stores content at relPath, creating parent directories as
	// needed, and pins the file's mtime so both sides agree afterwards.
	Write(ctx context.Context, relPath string, data []byte, mtime time.Time) error

	// Delete removes a file, symlink or directory tree.
	Delete(ctx context.Context, relPath string) error

	// Mkdir creates a directory (and parents).
	Mkdir(ctx context.Context, relPath string) error

	// Symlink recreates a symbolic link pointing at target, replacing
	// whatever is at relPath.
	Symlink(ctx context.Context, target, relPath string) error
}
