package sync

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"
)

// acquireFlock takes the profile lock the way a concurrent run would and
// returns its release func.
func acquireFlock(t *testing.T, path string) func() {
	t.Helper()
	lock := flock.New(path)
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	return func() { lock.Unlock() }
}

// memAccessor is an in-memory endpoint for planner and executor tests.
type memAccessor struct {
	id    string
	files map[string][]byte
	mtime map[string]time.Time
	dirs  map[string]bool
	links map[string]string

	readErr map[string]error
	down    bool // every call fails with a TransportError
}

func newMemAccessor(id string) *memAccessor {
	return &memAccessor{
		id:      id,
		files:   make(map[string][]byte),
		mtime:   make(map[string]time.Time),
		dirs:    make(map[string]bool),
		links:   make(map[string]string),
		readErr: make(map[string]error),
	}
}

func (m *memAccessor) put(path string, content string, mtime time.Time) {
	m.files[path] = []byte(content)
	m.mtime[path] = mtime
}

func (m *memAccessor) ID() string { return m.id }

func (m *memAccessor) transportCheck() error {
	if m.down {
		return &TransportError{Endpoint: m.id, Err: errors.New("host unreachable")}
	}
	return nil
}

func (m *memAccessor) List(ctx context.Context) (map[string]*Entry, error) {
	if err := m.transportCheck(); err != nil {
		return nil, err
	}
	out := make(map[string]*Entry)
	for path, data := range m.files {
		out[path] = &Entry{
			Path:  path,
			Kind:  KindFile,
			Size:  int64(len(data)),
			Mtime: m.mtime[path],
			Hash:  fmt.Sprintf("%x", md5.Sum(data)),
		}
	}
	for path := range m.dirs {
		out[path] = &Entry{Path: path, Kind: KindDir, Mtime: m.mtime[path]}
	}
	for path, target := range m.links {
		out[path] = &Entry{Path: path, Kind: KindSymlink, LinkTarget: target, Mtime: m.mtime[path]}
	}
	return out, nil
}

func (m *memAccessor) Read(ctx context.Context, relPath string) ([]byte, error) {
	if err := m.transportCheck(); err != nil {
		return nil, err
	}
	if err := m.readErr[relPath]; err != nil {
		return nil, err
	}
	data, ok := m.files[relPath]
	if !ok {
		return nil, &IOError{Endpoint: m.id, Op: "read", Path: relPath, Err: errors.New("not found")}
	}
	return data, nil
}

func (m *memAccessor) Write(ctx context.Context, relPath string, data []byte, mtime time.Time) error {
	if err := m.transportCheck(); err != nil {
		return err
	}
	delete(m.dirs, relPath)
	delete(m.links, relPath)
	m.files[relPath] = append([]byte(nil), data...)
	m.mtime[relPath] = mtime
	return nil
}

func (m *memAccessor) Delete(ctx context.Context, relPath string) error {
	if err := m.transportCheck(); err != nil {
		return err
	}
	delete(m.files, relPath)
	delete(m.dirs, relPath)
	delete(m.links, relPath)
	return nil
}

func (m *memAccessor) Mkdir(ctx context.Context, relPath string) error {
	if err := m.transportCheck(); err != nil {
		return err
	}
	m.dirs[relPath] = true
	return nil
}

func (m *memAccessor) Symlink(ctx context.Context, target, relPath string) error {
	if err := m.transportCheck(); err != nil {
		return err
	}
	delete(m.files, relPath)
	m.links[relPath] = target
	return nil
}
