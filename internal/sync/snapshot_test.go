package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotHashesNewFiles(t *testing.T) {
	acc := newMemAccessor("a")
	acc.put("f.md", "content\n", time.Now())
	acc.dirs["sub"] = true

	snap, err := mustSnapshotter(t).Snapshot(context.Background(), acc, NewIgnoreList(nil), nil)
	require.NoError(t, err)

	require.Contains(t, snap, "f.md")
	assert.NotEmpty(t, snap["f.md"].Hash)
	// directories carry no fingerprint
	assert.Empty(t, snap["sub"].Hash)
}

func TestSnapshotReusesBaselineFingerprint(t *testing.T) {
	now := time.Now()
	acc := newMemAccessor("a")
	acc.put("f.md", "content\n", now)
	// fail the read so any re-hash attempt is visible
	acc.readErr["f.md"] = assert.AnError

	baseline := map[string]*Entry{"f.md": fileEntry("f.md", 8, now, "stored-hash")}
	snap, err := mustSnapshotter(t).Snapshot(context.Background(), acc, NewIgnoreList(nil), baseline)
	require.NoError(t, err)
	assert.Equal(t, "stored-hash", snap["f.md"].Hash)
}

func TestSnapshotRehashesWhenFingerprintMoves(t *testing.T) {
	now := time.Now()
	acc := newMemAccessor("a")
	acc.put("f.md", "longer content\n", now)

	// stale baseline: size differs, stored hash must not be trusted
	baseline := map[string]*Entry{"f.md": fileEntry("f.md", 8, now, "stale-hash")}
	snap, err := mustSnapshotter(t).Snapshot(context.Background(), acc, NewIgnoreList(nil), baseline)
	require.NoError(t, err)
	assert.NotEqual(t, "stale-hash", snap["f.md"].Hash)
	assert.NotEmpty(t, snap["f.md"].Hash)
}

func TestSnapshotDropsIgnoredPaths(t *testing.T) {
	acc := newMemAccessor("a")
	acc.put("keep.md", "keep\n", time.Now())
	acc.put("junk.tmp", "junk\n", time.Now())
	acc.put("build/out.md", "out\n", time.Now())

	ignore := NewIgnoreList([]string{"*.tmp", "build/"})
	snap, err := mustSnapshotter(t).Snapshot(context.Background(), acc, ignore, nil)
	require.NoError(t, err)

	assert.Contains(t, snap, "keep.md")
	assert.NotContains(t, snap, "junk.tmp")
	assert.NotContains(t, snap, "build/out.md")
}

func TestSnapshotReadErrorLeavesHashEmpty(t *testing.T) {
	acc := newMemAccessor("a")
	acc.put("flaky.md", "data\n", time.Now())
	acc.readErr["flaky.md"] = assert.AnError

	snap, err := mustSnapshotter(t).Snapshot(context.Background(), acc, NewIgnoreList(nil), nil)
	require.NoError(t, err)
	// path stays visible; the next run re-examines it
	require.Contains(t, snap, "flaky.md")
	assert.Empty(t, snap["flaky.md"].Hash)
}

func TestSnapshotTransportErrorAborts(t *testing.T) {
	acc := newMemAccessor("a")
	acc.down = true

	_, err := mustSnapshotter(t).Snapshot(context.Background(), acc, NewIgnoreList(nil), nil)
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func mustSnapshotter(t *testing.T) *Snapshotter {
	t.Helper()
	s, err := NewSnapshotter()
	require.NoError(t, err)
	return s
}
