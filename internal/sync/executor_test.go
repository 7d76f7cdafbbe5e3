package sync

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecutorAppliesActions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	accA := newMemAccessor("a")
	accB := newMemAccessor("b")
	accA.put("doc.md", "hello\n", now)
	accB.put("stale.md", "bye\n", now)
	accB.dirs["olddir"] = true

	src, err := accA.List(context.Background())
	require.NoError(t, err)

	plan := &Plan{Actions: []Action{
		{Type: ActionDeleteOnB, Path: "olddir"},
		{Type: ActionDeleteOnB, Path: "stale.md"},
		{Type: ActionMkdirOnB, Path: "newdir"},
		{Type: ActionCopyAToB, Path: "doc.md", Source: src["doc.md"]},
	}}

	outcomes := NewExecutor(accA, accB, discardLogger()).Apply(context.Background(), plan)
	for i, out := range outcomes {
		assert.NoError(t, out.Err, "action %d", i)
	}

	assert.Equal(t, "hello\n", string(accB.files["doc.md"]))
	assert.True(t, accB.mtime["doc.md"].Equal(now), "destination mtime pinned to source")
	assert.True(t, accB.dirs["newdir"])
	assert.NotContains(t, accB.files, "stale.md")
	assert.NotContains(t, accB.dirs, "olddir")
	assert.Equal(t, int64(6), outcomes[3].Bytes)
	assert.Equal(t, "hello\n", string(outcomes[3].Content))
}

func TestExecutorMergeWritesBothSides(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	accA := newMemAccessor("a")
	accB := newMemAccessor("b")
	merged := []byte("merged\n")

	plan := &Plan{Actions: []Action{{
		Type:   ActionMergeBoth,
		Path:   "notes.md",
		Merged: merged,
		Source: &Entry{Path: "notes.md", Kind: KindFile, Size: int64(len(merged)), Mtime: at},
	}}}

	outcomes := NewExecutor(accA, accB, discardLogger()).Apply(context.Background(), plan)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, merged, accA.files["notes.md"])
	assert.Equal(t, merged, accB.files["notes.md"])
	assert.True(t, accA.mtime["notes.md"].Equal(accB.mtime["notes.md"]))
}

func TestExecutorCopiesSymlinks(t *testing.T) {
	accA := newMemAccessor("a")
	accB := newMemAccessor("b")
	link := &Entry{Path: "ln", Kind: KindSymlink, LinkTarget: "doc.md"}

	plan := &Plan{Actions: []Action{{Type: ActionCopyAToB, Path: "ln", Source: link}}}
	outcomes := NewExecutor(accA, accB, discardLogger()).Apply(context.Background(), plan)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "doc.md", accB.links["ln"])
}

func TestExecutorTransportFailureIsolatesEndpoint(t *testing.T) {
	now := time.Now()
	accA := newMemAccessor("a")
	accB := newMemAccessor("b")
	accA.put("one.md", "1\n", now)
	accA.put("two.md", "2\n", now)
	accB.down = true

	src, err := accA.List(context.Background())
	require.NoError(t, err)

	plan := &Plan{Actions: []Action{
		{Type: ActionDeleteOnA, Path: "gone.md"},
		{Type: ActionCopyAToB, Path: "one.md", Source: src["one.md"]},
		{Type: ActionCopyAToB, Path: "two.md", Source: src["two.md"]},
	}}

	outcomes := NewExecutor(accA, accB, discardLogger()).Apply(context.Background(), plan)

	// the healthy endpoint's action still ran
	assert.NoError(t, outcomes[0].Err)
	// both transfers failed, at most one of them by actually hitting the wire
	assert.Error(t, outcomes[1].Err)
	assert.Error(t, outcomes[2].Err)
	assert.Empty(t, accB.files)
}

func TestExecutorIOFailureIsIsolatedPerAction(t *testing.T) {
	now := time.Now()
	accA := newMemAccessor("a")
	accB := newMemAccessor("b")
	accA.put("ok.md", "fine\n", now)
	accA.put("bad.md", "broken\n", now)
	accA.readErr["bad.md"] = &IOError{Endpoint: "a", Op: "read", Path: "bad.md", Err: context.DeadlineExceeded}

	src, err := accA.List(context.Background())
	require.NoError(t, err)

	plan := &Plan{Actions: []Action{
		{Type: ActionCopyAToB, Path: "bad.md", Source: src["bad.md"]},
		{Type: ActionCopyAToB, Path: "ok.md", Source: src["ok.md"]},
	}}

	outcomes := NewExecutor(accA, accB, discardLogger()).Apply(context.Background(), plan)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, "fine\n", string(accB.files["ok.md"]))
}
