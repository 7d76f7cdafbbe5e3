package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestJournalBaselineRoundTrip(t *testing.T) {
	journal := testJournal(t)
	now := time.Now().Truncate(time.Second)

	entries := map[string]*Entry{
		"docs/a.md": fileEntry("docs/a.md", 10, now, "h1"),
		"docs":      {Path: "docs", Kind: KindDir, Mtime: now},
		"ln":        {Path: "ln", Kind: KindSymlink, LinkTarget: "docs/a.md", Mtime: now},
	}
	err := journal.ReplaceBaseline("p", [2]string{"a", "b"}, [2]map[string]*Entry{entries, nil}, nil, nil)
	require.NoError(t, err)

	got, err := journal.Baseline("p", "a")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(10), got["docs/a.md"].Size)
	assert.Equal(t, "h1", got["docs/a.md"].Hash)
	assert.True(t, got["docs/a.md"].Mtime.Equal(now))
	assert.Equal(t, KindDir, got["docs"].Kind)
	assert.Equal(t, "docs/a.md", got["ln"].LinkTarget)

	empty, err := journal.Baseline("p", "b")
	require.NoError(t, err)
	assert.Empty(t, empty)

	// a replace fully supersedes the previous baseline
	err = journal.ReplaceBaseline("p", [2]string{"a", "b"}, [2]map[string]*Entry{{
		"docs/a.md": fileEntry("docs/a.md", 12, now, "h2"),
	}, nil}, nil, nil)
	require.NoError(t, err)
	got, err = journal.Baseline("p", "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h2", got["docs/a.md"].Hash)
}

func TestJournalProfilesAreIsolated(t *testing.T) {
	journal := testJournal(t)
	now := time.Now()

	require.NoError(t, journal.ReplaceBaseline("one", [2]string{"a", "b"}, [2]map[string]*Entry{{
		"f.md": fileEntry("f.md", 1, now, "h"),
	}, nil}, nil, nil))
	require.NoError(t, journal.ReplaceBaseline("two", [2]string{"a", "b"}, [2]map[string]*Entry{nil, nil}, nil, nil))

	count, err := journal.BaselineCount("one", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := journal.Baseline("two", "a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJournalBlobRetentionAndPruning(t *testing.T) {
	journal := testJournal(t)
	now := time.Now()

	content := []byte("base version\n")
	entries := map[string]*Entry{"f.md": fileEntry("f.md", int64(len(content)), now, "hash1")}
	err := journal.ReplaceBaseline("p", [2]string{"a", "b"}, [2]map[string]*Entry{entries, entries}, nil, map[string][]byte{"hash1": content})
	require.NoError(t, err)

	got, err := journal.Blob("hash1")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// unknown hashes are a miss, not an error
	got, err = journal.Blob("nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	// once no baseline references the hash, the blob is pruned
	next := map[string]*Entry{"f.md": fileEntry("f.md", 5, now, "hash2")}
	err = journal.ReplaceBaseline("p", [2]string{"a", "b"}, [2]map[string]*Entry{next, next}, nil, map[string][]byte{"hash2": []byte("next\n")})
	require.NoError(t, err)

	got, err = journal.Blob("hash1")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = journal.Blob("hash2")
	require.NoError(t, err)
	assert.Equal(t, []byte("next\n"), got)
}

func TestJournalConflictsReplacedPerRun(t *testing.T) {
	journal := testJournal(t)

	recs := []ConflictRecord{{Path: "f.bin", Reason: ReasonBothModified, Policy: "manual", Resolution: ResolutionManual}}
	require.NoError(t, journal.ReplaceBaseline("p", [2]string{"a", "b"}, [2]map[string]*Entry{nil, nil}, recs, nil))

	stored, err := journal.Conflicts("p")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "f.bin", stored[0].Path)
	assert.Equal(t, ReasonBothModified, stored[0].Reason)
	assert.WithinDuration(t, time.Now(), stored[0].DetectedAt, time.Minute)

	// a clean run clears them
	require.NoError(t, journal.ReplaceBaseline("p", [2]string{"a", "b"}, [2]map[string]*Entry{nil, nil}, nil, nil))
	stored, err = journal.Conflicts("p")
	require.NoError(t, err)
	assert.Empty(t, stored)
}
