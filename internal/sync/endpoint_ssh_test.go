package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListing(t *testing.T) {
	out := []byte(`docs|d|4096|1767225600.0000000000|
docs/a.md|f|42|1767225601.5000000000|
ln|l|8|1767225602.0000000000|docs/a.md
weird.sock|s|0|1767225603.0000000000|
`)
	entries, err := parseListing(out)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, KindDir, entries["docs"].Kind)

	file := entries["docs/a.md"]
	assert.Equal(t, KindFile, file.Kind)
	assert.Equal(t, int64(42), file.Size)
	assert.Equal(t, int64(1767225601), file.Mtime.Unix())
	// fractional epoch seconds survive
	assert.Equal(t, 500*time.Millisecond, time.Duration(file.Mtime.Nanosecond()))

	assert.Equal(t, "docs/a.md", entries["ln"].LinkTarget)
	// sockets and other special files are skipped
	assert.NotContains(t, entries, "weird.sock")
}

func TestParseListingSkipsMalformedLines(t *testing.T) {
	out := []byte("broken line without pipes\ndocs/ok.md|f|1|1767225600.0|\n\n")
	entries, err := parseListing(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "docs/ok.md")
}

func TestParseListingRejectsEscapingPaths(t *testing.T) {
	out := []byte("../escape|f|1|1767225600.0|\n/abs/path|f|1|1767225600.0|\n")
	entries, err := parseListing(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSSHAccessorAbs(t *testing.T) {
	acc := NewSSHAccessor("remote", "/srv/data/", nil)
	assert.Equal(t, "/srv/data/docs/a.md", acc.abs("docs/a.md"))
	assert.Equal(t, "/srv/data", acc.abs("."))
}
