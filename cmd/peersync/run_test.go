package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersync/peersync/internal/sync"
)

func TestRunDryRunManualConflictFails(t *testing.T) {
	root := t.TempDir()
	dirA, dirB := t.TempDir(), t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "profiles"), 0o755))
	doc := fmt.Sprintf(`
[profile]
name = "clash"

[endpoints.alpha]
type = "local"
path = %q

[endpoints.beta]
type = "local"
path = %q

[conflict]
policy = "manual"
`, dirA, dirB)
	require.NoError(t, os.WriteFile(filepath.Join(root, "profiles", "clash.toml"), []byte(doc), 0o644))

	// created differently on both sides with no prior baseline
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "same.md"), []byte("from alpha\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "same.md"), []byte("a longer take from beta\n"), 0o644))

	rootCmd.SetArgs([]string{"--config-dir", root, "run", "clash", "--dry-run"})
	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manual resolution")

	// planning only: neither side was touched
	data, err := os.ReadFile(filepath.Join(dirA, "same.md"))
	require.NoError(t, err)
	assert.Equal(t, "from alpha\n", string(data))
}

func TestDescribeAction(t *testing.T) {
	assert.Equal(t, "copy  laptop -> nas", describeAction(sync.Action{Type: sync.ActionCopyAToB}, "laptop", "nas"))
	assert.Equal(t, "copy  nas -> laptop", describeAction(sync.Action{Type: sync.ActionCopyBToA}, "laptop", "nas"))
	assert.Equal(t, "del   on nas", describeAction(sync.Action{Type: sync.ActionDeleteOnB}, "laptop", "nas"))
	assert.Equal(t, "mkdir on laptop", describeAction(sync.Action{Type: sync.ActionMkdirOnA}, "laptop", "nas"))
	assert.Equal(t, "merge both sides", describeAction(sync.Action{Type: sync.ActionMergeBoth}, "laptop", "nas"))
}

func TestCompletionInstallPath(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish"} {
		path, err := completionInstallPath(shell)
		assert.NoError(t, err)
		assert.NotEmpty(t, path)
	}
	_, err := completionInstallPath("powershell")
	assert.Error(t, err)
}
