package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
[profile]
name = "laptop-nas"
description = "keep the nas mirror fresh"

[endpoints.laptop]
type = "local"
path = "~/documents"

[endpoints.nas]
type = "ssh"
host = "nas.lan"
path = "/srv/mirror"

[conflict]
policy = "newest"
merge_text_files = true

[ignore]
patterns = ["*.tmp", ".cache/"]

[schedule]
enabled = true
interval_seconds = 300
run_on_start = true
`

func writeProfile(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadProfile(t *testing.T) {
	p, err := LoadProfilePath(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	assert.Equal(t, "laptop-nas", p.Profile.Name)
	assert.Equal(t, []string{"laptop", "nas"}, p.EndpointOrder)

	a, b := p.OrderedEndpoints()
	assert.Equal(t, "laptop", a.Name)
	assert.Equal(t, EndpointLocal, a.Type)
	assert.Equal(t, "nas", b.Name)
	assert.Equal(t, "nas.lan", b.Host)

	assert.Equal(t, PolicyNewest, p.Conflict.Policy)
	assert.True(t, p.Conflict.MergeTextFiles)
	// merge_fallback defaults to newest
	assert.Equal(t, PolicyNewest, p.Conflict.MergeFallback)

	assert.True(t, p.Schedule.Enabled)
	assert.Equal(t, 300, p.Schedule.IntervalSeconds)
	assert.True(t, p.HasSSHEndpoint())
}

func TestEndpointOrderFollowsDeclaration(t *testing.T) {
	// zz before aa in the document; map iteration must not reorder them
	doc := `
[profile]
name = "order"

[endpoints.zz]
type = "local"
path = "/tmp/zz"

[endpoints.aa]
type = "local"
path = "/tmp/aa"
`
	p, err := LoadProfilePath(writeProfile(t, doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"zz", "aa"}, p.EndpointOrder)
}

func TestValidateRejections(t *testing.T) {
	base := func() *Profile {
		return &Profile{
			Profile: ProfileBlock{Name: "p"},
			Endpoints: map[string]EndpointBlock{
				"a": {Name: "a", Type: EndpointLocal, Path: "/tmp/a"},
				"b": {Name: "b", Type: EndpointLocal, Path: "/tmp/b"},
			},
			EndpointOrder: []string{"a", "b"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("one endpoint", func(t *testing.T) {
		p := base()
		delete(p.Endpoints, "b")
		var cerr *ConfigError
		assert.ErrorAs(t, p.Validate(), &cerr)
	})

	t.Run("unknown endpoint type", func(t *testing.T) {
		p := base()
		p.Endpoints["a"] = EndpointBlock{Name: "a", Type: "ftp", Path: "/x"}
		assert.Error(t, p.Validate())
	})

	t.Run("ssh without host", func(t *testing.T) {
		p := base()
		p.Endpoints["a"] = EndpointBlock{Name: "a", Type: EndpointSSH, Path: "/x"}
		assert.Error(t, p.Validate())
	})

	t.Run("unknown policy", func(t *testing.T) {
		p := base()
		p.Conflict.Policy = "coinflip"
		assert.Error(t, p.Validate())
	})

	t.Run("prefer without target", func(t *testing.T) {
		p := base()
		p.Conflict.Policy = PolicyPrefer
		assert.Error(t, p.Validate())
	})

	t.Run("prefer names a stranger", func(t *testing.T) {
		p := base()
		p.Conflict.Policy = PolicyPrefer
		p.Conflict.Prefer = "elsewhere"
		assert.Error(t, p.Validate())
	})

	t.Run("prefer fallback needs target too", func(t *testing.T) {
		p := base()
		p.Conflict.MergeTextFiles = true
		p.Conflict.MergeFallback = PolicyPrefer
		assert.Error(t, p.Validate())
	})

	t.Run("malformed ignore glob", func(t *testing.T) {
		p := base()
		p.Ignore.Patterns = []string{"[unclosed"}
		assert.Error(t, p.Validate())
	})

	t.Run("schedule needs positive interval", func(t *testing.T) {
		p := base()
		p.Schedule.Enabled = true
		p.Schedule.IntervalSeconds = 0
		assert.Error(t, p.Validate())
	})
}

func TestSSHCommandResolution(t *testing.T) {
	p, err := LoadProfilePath(writeProfile(t, sampleProfile))
	require.NoError(t, err)
	_, nas := p.OrderedEndpoints()

	// default
	assert.Equal(t, "ssh", p.SSHCommandFor(nas))

	// profile-wide [ssh] block
	p.SSH = &SSHBlock{SSHCommand: "ssh -o BatchMode=yes"}
	assert.Equal(t, "ssh -o BatchMode=yes", p.SSHCommandFor(nas))

	// per-endpoint override wins
	nas.SSHCommand = "ssh -J jump"
	assert.Equal(t, "ssh -J jump", p.SSHCommandFor(nas))
}

func TestSSHEnvAgentDisabled(t *testing.T) {
	p, err := LoadProfilePath(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	assert.Nil(t, p.SSHEnv())

	p.SSH = &SSHBlock{Env: map[string]string{"VPN_PROFILE": "home"}}
	assert.Equal(t, map[string]string{"VPN_PROFILE": "home"}, p.SSHEnv())

	off := false
	p.SSH.UseAgent = &off
	env := p.SSHEnv()
	assert.Equal(t, "home", env["VPN_PROFILE"])
	assert.Equal(t, "", env["SSH_AUTH_SOCK"])
}

func TestWriteProfileTemplate(t *testing.T) {
	root, err := EnsureConfigRoot(t.TempDir())
	require.NoError(t, err)

	path, err := WriteProfileTemplate(root, "fresh")
	require.NoError(t, err)

	// the template must itself parse
	p, err := LoadProfilePath(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", p.Profile.Name)
	assert.Len(t, p.Endpoints, 2)

	// refuses to clobber an existing profile
	_, err = WriteProfileTemplate(root, "fresh")
	assert.Error(t, err)

	names, err := ProfileNames(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, names)
}
