package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
)

const (
	EndpointLocal = "local"
	EndpointSSH   = "ssh"

	PolicyNewest = "newest"
	PolicyManual = "manual"
	PolicyPrefer = "prefer"
)

// ConfigError reports an invalid profile document. It is fatal: a run never
// starts against a profile that fails validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

type ProfileBlock struct {
	Name        string `toml:"name"`
	Description string `toml:"description,omitempty"`
}

type EndpointBlock struct {
	// Name is the endpoint's key in the [endpoints] table, filled after decode.
	Name              string `toml:"-"`
	Type              string `toml:"type"`
	Path              string `toml:"path"`
	Host              string `toml:"host,omitempty"`
	SSHCommand        string `toml:"ssh_command,omitempty"`
	PreConnectCommand string `toml:"pre_connect_command,omitempty"`
}

type ConflictBlock struct {
	Policy         string `toml:"policy"`
	Prefer         string `toml:"prefer,omitempty"`
	MergeTextFiles bool   `toml:"merge_text_files"`
	MergeFallback  string `toml:"merge_fallback,omitempty"`
}

type IgnoreBlock struct {
	Patterns []string `toml:"patterns"`
}

type ScheduleBlock struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
	RunOnStart      bool `toml:"run_on_start"`
}

type SSHBlock struct {
	UseAgent          *bool             `toml:"use_agent,omitempty"` // nil means true
	PreConnectCommand string            `toml:"pre_connect_command,omitempty"`
	SSHCommand        string            `toml:"ssh_command,omitempty"`
	Env               map[string]string `toml:"env,omitempty"`
}

// Profile is the full on-disk profile document. Endpoint declaration order
// is preserved because the newest-policy tie break depends on it.
type Profile struct {
	Profile   ProfileBlock             `toml:"profile"`
	Endpoints map[string]EndpointBlock `toml:"endpoints"`
	Conflict  ConflictBlock            `toml:"conflict"`
	Ignore    IgnoreBlock              `toml:"ignore"`
	Schedule  ScheduleBlock            `toml:"schedule"`
	SSH       *SSHBlock                `toml:"ssh,omitempty"`

	// EndpointOrder lists endpoint names in declaration order.
	EndpointOrder []string `toml:"-"`
}

// LoadProfile reads <root>/profiles/<name>.toml.
func LoadProfile(root, name string) (*Profile, error) {
	return LoadProfilePath(filepath.Join(ProfilesDir(root), name+".toml"))
}

// LoadProfilePath decodes and validates a profile document.
func LoadProfilePath(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	var p Profile
	md, err := toml.Decode(string(data), &p)
	if err != nil {
		return nil, &ConfigError{Field: filepath.Base(path), Reason: err.Error()}
	}

	p.EndpointOrder = endpointOrder(md, p.Endpoints)
	for name, ep := range p.Endpoints {
		ep.Name = name
		p.Endpoints[name] = ep
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// endpointOrder recovers [endpoints.<name>] declaration order from decode
// metadata. Map iteration would randomize it.
func endpointOrder(md toml.MetaData, endpoints map[string]EndpointBlock) []string {
	var order []string
	seen := make(map[string]bool, len(endpoints))
	for _, key := range md.Keys() {
		parts := []string(key)
		if len(parts) >= 2 && parts[0] == "endpoints" && !seen[parts[1]] {
			seen[parts[1]] = true
			order = append(order, parts[1])
		}
	}
	// decode paths not covered by metadata (programmatic profiles)
	if len(order) < len(endpoints) {
		var rest []string
		for name := range endpoints {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		order = append(order, rest...)
	}
	return order
}

// Validate checks the whole document. All violations are ConfigErrors and
// abort a run before any action executes.
func (p *Profile) Validate() error {
	if p.Profile.Name == "" {
		return &ConfigError{Field: "profile.name", Reason: "must not be empty"}
	}
	if len(p.Endpoints) != 2 {
		return &ConfigError{Field: "endpoints", Reason: fmt.Sprintf("exactly two endpoints required, got %d", len(p.Endpoints))}
	}

	for name, ep := range p.Endpoints {
		field := "endpoints." + name
		switch ep.Type {
		case EndpointLocal:
			if ep.Path == "" {
				return &ConfigError{Field: field + ".path", Reason: "must not be empty"}
			}
		case EndpointSSH:
			if ep.Host == "" {
				return &ConfigError{Field: field + ".host", Reason: "ssh endpoints must include a host"}
			}
			if ep.Path == "" {
				return &ConfigError{Field: field + ".path", Reason: "must not be empty"}
			}
		default:
			return &ConfigError{Field: field + ".type", Reason: fmt.Sprintf("unknown endpoint type %q", ep.Type)}
		}
	}

	if err := p.validateConflict(); err != nil {
		return err
	}

	for _, pattern := range p.Ignore.Patterns {
		if !doublestar.ValidatePattern(pattern) {
			return &ConfigError{Field: "ignore.patterns", Reason: fmt.Sprintf("malformed glob %q", pattern)}
		}
	}

	if p.Schedule.Enabled && p.Schedule.IntervalSeconds <= 0 {
		return &ConfigError{Field: "schedule.interval_seconds", Reason: "must be positive"}
	}
	return nil
}

func (p *Profile) validateConflict() error {
	c := &p.Conflict
	if c.Policy == "" {
		c.Policy = PolicyNewest
	}
	if c.MergeFallback == "" {
		c.MergeFallback = PolicyNewest
	}

	for field, policy := range map[string]string{
		"conflict.policy":         c.Policy,
		"conflict.merge_fallback": c.MergeFallback,
	} {
		switch policy {
		case PolicyNewest, PolicyManual, PolicyPrefer:
		default:
			return &ConfigError{Field: field, Reason: fmt.Sprintf("unknown policy %q", policy)}
		}
	}

	needsPrefer := c.Policy == PolicyPrefer || (c.MergeTextFiles && c.MergeFallback == PolicyPrefer)
	if needsPrefer {
		if c.Prefer == "" {
			return &ConfigError{Field: "conflict.prefer", Reason: "prefer policy requires an endpoint name"}
		}
		if _, ok := p.Endpoints[c.Prefer]; !ok {
			return &ConfigError{Field: "conflict.prefer", Reason: fmt.Sprintf("%q names neither endpoint", c.Prefer)}
		}
	}
	return nil
}

// OrderedEndpoints returns the two endpoint blocks in declaration order.
func (p *Profile) OrderedEndpoints() (EndpointBlock, EndpointBlock) {
	a := p.Endpoints[p.EndpointOrder[0]]
	b := p.Endpoints[p.EndpointOrder[1]]
	return a, b
}

// SSHCommandFor resolves the ssh command for an endpoint, falling back to
// the profile-wide [ssh] block, then to plain "ssh".
func (p *Profile) SSHCommandFor(ep EndpointBlock) string {
	if ep.SSHCommand != "" {
		return ep.SSHCommand
	}
	if p.SSH != nil && p.SSH.SSHCommand != "" {
		return p.SSH.SSHCommand
	}
	return "ssh"
}

// PreConnectCommand resolves the warm-up command run once before the first
// remote operation, if any.
func (p *Profile) PreConnectCommand() string {
	if p.SSH != nil && p.SSH.PreConnectCommand != "" {
		return p.SSH.PreConnectCommand
	}
	for _, name := range p.EndpointOrder {
		if cmd := p.Endpoints[name].PreConnectCommand; cmd != "" {
			return cmd
		}
	}
	return ""
}

// SSHEnv returns extra environment for ssh subprocesses. With use_agent
// disabled, SSH_AUTH_SOCK is blanked so ssh falls back to identity files.
func (p *Profile) SSHEnv() map[string]string {
	if p.SSH == nil {
		return nil
	}
	env := p.SSH.Env
	if p.SSH.UseAgent != nil && !*p.SSH.UseAgent {
		merged := make(map[string]string, len(env)+1)
		for k, v := range env {
			merged[k] = v
		}
		merged["SSH_AUTH_SOCK"] = ""
		return merged
	}
	return env
}

// HasSSHEndpoint reports whether any endpoint uses the ssh transport.
func (p *Profile) HasSSHEndpoint() bool {
	for _, ep := range p.Endpoints {
		if ep.Type == EndpointSSH {
			return true
		}
	}
	return false
}

// ProfileNames lists profiles available under the config root.
func ProfileNames(root string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(ProfilesDir(root), "*.toml"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".toml"))
	}
	sort.Strings(names)
	return names, nil
}
