package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const profileTemplate = `[profile]
name = %q
description = "Synchronize two directories."

[endpoints.local]
type = "local"
path = "~/projects/%s"

[endpoints.remote]
type = "ssh"
host = "example.com"
path = "/srv/data/%s"

[conflict]
policy = "newest"
merge_text_files = true
merge_fallback = "newest"

[ignore]
patterns = [".git", "node_modules", "__pycache__"]

[schedule]
enabled = false
interval_seconds = 3600
run_on_start = true

[ssh]
use_agent = true
ssh_command = "ssh"
`

// WriteProfileTemplate creates <root>/profiles/<name>.toml with commented
// defaults. Refuses to clobber an existing profile.
func WriteProfileTemplate(root, name string) (string, error) {
	target := filepath.Join(ProfilesDir(root), name+".toml")
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("profile %q already exists at %s", name, target)
	}
	body := fmt.Sprintf(profileTemplate, name, name, name)
	if err := os.WriteFile(target, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write profile template: %w", err)
	}
	return target, nil
}
