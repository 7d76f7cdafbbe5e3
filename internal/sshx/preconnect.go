package sshx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// PreConnect runs a local warm-up command (VPN up, agent load) before the
// first remote operation. Stdout/stderr pass through so the user can see
// any output the command produces.
func PreConnect(ctx context.Context, command string, env map[string]string) error {
	if command == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pre-connect command failed: %w", err)
	}
	return nil
}
