// Package sshx shells out to the user's ssh binary. Running the real client
// keeps agent, config and jump-host behavior identical to interactive use.
package sshx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Output framing markers. Remote shells print banners and motd noise before
// a command runs; only bytes between the markers are trusted.
const (
	beginMarker = "__PSYNC_BEGIN__"
	endMarker   = "__PSYNC_END__"
)

// Result captures one remote command execution.
type Result struct {
	ExitCode       int
	Stdout         []byte
	Stderr         string
	AuthFailed     bool
	PromptDetected bool
}

// Client runs commands on one remote host.
type Client struct {
	Host       string
	SSHCommand string            // "ssh" or a full command line, e.g. "ssh -J jump"
	Env        map[string]string // extra environment for the subprocess
}

// Run executes remoteCmd through the remote shell, feeding stdin if non-nil.
// A non-zero remote exit is not an error; callers inspect Result.
func (c *Client) Run(ctx context.Context, remoteCmd string, stdin io.Reader) (*Result, error) {
	argv := c.argv()
	argv = append(argv, c.Host, remoteCmd)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = c.environ()
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("exec %s: %w", argv[0], err)
		}
	}

	errText := stderr.String()
	return &Result{
		ExitCode:       cmd.ProcessState.ExitCode(),
		Stdout:         stdout.Bytes(),
		Stderr:         errText,
		AuthFailed:     containsAuthFailure(errText),
		PromptDetected: containsPrompt(errText),
	}, nil
}

// RunFramed wraps remoteCmd with begin/end markers and returns only the
// output between them.
func (c *Client) RunFramed(ctx context.Context, remoteCmd string) (*Result, error) {
	framed := fmt.Sprintf("printf '%s\\n'; %s; __rc=$?; printf '%s\\n'; exit $__rc", beginMarker, remoteCmd, endMarker)
	res, err := c.Run(ctx, framed, nil)
	if err != nil {
		return nil, err
	}
	res.Stdout = extractBetweenMarkers(res.Stdout)
	return res, nil
}

func (c *Client) argv() []string {
	cmdline := c.SSHCommand
	if cmdline == "" {
		cmdline = "ssh"
	}
	return strings.Fields(cmdline)
}

func (c *Client) environ() []string {
	env := os.Environ()
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	return env
}

func extractBetweenMarkers(stdout []byte) []byte {
	var body [][]byte
	capturing := false
	for _, line := range bytes.Split(stdout, []byte("\n")) {
		trimmed := string(bytes.TrimSpace(line))
		if !capturing {
			if trimmed == beginMarker {
				capturing = true
			}
			continue
		}
		if trimmed == endMarker {
			break
		}
		body = append(body, line)
	}
	return bytes.Join(body, []byte("\n"))
}

func containsAuthFailure(stderr string) bool {
	lowered := strings.ToLower(stderr)
	return strings.Contains(lowered, "permission denied") ||
		strings.Contains(lowered, "authentication failed")
}

// containsPrompt detects an interactive credential prompt leaking into
// stderr. The sync engine must never block on one.
func containsPrompt(stderr string) bool {
	lowered := strings.ToLower(stderr)
	for _, marker := range []string{"password:", "passphrase", "enter pin", "enter passcode"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// Unreachable reports whether a result looks like a dead or unauthenticated
// transport rather than a per-path failure.
func (r *Result) Unreachable() bool {
	if r.AuthFailed || r.PromptDetected {
		return true
	}
	// ssh reserves 255 for its own failures (connect, resolve, handshake)
	return r.ExitCode == 255
}

// QuoteArg quotes a single argument for the remote POSIX shell.
func QuoteArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
