package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/peersync/peersync/internal/sshx"
)

// findFormat drives the remote listing: relative path, type char, size,
// mtime (epoch seconds with fraction), symlink target.
const findFormat = `%P|%y|%s|%T@|%l\n`

// SSHAccessor serves a directory on a remote host through the ssh transport.
type SSHAccessor struct {
	id     string
	root   string // POSIX path on the remote host
	client *sshx.Client
}

func NewSSHAccessor(id, root string, client *sshx.Client) *SSHAccessor {
	return &SSHAccessor{id: id, root: strings.TrimRight(root, "/"), client: client}
}

func (a *SSHAccessor) ID() string {
	return a.id
}

func (a *SSHAccessor) List(ctx context.Context) (map[string]*Entry, error) {
	cmd := fmt.Sprintf("mkdir -p %s && find %s -mindepth 1 -printf '%s'",
		sshx.QuoteArg(a.root), sshx.QuoteArg(a.root), findFormat)
	res, err := a.client.RunFramed(ctx, cmd)
	if err != nil {
		return nil, &TransportError{Endpoint: a.id, Err: err}
	}
	if res.Unreachable() {
		return nil, &TransportError{Endpoint: a.id, Err: remoteErr(res)}
	}
	if res.ExitCode != 0 {
		return nil, &IOError{Endpoint: a.id, Op: "list", Path: a.root, Err: remoteErr(res)}
	}
	return parseListing(res.Stdout)
}

func parseListing(out []byte) (map[string]*Entry, error) {
	entries := make(map[string]*Entry)
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 5)
		if len(fields) != 5 {
			continue
		}
		relPath, err := NormalizeRelPath(fields[0])
		if err != nil || relPath == "." {
			continue
		}
		entry := &Entry{Path: relPath}
		switch fields[1] {
		case "d":
			entry.Kind = KindDir
		case "l":
			entry.Kind = KindSymlink
			entry.LinkTarget = fields[4]
		case "f":
			entry.Kind = KindFile
			size, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				continue
			}
			entry.Size = size
		default:
			// sockets, fifos, devices are not synchronized
			continue
		}
		mtime, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			continue
		}
		sec, frac := math.Modf(mtime)
		entry.Mtime = time.Unix(int64(sec), int64(frac*1e9))
		entries[relPath] = entry
	}
	return entries, nil
}

func (a *SSHAccessor) Read(ctx context.Context, relPath string) ([]byte, error) {
	res, err := a.client.Run(ctx, "cat "+sshx.QuoteArg(a.abs(relPath)), nil)
	if err != nil {
		return nil, &TransportError{Endpoint: a.id, Err: err}
	}
	if res.Unreachable() {
		return nil, &TransportError{Endpoint: a.id, Err: remoteErr(res)}
	}
	if res.ExitCode != 0 {
		return nil, &IOError{Endpoint: a.id, Op: "read", Path: relPath, Err: remoteErr(res)}
	}
	return res.Stdout, nil
}

func (a *SSHAccessor) Write(ctx context.Context, relPath string, data []byte, mtime time.Time) error {
	target := a.abs(relPath)
	parent := path.Dir(target)
	cmd := fmt.Sprintf("mkdir -p %s && rm -rf %s && cat > %s && touch -m -d @%d %s",
		sshx.QuoteArg(parent), sshx.QuoteArg(target), sshx.QuoteArg(target), mtime.Unix(), sshx.QuoteArg(target))
	res, err := a.client.Run(ctx, cmd, bytes.NewReader(data))
	return a.checkResult(res, err, "write", relPath)
}

func (a *SSHAccessor) Delete(ctx context.Context, relPath string) error {
	res, err := a.client.Run(ctx, "rm -rf "+sshx.QuoteArg(a.abs(relPath)), nil)
	return a.checkResult(res, err, "delete", relPath)
}

func (a *SSHAccessor) Mkdir(ctx context.Context, relPath string) error {
	res, err := a.client.Run(ctx, "mkdir -p "+sshx.QuoteArg(a.abs(relPath)), nil)
	return a.checkResult(res, err, "mkdir", relPath)
}

func (a *SSHAccessor) Symlink(ctx context.Context, target, relPath string) error {
	link := a.abs(relPath)
	cmd := fmt.Sprintf("mkdir -p %s && rm -rf %s && ln -sfn %s %s",
		sshx.QuoteArg(path.Dir(link)), sshx.QuoteArg(link), sshx.QuoteArg(target), sshx.QuoteArg(link))
	res, err := a.client.Run(ctx, cmd, nil)
	return a.checkResult(res, err, "symlink", relPath)
}

func (a *SSHAccessor) abs(relPath string) string {
	return path.Join(a.root, relPath)
}

func (a *SSHAccessor) checkResult(res *sshx.Result, err error, op, relPath string) error {
	if err != nil {
		return &TransportError{Endpoint: a.id, Err: err}
	}
	if res.Unreachable() {
		return &TransportError{Endpoint: a.id, Err: remoteErr(res)}
	}
	if res.ExitCode != 0 {
		return &IOError{Endpoint: a.id, Op: op, Path: relPath, Err: remoteErr(res)}
	}
	return nil
}

func remoteErr(res *sshx.Result) error {
	if res.PromptDetected {
		return errors.New("ssh authentication prompt detected; refusing to block")
	}
	if res.AuthFailed {
		return errors.New("ssh authentication failed")
	}
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("remote command exited with status %d", res.ExitCode)
	}
	return errors.New(msg)
}
