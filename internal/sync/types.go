package sync

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind of a tree entry. Symlinks are first-class and never followed.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

var kindNames = []string{"file", "dir", "symlink"}

func (k Kind) String() string {
	return kindNames[k]
}

// Entry is the snapshot record for one relative path on one endpoint.
type Entry struct {
	Path       string
	Kind       Kind
	Size       int64
	Mtime      time.Time
	Hash       string // md5 hex, lazily computed; empty for dirs and symlinks
	LinkTarget string
}

// Clone returns a copy that later snapshot runs cannot mutate.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// mtimeEqual compares at second precision: remote listings carry fractional
// seconds and local filesystems nanoseconds, and the difference is noise.
func mtimeEqual(a, b time.Time) bool {
	return a.Unix() == b.Unix()
}

// Equivalent reports whether two sides hold the same content for a path,
// regardless of how each got there.
func (e *Entry) Equivalent(o *Entry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Kind != o.Kind {
		return false
	}
	switch e.Kind {
	case KindDir:
		return true
	case KindSymlink:
		return e.LinkTarget == o.LinkTarget
	default:
		if e.Size != o.Size {
			return false
		}
		if e.Hash != "" && o.Hash != "" {
			return e.Hash == o.Hash
		}
		return mtimeEqual(e.Mtime, o.Mtime)
	}
}

// ChangeKind classifies a path's state on one side relative to baseline.
type ChangeKind uint8

const (
	Unchanged ChangeKind = iota
	Created
	Modified
	Deleted
)

var changeKindNames = []string{"unchanged", "created", "modified", "deleted"}

func (c ChangeKind) String() string {
	return changeKindNames[c]
}

// ActionType enumerates the reconciliation steps a plan can contain.
type ActionType uint8

const (
	ActionCopyAToB ActionType = iota
	ActionCopyBToA
	ActionDeleteOnA
	ActionDeleteOnB
	ActionMkdirOnA
	ActionMkdirOnB
	ActionMergeBoth
	ActionRecordConflict
)

var actionTypeNames = []string{
	"CopyAToB",
	"CopyBToA",
	"DeleteOnA",
	"DeleteOnB",
	"MkdirOnA",
	"MkdirOnB",
	"MergeBoth",
	"RecordConflict",
}

func (a ActionType) String() string {
	return actionTypeNames[a]
}

// Action is a single reconciliation step within a plan.
type Action struct {
	Type   ActionType
	Path   string
	Source *Entry // entry being propagated, nil for deletes and conflict records
	Merged []byte // payload for ActionMergeBoth
	Reason string
}

// ConflictRecord is the auditable trail for one conflicted path: what both
// sides held, what merge did, and how policy resolved it.
type ConflictRecord struct {
	Path           string
	Reason         string
	A              *Entry // nil if absent on that side
	B              *Entry
	Base           *Entry // baseline record, nil on first contact
	MergeAttempted bool
	MergeError     string
	Resolution     string
	Policy         string
	TieBreak       bool
}

const (
	ReasonBothCreated    = "both_created"
	ReasonBothModified   = "both_modified"
	ReasonModifyVsDelete = "modify_vs_delete"
	ReasonKindMismatch   = "kind_mismatch"

	ResolutionMerged   = "merged"
	ResolutionCopyAToB = "copy_a_to_b"
	ResolutionCopyBToA = "copy_b_to_a"
	ResolutionDeleteA  = "delete_on_a"
	ResolutionDeleteB  = "delete_on_b"
	ResolutionManual   = "manual"
)

var driveLetterRe = regexp.MustCompile(`^[A-Za-z]:`)

// NormalizeRelPath canonicalizes a path to the POSIX relative form used
// everywhere in snapshots, plans and the journal. Absolute paths and
// root-escaping paths are rejected.
func NormalizeRelPath(path string) (string, error) {
	normalized := strings.ReplaceAll(path, "\\", "/")
	if driveLetterRe.MatchString(normalized) || strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("absolute paths are not allowed: %q", path)
	}
	var parts []string
	for _, part := range strings.Split(normalized, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("path escapes root: %q", path)
		default:
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return ".", nil
	}
	return strings.Join(parts, "/"), nil
}

// pathDepth orders plan actions: parents before children for creates,
// children before parents for deletes.
func pathDepth(path string) int {
	return strings.Count(path, "/")
}
