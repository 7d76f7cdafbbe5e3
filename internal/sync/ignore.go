package sync

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreList filters snapshot paths. Matched paths and everything beneath a
// matched directory never enter a snapshot, so no downstream stage sees them.
type IgnoreList struct {
	matcher *gitignore.GitIgnore
}

// NewIgnoreList compiles profile patterns. Patterns use gitignore syntax,
// which subsumes the plain globs the profile schema documents.
func NewIgnoreList(patterns []string) *IgnoreList {
	return &IgnoreList{matcher: gitignore.CompileIgnoreLines(patterns...)}
}

func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if relPath == "." {
		return false
	}
	return l.matcher.MatchesPath(relPath)
}
