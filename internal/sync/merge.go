package sync

import (
	"bytes"
	"path"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Extensions eligible for text merging. Plain .txt is deliberately absent:
// it is usually prose, which policy handles better than a line merge.
var textExtensions = map[string]bool{
	".md": true, ".rst": true, ".adoc": true, ".org": true, ".tex": true,
	".py": true, ".go": true, ".rs": true, ".js": true, ".ts": true,
	".jsx": true, ".tsx": true, ".java": true, ".c": true, ".cpp": true,
	".h": true, ".hpp": true, ".cs": true, ".rb": true, ".php": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true, ".pl": true,
	".lua": true, ".sql": true, ".html": true, ".css": true, ".scss": true,
	".xml": true, ".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true, ".env": true,
	".properties": true, ".gitignore": true, ".editorconfig": true,
}

// IsTextPath reports whether a path is a candidate for three-way merging,
// by extension only. Content is still sniffed before a merge runs.
func IsTextPath(relPath string) bool {
	ext := strings.ToLower(path.Ext(relPath))
	if ext == "" {
		base := strings.ToLower(path.Base(relPath))
		return textExtensions["."+strings.TrimPrefix(base, ".")] || textExtensions[base]
	}
	return textExtensions[ext]
}

// IsBinaryContent applies the null-byte heuristic over the first 8 KiB.
func IsBinaryContent(content []byte) bool {
	sample := content
	if len(sample) > 8192 {
		sample = sample[:8192]
	}
	return bytes.IndexByte(sample, 0) >= 0
}

// maxMergeLines bounds the inputs to what the one-rune-per-line encoding
// in diffRegions can represent.
const maxMergeLines = 0x10F7FE

var newline = []byte("\n")

// region is a contiguous run of base lines [start,end) replaced by repl on
// one side. Pure insertions have start == end.
type region struct {
	start, end int
	repl       []string
}

// Merge performs a line-based three-way merge. Lines changed on exactly one
// side win; identical changes collapse; changes overlapping in the base are
// ErrMergeConflict. base may be empty when no ancestor version exists, which
// degrades to "both sides must touch disjoint regions".
func Merge(base, a, b []byte) ([]byte, error) {
	if bytes.Equal(a, b) {
		return a, nil
	}
	if bytes.Equal(base, a) {
		return b, nil
	}
	if bytes.Equal(base, b) {
		return a, nil
	}

	baseLines := splitLines(string(base))
	if len(baseLines)+bytes.Count(a, newline)+bytes.Count(b, newline) > maxMergeLines {
		return nil, ErrMergeConflict
	}
	regionsA := diffRegions(string(base), string(a))
	regionsB := diffRegions(string(base), string(b))

	for _, ra := range regionsA {
		for _, rb := range regionsB {
			if ra.start == rb.start && ra.end == rb.end {
				// same region changed on both sides: fine only if equal
				if !equalLines(ra.repl, rb.repl) {
					return nil, ErrMergeConflict
				}
				continue
			}
			if ra.start < rb.end && rb.start < ra.end {
				return nil, ErrMergeConflict
			}
		}
	}

	merged := combineRegions(baseLines, regionsA, regionsB)
	return []byte(strings.Join(merged, "")), nil
}

// combineRegions walks the base by change boundaries, taking each segment
// from whichever side rewrote it. The overlap check has already guaranteed
// that no boundary point falls strictly inside the other side's region, so
// exact-range lookups are sufficient.
func combineRegions(baseLines []string, regionsA, regionsB []region) []string {
	points := map[int]bool{0: true, len(baseLines): true}
	byRangeA := make(map[[2]int][]string, len(regionsA))
	byRangeB := make(map[[2]int][]string, len(regionsB))
	for _, r := range regionsA {
		points[r.start], points[r.end] = true, true
		byRangeA[[2]int{r.start, r.end}] = r.repl
	}
	for _, r := range regionsB {
		points[r.start], points[r.end] = true, true
		byRangeB[[2]int{r.start, r.end}] = r.repl
	}

	sorted := make([]int, 0, len(points))
	for p := range points {
		sorted = append(sorted, p)
	}
	sort.Ints(sorted)

	var out []string
	for i, p := range sorted {
		// pure insertions anchored at this point; identical same-range
		// changes were allowed through the overlap check, emit them once
		key := [2]int{p, p}
		if repl, ok := byRangeA[key]; ok {
			out = append(out, repl...)
		} else if repl, ok := byRangeB[key]; ok {
			out = append(out, repl...)
		}

		if i == len(sorted)-1 {
			break
		}
		key = [2]int{p, sorted[i+1]}
		if repl, ok := byRangeA[key]; ok {
			out = append(out, repl...)
		} else if repl, ok := byRangeB[key]; ok {
			out = append(out, repl...)
		} else {
			out = append(out, baseLines[p:sorted[i+1]]...)
		}
	}
	return out
}

// lineRune maps a line index to a stable, valid rune. Index 0 starts past
// NUL and the mapping skips the surrogate range, so any index below ~1.1M
// round-trips through a Go string unchanged.
func lineRune(index int) rune {
	r := rune(index + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

func runeLine(r rune) int {
	if r >= 0xE000 {
		r -= 0x800
	}
	return int(r) - 1
}

// diffRegions computes the base-line regions a side rewrote. Both texts are
// encoded one rune per distinct line before diffing, so every diff boundary
// falls exactly on a line boundary and each output rune decodes to one
// entry of lineArray.
func diffRegions(base, side string) []region {
	lineIndex := map[string]int{}
	var lineArray []string
	encode := func(text string) string {
		var sb strings.Builder
		for _, line := range splitLines(text) {
			idx, ok := lineIndex[line]
			if !ok {
				idx = len(lineArray)
				lineIndex[line] = idx
				lineArray = append(lineArray, line)
			}
			sb.WriteRune(lineRune(idx))
		}
		return sb.String()
	}
	encBase, encSide := encode(base), encode(side)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(encBase, encSide, false)

	var regions []region
	var cur *region
	baseIdx := 0

	flush := func() {
		if cur != nil {
			regions = append(regions, *cur)
			cur = nil
		}
	}
	open := func() {
		if cur == nil {
			cur = &region{start: baseIdx, end: baseIdx}
		}
	}

	for _, d := range diffs {
		runes := []rune(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			baseIdx += len(runes)
		case diffmatchpatch.DiffDelete:
			open()
			baseIdx += len(runes)
			cur.end = baseIdx
		case diffmatchpatch.DiffInsert:
			open()
			for _, r := range runes {
				cur.repl = append(cur.repl, lineArray[runeLine(r)])
			}
		}
	}
	flush()
	return regions
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
