package sync

import (
	"context"
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// ConflictConfig is the validated conflict section of a profile.
type ConflictConfig struct {
	Policy         string
	Prefer         string // endpoint name, required by the prefer policy
	MergeTextFiles bool
	MergeFallback  string
}

// PathDecision is everything the planner decided for one path: the change
// pair, the actions that realize the outcome, and the predicted post-run
// entries used to advance the baseline when the actions succeed.
type PathDecision struct {
	Path     string
	CkA, CkB ChangeKind
	Actions  []Action
	Conflict *ConflictRecord
	Manual   bool // resolution deferred; baseline must not advance

	// FinalA/FinalB are the entries both sides should hold after the
	// actions apply; nil means the path is gone.
	FinalA, FinalB *Entry
}

// Plan is the ordered action list for one run plus the per-path decisions
// behind it.
type Plan struct {
	Actions   []Action
	Decisions map[string]*PathDecision
	Conflicts []ConflictRecord
}

// Empty reports a plan with nothing to do.
func (p *Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Planner combines per-side change kinds into a plan, attempting text
// merges and resolving the remaining conflicts by policy.
type Planner struct {
	a, b     Accessor
	journal  *Journal
	conflict ConflictConfig
}

func NewPlanner(a, b Accessor, journal *Journal, conflict ConflictConfig) *Planner {
	return &Planner{a: a, b: b, journal: journal, conflict: conflict}
}

// Plan diffs both snapshots against the baseline pair and emits the action
// sequence that reconciles them. Planning reads endpoint content only for
// merge attempts.
func (p *Planner) Plan(ctx context.Context, snapA, snapB, baseA, baseB map[string]*Entry) (*Plan, error) {
	all := mapset.NewThreadUnsafeSet[string]()
	for _, m := range []map[string]*Entry{snapA, snapB, baseA, baseB} {
		for path := range m {
			all.Add(path)
		}
	}
	paths := all.ToSlice()
	sort.Strings(paths)

	plan := &Plan{Decisions: make(map[string]*PathDecision, len(paths))}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plan.Decisions[path] = p.decide(ctx, path, snapA[path], snapB[path], baseA[path], baseB[path])
	}

	retainAncestorDirs(plan, snapA, snapB)

	for _, path := range paths {
		d := plan.Decisions[path]
		plan.Actions = append(plan.Actions, d.Actions...)
		if d.Conflict != nil {
			plan.Conflicts = append(plan.Conflicts, *d.Conflict)
		}
	}

	orderPlan(plan.Actions)
	return plan, nil
}

// retainAncestorDirs drops a directory delete when some descendant decision
// keeps content on that side: the recursive delete would run first and
// destroy the bytes a conflict resolution or manual deferral chose to keep.
// The directory survives instead, and on the opposite side the copies that
// retain content recreate it implicitly.
func retainAncestorDirs(plan *Plan, snapA, snapB map[string]*Entry) {
	retained := func(dir string, onA bool) (byFinal, byManual bool) {
		prefix := dir + "/"
		for path, dd := range plan.Decisions {
			if !strings.HasPrefix(path, prefix) {
				continue
			}
			if onA {
				byFinal = byFinal || dd.FinalA != nil
				byManual = byManual || (dd.Manual && snapA[path] != nil)
			} else {
				byFinal = byFinal || dd.FinalB != nil
				byManual = byManual || (dd.Manual && snapB[path] != nil)
			}
		}
		return byFinal, byManual
	}

	for _, d := range plan.Decisions {
		for i := 0; i < len(d.Actions); i++ {
			onA := d.Actions[i].Type == ActionDeleteOnA
			if !onA && d.Actions[i].Type != ActionDeleteOnB {
				continue
			}
			snap, mkdirType := snapB, ActionMkdirOnB
			if onA {
				snap, mkdirType = snapA, ActionMkdirOnA
			}
			// a delete paired with a mkdir is a file-to-directory
			// replacement, not a subtree removal
			if hasActionType(d.Actions, mkdirType) {
				continue
			}
			dir := snap[d.Actions[i].Path]
			if dir == nil || dir.Kind != KindDir {
				continue
			}
			byFinal, byManual := retained(d.Actions[i].Path, onA)
			if !byFinal && !byManual {
				continue
			}

			d.Actions = append(d.Actions[:i], d.Actions[i+1:]...)
			i--
			otherFinal, _ := retained(d.Path, !onA)
			if onA {
				d.FinalA = dir
				if otherFinal {
					d.FinalB = dir.Clone()
				}
			} else {
				d.FinalB = dir
				if otherFinal {
					d.FinalA = dir.Clone()
				}
			}
		}
	}
}

func hasActionType(actions []Action, t ActionType) bool {
	for _, a := range actions {
		if a.Type == t {
			return true
		}
	}
	return false
}

func (p *Planner) decide(ctx context.Context, path string, a, b, ba, bb *Entry) *PathDecision {
	d := &PathDecision{
		Path: path,
		CkA:  Classify(a, ba),
		CkB:  Classify(b, bb),
	}

	// gone everywhere: baseline cleanup only
	if a == nil && b == nil {
		return d
	}

	// same content on both sides, however it got there: seed the baseline
	// and move on (covers both-created-identical and both-dirs)
	if a.Equivalent(b) {
		d.FinalA, d.FinalB = a, b
		return d
	}

	switch {
	case d.CkA == Unchanged && d.CkB == Unchanged:
		// metadata drift only (e.g. mtime moved but content matched);
		// refresh the baseline records
		d.FinalA, d.FinalB = a, b

	case d.CkA == Unchanged && d.CkB == Deleted:
		p.propagateDelete(d, ActionDeleteOnA, a)
	case d.CkB == Unchanged && d.CkA == Deleted:
		p.propagateDelete(d, ActionDeleteOnB, b)

	// a deletion only loses to a fresh creation; against a modification it
	// is a conflict, handled below
	case (d.CkA == Created || d.CkA == Modified) && d.CkB == Unchanged,
		d.CkA == Created && d.CkB == Deleted:
		p.propagateCopy(d, a, b, true)
	case (d.CkB == Created || d.CkB == Modified) && d.CkA == Unchanged,
		d.CkB == Created && d.CkA == Deleted:
		p.propagateCopy(d, b, a, false)

	default:
		p.resolveConflict(ctx, d, a, b, ba, bb)
	}
	return d
}

func (p *Planner) propagateDelete(d *PathDecision, t ActionType, victim *Entry) {
	if victim == nil {
		// already gone on both sides relative to baseline
		return
	}
	d.Actions = append(d.Actions, Action{Type: t, Path: d.Path, Reason: "deleted on other side"})
}

// propagateCopy emits the actions that bring dst in line with src. aToB
// fixes direction; dst is the destination's current entry (may be nil).
func (p *Planner) propagateCopy(d *PathDecision, src, dst *Entry, aToB bool) {
	copyType, mkdirType, deleteType := ActionCopyAToB, ActionMkdirOnB, ActionDeleteOnB
	if !aToB {
		copyType, mkdirType, deleteType = ActionCopyBToA, ActionMkdirOnA, ActionDeleteOnA
	}

	if src.Kind == KindDir {
		// mkdir -p cannot replace a file; clear the destination first
		if dst != nil && dst.Kind != KindDir {
			d.Actions = append(d.Actions, Action{Type: deleteType, Path: d.Path, Reason: "replaced by directory"})
		}
		if dst == nil || dst.Kind != KindDir {
			d.Actions = append(d.Actions, Action{Type: mkdirType, Path: d.Path, Source: src, Reason: "directory created"})
		}
	} else {
		d.Actions = append(d.Actions, Action{Type: copyType, Path: d.Path, Source: src, Reason: "changed on one side"})
	}

	final := src.Clone()
	if aToB {
		d.FinalA, d.FinalB = src, final
	} else {
		d.FinalA, d.FinalB = final, src
	}
}

// resolveConflict handles every conflicted cell of the decision table:
// merge attempt for text files, then policy.
func (p *Planner) resolveConflict(ctx context.Context, d *PathDecision, a, b, ba, bb *Entry) {
	rec := &ConflictRecord{Path: d.Path, A: a, B: b, Base: ba}
	if rec.Base == nil {
		rec.Base = bb
	}
	rec.Reason = conflictReason(d, a, b)
	d.Conflict = rec

	policy := p.conflict.Policy
	if p.shouldAttemptMerge(rec, a, b) {
		merged, ok := p.attemptMerge(ctx, rec, a, b)
		if ok {
			mergeTime := time.Now().Truncate(time.Second)
			final := &Entry{
				Path:  d.Path,
				Kind:  KindFile,
				Size:  int64(len(merged)),
				Mtime: mergeTime,
				Hash:  fmt.Sprintf("%x", md5.Sum(merged)),
			}
			d.Actions = append(d.Actions, Action{Type: ActionMergeBoth, Path: d.Path, Source: final, Merged: merged, Reason: rec.Reason})
			d.FinalA, d.FinalB = final, final.Clone()
			rec.Resolution = ResolutionMerged
			return
		}
		if rec.MergeAttempted {
			policy = p.conflict.MergeFallback
		}
	}

	rec.Policy = policy
	p.applyPolicy(d, rec, a, b, policy)
}

func conflictReason(d *PathDecision, a, b *Entry) string {
	switch {
	case a != nil && b != nil && a.Kind != b.Kind:
		return ReasonKindMismatch
	case d.CkA == Deleted || d.CkB == Deleted:
		return ReasonModifyVsDelete
	case d.CkA == Created && d.CkB == Created:
		return ReasonBothCreated
	default:
		return ReasonBothModified
	}
}

func (p *Planner) shouldAttemptMerge(rec *ConflictRecord, a, b *Entry) bool {
	return p.conflict.MergeTextFiles &&
		a != nil && b != nil &&
		a.Kind == KindFile && b.Kind == KindFile &&
		IsTextPath(rec.Path)
}

// attemptMerge reads both sides and the retained base content and runs the
// three-way merge. Returns the merged bytes and whether they should be
// used; rec records what happened either way.
func (p *Planner) attemptMerge(ctx context.Context, rec *ConflictRecord, a, b *Entry) ([]byte, bool) {
	contentA, errA := p.a.Read(ctx, rec.Path)
	contentB, errB := p.b.Read(ctx, rec.Path)
	if errA != nil || errB != nil {
		rec.MergeAttempted = true
		rec.MergeError = firstErr(errA, errB).Error()
		return nil, false
	}

	if IsBinaryContent(contentA) || IsBinaryContent(contentB) {
		// not text after all: the top-level policy applies, no fallback
		return nil, false
	}

	var base []byte
	if rec.Base != nil && rec.Base.Hash != "" {
		base, _ = p.journal.Blob(rec.Base.Hash)
	}

	rec.MergeAttempted = true
	merged, err := Merge(base, contentA, contentB)
	if err != nil {
		rec.MergeError = err.Error()
		return nil, false
	}
	return merged, true
}

// applyPolicy emits the resolving actions for a conflict that merging did
// not settle.
func (p *Planner) applyPolicy(d *PathDecision, rec *ConflictRecord, a, b *Entry, policy string) {
	if policy == "manual" {
		rec.Resolution = ResolutionManual
		d.Manual = true
		d.Actions = append(d.Actions, Action{Type: ActionRecordConflict, Path: d.Path, Reason: rec.Reason})
		return
	}

	aWins := false
	switch policy {
	case "prefer":
		aWins = p.conflict.Prefer == p.a.ID()
	default: // newest
		switch {
		case a == nil:
			aWins = false
		case b == nil:
			aWins = true
		case a.Mtime.Unix() == b.Mtime.Unix():
			// deterministic tie break: declaration order wins, flagged
			aWins = true
			rec.TieBreak = true
		default:
			aWins = a.Mtime.After(b.Mtime)
		}
	}

	winner, loser := a, b
	if !aWins {
		winner, loser = b, a
	}

	if winner == nil {
		// the winning side deleted the path: propagate the deletion
		t, res := ActionDeleteOnB, ResolutionDeleteB
		if !aWins {
			t, res = ActionDeleteOnA, ResolutionDeleteA
		}
		d.Actions = append(d.Actions, Action{Type: t, Path: d.Path, Reason: rec.Reason})
		rec.Resolution = res
		return
	}

	p.propagateCopy(d, winner, loser, aWins)
	if aWins {
		rec.Resolution = ResolutionCopyAToB
	} else {
		rec.Resolution = ResolutionCopyBToA
	}
}

// orderPlan sorts actions so that deletes run deepest-first before
// directory creates shallowest-first, which run before content transfers.
// Delete-before-recreate at one path and dir-before-children both follow.
func orderPlan(actions []Action) {
	rank := func(a *Action) int {
		switch a.Type {
		case ActionDeleteOnA, ActionDeleteOnB:
			return 0
		case ActionMkdirOnA, ActionMkdirOnB:
			return 1
		case ActionRecordConflict:
			return 3
		default:
			return 2
		}
	}
	sort.SliceStable(actions, func(i, j int) bool {
		ri, rj := rank(&actions[i]), rank(&actions[j])
		if ri != rj {
			return ri < rj
		}
		di, dj := pathDepth(actions[i].Path), pathDepth(actions[j].Path)
		switch ri {
		case 0: // deletes: children before parents
			if di != dj {
				return di > dj
			}
		case 1: // mkdirs: parents before children
			if di != dj {
				return di < dj
			}
		}
		return actions[i].Path < actions[j].Path
	})
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
