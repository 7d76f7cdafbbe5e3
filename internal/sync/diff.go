package sync

// Classify derives a path's change kind on one side from its current and
// baseline records. Either may be nil; both nil means the side has no
// record of the path at all, which reads as Unchanged (nothing to do on
// that side, the other side drives the outcome).
func Classify(current, base *Entry) ChangeKind {
	switch {
	case current == nil && base == nil:
		return Unchanged
	case base == nil:
		return Created
	case current == nil:
		return Deleted
	}

	if current.Kind != base.Kind {
		return Modified
	}
	switch current.Kind {
	case KindDir:
		// directories carry no content; mtime churn is not a change
		return Unchanged
	case KindSymlink:
		if current.LinkTarget != base.LinkTarget {
			return Modified
		}
		return Unchanged
	default:
		if current.Size != base.Size {
			return Modified
		}
		if current.Hash != "" && base.Hash != "" {
			if current.Hash != base.Hash {
				return Modified
			}
			return Unchanged
		}
		// no fingerprint on either record: size+mtime equality is the only
		// evidence of sameness available
		if !mtimeEqual(current.Mtime, base.Mtime) {
			return Modified
		}
		return Unchanged
	}
}
