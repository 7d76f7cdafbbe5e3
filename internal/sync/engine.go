package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/peersync/peersync/internal/config"
	"github.com/peersync/peersync/internal/sshx"
)

// Report summarizes one run of a profile.
type Report struct {
	RunID    string
	Profile  string
	Start    time.Time
	Duration time.Duration
	DryRun   bool

	Plan     *Plan
	Outcomes []Outcome

	Applied          int
	Failed           int
	Unresolved       int // manual conflicts awaiting the user
	BytesTransferred int64
	Conflicts        []ConflictRecord
}

// Success reports a run where every planned action applied.
func (r *Report) Success() bool {
	return r.Failed == 0
}

// Syncer runs a profile end to end. One Syncer serves many runs; its
// snapshot fingerprint cache carries across them, which matters for the
// daemon.
type Syncer struct {
	root    string
	profile *config.Profile
	log     *slog.Logger
	snap    *Snapshotter

	preconnected bool
}

func NewSyncer(root string, profile *config.Profile, log *slog.Logger) (*Syncer, error) {
	snap, err := NewSnapshotter()
	if err != nil {
		return nil, err
	}
	return &Syncer{
		root:    root,
		profile: profile,
		log:     log.With("profile", profile.Profile.Name),
		snap:    snap,
	}, nil
}

// Run executes one sync pass. Concurrent runs of the same profile are
// rejected with ErrRunInProgress. A dry run plans but touches neither
// endpoint nor the journal.
func (s *Syncer) Run(ctx context.Context, dryRun bool) (*Report, error) {
	name := s.profile.Profile.Name
	report := &Report{
		RunID:   uuid.NewString(),
		Profile: name,
		Start:   time.Now(),
		DryRun:  dryRun,
	}
	s.log.Info("run started", "run_id", report.RunID, "dry_run", dryRun)

	if _, err := config.EnsureConfigRoot(s.root); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(config.StateDir(s.root), name+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire profile lock: %w", err)
	}
	if !locked {
		return nil, ErrRunInProgress
	}
	defer lock.Unlock()

	epA, epB := s.profile.OrderedEndpoints()
	accA, err := s.accessorFor(epA)
	if err != nil {
		return nil, err
	}
	accB, err := s.accessorFor(epB)
	if err != nil {
		return nil, err
	}

	if err := s.preconnect(ctx); err != nil {
		return nil, err
	}

	journal, err := OpenJournal(filepath.Join(config.StateDir(s.root), name+".db"))
	if err != nil {
		return nil, err
	}
	defer journal.Close()

	baseA, err := journal.Baseline(name, accA.ID())
	if err != nil {
		return nil, err
	}
	baseB, err := journal.Baseline(name, accB.ID())
	if err != nil {
		return nil, err
	}

	ignore := NewIgnoreList(s.profile.Ignore.Patterns)
	var snapA, snapB map[string]*Entry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapA, err = s.snap.Snapshot(gctx, accA, ignore, baseA)
		return err
	})
	g.Go(func() error {
		var err error
		snapB, err = s.snap.Snapshot(gctx, accB, ignore, baseB)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	s.log.Debug("snapshots taken", "entries_a", len(snapA), "entries_b", len(snapB))

	planner := NewPlanner(accA, accB, journal, ConflictConfig{
		Policy:         s.profile.Conflict.Policy,
		Prefer:         s.profile.Conflict.Prefer,
		MergeTextFiles: s.profile.Conflict.MergeTextFiles,
		MergeFallback:  s.profile.Conflict.MergeFallback,
	})
	plan, err := planner.Plan(ctx, snapA, snapB, baseA, baseB)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	report.Plan = plan
	report.Conflicts = plan.Conflicts
	for _, rec := range plan.Conflicts {
		if rec.Resolution == ResolutionManual {
			report.Unresolved++
		}
	}

	if dryRun {
		report.Duration = time.Since(report.Start)
		s.log.Info("dry run complete", "planned", len(plan.Actions), "conflicts", len(plan.Conflicts))
		return report, nil
	}

	outcomes := NewExecutor(accA, accB, s.log).Apply(ctx, plan)
	report.Outcomes = outcomes

	failed := make(map[string]bool)
	for i, act := range plan.Actions {
		if act.Type == ActionRecordConflict {
			continue
		}
		if outcomes[i].Err != nil {
			failed[act.Path] = true
			report.Failed++
			continue
		}
		report.Applied++
		report.BytesTransferred += outcomes[i].Bytes
	}

	if err := s.advanceBaseline(journal, accA.ID(), accB.ID(), plan, outcomes, baseA, baseB, failed); err != nil {
		return nil, fmt.Errorf("advance baseline: %w", err)
	}

	report.Duration = time.Since(report.Start)
	s.log.Info("run complete",
		"run_id", report.RunID,
		"applied", report.Applied,
		"failed", report.Failed,
		"unresolved", report.Unresolved,
		"bytes", report.BytesTransferred,
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

func (s *Syncer) accessorFor(ep config.EndpointBlock) (Accessor, error) {
	switch ep.Type {
	case config.EndpointLocal:
		return NewLocalAccessor(ep.Name, ep.Path)
	case config.EndpointSSH:
		client := &sshx.Client{
			Host:       ep.Host,
			SSHCommand: s.profile.SSHCommandFor(ep),
			Env:        s.profile.SSHEnv(),
		}
		return NewSSHAccessor(ep.Name, ep.Path, client), nil
	default:
		return nil, &config.ConfigError{Field: "endpoints." + ep.Name + ".type", Reason: "unknown type " + ep.Type}
	}
}

// preconnect runs the profile's warm-up command once per Syncer, before
// the first remote operation (agent unlock, VPN check, control master).
func (s *Syncer) preconnect(ctx context.Context) error {
	if s.preconnected || !s.profile.HasSSHEndpoint() {
		return nil
	}
	cmd := s.profile.PreConnectCommand()
	if cmd == "" {
		s.preconnected = true
		return nil
	}
	s.log.Debug("running pre-connect command", "command", cmd)
	if err := sshx.PreConnect(ctx, cmd, s.profile.SSHEnv()); err != nil {
		return fmt.Errorf("pre-connect command failed: %w", err)
	}
	s.preconnected = true
	return nil
}

// advanceBaseline writes the post-run baseline in one transaction. Paths
// whose actions failed and manually deferred conflicts keep their old
// baseline rows so the next run sees them again; everything else moves to
// the planner's predicted entries.
func (s *Syncer) advanceBaseline(journal *Journal, idA, idB string, plan *Plan, outcomes []Outcome, baseA, baseB map[string]*Entry, failed map[string]bool) error {
	nextA := make(map[string]*Entry, len(plan.Decisions))
	nextB := make(map[string]*Entry, len(plan.Decisions))
	var conflicts []ConflictRecord

	for path, d := range plan.Decisions {
		if d.Manual || failed[path] {
			if old := baseA[path]; old != nil {
				nextA[path] = old
			}
			if old := baseB[path]; old != nil {
				nextB[path] = old
			}
			if d.Conflict != nil {
				conflicts = append(conflicts, *d.Conflict)
			}
			continue
		}
		if d.FinalA != nil {
			nextA[path] = d.FinalA
		}
		if d.FinalB != nil {
			nextB[path] = d.FinalB
		}
	}

	blobs := make(map[string][]byte)
	for i, act := range plan.Actions {
		out := &outcomes[i]
		if out.Err != nil || out.Content == nil || act.Source == nil {
			continue
		}
		if act.Source.Hash == "" || int64(len(out.Content)) > MaxBlobSize {
			continue
		}
		if !IsTextPath(act.Path) || IsBinaryContent(out.Content) {
			continue
		}
		blobs[act.Source.Hash] = out.Content
	}

	return journal.ReplaceBaseline(s.profile.Profile.Name, [2]string{idA, idB}, [2]map[string]*Entry{nextA, nextB}, conflicts, blobs)
}
