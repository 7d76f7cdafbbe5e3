package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/peersync/peersync/internal/config"
	"github.com/peersync/peersync/internal/sync"
)

// Runner schedules recurring sync runs, one loop per profile. Runs of the
// same profile never overlap: the next interval starts counting only after
// the previous run returns.
type Runner struct {
	root string
	log  *slog.Logger

	failures atomic.Int64
}

func New(root string, log *slog.Logger) *Runner {
	return &Runner{root: root, log: log}
}

// Start blocks until the context is cancelled (or, with once, until every
// selected profile has run a single time). With no names it schedules every
// profile whose schedule block is enabled.
func (r *Runner) Start(ctx context.Context, names []string, once bool) error {
	profiles, err := r.selectProfiles(names, once)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return errors.New("no profiles to schedule; enable [schedule] in a profile or name one explicitly")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range profiles {
		p := p
		g.Go(func() error {
			return r.loop(gctx, p, once)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := r.failures.Load(); n > 0 {
		return fmt.Errorf("%d run(s) failed", n)
	}
	return nil
}

// selectProfiles resolves the profiles to schedule. Named profiles are
// taken as-is; with once even a disabled schedule runs.
func (r *Runner) selectProfiles(names []string, once bool) ([]*config.Profile, error) {
	if len(names) == 0 {
		all, err := config.ProfileNames(r.root)
		if err != nil {
			return nil, err
		}
		names = all
	}

	var profiles []*config.Profile
	for _, name := range names {
		p, err := config.LoadProfile(r.root, name)
		if err != nil {
			return nil, err
		}
		if !p.Schedule.Enabled && !once {
			r.log.Warn("profile has no enabled schedule, skipping", "profile", name)
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (r *Runner) loop(ctx context.Context, p *config.Profile, once bool) error {
	syncer, err := sync.NewSyncer(r.root, p, r.log)
	if err != nil {
		return err
	}

	if once {
		r.runOnce(ctx, p, syncer)
		return nil
	}

	interval := time.Duration(p.Schedule.IntervalSeconds) * time.Second
	r.log.Info("profile scheduled", "profile", p.Profile.Name, "interval", interval, "run_on_start", p.Schedule.RunOnStart)

	if p.Schedule.RunOnStart {
		r.runOnce(ctx, p, syncer)
	}

	// a timer, not a ticker: the interval restarts after each run so slow
	// runs do not pile up
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			r.runOnce(ctx, p, syncer)
			timer.Reset(interval)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, p *config.Profile, syncer *sync.Syncer) {
	report, err := syncer.Run(ctx, false)
	switch {
	case errors.Is(err, sync.ErrRunInProgress):
		r.log.Warn("run already in progress elsewhere, skipping", "profile", p.Profile.Name)
	case errors.Is(err, context.Canceled):
	case err != nil:
		r.failures.Add(1)
		r.log.Error("run failed", "profile", p.Profile.Name, "error", err)
	default:
		if !report.Success() {
			r.failures.Add(1)
		}
	}
}
